package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"promptfinder/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func viewerRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	r.GET("/me", func(c *gin.Context) {
		v := ViewerFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": v.ID, "staff": v.Staff})
	})
	return r
}

func TestAuthRequiresToken(t *testing.T) {
	r := viewerRouter(Auth("secret", []string{"moderator"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer junk")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad token, got %d", w.Code)
	}
}

func TestAuthResolvesStaff(t *testing.T) {
	r := viewerRouter(Auth("secret", []string{"Moderator"}))
	token, _ := security.GenerateAccessToken("secret", "u1", "moderator", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"id":"u1","staff":true}` {
		t.Errorf("Expected staff viewer, got %s", body)
	}
}

func TestOptionalAuthAllowsAnonymous(t *testing.T) {
	r := viewerRouter(OptionalAuth("secret", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected anonymous request allowed, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(2)
	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 200,200,429, got %v", codes)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://promptfinder.net"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://promptfinder.net")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://promptfinder.net" {
		t.Errorf("Expected origin echoed, got %q", got)
	}
}
