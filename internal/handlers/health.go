package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Database:    h.check(ctx, "database", h.opts.Database),
		Cache:       h.check(ctx, "redis", h.opts.Cache),
		Environment: h.opts.Environment,
	}
	code := http.StatusOK
	if resp.Database == "error" || resp.Cache == "error" {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (h HandlerSet) check(ctx context.Context, name string, ping Pinger) string {
	if ping == nil {
		return "skipped"
	}
	if err := ping(ctx); err != nil {
		h.log.Error().Err(err).Str("dependency", name).Msg("health check failed")
		return "error"
	}
	return "ok"
}
