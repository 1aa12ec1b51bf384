package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"promptfinder/internal/middleware"
	"promptfinder/internal/service"
)

// Pinger is a dependency the health endpoint checks.
type Pinger func(ctx context.Context) error

type Options struct {
	Environment   string
	JWTSecret     string
	StaffRoles    []string
	RatePerMinute int
	Database      Pinger
	Cache         Pinger
}

type HandlerSet struct {
	log     zerolog.Logger
	opts    Options
	uploads service.Uploads
	posts   service.Posts
	limiter *middleware.RateLimiter
}

func NewHandlerSet(log zerolog.Logger, uploads service.Uploads, posts service.Posts, opts Options) HandlerSet {
	registerValidators()
	return HandlerSet{
		log:     log.With().Str("component", "http").Logger(),
		opts:    opts,
		uploads: uploads,
		posts:   posts,
		limiter: middleware.NewRateLimiter(opts.RatePerMinute),
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	router.GET("/ai-generators/", h.ListGenerators)

	auth := middleware.Auth(h.opts.JWTSecret, h.opts.StaffRoles)

	upload := router.Group("/upload")
	upload.Use(auth, h.limiter.Middleware())
	{
		upload.POST("/b2/presign/", h.Presign)
		upload.POST("/b2/complete/", h.Complete)
		upload.POST("/b2/moderate/", h.ModerateImage)
		upload.POST("/b2/delete/", h.DeleteUpload)
		upload.POST("/cancel/", h.CancelUpload)
		upload.POST("/extend/", h.ExtendUpload)
		upload.POST("/ai-suggestions/", h.Suggestions)
	}

	router.GET("/ai-job-status/:job_id/", auth, h.JobStatus)

	posts := router.Group("/posts")
	posts.GET("/:id/", middleware.OptionalAuth(h.opts.JWTSecret, h.opts.StaffRoles), h.GetPost)
	owned := posts.Group("")
	owned.Use(auth)
	{
		owned.PATCH("/:id/", h.EditPost)
		owned.DELETE("/:id/", h.DeletePost)
		owned.POST("/:id/restore/", h.RestorePost)
	}
}
