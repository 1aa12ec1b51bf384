package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"promptfinder/internal/middleware"
	"promptfinder/internal/service"
)

type presignRequest struct {
	ContentType   string `json:"content_type" binding:"required,content_type"`
	ContentLength int64  `json:"content_length" binding:"required,gt=0"`
	Filename      string `json:"filename" binding:"max=255"`
}

type completeRequest struct {
	Key         string   `json:"key" binding:"required,max=512"`
	Prompt      string   `json:"prompt" binding:"required,max=10000"`
	Title       string   `json:"title" binding:"max=200"`
	Excerpt     string   `json:"excerpt" binding:"max=500"`
	AIGenerator string   `json:"ai_generator" binding:"required,ai_generator"`
	Tags        []string `json:"tags" binding:"max=7,dive,max=50"`
}

type moderateRequest struct {
	ImageURL string `json:"image_url" binding:"required,url"`
}

type deleteUploadRequest struct {
	FileKey string `json:"file_key" binding:"required"`
	IsVideo bool   `json:"is_video"`
}

type suggestionsRequest struct {
	ImageURL    string `json:"image_url" binding:"required,url"`
	Prompt      string `json:"prompt" binding:"max=10000"`
	AIGenerator string `json:"ai_generator" binding:"max=100"`
}

func (h HandlerSet) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return false
	}
	return true
}

func (h HandlerSet) Presign(c *gin.Context) {
	var req presignRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.uploads.Presign(c.Request.Context(), middleware.ViewerFrom(c), service.PresignInput{
		ContentType:   strings.ToLower(strings.TrimSpace(req.ContentType)),
		ContentLength: req.ContentLength,
		Filename:      req.Filename,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h HandlerSet) Complete(c *gin.Context) {
	var req completeRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.uploads.Complete(c.Request.Context(), middleware.ViewerFrom(c), service.CompleteInput{
		Key:         strings.TrimSpace(req.Key),
		Prompt:      req.Prompt,
		Title:       req.Title,
		Excerpt:     req.Excerpt,
		AIGenerator: req.AIGenerator,
		Tags:        req.Tags,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h HandlerSet) ModerateImage(c *gin.Context) {
	var req moderateRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.uploads.CheckImage(c.Request.Context(), req.ImageURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h HandlerSet) DeleteUpload(c *gin.Context) {
	var req deleteUploadRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.uploads.DeleteUpload(c.Request.Context(), middleware.ViewerFrom(c), req.FileKey, req.IsVideo); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h HandlerSet) CancelUpload(c *gin.Context) {
	if err := h.uploads.Cancel(c.Request.Context(), middleware.ViewerFrom(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h HandlerSet) ExtendUpload(c *gin.Context) {
	session, err := h.uploads.Extend(c.Request.Context(), middleware.ViewerFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"extended": true, "expires_at": session.ExpiresAt})
}

func (h HandlerSet) Suggestions(c *gin.Context) {
	var req suggestionsRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.uploads.Suggestions(c.Request.Context(), service.SuggestionInput{
		ImageURL:    req.ImageURL,
		Prompt:      req.Prompt,
		AIGenerator: req.AIGenerator,
	})
	if errors.Is(err, service.ErrMetadataTimeout) {
		c.JSON(http.StatusGatewayTimeout, res)
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h HandlerSet) JobStatus(c *gin.Context) {
	rec, err := h.uploads.JobStatus(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := gin.H{"status": rec.Status, "type": rec.Type}
	if rec.Result != nil {
		resp["result"] = rec.Result
	}
	if rec.Error != "" {
		resp["error"] = rec.Error
	}
	c.JSON(http.StatusOK, resp)
}
