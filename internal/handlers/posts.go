package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"promptfinder/internal/middleware"
	"promptfinder/internal/models"
	"promptfinder/internal/repository"
)

type mediaResponse struct {
	Type      models.MediaKind `json:"type"`
	URL       string           `json:"url"`
	ThumbURL  string           `json:"thumb_url,omitempty"`
	MediumURL string           `json:"medium_url,omitempty"`
	LargeURL  string           `json:"large_url,omitempty"`
	AltURL    string           `json:"alt_url,omitempty"`
	Width     int              `json:"width,omitempty"`
	Height    int              `json:"height,omitempty"`
	Duration  float64          `json:"duration,omitempty"`
}

type postResponse struct {
	ID                   int64                   `json:"id"`
	Slug                 string                  `json:"slug"`
	Title                string                  `json:"title"`
	Content              string                  `json:"content"`
	Excerpt              string                  `json:"excerpt"`
	AIGenerator          string                  `json:"ai_generator"`
	Tags                 []string                `json:"tags"`
	Status               models.PostStatus       `json:"status"`
	ModerationStatus     models.ModerationStatus `json:"moderation_status"`
	RequiresManualReview bool                    `json:"requires_manual_review"`
	ProcessingStatus     models.ProcessingStatus `json:"processing_status"`
	Media                *mediaResponse          `json:"media,omitempty"`
	SEOFilename          string                  `json:"seo_filename,omitempty"`
	AltText              string                  `json:"alt_text,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
	DeletedAt            *time.Time              `json:"deleted_at,omitempty"`
}

func newPostResponse(p models.Post) postResponse {
	resp := postResponse{
		ID:                   p.ID,
		Slug:                 p.Slug,
		Title:                p.Title,
		Content:              p.Content,
		Excerpt:              p.Excerpt,
		AIGenerator:          p.AIGenerator,
		Tags:                 p.Tags,
		Status:               p.Status,
		ModerationStatus:     p.ModerationStatus,
		RequiresManualReview: p.RequiresManualReview,
		ProcessingStatus:     p.ProcessingStatus,
		SEOFilename:          p.SEOFilename,
		AltText:              p.AltText,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
		DeletedAt:            p.DeletedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	switch {
	case p.Video != nil:
		resp.Media = &mediaResponse{
			Type:     models.MediaVideo,
			URL:      p.Video.URL,
			ThumbURL: p.Video.ThumbURL,
			Width:    p.Video.Width,
			Height:   p.Video.Height,
			Duration: p.Video.Duration,
		}
	case p.Image != nil:
		resp.Media = &mediaResponse{
			Type:      models.MediaImage,
			URL:       p.Image.URL,
			ThumbURL:  p.Image.ThumbURL,
			MediumURL: p.Image.MediumURL,
			LargeURL:  p.Image.LargeURL,
			AltURL:    p.Image.AltURL,
			Width:     p.Image.Width,
			Height:    p.Image.Height,
		}
	}
	return resp
}

type editPostRequest struct {
	Title   *string  `json:"title" binding:"omitempty,max=200"`
	Content *string  `json:"prompt" binding:"omitempty,min=1,max=10000"`
	Excerpt *string  `json:"excerpt" binding:"omitempty,max=500"`
	Tags    []string `json:"tags" binding:"omitempty,max=7,dive,max=50"`
}

func postID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
		return 0, false
	}
	return id, true
}

func (h HandlerSet) GetPost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	post, err := h.posts.Get(c.Request.Context(), middleware.ViewerFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPostResponse(post))
}

func (h HandlerSet) EditPost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	var req editPostRequest
	if !h.bind(c, &req) {
		return
	}
	post, err := h.posts.Edit(c.Request.Context(), middleware.ViewerFrom(c), id, repository.PostEdit{
		Title:   req.Title,
		Content: req.Content,
		Excerpt: req.Excerpt,
		Tags:    req.Tags,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPostResponse(post))
}

func (h HandlerSet) DeletePost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	if err := h.posts.Delete(c.Request.Context(), middleware.ViewerFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) RestorePost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	post, err := h.posts.Restore(c.Request.Context(), middleware.ViewerFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPostResponse(post))
}
