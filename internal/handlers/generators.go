package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"promptfinder/internal/models"
)

type generatorResponse struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	SupportsImages bool   `json:"supports_images"`
	SupportsVideo  bool   `json:"supports_video"`
}

// ListGenerators serves the AI generator vocabulary, optionally narrowed by ?type=image|video.
func (h HandlerSet) ListGenerators(c *gin.Context) {
	list := models.AIGenerators
	if kind := c.Query("type"); kind != "" {
		if !models.ValidMediaType(kind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be image or video"})
			return
		}
		list = models.GeneratorsFor(models.MediaKind(kind))
	}

	resp := make([]generatorResponse, 0, len(list))
	for _, g := range list {
		resp = append(resp, generatorResponse{
			Name:           g.Name,
			Slug:           g.Slug,
			SupportsImages: g.SupportsImages,
			SupportsVideo:  g.SupportsVideo,
		})
	}
	c.JSON(http.StatusOK, gin.H{"generators": resp})
}
