package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/service"
)

// maxUploadBytes bounds a single upload body.
const maxUploadBytes = 20 << 20 // 20 MiB

// ImageHandler handles image upload and lifecycle endpoints.
type ImageHandler struct {
	ingest *service.IngestService
	admin  *service.AdminService
}

// NewImageHandler creates a new image handler.
// Parameters:
//   - ingest: ingestion coordinator.
//   - admin: admin service for lookup, re-index, and removal.
// Returns:
//   - *ImageHandler: initialized handler.
func NewImageHandler(ingest *service.IngestService, admin *service.AdminService) *ImageHandler {
	return &ImageHandler{
		ingest: ingest,
		admin:  admin,
	}
}

// Upload handles POST /api/v1/images. Multipart form: "file" (required),
// "title", "tags" (comma-separated). Responds 202, indexing is async.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImageHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing file: " + err.Error(),
		})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File too large",
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unreadable file: " + err.Error(),
		})
		return
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unreadable file: " + err.Error(),
		})
		return
	}

	title := c.PostForm("title")
	tags := splitTags(c.PostForm("tags"))

	id, err := h.ingest.Ingest(c.Request.Context(), content, title, tags)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Upload failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"image_id": id,
		"status":   domain.ImageStatusPending,
	})
}

// Get handles GET /api/v1/images/:id for status polling.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImageHandler) Get(c *gin.Context) {
	record, err := h.admin.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Lookup failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, record)
}

// Delete handles DELETE /api/v1/images/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImageHandler) Delete(c *gin.Context) {
	if err := h.admin.Remove(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Delete failed: " + err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// Reindex handles POST /api/v1/images/:id/reindex, the operator escape
// hatch out of a terminal status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImageHandler) Reindex(c *gin.Context) {
	if err := h.admin.Reindex(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Re-index failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"image_id": c.Param("id"),
		"status":   domain.ImageStatusPending,
	})
}

// Stats handles GET /api/v1/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImageHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
