package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/service"
)

// SearchHandler handles similarity search endpoints.
type SearchHandler struct {
	search *service.SearchService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - search: query coordinator.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search handles POST /api/v1/search. Multipart form with exactly one of
// "text" or "image" (file), plus optional "top_k".
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	req := &service.SearchRequest{
		Text: c.PostForm("text"),
	}

	if topK := c.PostForm("top_k"); topK != "" {
		n, err := strconv.Atoi(topK)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid top_k"})
			return
		}
		req.TopK = n
	}

	if file, err := c.FormFile("image"); err == nil {
		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable image: " + err.Error()})
			return
		}
		defer src.Close()

		content, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable image: " + err.Error()})
			return
		}
		req.Image = content
	}

	result, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Search failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
