package api

import (
	"github.com/gin-gonic/gin"
	"github.com/marek/imagesim/internal/api/handler"
	"github.com/marek/imagesim/internal/api/middleware"
	"github.com/marek/imagesim/internal/logger"
	"github.com/marek/imagesim/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	ingestService *service.IngestService,
	searchService *service.SearchService,
	adminService *service.AdminService,
	log *logger.Logger,
	mode string,
	cors middleware.CORSConfig,
) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	imageHandler := handler.NewImageHandler(ingestService, adminService)
	searchHandler := handler.NewSearchHandler(searchService)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Upload + lifecycle
		v1.POST("/images", imageHandler.Upload)
		v1.GET("/images/:id", imageHandler.Get)
		v1.DELETE("/images/:id", imageHandler.Delete)
		v1.POST("/images/:id/reindex", imageHandler.Reindex)

		// Similarity search
		v1.POST("/search", searchHandler.Search)

		// Stats
		v1.GET("/stats", imageHandler.Stats)
	}

	return r
}
