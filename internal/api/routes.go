// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/product-designer/backend/internal/session"
	"github.com/product-designer/backend/internal/storage"
	"github.com/product-designer/backend/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store       storage.Store
	SessionMgr  *session.Manager
	UploadMgr   *upload.Manager
	Assets      AssetCache
	Version     string
	MaxQuantity int
	Export      ExportDefaults
	// MaxMessageSize limits inbound websocket frames in bytes.
	MaxMessageSize int64
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Sessions SessionHandler
	Elements ElementHandler
	Price    PriceHandler
	Export   ExportHandler
	Designs  DesignHandler
	Assets   AssetHandler
	Socket   *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := NewHandler(deps.SessionMgr, deps.MaxQuantity, deps.Export)
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.SessionMgr),
		Sessions: h,
		Elements: h,
		Price:    h,
		Export:   h,
		Designs:  h,
		Assets:   NewAssetHandler(deps.Store, deps.Assets, deps.UploadMgr),
		Socket:   NewWebSocketHandler(deps.SessionMgr, deps.MaxMessageSize),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	// Health check
	api.GET("/health", handlers.Health.HandleHealth)

	// Product catalog
	api.GET("/products", handlers.Sessions.HandleListProducts)

	// Session routes
	sessions := api.Group("/sessions")
	sessions.POST("", handlers.Sessions.HandleCreateSession)
	sessions.GET("", handlers.Sessions.HandleListSessions)
	sessions.GET("/:sessionId", handlers.Sessions.HandleGetSession)
	sessions.DELETE("/:sessionId", handlers.Sessions.HandleDeleteSession)
	sessions.POST("/:sessionId/keepalive", handlers.Sessions.HandleSessionKeepAlive)
	sessions.POST("/:sessionId/product", handlers.Sessions.HandleLoadProduct)
	sessions.GET("/:sessionId/state", handlers.Sessions.HandleGetState)
	sessions.GET("/:sessionId/state/msgpack", handlers.Sessions.HandleGetStateMsgpack)

	// Element routes
	sessions.GET("/:sessionId/views/:view/elements", handlers.Elements.HandleGetElements)
	sessions.POST("/:sessionId/views/:view/elements", handlers.Elements.HandleAddElement)
	sessions.GET("/:sessionId/elements/:elementId", handlers.Elements.HandleGetElement)
	sessions.PATCH("/:sessionId/elements/:elementId", handlers.Elements.HandleModifyElement)
	sessions.POST("/:sessionId/elements/:elementId/duplicate", handlers.Elements.HandleDuplicateElement)
	sessions.POST("/:sessionId/elements/:elementId/select", handlers.Elements.HandleSelectElement)
	sessions.DELETE("/:sessionId/elements/:elementId", handlers.Elements.HandleRemoveElement)

	// History routes
	sessions.GET("/:sessionId/views/:view/history", handlers.Elements.HandleGetHistory)
	sessions.POST("/:sessionId/views/:view/undo", handlers.Elements.HandleUndo)
	sessions.POST("/:sessionId/views/:view/redo", handlers.Elements.HandleRedo)
	sessions.DELETE("/:sessionId/views/:view/history", handlers.Elements.HandleClearHistory)
	sessions.GET("/:sessionId/views/:view/snapshot", handlers.Elements.HandleGetSnapshot)
	sessions.PUT("/:sessionId/views/:view/snapshot", handlers.Elements.HandleRestoreSnapshot)

	// Price routes
	sessions.GET("/:sessionId/price", handlers.Price.HandleGetPrice)
	sessions.GET("/:sessionId/pricing-rules", handlers.Price.HandleGetPricingRules)
	sessions.PUT("/:sessionId/pricing-rules", handlers.Price.HandleSetPricingRules)

	// Export routes
	sessions.GET("/:sessionId/views/:view/export.png", handlers.Export.HandleExportPNG)
	sessions.GET("/:sessionId/views/:view/export.svg", handlers.Export.HandleExportSVG)

	// Design routes
	sessions.POST("/:sessionId/designs", handlers.Designs.HandleSaveDesign)
	sessions.GET("/:sessionId/designs", handlers.Designs.HandleListDesigns)
	sessions.POST("/:sessionId/designs/:designId/load", handlers.Designs.HandleLoadDesign)
	api.GET("/designs/:designId", handlers.Designs.HandleGetDesign)

	// Asset routes
	assets := api.Group("/assets")
	assets.POST("", handlers.Assets.HandleUploadAsset)
	assets.POST("/base64", handlers.Assets.HandleUploadFile)
	assets.POST("/chunk", handlers.Assets.HandleUploadChunk)
	assets.POST("/complete", handlers.Assets.HandleCompleteUpload)
	assets.GET("/jobs/:jobId", handlers.Assets.HandleGetUploadJob)
	assets.GET("/jobs/:jobId/stream", handlers.Assets.HandleUploadJobStream)
	assets.GET("/recent", handlers.Assets.HandleGetRecentAssets)
	assets.GET("/:id", handlers.Assets.HandleGetAsset)
	assets.GET("/:id/raw", handlers.Assets.HandleGetAssetRaw)
	assets.PUT("/:id", handlers.Assets.HandleRenameAsset)
	assets.DELETE("/:id", handlers.Assets.HandleDeleteAsset)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/sessions/:sessionId/ws", handlers.Socket.HandleWebSocket)
}

// MiddlewareConfig selects the optional middleware.
type MiddlewareConfig struct {
	CORS           bool
	AllowOrigins   []string
	RequestLogging bool
	BodyLimit      string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())

	if cfg.RequestLogging {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/api/health"
			},
		}))
	}

	if cfg.CORS {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: origins}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
}
