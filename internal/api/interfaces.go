// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/product-designer/backend/internal/canvas"
)

// SessionHandler handles designer session lifecycle operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleListProducts(c echo.Context) error
	HandleLoadProduct(c echo.Context) error
	HandleGetState(c echo.Context) error
	HandleGetStateMsgpack(c echo.Context) error
}

// ElementHandler handles element and history operations on a view
type ElementHandler interface {
	HandleAddElement(c echo.Context) error
	HandleGetElements(c echo.Context) error
	HandleGetElement(c echo.Context) error
	HandleModifyElement(c echo.Context) error
	HandleDuplicateElement(c echo.Context) error
	HandleSelectElement(c echo.Context) error
	HandleRemoveElement(c echo.Context) error
	HandleGetHistory(c echo.Context) error
	HandleUndo(c echo.Context) error
	HandleRedo(c echo.Context) error
	HandleClearHistory(c echo.Context) error
	HandleGetSnapshot(c echo.Context) error
	HandleRestoreSnapshot(c echo.Context) error
}

// PriceHandler handles price queries and pricing rules
type PriceHandler interface {
	HandleGetPrice(c echo.Context) error
	HandleGetPricingRules(c echo.Context) error
	HandleSetPricingRules(c echo.Context) error
}

// ExportHandler handles raster and vector exports
type ExportHandler interface {
	HandleExportPNG(c echo.Context) error
	HandleExportSVG(c echo.Context) error
}

// DesignHandler handles saved design operations
type DesignHandler interface {
	HandleSaveDesign(c echo.Context) error
	HandleListDesigns(c echo.Context) error
	HandleGetDesign(c echo.Context) error
	HandleLoadDesign(c echo.Context) error
}

// AssetHandler handles asset upload operations
type AssetHandler interface {
	HandleUploadAsset(c echo.Context) error
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleGetUploadJob(c echo.Context) error
	HandleUploadJobStream(c echo.Context) error
	HandleGetRecentAssets(c echo.Context) error
	HandleGetAsset(c echo.Context) error
	HandleGetAssetRaw(c echo.Context) error
	HandleDeleteAsset(c echo.Context) error
	HandleRenameAsset(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// AssetCache decodes assets and forgets them when they are deleted.
type AssetCache interface {
	canvas.Loader
	Forget(source string)
}

var (
	_ SessionHandler = (*Handler)(nil)
	_ ElementHandler = (*Handler)(nil)
	_ PriceHandler   = (*Handler)(nil)
	_ ExportHandler  = (*Handler)(nil)
	_ DesignHandler  = (*Handler)(nil)
	_ AssetHandler   = (*AssetHandlerImpl)(nil)
)
