// handlers_upload.go - Asset upload operation handlers
package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/storage"
	"github.com/product-designer/backend/internal/upload"
)

// AssetHandlerImpl implements the AssetHandler interface
type AssetHandlerImpl struct {
	store         storage.Store
	assets        AssetCache
	uploadManager *upload.Manager
	pollInterval  time.Duration
}

// NewAssetHandler creates a new asset handler instance. assets may be nil,
// in which case uploads are stored without image validation.
func NewAssetHandler(store storage.Store, assets AssetCache, uploadMgr *upload.Manager) *AssetHandlerImpl {
	return &AssetHandlerImpl{
		store:         store,
		assets:        assets,
		uploadManager: uploadMgr,
		pollInterval:  100 * time.Millisecond,
	}
}

type assetResponse struct {
	*models.AssetInfo
	Source string  `json:"source"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// HandleUploadAsset accepts a raw binary asset upload (multipart/form-data)
func (h *AssetHandlerImpl) HandleUploadAsset(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	return h.respondValidated(c, info)
}

// HandleUploadFile accepts an asset as base64 JSON and saves it to storage
func (h *AssetHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.SaveBytes(req.Name, decoded)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	return h.respondValidated(c, info)
}

// respondValidated decodes a freshly stored asset and deletes it again when
// it is not an image.
func (h *AssetHandlerImpl) respondValidated(c echo.Context, info *models.AssetInfo) error {
	resp := assetResponse{AssetInfo: info, Source: info.Source()}
	if h.assets != nil {
		asset, err := h.assets.Load(c.Request().Context(), info.Source())
		if err != nil {
			h.store.Delete(info.ID)
			h.assets.Forget(info.Source())
			return NewUnprocessableError("not a supported image", err)
		}
		resp.Width, resp.Height = asset.Width, asset.Height
	}
	return c.JSON(http.StatusCreated, resp)
}

// HandleUploadChunk accepts a single chunk of a chunked upload
func (h *AssetHandlerImpl) HandleUploadChunk(c echo.Context) error {
	var req uploadChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	if err := h.store.SaveChunkBytes(req.UploadID, req.ChunkIndex, decoded); err != nil {
		return NewInternalError("failed to save chunk", err)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload completes a chunked upload and starts async processing
func (h *AssetHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	job := h.uploadManager.StartJob(
		req.UploadID,
		req.Name,
		req.TotalChunks,
		req.OriginalSize,
		req.CompressedSize,
		req.Encoding,
	)

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleGetUploadJob returns the current state of an upload job
func (h *AssetHandlerImpl) HandleGetUploadJob(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.uploadManager.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleUploadJobStream streams upload job status via SSE until the job
// completes or fails.
func (h *AssetHandlerImpl) HandleUploadJobStream(c echo.Context) error {
	id := c.Param("jobId")
	if _, ok := h.uploadManager.GetJob(id); !ok {
		return NewNotFoundError("upload job", id)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	last := ""
	for {
		job, ok := h.uploadManager.GetJob(id)
		if !ok {
			fmt.Fprintf(c.Response(), "data: %s\n\n", `{"status":"error","error":"job expired"}`)
			c.Response().Flush()
			return nil
		}
		// Only send update if something changed
		data, err := json.Marshal(job)
		if err == nil && string(data) != last {
			last = string(data)
			fmt.Fprintf(c.Response(), "data: %s\n\n", data)
			c.Response().Flush()
		}
		if job.Done() {
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

// HandleGetRecentAssets returns a list of recently uploaded images
func (h *AssetHandlerImpl) HandleGetRecentAssets(c echo.Context) error {
	files, err := h.store.List(50)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	images := filterImages(files)

	// Limit to 20 after filtering
	if len(images) > 20 {
		images = images[:20]
	}

	return c.JSON(http.StatusOK, images)
}

// HandleGetAsset returns metadata for a specific asset
func (h *AssetHandlerImpl) HandleGetAsset(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("asset", id)
	}

	return c.JSON(http.StatusOK, assetResponse{AssetInfo: info, Source: info.Source()})
}

// HandleGetAssetRaw streams the stored bytes of an asset
func (h *AssetHandlerImpl) HandleGetAssetRaw(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("asset", id)
	}
	rc, err := h.store.Open(id)
	if err != nil {
		return NewNotFoundError("asset", id)
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.Stream(http.StatusOK, contentType, rc)
}

// HandleDeleteAsset deletes an asset and drops it from the decode cache
func (h *AssetHandlerImpl) HandleDeleteAsset(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("asset", id)
	}
	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("asset", id)
	}
	if h.assets != nil {
		h.assets.Forget(info.Source())
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameAsset updates the name of an asset
func (h *AssetHandlerImpl) HandleRenameAsset(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.Name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("asset", id)
	}

	return c.JSON(http.StatusOK, info)
}

// Request/Response types

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type uploadChunkRequest struct {
	UploadID    string `json:"uploadId"`
	ChunkIndex  int    `json:"chunkIndex"`
	Data        string `json:"data"` // Base64-encoded chunk
	TotalChunks int    `json:"totalChunks"`
}

func (r *uploadChunkRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if strings.ContainsAny(r.UploadID, `/\.`) {
		return NewValidationError("uploadId")
	}
	if r.ChunkIndex < 0 {
		return NewValidationError("chunkIndex")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type completeUploadRequest struct {
	UploadID       string `json:"uploadId"`
	Name           string `json:"name"`
	TotalChunks    int    `json:"totalChunks"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize"`
	Encoding       string `json:"encoding"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}

// Helper functions

// filterImages keeps assets whose sniffed content type is an image
func filterImages(files []*models.AssetInfo) []*models.AssetInfo {
	images := []*models.AssetInfo{}
	for _, f := range files {
		if strings.HasPrefix(f.ContentType, "image/") {
			images = append(images, f)
		}
	}
	return images
}
