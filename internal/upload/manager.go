// Package upload assembles chunked asset uploads in the background and
// validates the result as an image before it can be placed on a view.
package upload

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusValidating    Status = "validating"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Job represents an async upload processing job.
type Job struct {
	ID             string            `json:"id"`
	UploadID       string            `json:"uploadId"`
	FileName       string            `json:"fileName"`
	TotalChunks    int               `json:"totalChunks"`
	OriginalSize   int64             `json:"originalSize"`
	CompressedSize int64             `json:"compressedSize"`
	Encoding       string            `json:"encoding"`
	Status         Status            `json:"status"`
	Progress       float64           `json:"progress"`
	Stage          string            `json:"stage"`
	StageProgress  float64           `json:"stageProgress"`
	Asset          *models.AssetInfo `json:"asset,omitempty"`
	Width          float64           `json:"width,omitempty"`
	Height         float64           `json:"height,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}

// Done reports whether the job reached a final state.
func (j *Job) Done() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// Store defines the interface needed from storage layer.
type Store interface {
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.AssetInfo, error)
	GetFilePath(id string) (string, error)
	RegisterFile(info *models.AssetInfo)
	Delete(id string) error
}

// Manager handles async upload processing.
type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	store  Store
	loader canvas.Loader
}

// NewManager creates a new upload processing manager. When loader is set,
// assembled uploads are decoded once and rejected if they are not images.
func NewManager(store Store, loader canvas.Loader) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		store:  store,
		loader: loader,
	}
}

// StartJob begins async processing of an upload.
func (m *Manager) StartJob(uploadID, fileName string, totalChunks int, originalSize, compressedSize int64, encoding string) Job {
	job := &Job{
		ID:             uuid.New().String(),
		UploadID:       uploadID,
		FileName:       fileName,
		TotalChunks:    totalChunks,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Encoding:       encoding,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	go m.processJob(job)

	return snapshot
}

// GetJob returns a copy of a job's current state.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (m *Manager) processJob(job *Job) {
	tag := job.ID[:8]
	fmt.Printf("[UploadJob %s] Starting processing: %s\n", tag, job.FileName)

	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 0)

	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}

	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 100)

	if job.Encoding == "gzip" || job.Encoding == "binary-gzip" {
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 0)

		if err := m.decompressFileWithProgress(job, info.ID); err != nil {
			m.store.Delete(info.ID)
			m.markJobError(job, fmt.Sprintf("failed to decompress: %v", err))
			return
		}
		info.Size = job.OriginalSize
		m.store.RegisterFile(info)

		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 100)
	}

	if m.loader != nil {
		m.updateJobStatus(job, StatusValidating, "decoding image", 0)
		asset, err := m.loader.Load(context.Background(), info.Source())
		if err != nil {
			m.store.Delete(info.ID)
			m.markJobError(job, fmt.Sprintf("not a supported image: %v", err))
			return
		}
		m.mu.Lock()
		job.Width, job.Height = asset.Width, asset.Height
		m.mu.Unlock()
		m.updateJobStatus(job, StatusValidating, "decoding image", 100)
	}

	m.markJobComplete(job, info)
	fmt.Printf("[UploadJob %s] Processing complete: %s (%d bytes)\n", tag, info.ID, info.Size)
}

// decompressFileWithProgress decompresses a gzip asset in place.
func (m *Manager) decompressFileWithProgress(job *Job, assetID string) error {
	path, err := m.store.GetFilePath(assetID)
	if err != nil {
		return err
	}

	compressedFile, err := os.Open(path)
	if err != nil {
		return err
	}
	defer compressedFile.Close()

	magic := make([]byte, 2)
	if _, err := io.ReadFull(compressedFile, magic); err != nil {
		return err
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return fmt.Errorf("not a gzip file")
	}
	if _, err := compressedFile.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader, err := gzip.NewReader(compressedFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	tempPath := path + ".decompressing"
	outFile, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	buf := make([]byte, 256*1024)
	var written int64
	lastProgressUpdate := time.Now()

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := outFile.Write(buf[:n]); err != nil {
				outFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("write error: %w", err)
			}
			written += int64(n)

			if job.OriginalSize > 0 && time.Since(lastProgressUpdate) > 100*time.Millisecond {
				progress := min(float64(written)/float64(job.OriginalSize)*100, 99)
				m.updateJobStatus(job, StatusDecompressing, "decompressing file", progress)
				lastProgressUpdate = time.Now()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				outFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("read error: %w", readErr)
			}
			break
		}
	}

	outFile.Close()

	if job.OriginalSize > 0 && written != job.OriginalSize {
		os.Remove(tempPath)
		return fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", written, job.OriginalSize)
	}
	if job.OriginalSize == 0 {
		m.mu.Lock()
		job.OriginalSize = written
		m.mu.Unlock()
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}

	return nil
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// Assembling: 0-40%, Decompressing: 40-70%, Validating: 70-100%
	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.4
	case StatusDecompressing:
		job.Progress = 40 + stageProgress*0.3
	case StatusValidating:
		job.Progress = 70 + stageProgress*0.3
	case StatusComplete:
		job.Progress = 100
	}
}

func (m *Manager) markJobComplete(job *Job, info *models.AssetInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Asset = info
	job.Status = StatusComplete
	job.Stage = "complete"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	fmt.Printf("[UploadJob %s] Error: %s\n", job.ID[:8], errMsg)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Done() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}
