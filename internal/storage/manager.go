package storage

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/product-designer/backend/internal/models"
)

// Store defines the interface for uploaded asset storage.
type Store interface {
	Save(name string, r io.Reader) (*models.AssetInfo, error)
	SaveBytes(name string, data []byte) (*models.AssetInfo, error)
	Get(id string) (*models.AssetInfo, error)
	List(limit int) ([]*models.AssetInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*models.AssetInfo, error)
	Open(id string) (io.ReadCloser, error)
	GetFilePath(id string) (string, error)
	SaveChunk(uploadID string, chunkIndex int, r io.Reader) error
	SaveChunkBytes(uploadID string, chunkIndex int, data []byte) error
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.AssetInfo, error)
	RegisterFile(info *models.AssetInfo)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.AssetInfo
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.AssetInfo),
	}, nil
}

// Save writes an asset to the upload directory and sniffs its content type.
func (s *LocalStore) Save(name string, r io.Reader) (*models.AssetInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	head := make([]byte, 512)
	n, _ := f.ReadAt(head, 0)

	info := &models.AssetInfo{
		ID:          id,
		Name:        name,
		ContentType: sniff(name, head[:n]),
		Size:        size,
		UploadedAt:  time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// SaveBytes saves an in-memory asset.
func (s *LocalStore) SaveBytes(name string, data []byte) (*models.AssetInfo, error) {
	return s.Save(name, bytes.NewReader(data))
}

// Get retrieves asset metadata by ID.
func (s *LocalStore) Get(id string) (*models.AssetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("asset not found: %s", id)
	}

	return info, nil
}

// List returns the most recent assets.
func (s *LocalStore) List(limit int) ([]*models.AssetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.AssetInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes an asset from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("asset not found: %s", id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Rename updates the display name of an asset.
func (s *LocalStore) Rename(id string, newName string) (*models.AssetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("asset not found: %s", id)
	}

	info.Name = newName
	return info, nil
}

// Open returns a reader over the stored bytes of an asset.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// GetFilePath returns the absolute path to an asset.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("asset not found: %s", id)
	}

	return filepath.Join(s.uploadDir, id), nil
}

// SaveChunk saves a single chunk to a temporary location.
func (s *LocalStore) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	if uploadID == "" || filepath.Base(uploadID) != uploadID {
		return fmt.Errorf("invalid upload id %q", uploadID)
	}
	chunkDir := filepath.Join(s.uploadDir, "chunks", uploadID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}

	return nil
}

// SaveChunkBytes saves an in-memory chunk.
func (s *LocalStore) SaveChunkBytes(uploadID string, chunkIndex int, data []byte) error {
	return s.SaveChunk(uploadID, chunkIndex, bytes.NewReader(data))
}

// CompleteChunkedUpload assembles all chunks into a final asset.
func (s *LocalStore) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.AssetInfo, error) {
	if uploadID == "" || filepath.Base(uploadID) != uploadID {
		return nil, fmt.Errorf("invalid upload id %q", uploadID)
	}
	id := uuid.New().String()
	finalPath := filepath.Join(s.uploadDir, id)
	chunkDir := filepath.Join(s.uploadDir, "chunks", uploadID)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("creating final file: %w", err)
	}
	defer out.Close()

	var totalSize int64
	for i := 0; i < totalChunks; i++ {
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i))
		in, err := os.Open(chunkPath)
		if err != nil {
			os.Remove(finalPath)
			return nil, fmt.Errorf("opening chunk %d: %w", i, err)
		}

		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			os.Remove(finalPath)
			return nil, fmt.Errorf("copying chunk %d: %w", i, err)
		}
		totalSize += n
	}

	head := make([]byte, 512)
	n, _ := out.ReadAt(head, 0)

	info := &models.AssetInfo{
		ID:          id,
		Name:        name,
		ContentType: sniff(name, head[:n]),
		Size:        totalSize,
		UploadedAt:  time.Now(),
	}

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()

	os.RemoveAll(chunkDir)

	return info, nil
}

// RegisterFile records (or refreshes) the metadata of an asset already on disk.
func (s *LocalStore) RegisterFile(info *models.AssetInfo) {
	if info == nil || info.ID == "" {
		return
	}
	path := filepath.Join(s.uploadDir, info.ID)
	if f, err := os.Open(path); err == nil {
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		f.Close()
		info.ContentType = sniff(info.Name, head[:n])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = info
}

// sniff detects the content type of an upload. SVG is recognized by name
// because it sniffs as XML or plain text.
func sniff(name string, head []byte) string {
	if ext := filepath.Ext(name); ext == ".svg" || ext == ".SVG" {
		return "image/svg+xml"
	}
	if len(head) == 0 {
		return "application/octet-stream"
	}
	ct := http.DetectContentType(head)
	if bytes.Contains(head, []byte("<svg")) {
		return "image/svg+xml"
	}
	return ct
}
