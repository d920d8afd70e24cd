// manager_test.go - Tests for the uploaded asset store
package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/product-designer/backend/internal/models"
)

// 1x1 transparent PNG
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		store, err := NewLocalStore(uploadDir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if store.uploadDir != uploadDir {
			t.Errorf("Expected uploadDir %s, got %s", uploadDir, store.uploadDir)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves asset from reader", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("logo.png", bytes.NewReader(pngPixel))
		if err != nil {
			t.Fatalf("Failed to save asset: %v", err)
		}
		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "logo.png" {
			t.Errorf("Expected name 'logo.png', got %v", info.Name)
		}
		if info.Size != int64(len(pngPixel)) {
			t.Errorf("Expected size %d, got %d", len(pngPixel), info.Size)
		}
		if info.ContentType != "image/png" {
			t.Errorf("Expected content type image/png, got %s", info.ContentType)
		}
		if info.Source() != "upload://"+info.ID {
			t.Errorf("Unexpected source %s", info.Source())
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if !bytes.Equal(data, pngPixel) {
			t.Error("Saved content doesn't match")
		}
	})

	t.Run("detects svg by name and content", func(t *testing.T) {
		store := createTestStore(t)

		byName, err := store.SaveBytes("shape.svg", []byte(`<?xml version="1.0"?><svg/>`))
		if err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
		byContent, err := store.SaveBytes("upload", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`))
		if err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
		for _, info := range []*models.AssetInfo{byName, byContent} {
			if info.ContentType != "image/svg+xml" {
				t.Errorf("Expected image/svg+xml for %s, got %s", info.Name, info.ContentType)
			}
		}
	})

	t.Run("handles empty asset", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("empty", strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty asset: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("Expected size 0, got %d", info.Size)
		}
	})
}

func TestLocalStore_GetAndOpen(t *testing.T) {
	store := createTestStore(t)
	saved, _ := store.SaveBytes("logo.png", pngPixel)

	info, err := store.Get(saved.ID)
	if err != nil {
		t.Fatalf("Failed to get asset: %v", err)
	}
	if info.Name != "logo.png" {
		t.Errorf("Expected name 'logo.png', got %v", info.Name)
	}

	rc, err := store.Open(saved.ID)
	if err != nil {
		t.Fatalf("Failed to open asset: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, pngPixel) {
		t.Error("Opened content doesn't match")
	}

	if _, err := store.Get("missing"); err == nil {
		t.Error("Expected error for missing asset")
	}
	if _, err := store.Open("missing"); err == nil {
		t.Error("Expected error opening missing asset")
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if _, err := store.SaveBytes(name, pngPixel); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	list, err := store.List(2)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 assets, got %d", len(list))
	}
	if list[0].Name != "c.png" {
		t.Errorf("Expected newest first, got %s", list[0].Name)
	}

	all, _ := store.List(0)
	if len(all) != 3 {
		t.Errorf("Expected 3 assets without limit, got %d", len(all))
	}
}

func TestLocalStore_DeleteAndRename(t *testing.T) {
	store := createTestStore(t)
	info, _ := store.SaveBytes("logo.png", pngPixel)

	renamed, err := store.Rename(info.ID, "brand.png")
	if err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}
	if renamed.Name != "brand.png" {
		t.Errorf("Expected name 'brand.png', got %s", renamed.Name)
	}

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.uploadDir, info.ID)); !os.IsNotExist(err) {
		t.Error("Expected file to be removed")
	}
	if err := store.Delete(info.ID); err == nil {
		t.Error("Expected error deleting twice")
	}
	if _, err := store.Rename(info.ID, "x"); err == nil {
		t.Error("Expected error renaming deleted asset")
	}
}

func TestLocalStore_ChunkedUpload(t *testing.T) {
	t.Run("assembles chunks into final asset", func(t *testing.T) {
		store := createTestStore(t)
		uploadID := "upload-complete"
		chunks := [][]byte{pngPixel[:20], pngPixel[20:40], pngPixel[40:]}

		for i, chunk := range chunks {
			if err := store.SaveChunkBytes(uploadID, i, chunk); err != nil {
				t.Fatalf("Failed to save chunk %d: %v", i, err)
			}
		}

		info, err := store.CompleteChunkedUpload(uploadID, "assembled.png", len(chunks))
		if err != nil {
			t.Fatalf("Failed to complete upload: %v", err)
		}
		if info.Size != int64(len(pngPixel)) {
			t.Errorf("Expected size %d, got %d", len(pngPixel), info.Size)
		}
		if info.ContentType != "image/png" {
			t.Errorf("Expected image/png, got %s", info.ContentType)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read assembled file: %v", err)
		}
		if !bytes.Equal(data, pngPixel) {
			t.Error("Assembled content doesn't match")
		}

		chunkDir := filepath.Join(store.uploadDir, "chunks", uploadID)
		if _, err := os.Stat(chunkDir); !os.IsNotExist(err) {
			t.Error("Chunk directory should be cleaned up")
		}
	})

	t.Run("returns error for missing chunks", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.SaveChunk("upload-incomplete", 0, strings.NewReader("chunk0")); err != nil {
			t.Fatalf("Failed to save chunk: %v", err)
		}
		if _, err := store.CompleteChunkedUpload("upload-incomplete", "incomplete.png", 3); err == nil {
			t.Error("Expected error when chunks are missing")
		}
	})

	t.Run("rejects path-like upload ids", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.SaveChunk("../escape", 0, strings.NewReader("x")); err == nil {
			t.Error("Expected error for upload id with a path")
		}
	})
}

func TestLocalStore_RegisterFile(t *testing.T) {
	store := createTestStore(t)

	path := filepath.Join(store.uploadDir, "existing-file")
	if err := os.WriteFile(path, pngPixel, 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	store.RegisterFile(&models.AssetInfo{
		ID:         "existing-file",
		Name:       "registered.png",
		Size:       int64(len(pngPixel)),
		UploadedAt: time.Now(),
	})

	retrieved, err := store.Get("existing-file")
	if err != nil {
		t.Fatalf("Failed to get registered file: %v", err)
	}
	if retrieved.ContentType != "image/png" {
		t.Errorf("Expected sniffed content type, got %s", retrieved.ContentType)
	}
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store := createTestStore(t)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			if _, err := store.SaveBytes("logo.png", pngPixel); err != nil {
				t.Errorf("Failed to save file: %v", err)
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	files, err := store.List(20)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if len(files) != 10 {
		t.Errorf("Expected 10 files, got %d", len(files))
	}
}

// failingReader always fails
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestLocalStore_ErrorHandling(t *testing.T) {
	store := createTestStore(t)

	if _, err := store.Save("broken.png", failingReader{}); err == nil {
		t.Error("Expected error when reader fails")
	}
	entries, _ := os.ReadDir(store.uploadDir)
	if len(entries) != 0 {
		t.Errorf("Expected no leftover files, got %d", len(entries))
	}
}
