// Package assets resolves element sources into decoded images. It backs both
// the designer (canvas.Loader) and the render engine (render.ImageSource).
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/product-designer/backend/internal/canvas"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnsupported is returned for payloads that are neither a raster
	// image nor an SVG document.
	ErrUnsupported = errors.New("not a supported image")
	// ErrNotFound is returned when a source cannot be located.
	ErrNotFound = errors.New("asset not found")
	// ErrTooLarge is returned when a payload exceeds the size limit.
	ErrTooLarge = errors.New("asset too large")
	// ErrNoPixels is returned by Image for vector assets.
	ErrNoPixels = errors.New("asset has no raster pixels")
)

const (
	defaultMaxBytes  = 32 << 20
	defaultCacheSize = 128
	uploadScheme     = "upload://"
)

// Opener opens stored uploads by id.
type Opener interface {
	Open(id string) (io.ReadCloser, error)
}

type entry struct {
	asset canvas.Asset
	img   image.Image
}

// Loader fetches and decodes element sources, caching decoded results.
type Loader struct {
	store     Opener
	assetsDir string
	client    *http.Client
	maxBytes  int64
	cacheSize int

	mu    sync.Mutex
	cache map[string]*entry
	order []string
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for http(s) sources.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithMaxBytes caps the size of a single payload.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithCacheSize sets how many decoded sources are kept. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(l *Loader) { l.cacheSize = n }
}

// NewLoader creates a Loader. store may be nil when uploads are not served;
// assetsDir may be empty when plain paths are not allowed.
func NewLoader(store Opener, assetsDir string, opts ...Option) *Loader {
	l := &Loader{
		store:     store,
		assetsDir: assetsDir,
		client:    &http.Client{Timeout: 30 * time.Second},
		maxBytes:  defaultMaxBytes,
		cacheSize: defaultCacheSize,
		cache:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements canvas.Loader.
func (l *Loader) Load(ctx context.Context, source string) (canvas.Asset, error) {
	e, err := l.resolve(ctx, source)
	if err != nil {
		return canvas.Asset{}, err
	}
	return e.asset, nil
}

// Image returns the decoded pixels of a raster source.
func (l *Loader) Image(ctx context.Context, source string) (image.Image, error) {
	e, err := l.resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	if e.img == nil {
		return nil, ErrNoPixels
	}
	return e.img, nil
}

// Forget evicts a source from the cache.
func (l *Loader) Forget(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[source]; !ok {
		return
	}
	delete(l.cache, source)
	for i, s := range l.order {
		if s == source {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *Loader) resolve(ctx context.Context, source string) (*entry, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", ErrNotFound)
	}
	l.mu.Lock()
	cached, ok := l.cache[source]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := l.read(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := decode(data)
	if err != nil {
		return nil, err
	}
	l.remember(source, e)
	return e, nil
}

func (l *Loader) remember(source string, e *entry) {
	if l.cacheSize <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[source]; ok {
		return
	}
	for len(l.order) >= l.cacheSize {
		delete(l.cache, l.order[0])
		l.order = l.order[1:]
	}
	l.cache[source] = e
	l.order = append(l.order, source)
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	trimmed := strings.TrimSpace(source)
	switch {
	case strings.HasPrefix(trimmed, "<"):
		return []byte(trimmed), nil
	case strings.HasPrefix(source, "data:"):
		return decodeDataURI(source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return l.fetch(ctx, source)
	case strings.HasPrefix(source, uploadScheme):
		return l.openUpload(strings.TrimPrefix(source, uploadScheme))
	default:
		return l.readFile(source)
	}
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, source)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", source, resp.StatusCode)
	}
	return l.readLimited(resp.Body)
}

func (l *Loader) openUpload(id string) ([]byte, error) {
	if l.store == nil || id == "" {
		return nil, fmt.Errorf("%w: upload %q", ErrNotFound, id)
	}
	rc, err := l.store.Open(id)
	if err != nil {
		return nil, fmt.Errorf("%w: upload %q: %v", ErrNotFound, id, err)
	}
	defer rc.Close()
	return l.readLimited(rc)
}

func (l *Loader) readFile(source string) ([]byte, error) {
	if l.assetsDir == "" {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, source)
	}
	rel := filepath.FromSlash(strings.TrimPrefix(source, "/"))
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: %q escapes the assets dir", ErrNotFound, source)
	}
	f, err := os.Open(filepath.Join(l.assetsDir, rel))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, source)
	}
	defer f.Close()
	return l.readLimited(f)
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading asset: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// decode identifies data as SVG or a registered raster format.
func decode(data []byte) (*entry, error) {
	if LooksLikeSVG(data) {
		info, err := ParseSVG(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return &entry{asset: canvas.Asset{
			Width: info.Width, Height: info.Height, Format: "svg",
			Size: int64(len(data)), Colors: info.Colors,
		}}, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	b := img.Bounds()
	return &entry{
		asset: canvas.Asset{Width: float64(b.Dx()), Height: float64(b.Dy()), Format: format, Size: int64(len(data))},
		img:   img,
	}, nil
}

// decodeDataURI handles base64 and percent-encoded data URIs.
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data uri", ErrUnsupported)
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decoding data uri: %w", err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding data uri: %w", err)
	}
	return []byte(s), nil
}

var _ canvas.Loader = (*Loader)(nil)
