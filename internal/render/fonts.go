package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultFamily is the bundled family and the initial fallback.
const DefaultFamily = "Go"

type faceKey struct {
	family string
	size   float64
}

type fontEntry struct {
	name   string
	source *text.FontSource
	data   []byte
	format string
}

// FontRegistry maps font family names to parsed font sources.
// Lookups are case-insensitive.
type FontRegistry struct {
	mu       sync.RWMutex
	fonts    map[string]*fontEntry
	faces    map[faceKey]text.Face
	fallback string
}

// NewFontRegistry returns a registry holding the bundled default family.
func NewFontRegistry() (*FontRegistry, error) {
	r := &FontRegistry{
		fonts:    make(map[string]*fontEntry),
		faces:    make(map[faceKey]text.Face),
		fallback: familyKey(DefaultFamily),
	}
	if err := r.Register(DefaultFamily, goregular.TTF); err != nil {
		return nil, err
	}
	return r, nil
}

// Register parses data as a TrueType or OpenType font and stores it under
// family, replacing any earlier registration.
func (r *FontRegistry) Register(family string, data []byte) error {
	src, err := text.NewFontSource(data)
	if err != nil {
		return fmt.Errorf("font %q: %w", family, err)
	}
	key := familyKey(family)
	entry := &fontEntry{name: family, source: src, data: data, format: sniffFontFormat(data)}

	r.mu.Lock()
	old := r.fonts[key]
	r.fonts[key] = entry
	for k := range r.faces {
		if k.family == key {
			delete(r.faces, k)
		}
	}
	r.mu.Unlock()

	if old != nil {
		old.source.Close()
	}
	return nil
}

// LoadDir registers every .ttf and .otf file in dir. The family name is the
// file name without extension. Unparseable files are skipped.
func (r *FontRegistry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading font dir: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			Logger().Warn("reading font failed", "file", e.Name(), "error", err)
			continue
		}
		family := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if err := r.Register(family, data); err != nil {
			Logger().Warn("font rejected", "file", e.Name(), "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Has reports whether family is registered.
func (r *FontRegistry) Has(family string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fonts[familyKey(family)]
	return ok
}

// SetFallback makes family the face served for unregistered families.
func (r *FontRegistry) SetFallback(family string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fonts[familyKey(family)]; !ok {
		return fmt.Errorf("font family %q is not registered", family)
	}
	r.fallback = familyKey(family)
	return nil
}

// Face returns a face of family at size, falling back to the fallback family.
func (r *FontRegistry) Face(family string, size float64) text.Face {
	key := familyKey(family)

	r.mu.RLock()
	entry, ok := r.fonts[key]
	if !ok {
		key = r.fallback
		entry = r.fonts[key]
	}
	face, cached := r.faces[faceKey{key, size}]
	r.mu.RUnlock()
	if cached {
		return face
	}
	if !ok && family != "" {
		Logger().Debug("font not registered, using default", "family", family)
	}

	face = entry.source.Face(size)
	r.mu.Lock()
	r.faces[faceKey{key, size}] = face
	r.mu.Unlock()
	return face
}

// Data returns the raw font file of family and its CSS format name.
func (r *FontRegistry) Data(family string) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.fonts[familyKey(family)]
	if !ok {
		return nil, "", false
	}
	return entry.data, entry.format, true
}

// Families returns the registered family names, sorted.
func (r *FontRegistry) Families() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.fonts))
	for _, e := range r.fonts {
		out = append(out, e.name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Close releases every font source.
func (r *FontRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.fonts {
		e.source.Close()
		delete(r.fonts, k)
	}
	clear(r.faces)
}

func familyKey(family string) string {
	return strings.ToLower(strings.TrimSpace(family))
}

func sniffFontFormat(data []byte) string {
	if len(data) >= 4 && string(data[:4]) == "OTTO" {
		return "opentype"
	}
	return "truetype"
}
