package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/product-designer/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrProductNotFound is returned for unknown catalog ids.
var ErrProductNotFound = errors.New("product not found")

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ProductSummary is the catalog listing form of a product.
type ProductSummary struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Views []string `json:"views"`
}

// Catalog holds the product definitions found in the products directory.
// Each .yaml, .yml or .json file holds one product; a file without an id
// takes its file name as id.
type Catalog struct {
	dir      string
	mu       sync.RWMutex
	products map[string]models.ProductDef
}

// NewCatalog creates a catalog and scans dir. A missing directory is created
// and yields an empty catalog.
func NewCatalog(dir string) *Catalog {
	c := &Catalog{dir: dir, products: make(map[string]models.ProductDef)}
	if dir != "" {
		os.MkdirAll(dir, 0755)
		c.Reload()
	}
	return c
}

// Reload rescans the products directory. Files that fail to parse are
// skipped and logged. It returns the number of products loaded.
func (c *Catalog) Reload() int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		fmt.Printf("[Catalog] Warning: failed to scan products directory: %v\n", err)
		return 0
	}

	loaded := make(map[string]models.ProductDef)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		def, err := LoadProductFile(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			fmt.Printf("[Catalog] Skipping %s: %v\n", entry.Name(), err)
			continue
		}
		if def.ID == "" {
			def.ID = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		loaded[def.ID] = def
	}

	c.mu.Lock()
	c.products = loaded
	c.mu.Unlock()

	fmt.Printf("[Catalog] Loaded %d products from %s\n", len(loaded), c.dir)
	return len(loaded)
}

// Add registers a product in memory.
func (c *Catalog) Add(def models.ProductDef) error {
	if def.ID == "" {
		return errors.New("product id is required")
	}
	if len(def.Views) == 0 {
		return errors.New("product has no views")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[def.ID] = def
	return nil
}

// Get returns a product definition by id.
func (c *Catalog) Get(id string) (models.ProductDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.products[id]
	if !ok {
		return models.ProductDef{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return def, nil
}

// List returns summaries of all products sorted by id.
func (c *Catalog) List() []ProductSummary {
	c.mu.RLock()
	out := make([]ProductSummary, 0, len(c.products))
	for _, def := range c.products {
		s := ProductSummary{ID: def.ID, Title: def.Title, Views: make([]string, 0, len(def.Views))}
		for _, v := range def.Views {
			s.Views = append(s.Views, v.Title)
		}
		out = append(out, s)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadProductFile parses a product definition. Files ending in .json are
// read as JSON, everything else as YAML.
func LoadProductFile(path string) (models.ProductDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ProductDef{}, err
	}
	var def models.ProductDef
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &def)
	} else {
		err = yaml.Unmarshal(data, &def)
	}
	if err != nil {
		return models.ProductDef{}, fmt.Errorf("parsing product: %w", err)
	}
	if len(def.Views) == 0 {
		return models.ProductDef{}, errors.New("product has no views")
	}
	return def, nil
}
