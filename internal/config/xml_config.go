// Package config provides XML-based configuration management for air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/product-designer/backend/internal/designer"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"ProductDesigner"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Designer engine defaults
	Designer DesignerConfig `xml:"Designer"`

	// Pricing configuration
	Pricing PricingConfig `xml:"Pricing"`

	// Export configuration
	Export ExportConfig `xml:"Export"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`

	// StaticDirectory holds a built designer frontend served at /.
	StaticDirectory string `xml:"StaticDirectory"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	UploadsDirectory  string `xml:"UploadsDirectory"`
	AssetsDirectory   string `xml:"AssetsDirectory"`
	ProductsDirectory string `xml:"ProductsDirectory"`
	FontsDirectory    string `xml:"FontsDirectory"`
	DesignDatabase    string `xml:"DesignDatabase"`
	MaxUploadSize     string `xml:"MaxUploadSize"`
	EnablePersistence bool   `xml:"EnablePersistence"`
}

// DesignerConfig mirrors designer.Options
type DesignerConfig struct {
	HistoryEnabled        bool    `xml:"HistoryEnabled"`
	ReplaceInheritScale   bool    `xml:"ReplaceInheritScale"`
	ReplaceInheritFill    bool    `xml:"ReplaceInheritFill"`
	ColorLinkPolicy       string  `xml:"ColorLinkPolicy"`
	SharedTextAttributes  string  `xml:"SharedTextAttributes"`
	DisallowedCharacters  string  `xml:"DisallowedCharacters"`
	AutoSelectDelayMs     int     `xml:"AutoSelectDelayMs"`
	InBoundsColor         string  `xml:"InBoundsColor"`
	OutOfBoundsColor      string  `xml:"OutOfBoundsColor"`
	UploadMinWidth        float64 `xml:"UploadMinWidth"`
	UploadMinHeight       float64 `xml:"UploadMinHeight"`
	UploadMaxWidth        float64 `xml:"UploadMaxWidth"`
	UploadMaxHeight       float64 `xml:"UploadMaxHeight"`
	UploadMaxImageSize    string  `xml:"UploadMaxImageSize"`
	PrintingBoxAsBounding bool    `xml:"PrintingBoxAsBounding"`
}

// PricingConfig contains pricing settings
type PricingConfig struct {
	RulesFile   string `xml:"RulesFile"`
	MaxQuantity int    `xml:"MaxQuantity"`
}

// ExportConfig contains export settings
type ExportConfig struct {
	DefaultFormat string `xml:"DefaultFormat"`
	JPEGQuality   int    `xml:"JPEGQuality"`
	Watermark     string `xml:"Watermark"`
	DefaultFont   string `xml:"DefaultFont"`
}

// ProcessingConfig contains session and processing settings
type ProcessingConfig struct {
	MaxSessions            int  `xml:"MaxSessions"`
	SessionTimeoutMinutes  int  `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int  `xml:"CleanupIntervalMinutes"`
	EnableCompression      bool `xml:"EnableCompression"`
	CompressionLevel       int  `xml:"CompressionLevel"`
	EnableAutosave         bool `xml:"EnableAutosave"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
	EventQueueSize          int    `xml:"EventQueueSize"`
	EventTimeoutSeconds     int    `xml:"EventTimeoutSeconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			AssetsDirectory:   "./data/assets",
			ProductsDirectory: "./data/products",
			FontsDirectory:    "./data/fonts",
			DesignDatabase:    "./data/designs.duckdb",
			MaxUploadSize:     "32M",
			EnablePersistence: true,
		},
		Designer: DesignerConfig{
			HistoryEnabled:       true,
			ColorLinkPolicy:      string(designer.ColorLinkUnion),
			SharedTextAttributes: "fontFamily,fontSize,fill",
			DisallowedCharacters: "<>",
			AutoSelectDelayMs:    300,
			InBoundsColor:        "#005ede",
			OutOfBoundsColor:     "#ff0000",
			UploadMaxImageSize:   "10M",
		},
		Pricing: PricingConfig{
			MaxQuantity: 1000,
		},
		Export: ExportConfig{
			DefaultFormat: "png",
			JPEGQuality:   90,
			DefaultFont:   "Go",
		},
		Processing: ProcessingConfig{
			MaxSessions:            10,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
			EnableAutosave:         true,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 512,
			EventQueueSize:          256,
			EventTimeoutSeconds:     10,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Product Designer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if assetsDir := os.Getenv("ASSETS_DIR"); assetsDir != "" {
		c.Storage.AssetsDirectory = assetsDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.AssetsDirectory,
		&c.Storage.ProductsDirectory,
		&c.Storage.FontsDirectory,
		&c.Storage.DesignDatabase,
		&c.Pricing.RulesFile,
		&c.Server.StaticDirectory,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// SessionTimeout returns the idle time after which sessions are dropped.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle sessions and jobs are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Processing.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.AssetsDirectory,
		c.Storage.ProductsDirectory,
		c.Storage.FontsDirectory,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Options converts the designer section into stage options.
func (d DesignerConfig) Options() designer.Options {
	opts := designer.DefaultOptions()
	opts.HistoryEnabled = d.HistoryEnabled
	opts.ReplaceInheritScale = d.ReplaceInheritScale
	opts.ReplaceInheritFill = d.ReplaceInheritFill
	if strings.EqualFold(d.ColorLinkPolicy, string(designer.ColorLinkReplace)) {
		opts.ColorLinkPolicy = designer.ColorLinkReplace
	}
	if d.SharedTextAttributes != "" {
		opts.SharedTextAttributes = splitList(d.SharedTextAttributes)
	}
	opts.DisallowedChars = d.DisallowedCharacters
	if d.AutoSelectDelayMs >= 0 {
		opts.AutoSelectDelay = time.Duration(d.AutoSelectDelayMs) * time.Millisecond
	}
	if d.InBoundsColor != "" {
		opts.InBoundsColor = d.InBoundsColor
	}
	if d.OutOfBoundsColor != "" {
		opts.OutBoundsColor = d.OutOfBoundsColor
	}
	opts.UploadMinWidth = d.UploadMinWidth
	opts.UploadMinHeight = d.UploadMinHeight
	opts.UploadMaxWidth = d.UploadMaxWidth
	opts.UploadMaxHeight = d.UploadMaxHeight
	if n, err := ParseSize(d.UploadMaxImageSize); err == nil {
		opts.UploadMaxSize = n
	}
	opts.PrintingBoxAsBounding = d.PrintingBoxAsBounding
	return opts
}

// ParseSize parses sizes such as "512", "64K", "32M", "2G" or "1GB" into
// bytes. An empty string is zero.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSuffix(s, "B")
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult = 1 << 10
	case strings.HasSuffix(s, "M"):
		mult = 1 << 20
	case strings.HasSuffix(s, "G"):
		mult = 1 << 30
	}
	if mult > 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
