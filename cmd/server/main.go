package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/product-designer/backend/internal/api"
	"github.com/product-designer/backend/internal/assets"
	"github.com/product-designer/backend/internal/config"
	"github.com/product-designer/backend/internal/designer"
	"github.com/product-designer/backend/internal/events"
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/pricing"
	"github.com/product-designer/backend/internal/render"
	"github.com/product-designer/backend/internal/session"
	"github.com/product-designer/backend/internal/storage"
	"github.com/product-designer/backend/internal/upload"
	"github.com/product-designer/backend/internal/web"
	"github.com/zoobzio/clockz"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "designer.config.xml")
	if p := os.Getenv("DESIGNER_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Advanced.LogLevel)

	// Fonts: the bundled Go faces plus anything in the fonts directory
	fonts, err := render.NewFontRegistry()
	if err != nil {
		fmt.Printf("Failed to initialize fonts: %v\n", err)
		os.Exit(1)
	}
	defer fonts.Close()
	if n, err := fonts.LoadDir(cfg.Storage.FontsDirectory); err != nil {
		fmt.Printf("Warning: failed to load fonts: %v\n", err)
	} else if n > 0 {
		fmt.Printf("Loaded %d font families from %s\n", n, cfg.Storage.FontsDirectory)
	}
	if f := cfg.Export.DefaultFont; f != "" {
		if err := fonts.SetFallback(f); err != nil {
			fmt.Printf("Warning: %v, using %s\n", err, render.DefaultFamily)
		}
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	var loaderOpts []assets.Option
	if n, err := config.ParseSize(cfg.Storage.MaxUploadSize); err == nil && n > 0 {
		loaderOpts = append(loaderOpts, assets.WithMaxBytes(n))
	}
	loader := assets.NewLoader(fileStore, cfg.Storage.AssetsDirectory, loaderOpts...)

	rules := loadPricingRules(cfg.Pricing.RulesFile)

	var designs *storage.DesignStore
	if cfg.Storage.EnablePersistence {
		designs, err = storage.OpenDesignStore(cfg.Storage.DesignDatabase)
		if err != nil {
			fmt.Printf("Warning: design persistence disabled: %v\n", err)
			designs = nil
		} else {
			defer designs.Close()
		}
	}

	catalog := session.NewCatalog(cfg.Storage.ProductsDirectory)

	// Each stage gets its own engine and pricing state; fonts and assets are shared
	newDeps := func() designer.Deps {
		return designer.Deps{
			Engine:   render.NewEngine(fonts, loader),
			Loader:   loader,
			Measurer: render.NewMeasurer(fonts),
			Clock:    clockz.RealClock,
			Pricing:  pricing.NewEngine(),
		}
	}

	sessionMgr := session.NewManager(session.Config{
		MaxSessions: cfg.Processing.MaxSessions,
		Options:     cfg.Designer.Options(),
		Broadcast: events.BroadcasterConfig{
			QueueSize: cfg.Advanced.EventQueueSize,
			Timeout:   time.Duration(cfg.Advanced.EventTimeoutSeconds) * time.Second,
		},
		Autosave: cfg.Processing.EnableAutosave,
		Rules:    rules,
	}, newDeps, designs, catalog)
	defer sessionMgr.Close()

	// Initialize upload processing manager
	uploadMgr := upload.NewManager(fileStore, loader)

	// Start background session and job cleanup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessionMgr.CleanupOldSessions(cfg.SessionTimeout())
				uploadMgr.CleanupOldJobs(cfg.SessionTimeout())
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true

	api.SetupMiddleware(e, api.MiddlewareConfig{
		CORS:           cfg.Server.EnableCORS,
		AllowOrigins:   splitOrigins(cfg.Server.AllowOrigins),
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		BodyLimit:      cfg.Server.BodyLimit,
	})

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Path(), "/ws") ||
					c.Request().Header.Get("Accept") == "text/event-stream"
			},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Store:       fileStore,
		SessionMgr:  sessionMgr,
		UploadMgr:   uploadMgr,
		Assets:      loader,
		Version:     Version,
		MaxQuantity: cfg.Pricing.MaxQuantity,
		Export: api.ExportDefaults{
			Format:    cfg.Export.DefaultFormat,
			Quality:   cfg.Export.JPEGQuality,
			Watermark: cfg.Export.Watermark,
		},
		MaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
	})
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	// Serve a built frontend if one is configured
	mode := "API only"
	if frontend, err := web.OpenDir(cfg.Server.StaticDirectory); err == nil {
		if err := web.RegisterStaticRoutes(e, frontend); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			mode = "API + frontend"
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	persistence := "disabled"
	if designs != nil {
		persistence = cfg.Storage.DesignDatabase
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Product Designer Server                         ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Products:  %-46d║\n", len(catalog.List()))
	fmt.Printf("║  Designs:   %-46s║\n", persistence)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Server error: %v\n", err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Shutdown error: %v\n", err)
	}
}

// setupLogging routes the library loggers to stderr. Unexpected error details
// are only returned to clients at debug level.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	designer.SetLogger(logger.With("component", "designer"))
	events.SetLogger(logger.With("component", "events"))
	render.SetLogger(logger.With("component", "render"))
	api.ShowErrorDetails = lvl <= slog.LevelDebug
}

func loadPricingRules(path string) []models.RuleGroup {
	if path == "" {
		return nil
	}
	rules, err := pricing.LoadRules(path)
	if err != nil {
		fmt.Printf("Warning: failed to load pricing rules: %v\n", err)
		return nil
	}
	fmt.Printf("Loaded %d pricing rule groups from %s\n", len(rules), path)
	return rules
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
