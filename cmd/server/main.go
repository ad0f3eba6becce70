// Package main is the entry point for the framescope server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framescope/server/internal/api"
	"github.com/framescope/server/internal/cache"
	"github.com/framescope/server/internal/composite"
	"github.com/framescope/server/internal/config"
	"github.com/framescope/server/internal/histogram"
	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/render"
	"github.com/framescope/server/internal/service"
	"github.com/framescope/server/internal/sessionstore"
	"github.com/framescope/server/internal/transport"
	"github.com/framescope/server/internal/viewport"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting framescope server on port %d", cfg.Server.Port)

	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	source, err := newSource(cfg.Source)
	if err != nil {
		log.Fatalf("Failed to initialize frame source: %v", err)
	}
	log.Printf("Frame source: %s", source.Kind())

	cacheManager, err := cache.NewManager(cache.Config{
		ImageCacheSizeMB: cfg.Cache.ImageSizeMB,
		ImageTTL:         time.Duration(cfg.Cache.ImageTTLMinutes) * time.Minute,
		FrameCacheSize:   cfg.Cache.FrameCacheSize,
		QueryCacheSize:   256,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	luts, err := lut.NewCache(cfg.Cache.LUTCacheSize)
	if err != nil {
		log.Fatalf("Failed to initialize lookup table cache: %v", err)
	}

	store, err := sessionstore.NewStore(cfg.Sessions.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	defer store.Close()

	retention := time.Duration(cfg.Sessions.RetentionDays) * 24 * time.Hour
	if n, err := store.DeleteExpiredSessions(retention); err != nil {
		log.Printf("Failed to delete expired sessions: %v", err)
	} else if n > 0 {
		log.Printf("Deleted %d expired session(s)", n)
	}

	renderer := render.NewViewRenderer(render.Config{
		Width:           cfg.Render.Width,
		Height:          cfg.Render.Height,
		DefaultColormap: cfg.Render.DefaultColormap,
		Background:      cfg.Render.Background,
	})

	vpCfg := viewport.DefaultConfig(float64(cfg.Render.Width), float64(cfg.Render.Height))
	vpCfg.FrameInterval = cfg.Viewport.FrameInterval()
	vpCfg.IdleTimeout = cfg.Viewport.IdleTimeout()
	vpCfg.WheelSensitivity = cfg.Viewport.WheelSensitivity

	sessions := service.NewSessionManager(service.SessionManagerConfig{
		Store:           store,
		Viewport:        vpCfg,
		AspectLocked:    cfg.Viewport.AspectLocked,
		DefaultColormap: cfg.Render.DefaultColormap,
	})

	frames := service.NewFrameService(service.FrameServiceConfig{
		Source:   source,
		Sessions: sessions,
		Cache:    cacheManager,
		LUTs:     luts,
		Engine: histogram.Engine{
			StrideDivisor: cfg.Histogram.StrideDivisor,
			DefaultBins:   cfg.Histogram.DefaultBins,
		},
		Compositor: composite.Compositor{Workers: cfg.Render.Workers},
		Renderer:   renderer,
		Store:      store,
	})

	restored, err := sessions.Restore()
	if err != nil {
		log.Printf("Failed to restore sessions: %v", err)
	} else {
		log.Printf("Restored %d session(s) with a frame to reload", len(restored))
		frames.Reload(ctx, restored)
	}

	go sessions.RunExpiry(ctx, retention, time.Hour)

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Frames:      frames,
		CORSOrigins: cfg.Server.CORSOrigins,
		Title:       cfg.Server.Title,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancelBackground()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// newSource builds the configured frame source.
func newSource(cfg config.SourceConfig) (transport.Source, error) {
	switch cfg.Kind {
	case config.SourceHTTP:
		return transport.NewHTTPSource(cfg.URL, cfg.Timeout()), nil
	case config.SourceFile:
		return transport.NewFileSource(cfg.Dir, cfg.Pattern)
	case config.SourceSynthetic:
		return transport.SyntheticSource{}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
