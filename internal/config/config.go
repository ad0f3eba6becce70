// Package config handles configuration loading for the framescope server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceHTTP      = "http"
	SourceFile      = "file"
)

// Config represents the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Source    SourceConfig    `yaml:"source"`
	Cache     CacheConfig     `yaml:"cache"`
	Render    RenderConfig    `yaml:"render"`
	Histogram HistogramConfig `yaml:"histogram"`
	Viewport  ViewportConfig  `yaml:"viewport"`
	Sessions  SessionsConfig  `yaml:"sessions"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// SourceConfig selects where frames come from.
type SourceConfig struct {
	Kind           string `yaml:"kind"`
	URL            string `yaml:"url"`
	Dir            string `yaml:"dir"`
	Pattern        string `yaml:"pattern"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the fetch timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ImageSizeMB     int `yaml:"image_size_mb"`
	ImageTTLMinutes int `yaml:"image_ttl_minutes"`
	FrameCacheSize  int `yaml:"frame_cache_size"`
	LUTCacheSize    int `yaml:"lut_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	DefaultColormap string `yaml:"default_colormap"`
	Background      string `yaml:"background"`
	// Workers bounds compositing goroutines; zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// HistogramConfig contains histogram sampling settings.
type HistogramConfig struct {
	StrideDivisor float64 `yaml:"stride_divisor"`
	// DefaultBins of zero selects floor(sqrt(n)).
	DefaultBins int `yaml:"default_bins"`
}

// ViewportConfig contains gesture settings.
type ViewportConfig struct {
	AspectLocked     bool    `yaml:"aspect_locked"`
	FrameIntervalMS  int     `yaml:"frame_interval_ms"`
	IdleTimeoutMS    int     `yaml:"idle_timeout_ms"`
	WheelSensitivity float64 `yaml:"wheel_sensitivity"`
}

// FrameInterval returns the drag rate limit.
func (v ViewportConfig) FrameInterval() time.Duration {
	return time.Duration(v.FrameIntervalMS) * time.Millisecond
}

// IdleTimeout returns the empty-brush reset window.
func (v ViewportConfig) IdleTimeout() time.Duration {
	return time.Duration(v.IdleTimeoutMS) * time.Millisecond
}

// SessionsConfig contains session persistence settings.
type SessionsConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "framescope",
		},
		Source: SourceConfig{
			Kind:           SourceSynthetic,
			Pattern:        "**/*.{npy,npy.zst,npy.xz,npy.gz}",
			TimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			ImageSizeMB:     256,
			ImageTTLMinutes: 10,
			FrameCacheSize:  8,
			LUTCacheSize:    16,
		},
		Render: RenderConfig{
			Width:           512,
			Height:          512,
			DefaultColormap: "gray",
			Background:      "#000000",
		},
		Histogram: HistogramConfig{
			StrideDivisor: 200,
		},
		Viewport: ViewportConfig{
			FrameIntervalMS:  33,
			IdleTimeoutMS:    350,
			WheelSensitivity: 1000,
		},
		Sessions: SessionsConfig{
			SQLitePath:    "./data/sessions.sqlite",
			RetentionDays: 30,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	cfg.Source.Kind = strings.ToLower(strings.TrimSpace(cfg.Source.Kind))
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = defaults.Source.Kind
	}
	if cfg.Source.Pattern == "" {
		cfg.Source.Pattern = defaults.Source.Pattern
	}
	if cfg.Source.TimeoutSeconds == 0 {
		cfg.Source.TimeoutSeconds = defaults.Source.TimeoutSeconds
	}
	if cfg.Cache.ImageSizeMB == 0 {
		cfg.Cache.ImageSizeMB = defaults.Cache.ImageSizeMB
	}
	if cfg.Cache.ImageTTLMinutes == 0 {
		cfg.Cache.ImageTTLMinutes = defaults.Cache.ImageTTLMinutes
	}
	if cfg.Cache.FrameCacheSize == 0 {
		cfg.Cache.FrameCacheSize = defaults.Cache.FrameCacheSize
	}
	if cfg.Cache.LUTCacheSize == 0 {
		cfg.Cache.LUTCacheSize = defaults.Cache.LUTCacheSize
	}
	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Render.Background == "" {
		cfg.Render.Background = defaults.Render.Background
	}
	if cfg.Histogram.StrideDivisor == 0 {
		cfg.Histogram.StrideDivisor = defaults.Histogram.StrideDivisor
	}
	if cfg.Viewport.FrameIntervalMS == 0 {
		cfg.Viewport.FrameIntervalMS = defaults.Viewport.FrameIntervalMS
	}
	if cfg.Viewport.IdleTimeoutMS == 0 {
		cfg.Viewport.IdleTimeoutMS = defaults.Viewport.IdleTimeoutMS
	}
	if cfg.Viewport.WheelSensitivity == 0 {
		cfg.Viewport.WheelSensitivity = defaults.Viewport.WheelSensitivity
	}
	if cfg.Sessions.SQLitePath == "" {
		cfg.Sessions.SQLitePath = defaults.Sessions.SQLitePath
	}
	if cfg.Sessions.RetentionDays == 0 {
		cfg.Sessions.RetentionDays = defaults.Sessions.RetentionDays
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceSynthetic:
	case SourceHTTP:
		if c.Source.URL == "" {
			return fmt.Errorf("source.url is required for kind %q", c.Source.Kind)
		}
	case SourceFile:
		if c.Source.Dir == "" {
			return fmt.Errorf("source.dir is required for kind %q", c.Source.Kind)
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if c.Render.Width < 0 || c.Render.Height < 0 {
		return fmt.Errorf("render size %dx%d is negative", c.Render.Width, c.Render.Height)
	}
	if c.Histogram.StrideDivisor < 0 {
		return fmt.Errorf("histogram.stride_divisor must be positive, got %v", c.Histogram.StrideDivisor)
	}
	return nil
}
