package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Source.Kind != SourceSynthetic {
		t.Errorf("expected synthetic source, got %q", cfg.Source.Kind)
	}
	if cfg.Histogram.StrideDivisor != 200 {
		t.Errorf("expected stride divisor 200, got %v", cfg.Histogram.StrideDivisor)
	}
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	content := `
server:
  port: 9000
source:
  kind: FILE
  dir: /data/frames
render:
  default_colormap: inferno
viewport:
  aspect_locked: true
  idle_timeout_ms: 500
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Source.Kind != SourceFile || cfg.Source.Dir != "/data/frames" {
		t.Errorf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Source.Pattern == "" {
		t.Error("expected default pattern")
	}
	if cfg.Render.DefaultColormap != "inferno" {
		t.Errorf("unexpected colormap: %s", cfg.Render.DefaultColormap)
	}
	if cfg.Render.Width != 512 || cfg.Render.Height != 512 {
		t.Errorf("unexpected render size %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
	if !cfg.Viewport.AspectLocked {
		t.Error("expected aspect lock")
	}
	if got := cfg.Viewport.IdleTimeout(); got != 500*time.Millisecond {
		t.Errorf("idle timeout = %v", got)
	}
	if got := cfg.Viewport.FrameInterval(); got != 33*time.Millisecond {
		t.Errorf("frame interval = %v", got)
	}
	if got := cfg.Source.Timeout(); got != 30*time.Second {
		t.Errorf("timeout = %v", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"http without url", "source:\n  kind: http\n"},
		{"file without dir", "source:\n  kind: file\n"},
		{"unknown kind", "source:\n  kind: ftp\n"},
		{"negative divisor", "histogram:\n  stride_divisor: -1\n"},
		{"bad yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
