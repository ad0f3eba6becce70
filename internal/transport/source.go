// Package transport supplies raw frame bytes to the pipeline.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/framescope/server/internal/synth"
)

// ErrNotFound is returned when a file source has no frame at the path.
var ErrNotFound = errors.New("transport: frame not found")

// Params selects a frame. File sources read Path; HTTP and synthetic
// sources use Gaussian.
type Params struct {
	Path     string        `json:"path,omitempty"`
	Gaussian *synth.Params `json:"gaussian,omitempty"`
}

func (p Params) gaussian() synth.Params {
	if p.Gaussian != nil {
		return *p.Gaussian
	}
	return synth.DefaultParams()
}

// Source fetches frame payloads, already decompressed.
type Source interface {
	FetchFrame(ctx context.Context, p Params) ([]byte, error)
	Kind() string
}

// Lister is implemented by sources that can enumerate their frames.
type Lister interface {
	List() ([]string, error)
}

// SyntheticSource renders gaussian frames in process.
type SyntheticSource struct{}

func (SyntheticSource) Kind() string { return "synthetic" }

func (SyntheticSource) FetchFrame(ctx context.Context, p Params) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return synth.Frame(p.gaussian())
}

// HTTPSource requests frames from a remote backend.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates a source for the backend at baseURL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Kind() string { return "http" }

// FetchFrame POSTs gaussian parameters to /gaussian, or GETs Path when set.
func (s *HTTPSource) FetchFrame(ctx context.Context, p Params) ([]byte, error) {
	var req *http.Request
	var err error
	if p.Path != "" {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/"+strings.TrimLeft(p.Path, "/"), nil)
	} else {
		body, merr := json.Marshal(p.gaussian())
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/gaussian", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch frame: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxFrameBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if len(raw) > MaxFrameBytes {
		return nil, fmt.Errorf("frame exceeds %d bytes", MaxFrameBytes)
	}
	data, _, err := Decompress(raw)
	return data, err
}

// DefaultPattern matches frame files, compressed or not, at any depth.
const DefaultPattern = "**/*.{npy,npy.zst,npy.xz,npy.gz}"

// FileSource reads frames below a directory.
type FileSource struct {
	Dir     string
	Pattern string
	fsys    fs.FS
}

// NewFileSource serves files under dir that match pattern.
func NewFileSource(dir, pattern string) (*FileSource, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid frame pattern %q", pattern)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("frame directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frame directory %s is not a directory", dir)
	}
	return &FileSource{Dir: dir, Pattern: pattern, fsys: os.DirFS(dir)}, nil
}

func (s *FileSource) Kind() string { return "file" }

// List returns the matching frame paths relative to Dir, in lexical order.
func (s *FileSource) List() ([]string, error) {
	matches, err := doublestar.Glob(s.fsys, s.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("pattern matching failed: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// FetchFrame reads the frame at p.Path. Paths outside Dir or not matching
// Pattern are reported as ErrNotFound.
func (s *FileSource) FetchFrame(ctx context.Context, p Params) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := path.Clean(strings.TrimLeft(p.Path, "/"))
	if !fs.ValidPath(name) || name == "." {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, p.Path)
	}
	if ok, _ := doublestar.Match(s.Pattern, name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, p.Path)
	}
	raw, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, p.Path)
		}
		return nil, err
	}
	data, _, err := Decompress(raw)
	return data, err
}
