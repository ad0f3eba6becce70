// Package api provides HTTP handlers for the framescope server.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/framescope/server/internal/histogram"
	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/npy"
	"github.com/framescope/server/internal/render"
	"github.com/framescope/server/internal/service"
	"github.com/framescope/server/internal/synth"
	"github.com/framescope/server/internal/transport"
	"github.com/framescope/server/internal/viewport"
	"github.com/framescope/server/pkg/colormap"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Frames      *service.FrameService
	CORSOrigins []string
	Title       string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Encoding"},
		ExposedHeaders:   []string{"X-Frame-Width", "X-Frame-Height"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Synthetic frame backend
	r.Post("/gaussian", gaussianHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/info", infoHandler(cfg))
		r.Get("/colormaps", colormapsHandler)
		r.Get("/frames/sources", sourcesHandler(cfg.Frames))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionListHandler(cfg.Frames))
			r.Post("/", sessionCreateHandler(cfg.Frames))

			// Session-scoped routes
			r.Route("/{session_id}", func(r chi.Router) {
				r.Use(sessionMiddleware(cfg.Frames.Sessions()))

				r.Get("/", sessionInfoHandler)
				r.Delete("/", sessionDeleteHandler(cfg.Frames))
				r.Post("/frames", frameLoadHandler(cfg.Frames))
				r.Put("/frames", frameUploadHandler(cfg.Frames))
				r.Get("/frames", frameLogHandler(cfg.Frames))
				r.Get("/histogram", histogramHandler(cfg.Frames))
				r.Put("/window", windowHandler(cfg.Frames))
				r.Post("/window/brush", windowBrushHandler(cfg.Frames))
				r.Put("/colormap", colormapHandler(cfg.Frames))
				r.Post("/gestures", gestureHandler(cfg.Frames))
				r.Get("/viewport", viewportHandler)
				r.Get("/image.png", imageHandler(cfg.Frames))
				r.Get("/image.rgb", rgbHandler(cfg.Frames))
				r.Get("/colorbar.png", colorBarHandler(cfg.Frames))
			})
		})
	})

	return r
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var parseErr *npy.ParseError
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrFrameNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict
	case errors.As(err, &parseErr), errors.Is(err, histogram.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lut.ErrInvalidWindow), errors.Is(err, service.ErrUnknownColormap),
		errors.Is(err, synth.ErrInvalidParams):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}

// gaussianHandler serves a synthetic .npy frame. Missing fields keep
// their defaults.
func gaussianHandler(w http.ResponseWriter, r *http.Request) {
	p := synth.DefaultParams()
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	data, err := synth.Frame(p)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func infoHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		width, height := cfg.Frames.ViewSize()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"title":          cfg.Title,
			"source":         cfg.Frames.Source().Kind(),
			"view_width":     width,
			"view_height":    height,
			"max_view_size":  render.MaxSize,
			"max_frame_size": transport.MaxFrameBytes,
		})
	}
}

func colormapsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"colormaps": colormap.Names(),
	})
}

func sourcesHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paths, ok, err := svc.ListSources()
		if !ok {
			http.Error(w, "source "+svc.Source().Kind()+" cannot list frames", http.StatusNotImplemented)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if paths == nil {
			paths = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"source": svc.Source().Kind(),
			"frames": paths,
		})
	}
}

func sessionListHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := svc.Sessions().List()
		infos := make([]service.SessionInfo, 0, len(sessions))
		for _, sess := range sessions {
			infos = append(infos, sess.Info())
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": infos})
	}
}

func sessionCreateHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.Sessions().Create()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess.Info())
	}
}

func sessionInfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, getSession(r).Info())
}

func sessionDeleteHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Sessions().Delete(getSession(r).ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func frameLoadHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p transport.Params
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		info, err := svc.Load(r.Context(), getSession(r).ID, p)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func frameUploadHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, transport.MaxFrameBytes)
		payload, err := io.ReadAll(body)
		if err != nil {
			http.Error(w, "failed to read frame: "+err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		info, err := svc.LoadBytes(r.Context(), getSession(r).ID, payload)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func frameLogHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		frames, err := svc.Frames(getSession(r).ID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if frames == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"frames": []interface{}{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"frames": frames})
	}
}

func histogramHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bins, err := queryInt(r, "bins")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if bins > histogram.MaxBins {
			http.Error(w, fmt.Sprintf("bins must be at most %d", histogram.MaxBins), http.StatusBadRequest)
			return
		}
		h, err := svc.Histogram(getSession(r).ID, bins)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

type windowRequest struct {
	Low  *float64 `json:"low"`
	High *float64 `json:"high"`
	// Auto returns to the histogram range.
	Auto bool `json:"auto"`
}

func windowHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req windowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		var win *lut.Window
		if !req.Auto {
			if req.Low == nil || req.High == nil {
				http.Error(w, "low and high are required unless auto is set", http.StatusBadRequest)
				return
			}
			win = &lut.Window{Low: *req.Low, High: *req.High}
		}
		info, err := svc.SetWindow(r.Context(), getSession(r).ID, win)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

type brushRequest struct {
	Y0         float64 `json:"y0"`
	Y1         float64 `json:"y1"`
	AxisHeight float64 `json:"axis_height"`
}

func windowBrushHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req brushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		info, err := svc.BrushWindow(r.Context(), getSession(r).ID, req.Y0, req.Y1, req.AxisHeight)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func colormapHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		info, err := svc.SetColormap(r.Context(), getSession(r).ID, req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

type gestureResponse struct {
	Viewport viewport.Viewport     `json:"viewport"`
	Gesture  viewport.GestureState `json:"gesture"`
}

func gestureHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev viewport.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		v, state, err := svc.ApplyGesture(getSession(r).ID, ev)
		if err != nil {
			if errors.Is(err, service.ErrSessionNotFound) {
				writeError(w, err)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, gestureResponse{Viewport: v, Gesture: state})
	}
}

func viewportHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	writeJSON(w, http.StatusOK, gestureResponse{
		Viewport: sess.Controller.Viewport(),
		Gesture:  sess.Controller.State(),
	})
}

func imageHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		width, err := queryInt(r, "width")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		height, err := queryInt(r, "height")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if width > render.MaxSize || height > render.MaxSize {
			http.Error(w, "view size too large", http.StatusBadRequest)
			return
		}
		data, err := svc.RenderImage(getSession(r).ID, width, height)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}

func rgbHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rgb, width, height, err := svc.RGB(getSession(r).ID)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Frame-Width", strconv.Itoa(width))
		w.Header().Set("X-Frame-Height", strconv.Itoa(height))
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(rgb)
	}
}

func colorBarHandler(svc *service.FrameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		width, err := queryInt(r, "width")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		height, err := queryInt(r, "height")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if width == 0 {
			width = 40
		}
		if height == 0 {
			height = 256
		}
		if width > render.MaxSize || height > render.MaxSize {
			http.Error(w, "colour bar size too large", http.StatusBadRequest)
			return
		}
		data, err := svc.ColorBar(getSession(r).ID, width, height)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}
