// Package api serves the JSON interface over the acquisition loop and the
// per-task model controllers.
package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/model"
	"github.com/banshee-data/stress.report/internal/monitoring"
	"github.com/banshee-data/stress.report/internal/remote"
	"github.com/banshee-data/stress.report/internal/sensor"
)

var logf = monitoring.Component("api")

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Acquisition is the part of *acquisition.Loop the API drives.
type Acquisition interface {
	Snapshot(ctx context.Context) (*acquisition.Snapshot, error)
	LastSample(ctx context.Context, ch sensor.Channel) (sensor.Sample, bool, error)
	LastSamples(ctx context.Context) (map[sensor.Channel]sensor.Sample, error)
	StartNoise(ctx context.Context)
	StopNoise()
	NoiseActive() bool
}

// Options wires the optional collaborators of a Server.
type Options struct {
	// BaseContext outlives requests; noise generators run under it.
	BaseContext context.Context
	Logger      *remote.ModelLogger
	AutoLogger  *remote.AutoLogger
	Mirror      *remote.Mirror
	// Live serves the websocket feed at /api/live when set.
	Live http.Handler
}

type Server struct {
	acq     Acquisition
	models  map[string]model.Service
	base    context.Context
	logger  *remote.ModelLogger
	autolog *remote.AutoLogger
	mirror  *remote.Mirror
	live    http.Handler
}

func NewServer(acq Acquisition, services []model.Service, opts Options) *Server {
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	models := make(map[string]model.Service, len(services))
	for _, svc := range services {
		models[svc.Name()] = svc
	}
	return &Server{
		acq:     acq,
		models:  models,
		base:    base,
		logger:  opts.Logger,
		autolog: opts.AutoLogger,
		mirror:  opts.Mirror,
		live:    opts.Live,
	}
}

// taskNames returns the registered task names in order.
func (s *Server) taskNames() []string {
	names := make([]string, 0, len(s.models))
	for n := range s.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the websocket upgrade needs for Hijack.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
// Websocket upgrades bypass it so the connection can be hijacked.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot", s.showSnapshot)
	mux.HandleFunc("GET /api/samples/last", s.showLastSamples)
	mux.HandleFunc("GET /api/models", s.listModels)
	mux.HandleFunc("GET /api/models/{task}", s.withTask(s.showModel))
	mux.HandleFunc("DELETE /api/models/{task}", s.withTask(s.clearModel))
	mux.HandleFunc("POST /api/models/{task}/samples", s.withTask(s.addSample))
	mux.HandleFunc("POST /api/models/{task}/train", s.withTask(s.trainModel))
	mux.HandleFunc("POST /api/models/{task}/predict", s.withTask(s.predict))
	mux.HandleFunc("GET /api/models/{task}/export.parquet", s.withTask(s.exportParquet))
	mux.HandleFunc("GET /api/noise", s.showNoise)
	mux.HandleFunc("POST /api/noise", s.setNoise)
	mux.HandleFunc("GET /api/autolog", s.showAutolog)
	mux.HandleFunc("POST /api/autolog", s.setAutolog)
	mux.HandleFunc("GET /api/mirror", s.showMirror)
	if s.live != nil {
		mux.Handle("GET /api/live", s.live)
	}
	return mux
}
