package daemon

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesainslie/cardview/pkg/cardview/logging"
	"github.com/jamesainslie/cardview/pkg/cardview/types"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// ServerConfig carries the listener settings for the HTTP surface.
type ServerConfig struct {
	Listen string
	// Refresh is the meta-refresh interval advertised on the index page,
	// in seconds. Zero disables auto refresh.
	Refresh int
}

// Server serves the card catalog over HTTP: an auto-refreshing HTML index,
// a JSON snapshot endpoint, a health probe and Prometheus metrics.
type Server struct {
	cfg     ServerConfig
	catalog *Catalog
	httpSrv *http.Server
	logger  *logging.Logger
}

// NewServer builds a Server around the given catalog. Nothing listens until
// ListenAndServe or Serve is called.
func NewServer(cfg ServerConfig, catalog *Catalog) *Server {
	s := &Server{
		cfg:     cfg,
		catalog: catalog,
		logger:  logging.Get("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           withRequestMetrics(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving HTTP until Shutdown is called or the
// listener fails.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.cfg.Listen)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Serve serves on an already-open listener. Used when the caller wants to
// bind before dropping into the serve loop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	err := s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type pageEntry struct {
	Name  string
	IsDir bool
	Size  string
}

type pageData struct {
	State        string
	Message      string
	Error        bool
	Initializing bool
	Entries      []pageEntry
	Count        int
	Refresh      int
	ScannedAt    string
	Cycles       uint64
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.catalog.Snapshot()

	data := pageData{
		State:        snap.State.String(),
		Message:      snap.Message,
		Error:        snap.State == types.StateError,
		Initializing: snap.State == types.StateInitializing,
		Count:        len(snap.Entries),
		Refresh:      s.cfg.Refresh,
		Cycles:       snap.Cycles,
	}
	if !snap.ScannedAt.IsZero() {
		data.ScannedAt = snap.ScannedAt.Format(time.RFC3339)
	}
	for _, e := range snap.Entries {
		pe := pageEntry{Name: e.Name, IsDir: e.IsDir}
		if !e.IsDir {
			pe.Size = e.HumanSize()
		}
		data.Entries = append(data.Entries, pe)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("render index", "error", err)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.catalog.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error("encode snapshot", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// statusRecorder captures the status code written by a handler so the
// request metric can be labeled with it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
	})
}
