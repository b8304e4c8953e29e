// Package web provides an HTTP status server for the plant-waterer daemon.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/plant-waterer/internal/attr"
	"github.com/sweeney/plant-waterer/internal/logging"
	"github.com/sweeney/plant-waterer/internal/metrics"
	"github.com/sweeney/plant-waterer/internal/status"
)

// maxWriteBody bounds attribute write bodies; the widest attribute is 4 bytes.
const maxWriteBody = 64

// Attributes reads and writes attributes by name using their wire encoding.
type Attributes interface {
	Write(name string, payload []byte) error
	Read(name string) ([]byte, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	attrs      Attributes
	logger     *slog.Logger
}

// New creates a Server that reads state from the given tracker and applies
// attribute writes through attrs.
func New(addr string, tracker *status.Tracker, attrs Attributes) *Server {
	s := &Server{
		tracker: tracker,
		attrs:   attrs,
		logger:  logging.GetLogger("web"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/attr/{name}", func(r chi.Router) {
		r.Get("/", s.handleAttrRead)
		r.Put("/", s.handleAttrWrite)
	})

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Error("render index", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleAttrRead(w http.ResponseWriter, r *http.Request) {
	b, err := s.attrs.Read(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), attrErrorStatus(err))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(b)
}

func (s *Server) handleAttrWrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWriteBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.attrs.Write(chi.URLParam(r, "name"), body); err != nil {
		http.Error(w, err.Error(), attrErrorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func attrErrorStatus(err error) int {
	switch {
	case errors.Is(err, attr.ErrUnknownAttribute):
		return http.StatusNotFound
	case errors.Is(err, attr.ErrNotWritable):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusBadRequest
	}
}
