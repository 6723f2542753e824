package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"snapsift/internal/logging"
)

// Server exposes the read-only HTTP surface the web viewer consumes:
// the persisted cache document and the raw image files.
type Server struct {
	bind       string
	cachePath  string
	imagesRoot string
	logger     *slog.Logger

	listener net.Listener
	server   *http.Server
}

// Options configures a viewer server.
type Options struct {
	Bind       string
	CachePath  string
	ImagesRoot string
	Logger     *slog.Logger
}

// New builds a server; it does not listen until Start.
func New(opts Options) (*Server, error) {
	if strings.TrimSpace(opts.Bind) == "" {
		return nil, errors.New("bind address required")
	}
	if strings.TrimSpace(opts.CachePath) == "" {
		return nil, errors.New("cache path required")
	}
	if strings.TrimSpace(opts.ImagesRoot) == "" {
		return nil, errors.New("images root required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		bind:       opts.Bind,
		cachePath:  opts.CachePath,
		imagesRoot: opts.ImagesRoot,
		logger:     logging.NewComponentLogger(logger, "viewer"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/cache", srv.handleCache)
	mux.HandleFunc("/images/", srv.handleImage)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("viewer listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("viewer server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("viewer listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleCache streams the persisted cache document verbatim. The document
// on disk is the viewer's contract; re-encoding it here could reorder or
// reshape fields.
func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "cache not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "cache unreadable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("failed to write cache response", logging.Error(err))
	}
}

// handleImage serves a file strictly under the images root.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/images/")
	if rel == "" {
		s.writeError(w, http.StatusNotFound, "image not found")
		return
	}

	full, ok := s.resolve(rel)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid image path")
		return
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "image not found")
		return
	}
	http.ServeFile(w, r, full)
}

// resolve joins rel onto the images root and rejects anything that would
// escape it. Only a full ".." segment is a traversal; names like
// "photo..jpg" stay servable.
func (s *Server) resolve(rel string) (string, bool) {
	if filepath.IsAbs(rel) {
		return "", false
	}
	for _, segment := range strings.Split(rel, "/") {
		if segment == ".." {
			return "", false
		}
	}
	full := filepath.Join(s.imagesRoot, filepath.FromSlash(rel))
	root := filepath.Clean(s.imagesRoot) + string(filepath.Separator)
	if !strings.HasPrefix(full, root) {
		return "", false
	}
	return full, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
