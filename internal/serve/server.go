// Package serve is the development server: HTML pages under the root are
// rendered through the include engine on every request, everything else is
// served from disk. Includes resolve against the root directory, so a page
// in a subdirectory finds the same components as one at the top.
package serve

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"htmlinc/internal/alias"
	"htmlinc/internal/include"
	"htmlinc/internal/render"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// FailedHeader carries the number of hosts that could not be included.
const FailedHeader = "X-Htmlinc-Failed"

// Options configures a Server.
type Options struct {
	Root     string
	Addr     string
	Renderer *render.Renderer
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server renders pages from a directory.
type Server struct {
	root     string
	addr     string
	renderer *render.Renderer
	gatherer prometheus.Gatherer
	log      *zap.Logger

	// base is the root as a directory URL; aliases in every page resolve
	// against it unless the renderer has its own base.
	base *url.URL
}

// New builds a Server.
func New(opts Options) (*Server, error) {
	if opts.Renderer == nil {
		return nil, errors.New("serve: renderer is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("serve: root is not a directory")
	}
	base, err := alias.BaseFromPath(root)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		base:     base,
		root:     root,
		addr:     opts.Addr,
		renderer: opts.Renderer,
		gatherer: opts.Gatherer,
		log:      log,
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/*", s.handleFile)
	r.Head("/*", s.handleFile)
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.addr), zap.String("root", s.root))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := path.Clean("/" + chi.URLParam(r, "*"))
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if !isHTML(full) || r.URL.Query().Has("raw") {
		http.ServeFile(w, r, full)
		return
	}
	page, err := os.ReadFile(full)
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	if !isDocument(page) {
		// fragments are served untouched so other pages can include them
		http.ServeFile(w, r, full)
		return
	}
	var buf bytes.Buffer
	report, err := s.renderer.Render(r.Context(), bytes.NewReader(page), s.base, &buf)
	var be *include.BatchError
	switch {
	case err == nil:
	case errors.As(err, &be):
		s.log.Warn("page rendered with failures",
			zap.String("path", rel),
			zap.Int("failed", len(be.Errors())),
			zap.Error(err))
		w.Header().Set(FailedHeader, strconv.Itoa(len(be.Errors())))
	default:
		s.log.Error("render failed", zap.String("path", rel), zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	if report != nil {
		s.log.Debug("page rendered", zap.String("path", rel), zap.String("run", report.RunID),
			zap.Int("inserted", report.Count(include.OutcomeInserted)))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func isHTML(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// isDocument reports whether markup is a full page rather than a fragment.
func isDocument(markup []byte) bool {
	head := bytes.TrimLeft(markup, " \t\r\n\ufeff")
	if len(head) > 64 {
		head = head[:64]
	}
	head = bytes.ToLower(head)
	return bytes.HasPrefix(head, []byte("<!doctype")) || bytes.HasPrefix(head, []byte("<html"))
}
