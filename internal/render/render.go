// Package render expands the includes of a whole HTML page with the static
// backend. It is shared by the render, serve and watch commands.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"htmlinc/internal/alias"
	"htmlinc/internal/dom/static"
	"htmlinc/internal/fetch"
	"htmlinc/internal/include"

	"go.uber.org/zap"
)

// PageObserver receives one observation per rendered page.
type PageObserver interface {
	ObservePage(report *include.Report, err error, elapsed time.Duration)
}

// Options configures a Renderer.
type Options struct {
	// Base overrides the page directory as the resolution base.
	Base        *url.URL
	Table       alias.Table
	Fetcher     fetch.Fetcher
	Selector    string
	Concurrency int
	MaxDepth    int
	Logger      *zap.Logger
	Hosts       include.Metrics
	Pages       PageObserver
}

// Renderer renders pages. It is safe for concurrent use; every page gets
// its own engine and document.
type Renderer struct {
	opts Options
	log  *zap.Logger
}

// New builds a Renderer. Fetcher is required.
func New(opts Options) (*Renderer, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("render: fetcher is required")
	}
	if opts.Table.Len() == 0 {
		opts.Table = alias.DefaultTable()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{opts: opts, log: log}, nil
}

// RenderFile renders the page at path into w. The page's directory is the
// base unless Options.Base is set. Output is written even when some hosts
// failed; the *include.BatchError is returned after writing.
func (r *Renderer) RenderFile(ctx context.Context, path string, w io.Writer) (*include.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	base, err := alias.BaseFromPath(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return r.Render(ctx, f, base, w)
}

// Render renders the page read from in. pageBase is the directory URL of the
// page itself and is used unless Options.Base is set.
func (r *Renderer) Render(ctx context.Context, in io.Reader, pageBase *url.URL, w io.Writer) (report *include.Report, err error) {
	start := time.Now()
	if r.opts.Pages != nil {
		defer func() {
			r.opts.Pages.ObservePage(report, err, time.Since(start))
		}()
	}

	base := pageBase
	if r.opts.Base != nil {
		base = r.opts.Base
	}
	if base == nil {
		return nil, fmt.Errorf("render: no base URL")
	}

	doc, err := static.Parse(in)
	if err != nil {
		return nil, err
	}

	engine, err := include.New(include.Options{
		Resolver:    alias.NewResolver(base, r.opts.Table),
		Fetcher:     r.opts.Fetcher,
		Logger:      r.log,
		Metrics:     r.opts.Hosts,
		Concurrency: r.opts.Concurrency,
		MaxDepth:    r.opts.MaxDepth,
	})
	if err != nil {
		return nil, err
	}

	report, incErr := engine.IncludeAll(ctx, doc, r.opts.Selector)
	if report == nil || (incErr != nil && report.Err() == nil) {
		// selection itself failed; nothing was touched
		return report, incErr
	}

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return report, fmt.Errorf("render page: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return report, fmt.Errorf("write page: %w", err)
	}
	return report, incErr
}

// WriteFile renders src into dst, replacing dst atomically. On a partial
// failure dst still receives the page with the successful insertions.
func (r *Renderer) WriteFile(ctx context.Context, src, dst string) (*include.Report, error) {
	var buf bytes.Buffer
	report, err := r.RenderFile(ctx, src, &buf)
	if buf.Len() == 0 {
		return report, err
	}

	if mkErr := os.MkdirAll(filepath.Dir(dst), 0o755); mkErr != nil {
		return report, fmt.Errorf("create output directory: %w", mkErr)
	}
	tmp, tmpErr := os.CreateTemp(filepath.Dir(dst), ".htmlinc-*")
	if tmpErr != nil {
		return report, fmt.Errorf("create temp file: %w", tmpErr)
	}
	defer os.Remove(tmp.Name())
	if chErr := tmp.Chmod(0o644); chErr != nil {
		tmp.Close()
		return report, fmt.Errorf("write output: %w", chErr)
	}
	if _, wErr := tmp.Write(buf.Bytes()); wErr != nil {
		tmp.Close()
		return report, fmt.Errorf("write output: %w", wErr)
	}
	if cErr := tmp.Close(); cErr != nil {
		return report, fmt.Errorf("write output: %w", cErr)
	}
	if rnErr := os.Rename(tmp.Name(), dst); rnErr != nil {
		return report, fmt.Errorf("write output: %w", rnErr)
	}
	return report, err
}
