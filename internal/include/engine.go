// Package include drives fragment inclusion: it finds host elements,
// fetches and parameterizes their fragments concurrently, and splices the
// results into the document.
package include

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"htmlinc/internal/alias"
	"htmlinc/internal/dom"
	"htmlinc/internal/fetch"
	"htmlinc/internal/params"
	"htmlinc/internal/tokens"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Metrics receives one observation per settled host.
type Metrics interface {
	ObserveHost(outcome Outcome, elapsed time.Duration)
}

// Options configures an Engine.
type Options struct {
	Resolver *alias.Resolver
	Fetcher  fetch.Fetcher
	Logger   *zap.Logger
	Metrics  Metrics
	// Concurrency caps in-flight hosts; zero or less means unbounded.
	Concurrency int
	// MaxDepth is the number of passes IncludeAll may run. Values below 1
	// are treated as 1.
	MaxDepth int
}

// Engine runs include passes against a dom.Document.
type Engine struct {
	resolver    *alias.Resolver
	fetcher     fetch.Fetcher
	log         *zap.Logger
	metrics     Metrics
	concurrency int
	maxDepth    int

	// mu serializes document access across host goroutines.
	mu sync.Mutex
}

// New builds an Engine. Resolver and Fetcher are required.
func New(opts Options) (*Engine, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("include: resolver is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("include: fetcher is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	depth := opts.MaxDepth
	if depth < 1 {
		depth = 1
	}
	return &Engine{
		resolver:    opts.Resolver,
		fetcher:     opts.Fetcher,
		log:         log,
		metrics:     opts.Metrics,
		concurrency: opts.Concurrency,
		maxDepth:    depth,
	}, nil
}

// Include runs one pass: every element matching selector (default
// dom.DefaultSelector) at call time is processed concurrently. It returns
// after all hosts settled. Successful hosts are inserted even when others
// fail; failures come back together as a *BatchError.
func (e *Engine) Include(ctx context.Context, doc dom.Document, selector string) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	if err := e.pass(ctx, doc, selector, 1, report, nil); err != nil {
		return report, err
	}
	return report, report.Err()
}

// IncludeAll repeats passes so fragments that themselves contain hosts get
// expanded, stopping when a pass inserts nothing or MaxDepth is reached.
// Hosts that failed or were skipped stay in the document; backends that
// implement dom.Identifier let later passes leave them alone.
func (e *Engine) IncludeAll(ctx context.Context, doc dom.Document, selector string) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	settled := make(map[any]bool)
	for depth := 1; depth <= e.maxDepth; depth++ {
		before := report.Count(OutcomeInserted)
		if err := e.pass(ctx, doc, selector, depth, report, settled); err != nil {
			return report, err
		}
		if report.Count(OutcomeInserted) == before {
			break
		}
	}
	return report, report.Err()
}

func (e *Engine) pass(ctx context.Context, doc dom.Document, selector string, depth int, report *Report, settled map[any]bool) error {
	if selector == "" {
		selector = dom.DefaultSelector
	}
	log := e.log.With(zap.String("run", report.RunID), zap.Int("pass", depth))

	e.mu.Lock()
	hosts, err := doc.Hosts(selector)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("select hosts: %w", err)
	}
	if settled != nil {
		hosts = withoutSettled(hosts, settled)
	}
	log.Debug("include pass started", zap.String("selector", selector), zap.Int("hosts", len(hosts)))

	results := make([]Result, len(hosts))
	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, h := range hosts {
		g.Go(func() error {
			res := e.includeHost(ctx, doc, h, log)
			res.Pass = depth
			results[i] = res
			if e.metrics != nil {
				e.metrics.ObserveHost(res.Outcome, res.Elapsed)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Results = append(report.Results, results...)
	if settled != nil {
		for i, r := range results {
			if id, ok := hosts[i].(dom.Identifier); ok && r.Outcome != OutcomeInserted {
				settled[id.Identity()] = true
			}
		}
	}

	failed := 0
	for _, r := range results {
		if r.Outcome == OutcomeFailed {
			failed++
		}
	}
	log.Info("include pass finished", zap.Int("hosts", len(hosts)), zap.Int("failed", failed))
	return nil
}

func withoutSettled(hosts []dom.Host, settled map[any]bool) []dom.Host {
	out := hosts[:0]
	for _, h := range hosts {
		if id, ok := h.(dom.Identifier); ok && settled[id.Identity()] {
			continue
		}
		out = append(out, h)
	}
	return out
}

func (e *Engine) includeHost(ctx context.Context, doc dom.Document, h dom.Host, log *zap.Logger) Result {
	start := time.Now()

	src, _ := h.Attr(dom.AttrSource)
	if src == "" {
		return Result{Outcome: OutcomeSkipped}
	}
	res := Result{Source: src}
	fail := func(err error) Result {
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Elapsed = time.Since(start)
		log.Warn("include failed", zap.String("src", src), zap.String("url", res.URL), zap.Error(err))
		return res
	}

	resolved := e.resolver.Resolve(src)
	res.URL = resolved
	u, err := url.Parse(resolved)
	if err != nil || !u.IsAbs() {
		return fail(&fetch.FetchError{URL: resolved, Err: fmt.Errorf("invalid URL")})
	}

	body, err := e.fetcher.Fetch(ctx, u.String())
	if err != nil {
		return fail(err)
	}

	p := params.Gather(h, u, log.Named("params"))
	rendered := tokens.Apply(body, p)

	if err := e.insert(doc, h, rendered); err != nil {
		return fail(fmt.Errorf("insert %s: %w", resolved, err))
	}

	res.Outcome = OutcomeInserted
	res.Elapsed = time.Since(start)
	log.Debug("fragment inserted", zap.String("src", src), zap.String("url", resolved),
		zap.Int("params", p.Len()), zap.Duration("elapsed", res.Elapsed))
	return res
}

// insert parses rendered markup, re-materializes its scripts, and replaces
// the host. It holds the document lock for the whole sequence.
func (e *Engine) insert(doc dom.Document, h dom.Host, rendered string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	frag, err := doc.ParseFragment(rendered)
	if err != nil {
		return err
	}
	scripts, err := doc.QueryScripts(frag)
	if err != nil {
		return fmt.Errorf("query scripts: %w", err)
	}
	for _, s := range scripts {
		if err := doc.ExecuteScript(frag, s); err != nil {
			return fmt.Errorf("execute script: %w", err)
		}
	}
	return doc.ReplaceNode(h, frag)
}
