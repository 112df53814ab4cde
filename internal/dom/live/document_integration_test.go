//go:build integration

package live_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"htmlinc/internal/alias"
	"htmlinc/internal/browser"
	"htmlinc/internal/dom/live"
	"htmlinc/internal/fetch"
	"htmlinc/internal/include"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncludeInBrowser_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/components/ui/button.html":
			fmt.Fprint(w, `<button id="b">{{ label | Default }}</button><script>window.ran = (window.ran || 0) + 1;</script>`)
		default:
			fmt.Fprint(w, `<html><body><div data-include="@ui/button.html" data-include-label="Go"></div><p data-include="@ui/missing.html"></p></body></html>`)
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sm := browser.NewSessionManager(browser.DefaultConfig(), nil)
	defer func() {
		if err := sm.Shutdown(context.Background()); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	}()

	_, page, err := sm.Open(ctx, ts.URL+"/index.html")
	require.NoError(t, err)

	base, err := alias.ParseBase(ts.URL + "/")
	require.NoError(t, err)
	engine, err := include.New(include.Options{
		Resolver: alias.NewResolver(base, alias.DefaultTable()),
		Fetcher:  fetch.New(fetch.Options{Timeout: 10 * time.Second}),
		MaxDepth: 2,
	})
	require.NoError(t, err)

	doc := live.New(page)
	report, err := engine.IncludeAll(ctx, doc, "")
	require.Error(t, err)
	assert.Equal(t, 1, report.Count(include.OutcomeInserted))
	assert.Equal(t, 1, report.Count(include.OutcomeFailed))

	text, err := page.MustElement("#b").Text()
	require.NoError(t, err)
	assert.Equal(t, "Go", text)

	ran := page.MustEval(`() => window.ran`).Int()
	assert.Equal(t, 1, ran)

	html, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, `data-include="@ui/missing.html"`)
}
