package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"info", zapcore.InfoLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestCategoryLoggersAreNamed(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	l.Get(CategoryFetch).Debug("fetched", zap.String("url", "https://example.test/a.html"))
	require.NoError(t, l.Close())

	out := buf.String()
	assert.Contains(t, out, `"logger":"fetch"`)
	assert.Contains(t, out, `"msg":"fetched"`)
	assert.Same(t, l.Get(CategoryFetch), l.Get(CategoryFetch))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	log := l.Get(CategoryInclude)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	l.SetLevel(zapcore.DebugLevel)
	log.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestDisabledCategory(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Categories: map[string]bool{"params": false, "fetch": true}}, &buf)
	require.NoError(t, err)

	assert.False(t, l.IsCategoryEnabled(CategoryParams))
	assert.True(t, l.IsCategoryEnabled(CategoryFetch))
	assert.True(t, l.IsCategoryEnabled(CategoryWatch))

	l.Get(CategoryParams).Error("dropped")
	assert.Empty(t, buf.String())
}

func TestCategoryFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Dir: dir}, &buf)
	require.NoError(t, err)

	l.Get(CategoryServe).Info("listening", zap.String("addr", ":8080"))
	l.Get(CategoryWatch).Info("watching")
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var serveLog string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_serve.log") {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			serveLog = string(data)
		}
	}
	assert.Contains(t, serveLog, `"msg":"listening"`)
	assert.NotContains(t, serveLog, "watching")
	assert.Contains(t, buf.String(), "listening")
}

func TestForToleratesNil(t *testing.T) {
	assert.NotPanics(t, func() {
		For(nil, CategoryBrowser).Info("x")
	})
}
