// Package browser owns the Chrome instance used by the live include backend.
// It either attaches to a running browser over its DevTools URL or launches
// one through the rod launcher.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session describes an open page.
type Session struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionRecord struct {
	meta      Session
	page      *rod.Page
	incognito *rod.Browser
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL       string
	Bin               string
	Flags             []string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		ViewportWidth:     1280,
		ViewportHeight:    800,
		NavigationTimeout: 30 * time.Second,
	}
}

func (c Config) viewport() (int, int) {
	w, h := c.ViewportWidth, c.ViewportHeight
	if w == 0 {
		w = 1280
	}
	if h == 0 {
		h = 800
	}
	return w, h
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// SessionManager owns the Chrome connection and the pages opened on it.
type SessionManager struct {
	cfg Config
	log *zap.Logger

	mu         sync.RWMutex
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	controlURL string
	// launched is set when the manager started the browser process itself.
	// An attached browser belongs to someone else and is never closed.
	launched *launcher.Launcher
}

// NewSessionManager creates a session manager. The browser is started
// lazily by Open unless Start is called first.
func NewSessionManager(cfg Config, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection, reconnecting")
		_ = m.release()
		m.sessions = make(map[string]*sessionRecord)
	}

	controlURL := m.cfg.DebuggerURL
	var launched *launcher.Launcher
	if controlURL == "" {
		l := launcher.New().Headless(m.cfg.Headless)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		for _, raw := range m.cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		launched = l
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if launched != nil {
			launched.Kill()
		}
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = b
	m.controlURL = controlURL
	m.launched = launched
	m.log.Debug("browser connected", zap.String("control_url", controlURL), zap.Bool("launched", launched != nil))
	return nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Open creates an incognito page, navigates it to url and waits for the
// load event. Console output from the page is logged at debug level.
func (m *SessionManager) Open(ctx context.Context, url string) (*Session, *rod.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, nil, err
	}
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, nil, errors.New("browser not connected")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = disposeContext(b, incognito)
		return nil, nil, fmt.Errorf("create page: %w", err)
	}

	w, h := m.cfg.viewport()
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		m.log.Warn("failed to set viewport", zap.Error(err))
	}

	go page.Context(ctx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		m.log.Debug("console", zap.String("type", string(e.Type)), zap.String("text", stringifyConsoleArgs(e.Args)))
	})()

	nav := page.Context(ctx).Timeout(m.cfg.navigationTimeout())
	if err := nav.Navigate(url); err != nil {
		_ = page.Close()
		_ = disposeContext(b, incognito)
		return nil, nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		_ = page.Close()
		_ = disposeContext(b, incognito)
		return nil, nil, fmt.Errorf("wait load %s: %w", url, err)
	}

	meta := Session{
		ID:        uuid.NewString(),
		TargetID:  string(page.TargetID),
		URL:       url,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page, incognito: incognito}
	m.mu.Unlock()

	m.log.Debug("page opened", zap.String("session", meta.ID), zap.String("url", url))
	return &meta, page.Context(ctx), nil
}

// List returns metadata for all open sessions.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, r := range m.sessions {
		out = append(out, r.meta)
	}
	return out
}

// Close closes one session's page and its incognito context.
func (m *SessionManager) Close(sessionID string) error {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	b := m.browser
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	return closeSession(b, r)
}

// Shutdown closes tracked sessions. The browser itself is closed only when
// this manager launched it; an attached browser is left running.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.sessions {
		if err := closeSession(m.browser, r); err != nil {
			m.log.Debug("session close failed", zap.String("session", id), zap.Error(err))
		}
		delete(m.sessions, id)
	}
	return m.release()
}

// release drops the browser connection, closing the browser only when it
// was launched here. Callers hold mu.
func (m *SessionManager) release() error {
	var err error
	if m.browser != nil && m.launched != nil {
		err = m.browser.Close()
		m.launched.Cleanup()
	} else if m.browser != nil {
		m.log.Debug("detached from browser", zap.String("control_url", m.controlURL))
	}
	m.browser = nil
	m.launched = nil
	m.controlURL = ""
	return err
}

// ownsBrowser reports whether Shutdown will close the browser process.
func (m *SessionManager) ownsBrowser() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.launched != nil
}

func closeSession(b *rod.Browser, r *sessionRecord) error {
	var err error
	if r.page != nil {
		err = r.page.Close()
	}
	if b != nil && r.incognito != nil {
		err = errors.Join(err, disposeContext(b, r.incognito))
	}
	return err
}

func disposeContext(b, incognito *rod.Browser) error {
	if incognito.BrowserContextID == "" {
		return nil
	}
	return proto.TargetDisposeBrowserContext{BrowserContextID: incognito.BrowserContextID}.Call(b)
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
