// Package browser runs the Chrome instance live resolutions use: launch
// or remote connect through Rod, recycling by age, heap or snapshot
// count, and stealth tabs that snapshot a page into a dom.Document.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/locator/dom"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Level controls how tabs are opened.
type Level int

const (
	LevelPlain    Level = 0 // no stealth patches
	LevelHeadless Level = 1 // headless + stealth
	LevelHeadful  Level = 2 // headful under Xvfb + stealth
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	// MemoryLimit is the JS heap, in bytes, measured in a snapshot tab
	// above which Chrome is recycled. Default 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default 4h.
	RecycleInterval time.Duration

	// MaxSnapshots recycles Chrome after that many snapshots. Default 500.
	MaxSnapshots int

	// ResourceBlocking lists resource types never fetched (images, fonts,
	// media, stylesheets). Blocking stylesheets changes layout, and with it
	// the visibility a snapshot reports.
	ResourceBlocking []string

	// NavigateTimeout bounds navigation plus load. Default 30s.
	NavigateTimeout time.Duration

	Level Level

	// XvfbDisplay for headful mode. Default ":99".
	XvfbDisplay string

	// Display is an existing X display for headful mode. When set, no
	// Xvfb is started and the window is visible there.
	Display string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.MaxSnapshots <= 0 {
		c.MaxSnapshots = 500
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Stats describes the current Chrome process.
type Stats struct {
	Running   bool          `json:"running"`
	Uptime    time.Duration `json:"uptime"`
	Snapshots int           `json:"snapshots"` // since the last (re)launch
	Active    int           `json:"active"`    // snapshots in flight
	HeapBytes int64         `json:"heap_bytes"`
	Recycles  int           `json:"recycles"`
}

// Manager owns one Chrome process. It is started by the first Snapshot
// or by Start, and recycled between snapshots, never under one.
type Manager struct {
	cfg Config

	mu         sync.Mutex
	browser    *rod.Browser
	lnch       *launcher.Launcher
	xvfb       *exec.Cmd
	xvfbExited chan error // Xvfb's Wait result
	stats      Stats
	startAt    time.Time
	pending    string // recycle reason waiting for active snapshots to end
	closed     bool

	stop chan struct{}
}

// NewManager creates a Manager. Chrome is not launched yet.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, stop: make(chan struct{})}
}

// Start launches Chrome, or connects to the remote instance, if it is not
// running yet.
func (m *Manager) Start() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked()
}

func (m *Manager) ensureLocked() (*rod.Browser, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}
	first := m.startAt.IsZero()
	if err := m.launchLocked(); err != nil {
		return nil, err
	}
	if first {
		go m.watch()
	}
	return m.browser, nil
}

// Browser returns the current Rod browser, or nil when none is running.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Stats returns a copy of the process counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Running = m.browser != nil
	if s.Running {
		s.Uptime = time.Since(m.startAt)
	}
	return s
}

// Snapshot opens url in a fresh tab, captures it and closes the tab,
// launching Chrome first when needed.
func (m *Manager) Snapshot(ctx context.Context, url string) (*dom.Document, error) {
	m.mu.Lock()
	if _, err := m.ensureLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.stats.Active++
	m.mu.Unlock()

	var heap int64
	defer func() { m.release(heap) }()

	tab, err := OpenTab(ctx, m, url)
	if err != nil {
		return nil, err
	}
	defer tab.Close()
	doc, err := tab.Snapshot(ctx)
	if err == nil {
		heap = tab.heapUsed()
	}
	return doc, err
}

// release ends one snapshot and runs a recycle that is now due.
func (m *Manager) release(heap int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Active--
	m.stats.Snapshots++
	if heap > 0 {
		m.stats.HeapBytes = heap
	}
	if reason := m.dueLocked(); reason != "" {
		m.recycleLocked(reason)
	}
}

// Recycle replaces a running Chrome with a fresh process. With snapshots
// in flight the recycle is deferred until the last one ends.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.browser == nil {
		return nil
	}
	return m.recycleLocked("requested")
}

// Close shuts down Chrome and Xvfb and stops the watcher.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	m.shutdownLocked()
	return nil
}

// recycleReason reports why a process with these stats should be replaced,
// or "" when it should be kept.
func recycleReason(s Stats, cfg Config) string {
	switch {
	case s.Uptime > cfg.RecycleInterval:
		return "age"
	case s.HeapBytes > cfg.MemoryLimit:
		return "memory"
	case s.Snapshots >= cfg.MaxSnapshots:
		return "snapshots"
	}
	return ""
}

func (m *Manager) dueLocked() string {
	if m.closed || m.browser == nil {
		return ""
	}
	if m.pending != "" {
		return m.pending
	}
	s := m.stats
	s.Uptime = time.Since(m.startAt)
	return recycleReason(s, m.cfg)
}

func (m *Manager) recycleLocked(reason string) error {
	if m.stats.Active > 0 {
		m.pending = reason
		m.cfg.Logger.Debug("browser: recycle deferred", "reason", reason, "active", m.stats.Active)
		return nil
	}
	m.pending = ""
	m.cfg.Logger.Info("browser: recycling",
		"reason", reason, "uptime", time.Since(m.startAt), "snapshots", m.stats.Snapshots)
	m.shutdownLocked()
	if err := m.launchLocked(); err != nil {
		m.cfg.Logger.Error("browser: relaunch failed", "error", err)
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.stats.Recycles++
	return nil
}

func (m *Manager) launchLocked() error {
	log := m.cfg.Logger

	display := m.cfg.Display
	if m.cfg.Level == LevelHeadful && m.cfg.RemoteURL == "" && display == "" {
		display = m.cfg.XvfbDisplay
		if err := m.startXvfb(); err != nil {
			return fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(m.cfg.Level != LevelHeadful)
		if m.cfg.Level == LevelHeadful {
			l = l.Env(append(os.Environ(), "DISPLAY="+display)...)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			m.stopXvfb()
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "level", m.cfg.Level)
	} else {
		log.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.shutdownLocked()
		return fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	m.browser = b
	m.startAt = time.Now()
	m.stats.Snapshots = 0
	m.stats.HeapBytes = 0
	return nil
}

func (m *Manager) shutdownLocked() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

// watch recycles an idle Chrome that has outlived RecycleInterval. Busy
// processes are checked when their snapshots end.
func (m *Manager) watch() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if reason := m.dueLocked(); reason != "" {
				m.recycleLocked(reason)
			}
			m.mu.Unlock()
		}
	}
}

// heapUsed reads the tab's JS heap, or 0 when the page does not expose it.
func (t *Tab) heapUsed() int64 {
	res, err := t.Page.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0
	}
	return int64(res.Value.Int())
}
