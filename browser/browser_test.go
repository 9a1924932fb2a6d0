package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/locator/selector"
)

func TestBlockSet(t *testing.T) {
	set := newBlockSet([]string{"image", "Fonts", " stylesheets ", "ping", "document"})
	tests := map[proto.NetworkResourceType]bool{
		proto.NetworkResourceTypeImage:      true,
		proto.NetworkResourceTypeFont:       true,
		proto.NetworkResourceTypeStylesheet: true,
		proto.NetworkResourceTypePing:       true,
		proto.NetworkResourceTypeMedia:      false,
		proto.NetworkResourceTypeScript:     false,
		proto.NetworkResourceTypeDocument:   false,
	}
	for typ, want := range tests {
		if got := set.blocks(typ); got != want {
			t.Errorf("blocks(%s) = %v, want %v", typ, got, want)
		}
	}
	if len(newBlockSet([]string{"document", ""})) != 0 {
		t.Error("document and empty names should block nothing")
	}
}

func TestBuildDocument_Aligned(t *testing.T) {
	snap := pageSnapshot{
		HTML:    `<html><head></head><body><p>a</p><p>b</p></body></html>`,
		Tags:    []string{"html", "head", "body", "p", "p"},
		Visible: []bool{true, false, true, false, true},
	}
	doc, aligned, err := buildDocument(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !aligned {
		t.Fatal("expected aligned snapshot")
	}
	ps := doc.FindAll("p")
	if doc.Visible(ps[0]) || !doc.Visible(ps[1]) {
		t.Fatalf("measured visibility not applied: %v %v", doc.Visible(ps[0]), doc.Visible(ps[1]))
	}

	m := selector.NewMatcher(doc)
	if got := m.Count(selector.Parsed{Syntax: selector.SyntaxCSS, Value: "p"}, nil, selector.CountOptions{}); got.N != 1 {
		t.Fatalf("matcher over snapshot: got %d, want 1", got.N)
	}
}

func TestBuildDocument_Misaligned(t *testing.T) {
	snap := pageSnapshot{
		HTML:    `<html><head></head><body><p style="display:none">a</p><p>b</p></body></html>`,
		Tags:    []string{"html", "head", "body", "p"},
		Visible: []bool{true, false, true, true},
	}
	doc, aligned, err := buildDocument(snap)
	if err != nil {
		t.Fatal(err)
	}
	if aligned {
		t.Fatal("expected misaligned snapshot")
	}
	ps := doc.FindAll("p")
	if doc.Visible(ps[0]) || !doc.Visible(ps[1]) {
		t.Fatal("fallback should use static visibility")
	}
}

func TestDocumentElements_SkipsTemplateContent(t *testing.T) {
	snap := pageSnapshot{
		HTML:    `<html><head></head><body><template><b>x</b></template><i>y</i></body></html>`,
		Tags:    []string{"html", "head", "body", "template", "i"},
		Visible: []bool{true, false, true, false, true},
	}
	_, aligned, err := buildDocument(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !aligned {
		t.Fatal("template content should not count as document elements")
	}
}

func TestHighlightArgs(t *testing.T) {
	tests := []struct {
		p      selector.Parsed
		syntax string
		value  string
	}{
		{selector.Parsed{Syntax: selector.SyntaxCSS, Value: "#x"}, "css", "#x"},
		{selector.Parsed{Syntax: selector.SyntaxXPath, Value: "//a"}, "xpath", "//a"},
		{selector.Parsed{Syntax: selector.SyntaxText, Value: "Go", Mode: selector.ModeExact}, "xpath", "//*[normalize-space(.)='Go']"},
	}
	for _, tt := range tests {
		syntax, value := highlightArgs(tt.p)
		if syntax != tt.syntax || value != tt.value {
			t.Errorf("highlightArgs(%+v) = %s %s, want %s %s", tt.p, syntax, value, tt.syntax, tt.value)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.NavigateTimeout <= 0 || m.cfg.MemoryLimit <= 0 || m.cfg.MaxSnapshots != 500 ||
		m.cfg.XvfbDisplay != ":99" || m.cfg.Logger == nil {
		t.Fatalf("defaults not applied: %+v", m.cfg)
	}
	if m.Browser() != nil || m.Stats().Running {
		t.Fatal("no browser before the first snapshot")
	}
	if err := m.Recycle(); err != nil {
		t.Fatalf("recycle with nothing running: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := m.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close: got %v, want ErrClosed", err)
	}
	if _, err := m.Snapshot(t.Context(), "https://example.com/"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Snapshot after Close: got %v, want ErrClosed", err)
	}
}

func TestRecycleReason(t *testing.T) {
	cfg := Config{}
	cfg.defaults()
	tests := []struct {
		name  string
		stats Stats
		want  string
	}{
		{"fresh", Stats{Uptime: time.Minute, Snapshots: 3}, ""},
		{"old", Stats{Uptime: 5 * time.Hour}, "age"},
		{"heavy", Stats{HeapBytes: 2 << 30}, "memory"},
		{"busy", Stats{Snapshots: 500}, "snapshots"},
	}
	for _, tt := range tests {
		if got := recycleReason(tt.stats, cfg); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRecycle_DeferredWhileSnapshotting(t *testing.T) {
	m := NewManager(Config{})
	m.stats.Active = 1

	if err := m.recycleLocked("memory"); err != nil {
		t.Fatal(err)
	}
	if m.pending != "memory" {
		t.Fatalf("pending: got %q, want memory", m.pending)
	}
	if m.stats.Recycles != 0 {
		t.Fatal("recycled under an active snapshot")
	}
}

func TestXSocket(t *testing.T) {
	tests := map[string]string{
		":99":  "/tmp/.X11-unix/X99",
		":0.1": "/tmp/.X11-unix/X0",
		"7":    "/tmp/.X11-unix/X7",
	}
	for display, want := range tests {
		if got := xSocket(display); got != want {
			t.Errorf("xSocket(%q) = %q, want %q", display, got, want)
		}
	}
}

