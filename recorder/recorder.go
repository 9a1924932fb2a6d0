// Package recorder records user actions on page elements together with the
// locator candidates the selector engine computes for them. Recorded
// events can be classified into unique and repeat buckets, have a
// candidate applied as their primary selector, receive AI suggestions and
// be turned into test code.
//
// Usage:
//
//	r, err := recorder.New(cfg, logger)
//	if err != nil { ... }
//	defer r.Close()
//
//	evt, err := r.RecordPage(ctx, recorder.RecordPageRequest{
//	    Page:   recorder.Page{HTML: src, Target: "#submit-btn"},
//	    Action: "click",
//	})
//	code, err := r.Code(ctx, evt.ID, codegen.Playwright)
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/audit"
	"github.com/hazyhaar/locator/browser"
	"github.com/hazyhaar/locator/codegen"
	"github.com/hazyhaar/locator/dbopen"
	"github.com/hazyhaar/locator/dom"
	"github.com/hazyhaar/locator/idgen"
	"github.com/hazyhaar/locator/recorder/internal/store"
	"github.com/hazyhaar/locator/selector"
	"github.com/hazyhaar/locator/sqltrace"
)

var (
	// ErrNotFound is returned when an event ID does not exist.
	ErrNotFound = errors.New("recorder: event not found")
	// ErrInvalid wraps malformed requests.
	ErrInvalid = errors.New("recorder: invalid request")
	// ErrNoTarget is returned when a target or scope selector matches no
	// visible element.
	ErrNoTarget = errors.New("recorder: no visible element matches")
	// ErrNoBrowser is returned for URL requests when no page source is set.
	ErrNoBrowser = errors.New("recorder: no page source for live urls")
)

// previewMax bounds the element HTML kept with an event, in runes.
const previewMax = 2000

// Event is a recorded action.
type Event = store.Event

// Recorder is the recorded-event service.
type Recorder struct {
	store  *store.Store
	config *Config
	logger *slog.Logger
	newID  idgen.Generator
	policy *bluemonday.Policy
	pages  PageSource
	audit  *audit.Logger
}

// New opens the event store described by cfg. URL requests go through a
// Chrome instance started on first use.
func New(cfg *Config, logger *slog.Logger) (*Recorder, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	opts := []dbopen.Option{dbopen.WithSchema(audit.Schema)}
	if cfg.TraceSQL {
		sqltrace.SetLogger(logger)
		opts = append(opts, dbopen.WithDriver(sqltrace.DriverName))
	}
	s, err := store.Open(cfg.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("recorder: open store: %w", err)
	}

	al := audit.New(s.DB, 1000, audit.WithLogger(logger))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n, err := al.Cleanup(ctx, cfg.AuditRetention); err != nil {
		logger.Warn("recorder: audit cleanup", "error", err)
	} else if n > 0 {
		logger.Info("recorder: audit cleanup", "deleted", n)
	}

	return &Recorder{
		store:  s,
		config: cfg,
		logger: logger,
		newID:  idgen.Event,
		policy: previewPolicy(),
		pages:  browser.NewManager(cfg.Browser.ManagerConfig(logger)),
		audit:  al,
	}, nil
}

// SetPageSource replaces the source of live page snapshots. nil disables
// URL requests. A replaced source that implements io.Closer is closed.
func (r *Recorder) SetPageSource(ps PageSource) {
	if c, ok := r.pages.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			r.logger.Warn("recorder: close page source", "error", err)
		}
	}
	r.pages = ps
}

// Config returns the effective configuration.
func (r *Recorder) Config() *Config { return r.config }

// Close releases the browser, flushes the audit trail and closes the store.
func (r *Recorder) Close() error {
	var errs []error
	if c, ok := r.pages.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if r.audit != nil {
		errs = append(errs, r.audit.Close())
	}
	errs = append(errs, r.store.Close())
	return errors.Join(errs...)
}

// Result is a stateless resolution with its buckets.
type Result struct {
	Resolution selector.Resolution `json:"resolution"`
	Buckets    selector.Buckets    `json:"buckets"`
}

// Resolve resolves the target of p without recording anything. Buckets
// are measured and verified against the page.
func (r *Recorder) Resolve(ctx context.Context, p Page) (*Result, error) {
	loc, err := r.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	engine := r.engine(loc.Doc)
	res, err := engine.Resolve(loc.Node, loc.Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &Result{
		Resolution: res,
		Buckets:    engine.Classify(res, nil, loc.Scope),
	}, nil
}

// ResolveHTML resolves target (and optional scope) in a static document.
func (r *Recorder) ResolveHTML(src, target, scope string) (*Result, error) {
	return r.Resolve(context.Background(), Page{HTML: src, Target: target, Scope: scope})
}

// RecordRequest records an action on an element of an already loaded
// document.
type RecordRequest struct {
	Doc    *dom.Document
	Target *html.Node
	Scope  *html.Node // nil for the whole document
	URL    string
	Action string
	Value  string
}

// Record resolves req.Target and stores the event. The primary selector
// is the best unique candidate, or the best candidate when none is unique.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) (*Event, error) {
	if req.Doc == nil || req.Target == nil {
		return nil, fmt.Errorf("%w: document and target are required", ErrInvalid)
	}
	res, err := r.engine(req.Doc).Resolve(req.Target, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(res.Candidates) == 0 {
		return nil, fmt.Errorf("recorder: no locator candidates for <%s>", dom.Tag(req.Target))
	}

	primary := res.Candidates[0]
	for _, c := range res.Candidates {
		if c.IsUnique {
			primary = c
			break
		}
	}

	e := &Event{
		ID:           r.newID(),
		URL:          req.URL,
		Action:       req.Action,
		Value:        req.Value,
		Selector:     primary.Selector,
		SelectorKind: primary.Kind,
		MatchMode:    matchMode(primary),
		Nth:          primary.Nth,
		Position:     res.Position,
		Candidates:   res.Candidates,
		AICandidates: []selector.Candidate{},
		Preview:      r.preview(req.Target),
	}
	if err := r.store.InsertEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("recorder: insert event: %w", err)
	}
	r.logger.Info("recorder: event recorded",
		"id", e.ID, "selector", e.Selector, "kind", e.SelectorKind,
		"candidates", len(e.Candidates), "skipped", len(res.Skipped))
	return e, nil
}

// RecordPageRequest records an action on an element named by selector
// text in a page given as HTML or URL.
type RecordPageRequest struct {
	Page
	Action string `json:"action,omitempty"`
	Value  string `json:"value,omitempty"`
}

// RecordPage loads the page, locates the target and records the event.
func (r *Recorder) RecordPage(ctx context.Context, req RecordPageRequest) (*Event, error) {
	loc, err := r.Load(ctx, req.Page)
	if err != nil {
		return nil, err
	}
	return r.Record(ctx, RecordRequest{
		Doc:    loc.Doc,
		Target: loc.Node,
		Scope:  loc.Scope,
		URL:    req.URL,
		Action: req.Action,
		Value:  req.Value,
	})
}

// Get returns an event.
func (r *Recorder) Get(ctx context.Context, id string) (*Event, error) {
	e, err := r.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recorder: get event: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// List returns the most recent events, optionally for one URL.
func (r *Recorder) List(ctx context.Context, limit int, url string) ([]*Event, error) {
	events, err := r.store.ListEvents(ctx, store.ListOptions{URL: url, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("recorder: list events: %w", err)
	}
	if events == nil {
		events = []*Event{}
	}
	return events, nil
}

// Delete removes an event.
func (r *Recorder) Delete(ctx context.Context, id string) error {
	found, err := r.store.DeleteEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("recorder: delete event: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.logger.Info("recorder: event deleted", "id", id)
	return nil
}

// AuditTrail returns audited API calls, newest first.
func (r *Recorder) AuditTrail(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	if r.audit == nil {
		return []*audit.Entry{}, nil
	}
	entries, err := r.audit.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("recorder: audit trail: %w", err)
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	return entries, nil
}

// Buckets classifies the stored base and AI candidates of an event using
// its recorded position. The page is gone, so classification works on the
// stored counts: unmeasured candidates are dropped and derivations are
// not re-verified.
func (r *Recorder) Buckets(ctx context.Context, id string) (selector.Buckets, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return selector.Buckets{}, err
	}
	return classifyEvent(e), nil
}

func classifyEvent(e *Event) selector.Buckets {
	var pos *dom.Position
	if e.Position.Tag != "" {
		pos = &e.Position
	}
	var c selector.Classifier
	return c.Classify(e.Candidates, e.AICandidates, pos)
}

// ApplyRequest names one bucket entry.
type ApplyRequest struct {
	Bucket selector.BucketName `json:"bucket"`
	Source selector.Source     `json:"source"`
	Index  int                 `json:"index"`
}

// Apply makes the chosen bucket entry the event's primary selector and
// returns the updated event.
func (r *Recorder) Apply(ctx context.Context, id string, req ApplyRequest) (*Event, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Source == "" {
		req.Source = selector.SourceBase
	}
	if req.Source != selector.SourceBase && req.Source != selector.SourceAI {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalid, req.Source)
	}
	bucket, ok := classifyEvent(e).Bucket(req.Bucket)
	if !ok {
		return nil, fmt.Errorf("%w: unknown bucket %q", ErrInvalid, req.Bucket)
	}
	entries := bucket.Entries(req.Source)
	if req.Index < 0 || req.Index >= len(entries.Indices) {
		return nil, fmt.Errorf("%w: index %d out of range (%s/%s has %d entries)",
			ErrInvalid, req.Index, req.Bucket, req.Source, len(entries.Indices))
	}
	c := entries.List[entries.Indices[req.Index]]

	p := store.Primary{Selector: c.Selector, Kind: c.Kind, MatchMode: matchMode(c), Nth: c.Nth}
	found, err := r.store.SetPrimary(ctx, id, p)
	if err != nil {
		return nil, fmt.Errorf("recorder: apply: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.logger.Info("recorder: selector applied",
		"id", id, "bucket", req.Bucket, "source", req.Source, "selector", c.Selector, "nth", c.Nth)
	return r.Get(ctx, id)
}

// SuggestAI replaces the AI candidates of an event. Each candidate needs
// a selector; a missing or unknown kind is inferred from the selector
// text. When doc is non-nil the candidates are measured against it, which
// lets unmeasured suggestions take part in classification.
func (r *Recorder) SuggestAI(ctx context.Context, id string, cands []selector.Candidate, doc *dom.Document) (*Event, error) {
	valid := make([]selector.Candidate, 0, len(cands))
	for i, c := range cands {
		c.Selector = strings.TrimSpace(c.Selector)
		if c.Selector == "" {
			return nil, fmt.Errorf("%w: candidate %d has an empty selector", ErrInvalid, i)
		}
		p, err := selector.Parse(c.Selector)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %w", ErrInvalid, i, err)
		}
		if !c.Kind.Known() || c.Kind.Syntax() != p.Syntax {
			c.Kind = selector.KindFor(p)
		}
		if p.Syntax == selector.SyntaxText && c.MatchMode == "" {
			c.MatchMode = p.Mode
		}
		if c.Reason == "" {
			c.Reason = "ai suggestion"
		}
		if doc != nil {
			n := selector.NewMatcher(doc).Count(p, nil, selector.CountOptions{MaxCount: r.config.Engine.MeasureCap})
			count := n.N
			c.MatchCount = &count
			c.MatchCountClamped = n.Clamped
			c.IsUnique = n.Unique()
		}
		valid = append(valid, c)
	}

	found, err := r.store.UpdateAICandidates(ctx, id, func([]selector.Candidate) []selector.Candidate {
		return valid
	})
	if err != nil {
		return nil, fmt.Errorf("recorder: suggest: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.logger.Info("recorder: ai candidates stored", "id", id, "count", len(valid), "measured", doc != nil)
	return r.Get(ctx, id)
}

// Code renders the event's primary selector and action as a test
// statement for fw.
func (r *Recorder) Code(ctx context.Context, id string, fw codegen.Framework) (string, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if fw == "" {
		fw = codegen.Playwright
	}
	stmt, err := codegen.Statement(fw, codegen.Target{
		Selector:  e.Selector,
		Kind:      e.SelectorKind,
		MatchMode: e.MatchMode,
		Nth:       e.Nth,
		Action:    e.Action,
		Value:     e.Value,
	})
	if err != nil {
		if errors.Is(err, codegen.ErrUnknownFramework) || errors.Is(err, codegen.ErrUnknownAction) {
			return "", fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		return "", err
	}
	return stmt, nil
}

func (r *Recorder) engine(d *dom.Document) *selector.Engine {
	return selector.NewEngine(d, r.config.Engine.Options(r.logger))
}

// previewPolicy keeps the markup that identifies an element (form
// controls, ids, classes, names, roles, aria and data attributes) and
// drops scripts, handlers and styles.
func previewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("button", "input", "select", "option", "textarea", "label", "form", "fieldset", "nav", "main", "section", "article", "header", "footer")
	p.AllowAttrs("class", "name", "type", "role", "placeholder", "value", "for", "aria-label").Globally()
	p.AllowDataAttributes()
	return p
}

// preview is the sanitised outer HTML of n, truncated.
func (r *Recorder) preview(n *html.Node) string {
	src := dom.OuterHTML(n)
	if runes := []rune(src); len(runes) > previewMax {
		src = string(runes[:previewMax])
	}
	return r.policy.Sanitize(src)
}

// matchMode is the mode stored with a text primary selector.
func matchMode(c selector.Candidate) selector.MatchMode {
	if c.Kind.Syntax() != selector.SyntaxText {
		return ""
	}
	if c.MatchMode != "" {
		return c.MatchMode
	}
	if p, err := c.Parsed(); err == nil {
		return p.Mode
	}
	return selector.ModeExact
}
