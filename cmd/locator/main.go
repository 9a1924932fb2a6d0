// Command locator computes robust element locators for web pages.
//
// Usage:
//
//	locator -html page.html -target "#submit"            # resolve and print candidates + buckets
//	locator -url https://x.test -target "text=Sign in"   # resolve against a live page
//	locator -html page.html -target ".card" -record -action click
//	locator -url https://x.test -highlight ".card:nth-of-type(4)"
//	locator -allow-private -url http://localhost:3000 -target "#login"
//	locator -config locator.yaml -serve                  # HTTP API
//	locator -db locator.db -serve -mcp stdio             # HTTP API + MCP on stdio
//	locator -db locator.db -serve -mcp quic              # HTTP API + MCP over QUIC
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/locator/browser"
	"github.com/hazyhaar/locator/mcpquic"
	"github.com/hazyhaar/locator/recorder"
	"github.com/hazyhaar/locator/selector"
	"github.com/hazyhaar/locator/urlguard"
)

type options struct {
	configPath string
	dbPath     string
	htmlPath   string
	url        string
	target     string
	scope      string
	highlight  string
	record     bool
	action     string
	value      string
	serve      bool
	mcpMode    string
	private    bool
	traceSQL   bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to locator.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database")
	flag.StringVar(&o.htmlPath, "html", "", "HTML file to resolve against")
	flag.StringVar(&o.url, "url", "", "live page URL to resolve against")
	flag.StringVar(&o.target, "target", "", "selector of the target element (CSS, xpath=..., text=...)")
	flag.StringVar(&o.scope, "scope", "", "selector of an ancestor to scope locators to")
	flag.StringVar(&o.highlight, "highlight", "", "selector to flash on the live page given by -url")
	flag.BoolVar(&o.record, "record", false, "store the resolution as a recorded event")
	flag.StringVar(&o.action, "action", "", "action recorded with -record (click, fill, ...)")
	flag.StringVar(&o.value, "value", "", "action value recorded with -record")
	flag.BoolVar(&o.serve, "serve", false, "run the HTTP API")
	flag.StringVar(&o.mcpMode, "mcp", "", "serve MCP tools: stdio or quic")
	flag.BoolVar(&o.private, "allow-private", false, "allow urls on loopback and private networks (local dev servers)")
	flag.BoolVar(&o.traceSQL, "trace-sql", false, "log every SQL statement (debug level)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("locator: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o.configPath, o.dbPath)
	if err != nil {
		return err
	}
	if o.private {
		cfg.Browser.AllowPrivate = true
	}
	if o.traceSQL {
		cfg.TraceSQL = true
	}

	// One-shot: highlight.
	if o.highlight != "" {
		return highlight(ctx, logger, cfg, o.url, o.highlight)
	}

	r, err := recorder.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer r.Close()

	// One-shot: resolve or record.
	if o.target != "" {
		page := recorder.Page{URL: o.url, Target: o.target, Scope: o.scope}
		if o.htmlPath != "" {
			data, err := os.ReadFile(o.htmlPath)
			if err != nil {
				return err
			}
			page.HTML = string(data)
		}
		var out any
		if o.record {
			out, err = r.RecordPage(ctx, recorder.RecordPageRequest{Page: page, Action: o.action, Value: o.value})
		} else {
			out, err = r.Resolve(ctx, page)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if !o.serve && o.mcpMode == "" {
		usage()
	}

	switch o.mcpMode {
	case "":
	case "stdio", "quic":
		if err := serveMCP(ctx, logger, r, o.mcpMode); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown -mcp mode %q", o.mcpMode)
	}

	if o.serve {
		return serveHTTP(ctx, logger, r)
	}
	<-ctx.Done()
	return nil
}

func serveMCP(ctx context.Context, logger *slog.Logger, r *recorder.Recorder, mode string) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "locator", Version: "1.0.0"}, nil)
	r.RegisterMCP(srv)

	if mode == "stdio" {
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("locator: mcp stdio", "error", err)
			}
		}()
		return nil
	}

	mc := r.Config().MCP
	var tlsCfg *tls.Config
	var err error
	if mc.TLSCert != "" && mc.TLSKey != "" {
		tlsCfg, err = mcpquic.ServerTLSConfig(mc.TLSCert, mc.TLSKey)
	} else {
		tlsCfg, err = mcpquic.SelfSignedTLSConfig()
	}
	if err != nil {
		return fmt.Errorf("mcp quic tls: %w", err)
	}
	l, err := mcpquic.Listen(mc.QUICAddr, tlsCfg, srv,
		mcpquic.WithLogger(logger), mcpquic.WithMaxSessions(mc.MaxSessions))
	if err != nil {
		return fmt.Errorf("mcp quic listen: %w", err)
	}
	go func() {
		defer l.Close()
		if err := l.Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Error("locator: mcp quic", "error", err)
		}
	}()
	return nil
}

func serveHTTP(ctx context.Context, logger *slog.Logger, r *recorder.Recorder) error {
	addr := r.Config().Listen
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("locator: http listening", "addr", addr, "db", r.Config().DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}
	logger.Info("locator: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func highlight(ctx context.Context, logger *slog.Logger, cfg *recorder.Config, url, sel string) error {
	if url == "" {
		return errors.New("-highlight needs -url")
	}
	if err := urlguard.Check(ctx, url, cfg.Browser.AllowPrivate); err != nil {
		return err
	}
	p, err := selector.Parse(sel)
	if err != nil {
		return err
	}

	bcfg := cfg.Browser.ManagerConfig(logger)
	bcfg.Level = browser.LevelHeadful
	bcfg.Display = os.Getenv("DISPLAY")
	mgr := browser.NewManager(bcfg)
	defer mgr.Close()
	if _, err := mgr.Start(); err != nil {
		return err
	}
	tab, err := browser.OpenTab(ctx, mgr, url)
	if err != nil {
		return err
	}
	defer tab.Close()

	n, err := tab.Highlight(ctx, p)
	if err != nil {
		return err
	}
	fmt.Printf("%d match(es) for %s\n", n, selector.Format(p))

	select {
	case <-time.After(browser.HighlightDuration):
	case <-ctx.Done():
	}
	return nil
}

func resolveConfig(configPath, dbPath string) (*recorder.Config, error) {
	if configPath != "" {
		cfg, err := recorder.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		return cfg, nil
	}
	return &recorder.Config{DBPath: dbPath}, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: locator [-config <file> | -db <path>] (-target <sel> [-html <file> | -url <url>] [-scope <sel>] [-record] | -url <url> -highlight <sel> | -serve [-mcp stdio|quic])")
	os.Exit(2)
}
