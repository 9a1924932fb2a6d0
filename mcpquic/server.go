package mcpquic

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/locator/idgen"
	"github.com/hazyhaar/locator/kit"
)

// DefaultMaxSessions bounds concurrent sessions. Every session may drive
// the shared Chrome, so the cap is low.
const DefaultMaxSessions = 16

// Server accepts QUIC connections and runs one MCP session per connection
// on the locator's mcp.Server.
type Server struct {
	mcp         *mcp.Server
	ln          *quic.Listener
	logger      *slog.Logger
	sessionID   idgen.Generator
	maxSessions int
	openTimeout time.Duration

	active atomic.Int64
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionIDs sets the generator for session IDs. Default "quic_" UUIDv7.
func WithSessionIDs(gen idgen.Generator) Option { return func(s *Server) { s.sessionID = gen } }

// WithMaxSessions caps concurrent sessions; extra connections are closed
// with ConnErrorBusy. n <= 0 keeps DefaultMaxSessions.
func WithMaxSessions(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithOpenTimeout bounds the wait for a client's stream and preamble.
// Default 10s.
func WithOpenTimeout(d time.Duration) Option { return func(s *Server) { s.openTimeout = d } }

// Listen binds addr (UDP) for the MCP ALPN.
func Listen(addr string, tlsCfg *tls.Config, srv *mcp.Server, opts ...Option) (*Server, error) {
	s := &Server{
		mcp:         srv,
		logger:      slog.Default(),
		sessionID:   idgen.Prefixed("quic_", idgen.Default),
		maxSessions: DefaultMaxSessions,
		openTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	ln, err := quic.ListenAddr(addr, tlsCfg, ProductionQUICConfig())
	if err != nil {
		return nil, err
	}
	s.ln = ln
	s.logger.Info("mcpquic: listening", "addr", ln.Addr().String(), "max_sessions", s.maxSessions)
	return s, nil
}

// Addr is the bound UDP address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Sessions reports the number of sessions in progress.
func (s *Server) Sessions() int { return int(s.active.Load()) }

// Serve accepts connections until ctx ends or the server is closed, then
// waits for running sessions to finish.
func (s *Server) Serve(ctx context.Context) error {
	defer s.wg.Wait()
	for {
		conn, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			s.logger.Error("mcpquic: accept", "error", err)
			continue
		}
		if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNProtocolMCP {
			conn.CloseWithError(ConnErrorUnsupportedALPN, "unsupported ALPN: "+alpn)
			continue
		}
		if s.active.Add(1) > int64(s.maxSessions) {
			s.active.Add(-1)
			s.logger.Warn("mcpquic: session limit reached", "remote", conn.RemoteAddr().String())
			conn.CloseWithError(ConnErrorBusy, "too many sessions")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.active.Add(-1)
			s.session(ctx, conn)
		}()
	}
}

// Close stops accepting connections. Running sessions end when their
// clients disconnect or Serve's context is cancelled.
func (s *Server) Close() error { return s.ln.Close() }

// session runs one MCP session on conn and returns when it ends.
func (s *Server) session(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	log := s.logger.With("remote", remote)
	stop := context.AfterFunc(ctx, func() {
		conn.CloseWithError(ConnErrorNoError, "server shutting down")
	})
	defer stop()

	stream, err := s.open(ctx, conn)
	if err != nil {
		log.Warn("mcpquic: session rejected", "error", err)
		conn.CloseWithError(ConnErrorProtocolViolation, err.Error())
		return
	}

	id := s.sessionID()
	log = log.With("session", id)
	ctx = kit.WithTransport(ctx, "mcp_quic")
	ctx = kit.WithSessionID(ctx, id)
	ctx = kit.WithRemoteAddr(ctx, remote)

	started := time.Now()
	ss, err := s.mcp.Connect(ctx, &streamTransport{stream: stream, id: id}, nil)
	if err != nil {
		log.Error("mcpquic: connect", "error", err)
		stream.Close()
		conn.CloseWithError(ConnErrorProtocolViolation, "mcp connect failed")
		return
	}
	log.Info("mcpquic: session started")
	if err := ss.Wait(); err != nil {
		log.Debug("mcpquic: session wait", "error", err)
	}
	conn.CloseWithError(ConnErrorNoError, "session ended")
	log.Info("mcpquic: session ended", "duration", time.Since(started))
}

// open accepts the client's stream and checks its preamble within
// openTimeout.
func (s *Server) open(ctx context.Context, conn *quic.Conn) (*quic.Stream, error) {
	octx, cancel := context.WithTimeout(ctx, s.openTimeout)
	defer cancel()
	stream, err := conn.AcceptStream(octx)
	if err != nil {
		return nil, err
	}
	stream.SetReadDeadline(time.Now().Add(s.openTimeout))
	if err := ValidateMagicBytes(stream); err != nil {
		stream.CancelWrite(StreamErrorProtocolConfusion)
		stream.CancelRead(StreamErrorProtocolConfusion)
		return nil, err
	}
	stream.SetReadDeadline(time.Time{})
	return stream, nil
}

// streamTransport is an mcp.Transport over one QUIC stream. The session ID
// is the server's; the IO connection has none of its own.
type streamTransport struct {
	stream *quic.Stream
	id     string
}

func (t *streamTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := (&mcp.IOTransport{
		Reader: io.NopCloser(t.stream),
		Writer: streamWriter{t.stream},
	}).Connect(ctx)
	if err != nil {
		return nil, err
	}
	return identified{Connection: conn, id: t.id}, nil
}

type identified struct {
	mcp.Connection
	id string
}

func (c identified) SessionID() string { return c.id }

// streamWriter closes only the send side when the MCP connection closes.
type streamWriter struct{ stream *quic.Stream }

func (w streamWriter) Write(p []byte) (int, error) { return w.stream.Write(p) }
func (w streamWriter) Close() error                { return w.stream.Close() }
