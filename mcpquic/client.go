package mcpquic

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"
)

// ErrClientClosed is returned by calls on a closed Client.
var ErrClientClosed = errors.New("mcpquic: client closed")

// ToolError is a tool call the server answered with IsError set.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string { return fmt.Sprintf("mcpquic: tool %s: %s", e.Tool, e.Message) }

// Client is one MCP session over QUIC, as used by scripts and tests
// driving a remote locator.
type Client struct {
	conn    *quic.Conn
	session *mcp.ClientSession
}

// Dial connects to addr, sends the preamble and completes the MCP
// initialize handshake. A nil tlsCfg verifies the server certificate.
func Dial(ctx context.Context, addr string, tlsCfg *tls.Config) (*Client, error) {
	if tlsCfg == nil {
		tlsCfg = ClientTLSConfig(false)
	}
	conn, err := quic.DialAddr(ctx, addr, tlsCfg, ProductionQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("mcpquic: dial %s: %w", addr, err)
	}
	fail := func(code quic.ApplicationErrorCode, err error) (*Client, error) {
		conn.CloseWithError(code, "client setup failed")
		return nil, err
	}

	if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNProtocolMCP {
		return fail(ConnErrorUnsupportedALPN, fmt.Errorf("%w: got %q", ErrUnsupportedALPN, alpn))
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fail(ConnErrorProtocolViolation, fmt.Errorf("mcpquic: open stream: %w", err))
	}
	if err := SendMagicBytes(stream); err != nil {
		return fail(ConnErrorProtocolViolation, err)
	}

	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	session, err := mcp.NewClient(&mcp.Implementation{Name: "locator-quic-client", Version: "1.0.0"}, nil).
		Connect(hctx, &mcp.IOTransport{Reader: io.NopCloser(stream), Writer: streamWriter{stream}}, nil)
	if err != nil {
		return fail(ConnErrorProtocolViolation, fmt.Errorf("mcpquic: initialize: %w", err))
	}
	return &Client{conn: conn, session: session}, nil
}

// Session exposes the underlying MCP session.
func (c *Client) Session() *mcp.ClientSession { return c.session }

// Tools lists the server's tool names.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	if c.session == nil {
		return nil, ErrClientClosed
	}
	res, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(res.Tools))
	for i, t := range res.Tools {
		names[i] = t.Name
	}
	return names, nil
}

// Call invokes a tool and decodes its JSON text result into out, which may
// be nil to discard it. A tool-level failure is returned as *ToolError.
func (c *Client) Call(ctx context.Context, name string, args, out any) error {
	if c.session == nil {
		return ErrClientClosed
	}
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return fmt.Errorf("mcpquic: call %s: %w", name, err)
	}
	text := firstText(res)
	if res.IsError {
		return &ToolError{Tool: name, Message: text}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("mcpquic: decode %s result: %w", name, err)
	}
	return nil
}

// Ping checks the session is alive.
func (c *Client) Ping(ctx context.Context) error {
	if c.session == nil {
		return ErrClientClosed
	}
	return c.session.Ping(ctx, nil)
}

// Close ends the session and the connection. It is safe to call twice.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.conn.CloseWithError(ConnErrorNoError, "client closing")
	return err
}

func firstText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
