package kit

import "context"

// Caller identifies where a locator operation came from. Transports fill
// in what they know: HTTP a request ID, MCP over QUIC a session and peer.
type Caller struct {
	Transport  string // "http", "mcp", "mcp_quic"
	RequestID  string
	SessionID  string
	RemoteAddr string
}

type callerKey struct{}

// CallerFrom returns the caller stored in ctx. Transport defaults to "http".
func CallerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	if c.Transport == "" {
		c.Transport = "http"
	}
	return c
}

// Attrs returns the caller as slog key/value pairs, skipping empty fields.
func (c Caller) Attrs() []any {
	attrs := []any{"transport", c.Transport}
	for _, kv := range [][2]string{
		{"request_id", c.RequestID},
		{"session", c.SessionID},
		{"remote", c.RemoteAddr},
	} {
		if kv[1] != "" {
			attrs = append(attrs, kv[0], kv[1])
		}
	}
	return attrs
}

func update(ctx context.Context, set func(*Caller)) context.Context {
	c, _ := ctx.Value(callerKey{}).(Caller)
	set(&c)
	return context.WithValue(ctx, callerKey{}, c)
}

func WithTransport(ctx context.Context, t string) context.Context {
	return update(ctx, func(c *Caller) { c.Transport = t })
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return update(ctx, func(c *Caller) { c.RequestID = id })
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return update(ctx, func(c *Caller) { c.SessionID = id })
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return update(ctx, func(c *Caller) { c.RemoteAddr = addr })
}

func GetTransport(ctx context.Context) string  { return CallerFrom(ctx).Transport }
func GetRequestID(ctx context.Context) string  { return CallerFrom(ctx).RequestID }
func GetSessionID(ctx context.Context) string  { return CallerFrom(ctx).SessionID }
func GetRemoteAddr(ctx context.Context) string { return CallerFrom(ctx).RemoteAddr }
