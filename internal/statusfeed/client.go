package statusfeed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultDialTimeout bounds the WebSocket handshake.
const DefaultDialTimeout = 3 * time.Second

// Subscription is a client connection to a status feed.
type Subscription struct {
	conn *websocket.Conn
}

// FeedURL turns a listen address or URL into the feed's WebSocket URL.
//
//	":8787"                  -> ws://localhost:8787/status
//	"10.0.0.2:8787"          -> ws://10.0.0.2:8787/status
//	"http://host:8787"       -> ws://host:8787/status
//	"ws://host:8787/custom"  -> unchanged
func FeedURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("status feed address is empty")
	}
	if !strings.Contains(addr, "://") {
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		addr = "ws://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid status feed address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported status feed scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("status feed address %q has no host", addr)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = Path
	}
	return u.String(), nil
}

// Dial connects to the feed at addr.
func Dial(ctx context.Context, addr string) (*Subscription, error) {
	feedURL, err := FeedURL(addr)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: DefaultDialTimeout}
	conn, resp, err := dialer.DialContext(ctx, feedURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to status feed at %s: %w", feedURL, err)
	}
	return &Subscription{conn: conn}, nil
}

// Next blocks until the next status arrives or the connection fails.
func (s *Subscription) Next() (Status, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return Status{}, err
	}
	return decode(data)
}

// Close sends a close frame and releases the connection.
func (s *Subscription) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// Fetch connects, reads the current status and disconnects.
func Fetch(ctx context.Context, addr string) (Status, error) {
	sub, err := Dial(ctx, addr)
	if err != nil {
		return Status{}, err
	}
	defer func() { _ = sub.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = sub.conn.SetReadDeadline(deadline)
	}
	return sub.Next()
}
