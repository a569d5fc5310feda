package live

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/tracemon/internal/ir"
)

// Client sends events to a live server's /events endpoint.
// Send is safe for concurrent use; messages are sent one at a time.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to the /events endpoint of the server at base, a ws:// or
// http:// URL.
func Dial(ctx context.Context, base string) (*Client, error) {
	conn, err := dial(ctx, base, "/events")
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Send submits one event and waits for the server's reply.
func (c *Client) Send(ev ir.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("send %s: %w", ev.Name, err)
	}

	var reply Message
	c.conn.SetReadDeadline(time.Now().Add(writeWait))
	if err := c.conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if reply.Type != TypeAck || !reply.Accepted {
		return fmt.Errorf("server rejected %s: %s", ev.Name, reply.Error)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// Subscribe streams violations from the server at base to fn until ctx is
// cancelled or the server closes the stream. A normal close returns nil.
func Subscribe(ctx context.Context, base string, fn func(ir.Violation)) error {
	conn, err := dial(ctx, base, "/violations")
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read violation: %w", err)
		}
		if msg.Type == TypeViolation && msg.Data != nil {
			fn(*msg.Data)
		}
	}
}

func dial(ctx context.Context, base, path string) (*websocket.Conn, error) {
	u, err := endpoint(base, path)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return conn, nil
}

// endpoint turns a server address into a websocket URL for path. A bare
// host:port is accepted.
func endpoint(base, path string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "ws://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("server url: scheme must be ws, wss, http or https")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}
