package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"readalong/internal/apperr"
	"readalong/internal/protocol"
)

// Websocket is a transport that reaches a Hub through the relay server's
// /realtime/{channel} endpoint.
type Websocket struct {
	baseURL string
	header  http.Header
	log     zerolog.Logger
}

// NewWebsocket returns a transport for the relay at baseURL
// (http, https, ws or wss).
func NewWebsocket(baseURL string, header http.Header, log zerolog.Logger) *Websocket {
	return &Websocket{
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  header,
		log:     log.With().Str("component", "realtime").Logger(),
	}
}

// Channel returns a fresh, unsubscribed handle.
func (w *Websocket) Channel(name string) Channel {
	return &wsChannel{
		transport: w,
		name:      name,
		events:    make(chan protocol.Event, defaultMemberBuffer),
	}
}

func (w *Websocket) endpoint(name string) (string, error) {
	u, err := url.Parse(w.baseURL + "/realtime/" + url.PathEscape(name))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

type wsChannel struct {
	transport *Websocket
	name      string
	events    chan protocol.Event

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func (c *wsChannel) Name() string { return c.name }

func (c *wsChannel) Events() <-chan protocol.Event { return c.events }

func (c *wsChannel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: channel %s already closed", apperr.ErrConnectivity, c.name)
	}
	if c.conn != nil {
		return nil
	}

	endpoint, err := c.transport.endpoint(c.name)
	if err != nil {
		return fmt.Errorf("%w: invalid relay url: %v", apperr.ErrConnectivity, err)
	}

	conn, resp, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: c.transport.header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return fmt.Errorf("failed to subscribe to %s: %w", c.name, ErrChannelFull)
		}
		return fmt.Errorf("%w: failed to subscribe to %s: %v", apperr.ErrConnectivity, c.name, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.ctx = streamCtx
	c.cancel = cancel

	go c.readLoop(streamCtx, conn)
	return nil
}

func (c *wsChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer close(c.events)
	log := c.transport.log.With().Str("channel", c.name).Logger()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				log.Warn().Err(err).Msg("relay_read_failed")
			}
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("relay_frame_rejected")
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *wsChannel) connection() (*websocket.Conn, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return nil, nil, fmt.Errorf("%w: channel %s not subscribed", apperr.ErrConnectivity, c.name)
	}
	return c.conn, c.ctx, nil
}

func (c *wsChannel) Track(ctx context.Context, p protocol.Presence) error {
	return c.Send(ctx, protocol.PresenceJoin(p))
}

func (c *wsChannel) Send(ctx context.Context, ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	conn, streamCtx, err := c.connection()
	if err != nil {
		return err
	}

	ctx, cancel := mergeCancel(ctx, streamCtx)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: failed to send %s: %v", apperr.ErrConnectivity, ev.Kind, err)
	}
	return nil
}

func (c *wsChannel) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, cancel := c.conn, c.cancel
	c.mu.Unlock()

	if conn == nil {
		close(c.events)
		return nil
	}

	err := conn.Close(websocket.StatusNormalClosure, "")
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		var closeErr websocket.CloseError
		if !errors.As(err, &closeErr) {
			return fmt.Errorf("%w: failed to unsubscribe from %s: %v", apperr.ErrConnectivity, c.name, err)
		}
	}
	return nil
}

// mergeCancel returns a context that is done when either parent is.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
