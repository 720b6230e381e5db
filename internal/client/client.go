// Package client is the capture-side endpoint: it streams encoded
// frames to the analysis server and surfaces status and recommendation
// messages as events. Reconnection is a bounded-retry state machine,
// not an ad hoc timer loop.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
)

// EventKind classifies client events.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventStatus
	EventRecommendation
	EventTerminalFailure
)

// Recommendation mirrors the server's recommendation payload.
type Recommendation struct {
	Action    string `json:"action"`
	PotSize   string `json:"pot_size"`
	EV        string `json:"ev"`
	Reasoning string `json:"reasoning"`
	Position  string `json:"position,omitempty"`
}

// Event is one client-side occurrence: connection lifecycle, a status
// line, a recommendation, or the terminal reconnect failure.
type Event struct {
	Kind           EventKind
	Message        string
	Recommendation *Recommendation
	Seq            uint64
	Err            error
}

// envelope decodes the two outbound message kinds by their type field.
type envelope struct {
	Type           string          `json:"type"`
	Message        string          `json:"message"`
	Recommendation *Recommendation `json:"recommendation"`
	Seq            uint64          `json:"seq"`
}

// Options configures a Client. Zero values take defaults.
type Options struct {
	Backoff Backoff
	Clock   quartz.Clock
	Logger  *log.Logger
}

// Client is a reconnecting frame-streaming endpoint. One Client serves
// one session at a time; events preserve server emission order.
type Client struct {
	url     string
	backoff Backoff
	clock   quartz.Clock
	logger  *log.Logger

	// frames holds at most one pending frame. The feed is best-effort
	// at 5-10 Hz; when the link is slow the stale frame is replaced.
	frames chan []byte
	events chan Event
}

// New creates a client for the given server URL (http(s) or ws(s)
// scheme, /ws path appended if missing).
func New(serverURL string, opts Options) (*Client, error) {
	wsURL, err := normalizeURL(serverURL)
	if err != nil {
		return nil, err
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Client{
		url:     wsURL,
		backoff: opts.Backoff,
		clock:   opts.Clock,
		logger:  opts.Logger.WithPrefix("client"),
		frames:  make(chan []byte, 1),
		events:  make(chan Event, 64),
	}, nil
}

func normalizeURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Events returns the event stream. Run closes it on return.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SendFrame queues one encoded frame. If a frame is already pending it
// is replaced: the newest view of the table always wins.
func (c *Client) SendFrame(frame []byte) {
	for {
		select {
		case c.frames <- frame:
			return
		default:
			select {
			case <-c.frames:
			default:
			}
		}
	}
}

// Run drives the connect/serve/backoff loop until the context is
// cancelled or the retry ceiling is reached. The terminal failure is
// both returned and emitted as an event.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("connect failed", "url", c.url, "attempt", c.backoff.Attempt()+1, "error", err)
			if err := c.delay(ctx); err != nil {
				return err
			}
			continue
		}

		c.backoff.Reset()
		c.emit(Event{Kind: EventConnected, Message: "connected to analysis server"})

		err = c.serve(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("connection lost", "error", err)
		c.emit(Event{Kind: EventDisconnected, Err: err})
		if err := c.delay(ctx); err != nil {
			return err
		}
	}
}

// delay waits out the next backoff step, or reports the terminal
// failure once attempts are exhausted.
func (c *Client) delay(ctx context.Context) error {
	d, err := c.backoff.Next()
	if err != nil {
		c.emit(Event{Kind: EventTerminalFailure, Err: err, Message: "giving up: reconnect attempts exhausted"})
		return err
	}

	c.logger.Info("reconnecting", "delay", d, "attempt", c.backoff.Attempt())
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serve pumps frames out and messages in over one live connection.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			c.handleMessage(data)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case frame := <-c.frames:
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("ignoring unparseable message", "error", err)
		return
	}

	switch env.Type {
	case "status":
		c.emit(Event{Kind: EventStatus, Message: env.Message})
	case "recommendation":
		if env.Recommendation == nil {
			c.logger.Debug("recommendation message without payload")
			return
		}
		c.emit(Event{Kind: EventRecommendation, Recommendation: env.Recommendation, Seq: env.Seq})
	default:
		c.logger.Debug("unknown message type", "type", env.Type)
	}
}

// emit queues an event, dropping the oldest when the consumer lags.
// Ordering within the retained window is preserved.
func (c *Client) emit(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
			select {
			case <-c.events:
			default:
			}
		}
	}
}
