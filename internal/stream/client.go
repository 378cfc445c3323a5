package stream

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
)

// State is the connectivity of a [Client], tracked separately from whether any lines have arrived.
type State int

const (
	Connecting State = iota
	Connected
	Ended        // the server closed the topic; the job is finished
	Disconnected // the last attempt failed; a retry is pending
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client follows one topic over a websocket, reconnecting until the topic ends or ctx is done.
//
// Entries already seen are skipped on reconnect, so the line buffer has no duplicates.
type Client struct {
	url        string
	size       int
	dialer     *websocket.Dialer
	logger     *log.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	state   State
	lastSeq uint64
	lines   []Entry
	lastErr error

	updates chan struct{}
}

// NewClient creates a client for the websocket at url keeping the last size lines.
func NewClient(url string, size int, logger *log.Logger) *Client {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		url:        url,
		size:       size,
		dialer:     websocket.DefaultDialer,
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		updates:    make(chan struct{}, 1),
	}
}

// Updates signals after every state change or new line. Signals coalesce.
func (c *Client) Updates() <-chan struct{} { return c.updates }

// State returns the current connectivity.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last connection error, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Lines returns a copy of the buffered lines, oldest first.
func (c *Client) Lines() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

// Run connects and reads until the topic ends (nil) or ctx is done (ctx.Err()).
func (c *Client) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		c.setState(Connecting, nil)

		ended, err := c.session(ctx)
		if ended {
			c.setState(Ended, nil)
			return nil
		}
		if ctx.Err() != nil {
			c.setState(Disconnected, ctx.Err())
			return ctx.Err()
		}

		c.setState(Disconnected, err)
		wait := retryablehttp.DefaultBackoff(c.minBackoff, c.maxBackoff, attempt, nil)
		c.logger.Debug("stream disconnected", "url", c.url, "retry_in", wait, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return true, nil
			}
			return false, err
		}

		switch f.Type {
		case FrameHello:
			c.setState(Connected, nil)
			c.append(f.Entries)
		case FrameEntry:
			c.append(f.Entries)
		case FrameClosed:
			return true, nil
		}
	}
}

func (c *Client) append(entries []Entry) {
	c.mu.Lock()
	for _, e := range entries {
		if e.Seq <= c.lastSeq {
			continue
		}
		c.lastSeq = e.Seq
		c.lines = append(c.lines, e)
	}
	if len(c.lines) > c.size {
		c.lines = slices.Clone(c.lines[len(c.lines)-c.size:])
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	if err != nil || s == Connected || s == Ended {
		c.lastErr = err
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Client) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
