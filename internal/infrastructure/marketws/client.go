package marketws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/metrics"
	"agromarket-notifier/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	dialTimeout        = 10 * time.Second
	initialReconnectIn = 500 * time.Millisecond
	maxReconnectIn     = 30 * time.Second
)

// Client maintains the single upstream push connection for one session.
// Transport errors never kill the pipeline: the connection is redialed with
// exponential backoff until Stop is called. States follow
// idle -> connecting -> open -> (connecting | closed); closed is terminal and
// reached only through Stop.
type Client struct {
	streamURL string
	log       logger.Logger
	handler   domain.EventHandler

	mu        sync.Mutex
	state     domain.StreamState
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewClient(streamURL string, log logger.Logger) *Client {
	return &Client{
		streamURL: streamURL,
		log:       log,
		state:     domain.StreamIdle,
	}
}

// OnEvent registers the delivery callback. Must be called before Start.
func (c *Client) OnEvent(handler domain.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Start opens the push connection for the session. No-op if a connection for
// the same session id is already running.
func (c *Client) Start(ctx context.Context, session *domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.StreamConnecting || c.state == domain.StreamOpen {
		if c.sessionID == session.ID {
			return nil
		}
		return fmt.Errorf("stream already active for session %s", c.sessionID)
	}
	if c.state == domain.StreamClosed {
		return fmt.Errorf("stream is closed")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.sessionID = session.ID
	c.state = domain.StreamConnecting

	metrics.ActiveStreams.Inc()

	go c.run(runCtx, session)
	return nil
}

// Stop closes the connection if present and is safe to call any number of
// times, before or after Start.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.cancel == nil {
		// Never started: nothing to tear down, stay out of the way.
		c.mu.Unlock()
		return nil
	}
	if c.state == domain.StreamClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = domain.StreamClosed
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done

	metrics.ActiveStreams.Dec()
	return nil
}

func (c *Client) State() domain.StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state domain.StreamState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StreamClosed {
		c.state = state
	}
}

func (c *Client) run(ctx context.Context, session *domain.Session) {
	defer close(c.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialReconnectIn
	bo.MaxInterval = maxReconnectIn
	bo.MaxElapsedTime = 0 // retry until stopped

	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if !first {
			metrics.StreamReconnects.Inc()
		}
		first = false

		c.setState(domain.StreamConnecting)

		conn, err := c.dial(ctx, session)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := bo.NextBackOff()
			c.log.Error("Failed to dial event stream",
				"session_id", session.ID, "retry_in", wait, "error", err)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		c.setState(domain.StreamOpen)
		bo.Reset()
		c.log.Info("Event stream open", "session_id", session.ID)

		connCtx, connCancel := context.WithCancel(ctx)
		c.readLoop(connCtx, conn, session)
		connCancel()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.log.Warn("Event stream dropped, reconnecting", "session_id", session.ID)
	}
}

func (c *Client) dial(ctx context.Context, session *domain.Session) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.Token)
	header.Set("X-Session-ID", session.ID)

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.streamURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, session *domain.Session) {
	// Unblock the blocking read when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Error("Failed to read stream message",
					"session_id", session.ID, "error", err)
			}
			return
		}

		event, err := parseEvent(data)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed_envelope").Inc()
			c.log.Error("Dropping malformed stream message",
				"session_id", session.ID, "error", err)
			continue
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()

		if handler != nil {
			handler(event)
		}
	}
}

func parseEvent(data []byte) (*domain.StreamEvent, error) {
	var event domain.StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.Kind == "" {
		return nil, fmt.Errorf("message has no event type: %s", data)
	}
	return &event, nil
}
