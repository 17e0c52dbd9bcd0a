package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrClientClosed is returned for calls on, or pending at the close of, a
// websocket client.
var ErrClientClosed = errors.New("router: client closed")

// Client sends one request and waits for its reply.
type Client interface {
	Call(ctx context.Context, req Request) (Reply, error)
}

// LocalClient calls a Router in-process through the same envelope encoding
// the websocket transport uses.
type LocalClient struct {
	router *Router
}

// NewLocalClient creates an in-process client.
func NewLocalClient(r *Router) *LocalClient {
	return &LocalClient{router: r}
}

// Call implements Client.
func (c *LocalClient) Call(ctx context.Context, req Request) (Reply, error) {
	env, err := NewEnvelope(uuid.NewString(), req)
	if err != nil {
		return Reply{}, err
	}
	return c.router.HandleEnvelope(ctx, env), nil
}

// WSClient talks to a Server over one websocket connection and correlates
// replies by envelope id.
type WSClient struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Reply
	closed  bool
	err     error
	done    chan struct{}
}

// Dial connects to a Server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, logger zerolog.Logger) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("router: dial %s: %w", url, err)
	}

	c := &WSClient{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan Reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call implements Client. A caller whose context ends stops waiting; the
// late reply is discarded.
func (c *WSClient) Call(ctx context.Context, req Request) (Reply, error) {
	env, err := NewEnvelope(uuid.NewString(), req)
	if err != nil {
		return Reply{}, err
	}

	ch := make(chan Reply, 1)
	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return Reply{}, err
	}
	c.pending[env.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(env.ID)
		return Reply{}, fmt.Errorf("router: send %s: %w", env.Type, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return Reply{}, c.closeErr()
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(env.ID)
		return Reply{}, ctx.Err()
	}
}

func (c *WSClient) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *WSClient) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *WSClient) readLoop() {
	defer close(c.done)
	for {
		var reply Reply
		if err := c.conn.ReadJSON(&reply); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("router connection lost")
			}
			c.fail(fmt.Errorf("%w: %v", ErrClientClosed, err))
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[reply.ID]
		delete(c.pending, reply.ID)
		c.mu.Unlock()

		if !ok {
			c.logger.Debug().Str("id", reply.ID).Msg("reply with no waiting caller")
			continue
		}
		ch <- reply
	}
}

// fail closes every pending call.
func (c *WSClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.err = err
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Close closes the connection and fails pending calls.
func (c *WSClient) Close() error {
	c.mu.Lock()
	already := c.closed
	if !already {
		c.closed = true
		c.err = ErrClientClosed
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	if already {
		return nil
	}
	return err
}

// decodeReply unpacks reply into out, or returns its error.
func decodeReply(reply Reply, out any) error {
	if !reply.OK {
		if reply.Error == nil {
			return errors.New("router: failed reply without error")
		}
		return reply.Error.Err()
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return fmt.Errorf("router: decode result: %w", err)
	}
	return nil
}
