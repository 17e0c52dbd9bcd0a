package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/jarvis/internal/apperr"
)

const (
	// WriteWait bounds a single reply write.
	WriteWait = 10 * time.Second

	maxMessageSize = 64 << 10
)

// Server exposes a Router over websocket connections. Each request runs in
// its own goroutine and gets exactly one reply; writes on a connection are
// serialized.
type Server struct {
	router   *Router
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[*serverConn]struct{}
	wg    sync.WaitGroup
}

type serverConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *serverConn) writeReply(reply Reply) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return c.conn.WriteJSON(reply)
}

// NewServer creates a Server for r.
func NewServer(r *Router, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		router: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*serverConn]struct{}),
	}
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// ServeHTTP upgrades the request and serves envelopes until the peer
// disconnects or the server closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("router upgrade failed")
		return
	}

	c := &serverConn{conn: conn}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.readLoop(c)
}

func (s *Server) readLoop(c *serverConn) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(s.ctx)
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
		s.remove(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("router connection closed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.reply(c, ErrorReply("", apperr.ErrInvalidRequest))
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			s.reply(c, s.router.HandleEnvelope(ctx, env))
		}()
	}
}

func (s *Server) reply(c *serverConn, reply Reply) {
	if err := c.writeReply(reply); err != nil {
		s.logger.Debug().Err(err).Str("id", reply.ID).Msg("reply dropped, peer gone")
	}
}

func (s *Server) remove(c *serverConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.conn.Close()
}

// Close cancels in-flight requests, closes every connection and waits for
// their goroutines to finish.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	for c := range s.conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}
