package bus

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often to send ping frames.
	PingPeriod = (PongWait * 9) / 10

	observerBuffer = 256
)

// Observer streams bus events to websocket clients as JSON text frames.
// Mount Handler on any mux; it does not own a listener.
type Observer struct {
	bus      *Bus
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*observerClient]struct{}
	subID   SubscriptionID
	wg      sync.WaitGroup
}

type observerClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *observerClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewObserver attaches an observer to b.
func NewObserver(b *Bus, logger zerolog.Logger) *Observer {
	o := &Observer{
		bus: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*observerClient]struct{}),
	}
	o.subID = b.Subscribe("", o.broadcast)
	return o
}

// ClientCount returns the number of connected clients.
func (o *Observer) ClientCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clients)
}

// ServeHTTP upgrades the request and streams events. The optional
// "replay" query parameter sends that many recent events first.
func (o *Observer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.logger.Warn().Err(err).Msg("observer upgrade failed")
		return
	}

	client := &observerClient{conn: conn, send: make(chan []byte, observerBuffer)}

	if n, err := strconv.Atoi(r.URL.Query().Get("replay")); err == nil && n > 0 {
		for _, event := range o.bus.History(n) {
			if data, err := json.Marshal(event); err == nil {
				select {
				case client.send <- data:
				default:
				}
			}
		}
	}

	o.mu.Lock()
	o.clients[client] = struct{}{}
	o.mu.Unlock()

	o.wg.Add(2)
	go o.writePump(client)
	go o.readPump(client)
}

func (o *Observer) remove(client *observerClient) {
	o.mu.Lock()
	if _, ok := o.clients[client]; ok {
		delete(o.clients, client)
		client.close()
	}
	o.mu.Unlock()
}

func (o *Observer) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for client := range o.clients {
		select {
		case client.send <- data:
		default:
			// Slow client: disconnect rather than block the bus.
			delete(o.clients, client)
			client.close()
		}
	}
}

func (o *Observer) writePump(client *observerClient) {
	defer o.wg.Done()
	defer client.conn.Close()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				o.remove(client)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				o.remove(client)
				return
			}
		}
	}
}

// readPump only services control frames; clients never send data.
func (o *Observer) readPump(client *observerClient) {
	defer o.wg.Done()
	defer o.remove(client)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(PongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				o.logger.Debug().Err(err).Msg("observer client error")
			}
			return
		}
	}
}

// Close disconnects every client and detaches from the bus.
func (o *Observer) Close() {
	_ = o.bus.Unsubscribe(o.subID)

	o.mu.Lock()
	for client := range o.clients {
		delete(o.clients, client)
		client.close()
	}
	o.mu.Unlock()

	o.wg.Wait()
}
