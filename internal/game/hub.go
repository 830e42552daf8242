package game

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	outboundBuffer = 256
	clientBuffer   = 64

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one connected socket. Messages are written in order by a
// dedicated goroutine, which is the only user of conn.
type Client struct {
	hub       *Hub
	conn      Conn
	userID    string
	sendChan  chan []byte
	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
	log       *zap.Logger
}

func newClient(hub *Hub, conn Conn, userID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		sendChan: make(chan []byte, clientBuffer),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		log:      hub.log,
	}
}

func (c *Client) UserID() string {
	return c.userID
}

// Done is closed once the writer has exited and released the connection.
// The connection must stay valid until then.
func (c *Client) Done() <-chan struct{} {
	return c.doneChan
}

// Send queues an event for this connection only. It is delivered after every
// event the hub accepted before it.
func (c *Client) Send(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	c.hub.deliver(delivery{client: c, data: data}, ev.Type)
}

func (c *Client) enqueue(data []byte) {
	select {
	case <-c.stopChan:
		return
	default:
	}

	select {
	case c.sendChan <- data:
	default:
		c.log.Warn("client send buffer full, dropping message",
			zap.String("user_id", c.userID),
			zap.Int("buffered", len(c.sendChan)),
		)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.doneChan)
	}()

	for {
		select {
		case data := <-c.sendChan:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed", zap.String("user_id", c.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.stopChan:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.stopChan) })
}

// delivery targets every client, the clients of one user, or one client.
type delivery struct {
	userID string
	client *Client
	data   []byte
}

func (d delivery) matches(c *Client) bool {
	switch {
	case d.client != nil:
		return d.client == c
	case d.userID != "":
		return c.userID == d.userID
	default:
		return true
	}
}

// Hub fans engine events out to connected clients. It implements Broadcaster.
// Broadcasts and unicasts share one queue, so every client sees events in the
// order they were sent.
type Hub struct {
	clients    map[*Client]struct{}
	outbound   chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	metrics    *Metrics
	log        *zap.Logger
}

func NewHub(log *zap.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		outbound:   make(chan delivery, outboundBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    metrics,
		log:        log.Named("hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.metrics.ConnectedClients.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.metrics.ConnectedClients.Set(float64(total))
			h.log.Info("client connected", zap.String("user_id", client.userID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			total := len(h.clients)
			h.mu.Unlock()
			client.close()
			if ok {
				h.metrics.ConnectedClients.Set(float64(total))
				h.log.Info("client disconnected", zap.String("user_id", client.userID), zap.Int("total", total))
			}

		case d := <-h.outbound:
			h.mu.RLock()
			for client := range h.clients {
				if d.matches(client) {
					client.enqueue(d.data)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast never blocks the caller; the message is dropped when the hub is
// saturated.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	h.deliver(delivery{data: data}, ev.Type)
}

// SendToUser delivers an event to every connection of one user.
func (h *Hub) SendToUser(userID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	h.deliver(delivery{userID: userID, data: data}, ev.Type)
}

func (h *Hub) deliver(d delivery, t EventType) {
	select {
	case h.outbound <- d:
	default:
		h.log.Warn("outbound channel full, dropping message", zap.String("type", string(t)))
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient starts the connection's writer and adds it to the hub.
func (h *Hub) RegisterClient(conn Conn, userID string) *Client {
	client := newClient(h, conn, userID)
	go client.writeLoop()

	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
	return client
}

// UnregisterClient stops the client's writer. Wait on Done before releasing
// the connection.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}
