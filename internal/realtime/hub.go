package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// sendQueueSize bounds the per-connection write queue. A client that
	// cannot drain this many frames is disconnected rather than allowed to
	// block fan-out.
	sendQueueSize = 256

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Principal is the authenticated identity bound to a connection.
type Principal struct {
	UserID uuid.UUID
	Role   model.Role
}

// Conn is one WebSocket connection registered with the hub.
type Conn struct {
	ws        *websocket.Conn
	principal Principal
	send      chan []byte

	mu     sync.Mutex
	closed bool
}

// Principal returns the identity the connection authenticated as.
func (c *Conn) Principal() Principal {
	return c.principal
}

// Enqueue hands a marshalled frame to the write pump. Reports false when the
// queue is full, which the hub treats as a dead client.
func (c *Conn) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// SendFrame marshals and enqueues a frame, for acks and errors outside fan-out.
func (c *Conn) SendFrame(frame ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.Enqueue(data)
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump drains the send queue onto the socket. Runs until the queue
// closes or a write fails; the caller owns the read loop.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub is the realtime fan-out layer. Subscriptions are local; publications
// relay through Redis pub/sub so every node delivers to its own connections,
// which keeps the process stateless across replicas.
type Hub struct {
	rdb *redis.Client
	log zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{}
}

// NewHub creates a new Hub.
func NewHub(rdb *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		rdb:  rdb,
		log:  log.With().Str("component", "realtime_hub").Logger(),
		subs: make(map[string]map[*Conn]struct{}),
	}
}

// Register wraps an upgraded socket into a hub connection.
func (h *Hub) Register(ws *websocket.Conn, principal Principal) *Conn {
	return &Conn{
		ws:        ws,
		principal: principal,
		send:      make(chan []byte, sendQueueSize),
	}
}

// Unregister drops every subscription of the connection and closes its queue.
func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	for dest, conns := range h.subs {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, dest)
		}
	}
	h.mu.Unlock()
	conn.close()
}

// Subscribe attaches the connection to a destination. Authorisation happens
// before this call; the hub only routes.
func (h *Hub) Subscribe(conn *Conn, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subs[destination]
	if !ok {
		conns = make(map[*Conn]struct{})
		h.subs[destination] = conns
	}
	conns[conn] = struct{}{}
}

// Unsubscribe detaches the connection from a destination.
func (h *Hub) Unsubscribe(conn *Conn, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.subs[destination]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, destination)
		}
	}
}

// Publish relays a payload to every subscriber of the destination on every
// node. Local delivery also goes through the relay so ordering is uniform.
func (h *Hub) Publish(ctx context.Context, destination string, payload interface{}) error {
	frame, err := json.Marshal(ServerFrame{
		Type:        FrameMessage,
		Destination: destination,
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := h.rdb.Publish(ctx, config.CacheKey.RealtimeChannel(destination), frame).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run subscribes to the relay pattern and forwards frames to local
// connections until the context ends. Slow clients are disconnected.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.PSubscribe(ctx, config.CacheKey.RealtimePattern())
	defer pubsub.Close()

	h.log.Info().Msg("Realtime relay attached")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			destination := strings.TrimPrefix(msg.Channel, "realtime:")
			h.deliver(destination, []byte(msg.Payload))
		}
	}
}

func (h *Hub) deliver(destination string, frame []byte) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.subs[destination]))
	for conn := range h.subs[destination] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if !conn.Enqueue(frame) {
			h.log.Warn().
				Str("destination", destination).
				Str("user_id", conn.principal.UserID.String()).
				Msg("Dropping slow realtime client")
			h.Unregister(conn)
		}
	}
}
