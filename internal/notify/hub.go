package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrHubStopped = errors.New("notification hub stopped")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

type delivery struct {
	userIDs []string
	data    []byte
}

// Hub keeps the websocket connections of signed-in users, keyed by user id.
type Hub struct {
	users      map[string]map[*client]bool
	register   chan *client
	unregister chan *client
	deliver    chan delivery
	stop       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		users:      make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		deliver:    make(chan delivery, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.users[c.userID] == nil {
				h.users[c.userID] = make(map[*client]bool)
			}
			h.users[c.userID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case d := <-h.deliver:
			h.mu.Lock()
			for _, uid := range d.userIDs {
				for c := range h.users[uid] {
					select {
					case c.send <- d.data:
					default:
						h.log.Warn("dropping slow websocket client", zap.String("user_id", uid))
						h.drop(c)
					}
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for _, cs := range h.users {
				for c := range cs {
					h.drop(c)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *client) {
	cs := h.users[c.userID]
	if !cs[c] {
		return
	}
	delete(cs, c)
	close(c.send)
	if len(cs) == 0 {
		delete(h.users, c.userID)
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// Online returns how many connections userID currently has.
func (h *Hub) Online(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users[userID])
}

// Deliver pushes env to every connection of its recipients on this instance.
func (h *Hub) Deliver(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env.Notification)
	if err != nil {
		return err
	}
	select {
	case h.deliver <- delivery{userIDs: env.UserIDs, data: data}:
		return nil
	case <-h.stop:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Notify(ctx context.Context, userIDs []string, message string, metadata map[string]string) error {
	return h.Deliver(ctx, NewEnvelope(userIDs, message, metadata))
}

// Serve attaches an upgraded connection for userID and blocks until it closes.
func (h *Hub) Serve(conn *websocket.Conn, userID string) {
	c := &client{conn: conn, send: make(chan []byte, 32), userID: userID}
	select {
	case h.register <- c:
	case <-h.stop:
		conn.Close()
		return
	}
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the peer going away; clients send nothing.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stop:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
