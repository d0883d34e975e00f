package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	outboundBuffer = 256
	clientBuffer   = 32
	writeWait      = 10 * time.Second
)

type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Hub fans committed events out to all connected websocket clients. Events
// are queued on a buffered channel and drained by a single goroutine, so a
// broadcast can never block or fail the request that produced it; when the
// queue or a client buffer is full the event is dropped for that consumer.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	outbound chan envelope
	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	h := &Hub{
		clients:  make(map[*client]struct{}),
		outbound: make(chan envelope, outboundBuffer),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	go h.run()
	return h
}

func (h *Hub) Broadcast(event string, payload interface{}) {
	select {
	case h.outbound <- envelope{Event: event, Payload: payload}:
	default:
	}
}

func (h *Hub) run() {
	for ev := range h.outbound {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("broadcast marshal failed: %v", err)
			continue
		}
		h.mu.Lock()
		var slow []*client
		for c := range h.clients {
			select {
			case c.send <- data:
			default:
				slow = append(slow, c)
			}
		}
		for _, c := range slow {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("socket connected %s", conn.RemoteAddr())

	go c.writeLoop()
	go h.readLoop(c)
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readLoop discards inbound messages; its job is to notice the peer going
// away and unregister the client.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
	log.Printf("socket disconnected %s", c.conn.RemoteAddr())
}
