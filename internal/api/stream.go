package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/reson/internal/report"
)

// clientBuffer is how many rows a slow websocket client may lag before
// rows are dropped for it.
const clientBuffer = 256

// Message is one websocket frame of the live stream.
type Message struct {
	Type   string           `json:"type"` // "header" or "row"
	Header *report.Header   `json:"header,omitempty"`
	Row    *report.NamedRow `json:"row,omitempty"`
}

// HubStatus summarises the live stream.
type HubStatus struct {
	Rows      uint64 `json:"rows"`
	Timestamp int64  `json:"timestamp"` // Of the last row
	Clients   int    `json:"clients"`
	Finished  bool   `json:"finished"`
}

type client struct {
	out     chan []byte
	dropped uint64
}

// Hub is a report.Sink that fans rows out to websocket clients. A client
// joining mid-run receives the header first, then rows from that point on.
type Hub struct {
	mu      sync.Mutex
	header  report.Header
	hello   []byte // Encoded header message
	clients map[*client]struct{}
	status  HubStatus

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) WriteHeader(hdr report.Header) error {
	b, err := json.Marshal(Message{Type: "header", Header: &hdr})
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header = hdr
	h.hello = b
	h.broadcast(b)
	return nil
}

func (h *Hub) WriteRow(r report.Row) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	named, err := h.header.Named(r)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Message{Type: "row", Row: &named})
	if err != nil {
		return err
	}
	h.status.Rows++
	h.status.Timestamp = r.Timestamp
	h.broadcast(b)
	return nil
}

// Close ends every client stream with a normal closure.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Finished = true
	for c := range h.clients {
		close(c.out)
		delete(h.clients, c)
	}
	return nil
}

// Status reports progress of the stream.
func (h *Hub) Status() HubStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.status
	st.Clients = len(h.clients)
	return st
}

// broadcast never blocks the simulation: full client buffers drop the frame.
// Caller holds mu.
func (h *Hub) broadcast(b []byte) {
	for c := range h.clients {
		select {
		case c.out <- b:
		default:
			c.dropped++
		}
	}
}

func (h *Hub) subscribe() (c *client, hello []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Finished {
		return nil, nil
	}
	c = &client{out: make(chan []byte, clientBuffer)}
	h.clients[c] = struct{}{}
	return c, h.hello
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.out)
		delete(h.clients, c)
	}
	if c.dropped > 0 {
		slog.Warn("stream client fell behind", "dropped_rows", c.dropped)
	}
}

// WSHandler upgrades the request and streams frames until the run ends or
// the client goes away.
func (h *Hub) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c, hello := h.subscribe()
		if c == nil {
			closeWith(conn, websocket.CloseNormalClosure, "run finished")
			return
		}
		defer h.unsubscribe(c)

		if hello != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
				return
			}
		}

		// The stream is one-way; reading only notices the client leaving.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case b, ok := <-c.out:
				if !ok {
					closeWith(conn, websocket.CloseNormalClosure, "run finished")
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}
