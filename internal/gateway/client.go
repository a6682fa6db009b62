package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// subscribed symbols; empty means everything
	subMu   sync.RWMutex
	symbols map[string]bool
}

// controlMsg is what clients may send.
type controlMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		symbols: make(map[string]bool, len(symbols)),
	}
	c.subscribe(symbols)
	return c
}

// queueInitialState sends the latest row of every subscribed channel whose
// sequence is past since. The caller holds the hub lock.
func (c *Client) queueInitialState(since int64) {
	for channel, e := range c.hub.latest {
		if !c.wants(e.Symbol) || e.Seq <= since {
			continue
		}
		select {
		case c.send <- envelope(channel, e.Data, e.TS, c.hub.seq, e.Seq, true):
		default:
		}
	}
}

func (c *Client) wants(symbol string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[strings.ToUpper(symbol)]
}

func (c *Client) subscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			c.symbols[s] = true
		}
	}
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		delete(c.symbols, strings.ToUpper(strings.TrimSpace(s)))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// coalesce queued messages into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch strings.ToLower(msg.Type) {
		case "subscribe":
			c.subscribe(msg.Symbols)
			c.hub.mu.RLock()
			c.queueInitialState(0)
			c.hub.mu.RUnlock()
		case "unsubscribe":
			c.unsubscribe(msg.Symbols)
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}
