package gateway

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-features/internal/model"
)

const (
	sendBuffer       = 256
	replayPerChannel = 500
)

// Hub fans freshly computed feature rows out to WebSocket clients. It is a
// row sink: the pipeline hands it each symbol's rows and the newest row per
// channel is broadcast, cached as latest state and kept for replay.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// per-channel sequence numbers and sent history for gap backfill
	channelSeqs map[string]int64
	history     map[string]*rowHistory

	log *zap.Logger

	// OnClients is called with the client count after every change.
	OnClients func(n int)
	// OnDrop is called when a slow client misses a message.
	OnDrop func()
}

type latestEntry struct {
	Symbol string
	Data   json.RawMessage
	TS     time.Time
	Seq    int64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		history:     make(map[string]*rowHistory),
		log:         zap.L().Named("gateway"),
	}
}

// WriteRows broadcasts the newest row of every channel present in rows.
func (h *Hub) WriteRows(_ context.Context, rows []model.FeatureRow) error {
	newest := make(map[string]int, 1)
	for i := range rows {
		ch := rows[i].Channel()
		if j, ok := newest[ch]; !ok || !rows[j].TS.After(rows[i].TS) {
			newest[ch] = i
		}
	}
	channels := make([]string, 0, len(newest))
	for ch := range newest {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		r := &rows[newest[ch]]
		h.broadcast(ch, r.Symbol, r.TS, r.JSON())
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
	return nil
}

// register adds a client and queues the latest state it should see. Both
// happen under the hub lock so no broadcast can fall between them.
func (h *Hub) register(conn *websocket.Conn, symbols []string, since int64) *Client {
	c := newClient(h, conn, symbols)

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	c.queueInitialState(since)
	h.mu.Unlock()

	h.log.Info("ws client connected", zap.Int("clients", count), zap.Strings("symbols", symbols))
	if h.OnClients != nil {
		h.OnClients(count)
	}
	return c
}

// removeClient removes a client from the hub and closes its send channel.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", zap.Int("clients", count))
	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// Latest returns the newest row JSON per channel, optionally restricted to
// one symbol.
func (h *Hub) Latest(symbol string) map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for ch, e := range h.latest {
		if symbol != "" && e.Symbol != symbol {
			continue
		}
		out[ch] = e.Data
	}
	return out
}

// ReplayRange returns held envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if hist, ok := h.history[channel]; ok {
		return hist.bySeq(fromSeq, toSeq)
	}
	return nil
}

// ReplaySince returns held envelopes for a channel whose row bar time is
// after bar.
func (h *Hub) ReplaySince(channel string, bar time.Time) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if hist, ok := h.history[channel]; ok {
		return hist.afterBar(bar)
	}
	return nil
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
