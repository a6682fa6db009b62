package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-features/internal/series"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// RegisterRoutes registers the WebSocket endpoint and the REST helpers on mux.
func RegisterRoutes(mux interface {
	Handle(pattern string, h http.Handler)
}, hub *Hub) {
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))
	mux.Handle("/api/latest", http.HandlerFunc(hub.serveLatest))
	mux.Handle("/api/missed", http.HandlerFunc(hub.serveMissed))
}

// ServeWS upgrades the request. ?symbols=AAPL,MSFT limits the stream and
// ?since=N skips latest state at or below channel sequence N.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade", zap.Error(err))
		return
	}
	q := r.URL.Query()
	var symbols []string
	if s := q.Get("symbols"); s != "" {
		symbols = strings.Split(s, ",")
	}
	since, _ := strconv.ParseInt(q.Get("since"), 10, 64)

	conn.EnableWriteCompression(true)
	c := h.register(conn, symbols, since)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) serveLatest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	json.NewEncoder(w).Encode(h.Latest(symbol))
}

// serveMissed returns held envelopes for a channel, either by sequence
// (/api/missed?channel=...&from=N&to=M) or by bar time
// (/api/missed?channel=...&since=2024-03-01).
func (h *Hub) serveMissed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	if channel == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}
	var msgs [][]byte
	if s := q.Get("since"); s != "" {
		bar, ok := series.ParseTimestamp(s)
		if !ok {
			http.Error(w, "since must be a timestamp", http.StatusBadRequest)
			return
		}
		msgs = h.ReplaySince(channel, bar)
	} else {
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if err1 != nil || err2 != nil || from > to {
			http.Error(w, "from and to, or since, are required", http.StatusBadRequest)
			return
		}
		msgs = h.ReplayRange(channel, from, to)
	}
	var oldest int64
	h.mu.RLock()
	if hist, ok := h.history[channel]; ok {
		oldest = hist.oldest()
	}
	h.mu.RUnlock()

	out := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"channel":  channel,
		"current":  h.ChannelSeq(channel),
		"oldest":   oldest,
		"messages": out,
	})
}
