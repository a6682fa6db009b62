package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// broadcast records data, the row for bar, as the newest message on channel
// and fans it out to every client subscribed to symbol. Slow clients drop
// the message.
func (h *Hub) broadcast(channel, symbol string, bar time.Time, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.seq++
	h.channelSeqs[channel]++
	seq, channelSeq := h.seq, h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Symbol: symbol, Data: data, TS: now, Seq: channelSeq}
	buf := envelope(channel, data, now, seq, channelSeq, false)
	hist, ok := h.history[channel]
	if !ok {
		hist = newRowHistory(replayPerChannel)
		h.history[channel] = hist
	}
	hist.add(channelSeq, bar, buf)
	h.mu.Unlock()

	drops := 0
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(symbol) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			drops++
		}
	}
	h.mu.RUnlock()

	if drops > 0 && h.OnDrop != nil {
		for i := 0; i < drops; i++ {
			h.OnDrop()
		}
	}
}

// envelope builds {"channel":...,"data":...,"ts":...,"seq":N,"channel_seq":N}
// by hand; data is already JSON.
func envelope(channel string, data []byte, now time.Time, seq, channelSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = appendString(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}

func appendString(buf []byte, s string) []byte {
	b, _ := json.Marshal(s)
	return append(buf, b...)
}
