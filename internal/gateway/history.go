package gateway

import (
	"sort"
	"time"
)

// sent is one envelope as it went out on a channel.
type sent struct {
	seq      int64     // channel_seq
	bar      time.Time // bar time of the row carried
	envelope []byte
}

// rowHistory keeps the last limit envelopes of a channel so a client that
// sees a gap in channel_seq, or reconnects after a known bar, can catch up.
// Sequences are strictly increasing; bar times need not be, since every
// batch re-sends the newest bar. It is guarded by the hub lock.
type rowHistory struct {
	limit int
	sent  []sent
}

func newRowHistory(limit int) *rowHistory {
	return &rowHistory{limit: limit, sent: make([]sent, 0, min(limit, 64))}
}

func (rh *rowHistory) add(seq int64, bar time.Time, envelope []byte) {
	if len(rh.sent) == rh.limit {
		copy(rh.sent, rh.sent[1:])
		rh.sent = rh.sent[:rh.limit-1]
	}
	rh.sent = append(rh.sent, sent{seq: seq, bar: bar, envelope: envelope})
}

// oldest returns the first sequence still held, or 0.
func (rh *rowHistory) oldest() int64 {
	if len(rh.sent) == 0 {
		return 0
	}
	return rh.sent[0].seq
}

// bySeq returns envelopes with from <= seq <= to, oldest first.
func (rh *rowHistory) bySeq(from, to int64) [][]byte {
	i := sort.Search(len(rh.sent), func(i int) bool { return rh.sent[i].seq >= from })
	var out [][]byte
	for ; i < len(rh.sent) && rh.sent[i].seq <= to; i++ {
		out = append(out, rh.sent[i].envelope)
	}
	return out
}

// afterBar returns envelopes whose bar is later than t, oldest first.
func (rh *rowHistory) afterBar(t time.Time) [][]byte {
	var out [][]byte
	for _, s := range rh.sent {
		if s.bar.After(t) {
			out = append(out, s.envelope)
		}
	}
	return out
}
