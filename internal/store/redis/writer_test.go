package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-features/internal/model"
)

// recordingPipe captures queued commands; anything else panics on the nil
// embedded interface.
type recordingPipe struct {
	goredis.Pipeliner
	xadds []*goredis.XAddArgs
	sets  map[string]string
	ttls  map[string]time.Duration
	pubs  map[string]string
}

func newRecordingPipe() *recordingPipe {
	return &recordingPipe{
		sets: map[string]string{},
		ttls: map[string]time.Duration{},
		pubs: map[string]string{},
	}
}

func (p *recordingPipe) XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd {
	p.xadds = append(p.xadds, a)
	return goredis.NewStringCmd(ctx)
}

func (p *recordingPipe) Set(ctx context.Context, key string, value interface{}, exp time.Duration) *goredis.StatusCmd {
	p.sets[key] = value.(string)
	p.ttls[key] = exp
	return goredis.NewStatusCmd(ctx)
}

func (p *recordingPipe) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	p.pubs[channel] = message.(string)
	return goredis.NewIntCmd(ctx)
}

func row(symbol string, day int, rsi float64) model.FeatureRow {
	return model.FeatureRow{
		Symbol: symbol,
		TS:     time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Open:   1, High: 1, Low: 1, Close: 1,
		Values: map[string]*float64{"rsi": model.Float(rsi)},
		Source: "twelvedata",
	}
}

func TestQueueRows(t *testing.T) {
	pipe := newRecordingPipe()
	rows := []model.FeatureRow{row("AAPL", 1, 40), row("AAPL", 3, 60), row("AAPL", 2, 50), row("MSFT", 1, 70)}

	queueRows(context.Background(), pipe, rows, 300, time.Hour)

	require.Len(t, pipe.xadds, 4)
	assert.Equal(t, "features:twelvedata:AAPL", pipe.xadds[0].Stream)
	assert.Equal(t, int64(300), pipe.xadds[0].MaxLen)
	assert.True(t, pipe.xadds[0].Approx)

	require.Len(t, pipe.sets, 2)
	var latest map[string]any
	require.NoError(t, json.Unmarshal([]byte(pipe.sets["features:latest:twelvedata:AAPL"]), &latest))
	assert.Equal(t, 60.0, latest["rsi"])
	assert.Equal(t, "2024-03-03T00:00:00Z", latest["datetime"])
	assert.Equal(t, time.Hour, pipe.ttls["features:latest:twelvedata:AAPL"])

	assert.Contains(t, pipe.pubs, "pub:features:twelvedata:AAPL")
	assert.Contains(t, pipe.pubs, "pub:features:twelvedata:MSFT")
}

func TestNewWriterDefaults(t *testing.T) {
	w := newWriter(nil, WriterConfig{MaxLen: 10}, nil)
	assert.Equal(t, int64(minMaxLen), w.maxLen)
	assert.Equal(t, defaultLatestTTL, w.latestTTL)
	assert.NotNil(t, w.Breaker())

	w = newWriter(nil, WriterConfig{}, nil)
	assert.Equal(t, int64(defaultMaxLen), w.maxLen)
}

func TestWriteRowsEmptyIsNoop(t *testing.T) {
	w := newWriter(nil, WriterConfig{}, nil)
	assert.NoError(t, w.WriteRows(context.Background(), nil))
}

func TestDecodeMessages(t *testing.T) {
	msgs := []goredis.XMessage{
		{ID: "2-0", Values: map[string]interface{}{"data": `{"rsi":55}`}},
		{ID: "1-0", Values: map[string]interface{}{"other": "x"}},
	}
	out := decodeMessages(msgs)
	require.Len(t, out, 1)
	assert.JSONEq(t, `{"rsi":55}`, string(out[0]))
}

type fakeSink struct {
	err   error
	calls [][]model.FeatureRow
}

func (f *fakeSink) WriteRows(_ context.Context, rows []model.FeatureRow) error {
	f.calls = append(f.calls, rows)
	return f.err
}

func TestBufferedWriterHoldsRowsWhileOpen(t *testing.T) {
	sink := &fakeSink{err: ErrCircuitOpen}
	bw := NewBufferedWriter(sink, 10)
	buffered := 0
	bw.OnBuffer = func(n int) { buffered += n }
	flushed := 0
	bw.OnFlush = func(n int) { flushed += n }
	ctx := context.Background()

	require.NoError(t, bw.WriteRows(ctx, []model.FeatureRow{row("AAPL", 1, 40), row("AAPL", 2, 41)}))
	assert.Equal(t, 2, bw.Pending())
	assert.Equal(t, 2, buffered)

	sink.err = nil
	require.NoError(t, bw.WriteRows(ctx, []model.FeatureRow{row("AAPL", 3, 42)}))
	assert.Equal(t, 0, bw.Pending())
	assert.Equal(t, 2, flushed)

	last := sink.calls[len(sink.calls)-1]
	require.Len(t, last, 3)
	assert.Equal(t, 1, last[0].TS.Day())
	assert.Equal(t, 3, last[2].TS.Day())
}

func TestBufferedWriterDropsOldest(t *testing.T) {
	sink := &fakeSink{err: ErrCircuitOpen}
	bw := NewBufferedWriter(sink, 2)
	dropped := 0
	bw.OnDrop = func(n int) { dropped += n }
	ctx := context.Background()

	require.NoError(t, bw.WriteRows(ctx, []model.FeatureRow{row("AAPL", 1, 1), row("AAPL", 2, 2), row("AAPL", 3, 3)}))
	assert.Equal(t, 2, bw.Pending())
	assert.Equal(t, 1, dropped)

	sink.err = nil
	require.NoError(t, bw.WriteRows(ctx, nil))
	last := sink.calls[len(sink.calls)-1]
	require.Len(t, last, 2)
	assert.Equal(t, 2, last[0].TS.Day())
}

func TestBufferedWriterReturnsOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	sink := &fakeSink{err: boom}
	bw := NewBufferedWriter(sink, 10)

	err := bw.WriteRows(context.Background(), []model.FeatureRow{row("AAPL", 1, 1)})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, bw.Pending())
}
