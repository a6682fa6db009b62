package redis

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"market-features/internal/model"
)

const defaultMaxBuffered = 10000

type rowWriter interface {
	WriteRows(ctx context.Context, rows []model.FeatureRow) error
}

// BufferedWriter holds rows back while the breaker is open and replays them
// ahead of the next batch once a write goes through. The buffer is bounded;
// when full the oldest rows are dropped.
type BufferedWriter struct {
	inner  rowWriter
	maxBuf int
	log    *zap.Logger

	mu      sync.Mutex
	pending []model.FeatureRow

	OnBuffer func(n int) // rows added to the buffer
	OnDrop   func(n int) // rows discarded because the buffer was full
	OnFlush  func(n int) // buffered rows delivered
}

// NewBufferedWriter wraps w. maxBuffered <= 0 uses the default.
func NewBufferedWriter(w rowWriter, maxBuffered int) *BufferedWriter {
	if maxBuffered <= 0 {
		maxBuffered = defaultMaxBuffered
	}
	return &BufferedWriter{
		inner:  w,
		maxBuf: maxBuffered,
		log:    zap.L().Named("redis-buffer"),
	}
}

// WriteRows writes pending rows followed by rows. An open breaker is not an
// error: the rows are kept for later. Other failures are returned and the
// rows are kept as well.
func (b *BufferedWriter) WriteRows(ctx context.Context, rows []model.FeatureRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	flushed := len(b.pending)
	batch := rows
	if flushed > 0 {
		batch = make([]model.FeatureRow, 0, flushed+len(rows))
		batch = append(batch, b.pending...)
		batch = append(batch, rows...)
	}
	if len(batch) == 0 {
		return nil
	}

	err := b.inner.WriteRows(ctx, batch)
	if err == nil {
		b.pending = nil
		if flushed > 0 {
			b.log.Info("flushed buffered rows", zap.Int("rows", flushed))
			if b.OnFlush != nil {
				b.OnFlush(flushed)
			}
		}
		return nil
	}

	b.keep(batch, len(rows))
	if errors.Is(err, ErrCircuitOpen) {
		return nil
	}
	return err
}

// keep replaces the buffer with the tail of batch that fits. added is how
// many rows of batch are new.
func (b *BufferedWriter) keep(batch []model.FeatureRow, added int) {
	dropped := 0
	if len(batch) > b.maxBuf {
		dropped = len(batch) - b.maxBuf
		batch = batch[dropped:]
	}
	b.pending = append(b.pending[:0:0], batch...)
	if b.OnBuffer != nil && added > 0 {
		b.OnBuffer(added)
	}
	if dropped > 0 {
		b.log.Warn("buffer full, dropping oldest rows", zap.Int("dropped", dropped))
		if b.OnDrop != nil {
			b.OnDrop(dropped)
		}
	}
}

// Pending returns the number of buffered rows.
func (b *BufferedWriter) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close closes the wrapped writer if it has a Close method. Pending rows are
// discarded.
func (b *BufferedWriter) Close() error {
	b.mu.Lock()
	n := len(b.pending)
	b.pending = nil
	b.mu.Unlock()
	if n > 0 {
		b.log.Warn("discarding buffered rows on close", zap.Int("rows", n))
	}
	if c, ok := b.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
