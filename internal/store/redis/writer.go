package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"market-features/internal/model"
)

const (
	defaultMaxLen    = 5000
	defaultLatestTTL = 24 * time.Hour
	minMaxLen        = 200
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	MaxLen    int64         // approximate stream length per symbol
	LatestTTL time.Duration // TTL of the latest-row key
}

// Writer publishes feature rows: XADD to a per-symbol stream, SET of the
// newest row and PUBLISH for live subscribers, pipelined per batch.
type Writer struct {
	client    *goredis.Client
	breaker   *CircuitBreaker
	maxLen    int64
	latestTTL time.Duration
	log       *zap.Logger
}

// New creates a Redis Writer and pings the server.
func New(cfg WriterConfig, breaker *CircuitBreaker) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	w := newWriter(client, cfg, breaker)
	w.log.Info("connected", zap.String("addr", cfg.Addr), zap.Int64("max_len", w.maxLen))
	return w, nil
}

func newWriter(client *goredis.Client, cfg WriterConfig, breaker *CircuitBreaker) *Writer {
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	if maxLen < minMaxLen {
		maxLen = minMaxLen
	}
	ttl := cfg.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(5, 10*time.Second)
	}
	return &Writer{
		client:    client,
		breaker:   breaker,
		maxLen:    maxLen,
		latestTTL: ttl,
		log:       zap.L().Named("redis"),
	}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker returns the circuit breaker guarding writes.
func (w *Writer) Breaker() *CircuitBreaker { return w.breaker }

// WriteRows sends rows in a single pipeline. Every row is appended to its
// stream; only the newest row per stream updates the latest key, and only
// the newest is published.
func (w *Writer) WriteRows(ctx context.Context, rows []model.FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}
	return w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()
		queueRows(ctx, pipe, rows, w.maxLen, w.latestTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis pipeline (%d rows): %w", len(rows), err)
		}
		return nil
	})
}

// queueRows appends the commands for rows to pipe.
func queueRows(ctx context.Context, pipe goredis.Pipeliner, rows []model.FeatureRow, maxLen int64, ttl time.Duration) {
	newest := make(map[string]int, 1)
	for i := range rows {
		r := &rows[i]
		key := r.StreamKey()
		if j, ok := newest[key]; !ok || !rows[j].TS.After(r.TS) {
			newest[key] = i
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: key,
			MaxLen: maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(r.JSON())},
		})
	}
	for _, i := range newest {
		r := &rows[i]
		data := string(r.JSON())
		pipe.Set(ctx, r.LatestKey(), data, ttl)
		pipe.Publish(ctx, r.Channel(), data)
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
