package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"market-features/internal/model"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads back what Writer published.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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
	return &Reader{client: client}, nil
}

// Latest returns the newest row JSON for symbol, or nil when none is cached.
func (r *Reader) Latest(ctx context.Context, source, symbol string) (json.RawMessage, error) {
	key := (&model.FeatureRow{Source: source, Symbol: symbol}).LatestKey()
	data, err := r.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return data, nil
}

// Tail returns up to n rows from the symbol's stream, newest first.
func (r *Reader) Tail(ctx context.Context, source, symbol string, n int64) ([]json.RawMessage, error) {
	key := (&model.FeatureRow{Source: source, Symbol: symbol}).StreamKey()
	msgs, err := r.client.XRevRangeN(ctx, key, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", key, err)
	}
	return decodeMessages(msgs), nil
}

func decodeMessages(msgs []goredis.XMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		data, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		out = append(out, json.RawMessage(data))
	}
	return out
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
