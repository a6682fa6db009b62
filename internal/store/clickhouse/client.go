package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// ClientOption configures Config.
type ClientOption func(*Config)

// Config holds ClickHouse connection settings.
type Config struct {
	Addr            string // host:port of the native protocol
	Database        string
	User            string
	Password        string
	Table           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
}

// WithAddr sets host:port.
func WithAddr(addr string) ClientOption {
	return func(c *Config) { c.Addr = addr }
}

// WithDatabase sets the database name.
func WithDatabase(db string) ClientOption {
	return func(c *Config) { c.Database = db }
}

// WithCredentials sets username and password.
func WithCredentials(user, password string) ClientOption {
	return func(c *Config) {
		c.User = user
		c.Password = password
	}
}

// WithTable sets the feature table name.
func WithTable(table string) ClientOption {
	return func(c *Config) { c.Table = table }
}

// WithTimeouts sets dial and read timeouts.
func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(c *Config) {
		c.DialTimeout = dial
		c.ReadTimeout = read
	}
}

func defaults() Config {
	return Config{
		Database:        "market",
		User:            "default",
		Table:           "feature_rows",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     30 * time.Second,
	}
}

// Store writes feature rows to a ClickHouse table.
type Store struct {
	db    *sql.DB
	cfg   Config
	table string
	log   *zap.Logger
}

// New opens the connection pool, pings the server and creates the schema.
func New(ctx context.Context, opts ...ClientOption) (*Store, error) {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("clickhouse: addr is required")
	}

	db, err := sql.Open("clickhouse", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	s := &Store{
		db:    db,
		cfg:   cfg,
		table: qualified(cfg.Database, cfg.Table),
		log:   zap.L().Named("clickhouse"),
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	s.log.Info("connected", zap.String("addr", cfg.Addr), zap.String("table", s.table))
	return s, nil
}

// DB returns *sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Health pings the server.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schema(s.cfg.Database, s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func buildDSN(cfg Config) string {
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s/%s", cfg.User, cfg.Password, cfg.Addr, cfg.Database)
	sep := "?"
	if cfg.DialTimeout > 0 {
		dsn += sep + "dial_timeout=" + cfg.DialTimeout.String()
		sep = "&"
	}
	if cfg.ReadTimeout > 0 {
		dsn += sep + "read_timeout=" + cfg.ReadTimeout.String()
	}
	return dsn
}

func qualified(database, table string) string {
	if database == "" {
		return table
	}
	return database + "." + table
}
