package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"market-features/config"
	"market-features/internal/gateway"
	"market-features/internal/metrics"
	"market-features/internal/notification"
	"market-features/internal/profile"
	"market-features/internal/store/clickhouse"
	"market-features/internal/store/redis"
	"market-features/internal/store/sqlite"
)

const (
	livenessInterval = 15 * time.Second
	shutdownTimeout  = 5 * time.Second

	breakerFailures = 5
	breakerReset    = 10 * time.Second
)

// App is the long-running feature service: scheduled batches plus the HTTP
// surface (metrics, healthz, reload, run, websocket fan-out).
type App struct {
	cfg      *config.Config
	svc      *Service
	profiles *profile.Set
	server   *metrics.Server
	health   *metrics.HealthStatus
	metrics  *metrics.Metrics

	bars    *sqlite.Reader
	sqlSink *sqlite.Writer
	rdb     *goredis.Client
	closers []io.Closer // closed in reverse order
	log     *zap.Logger
}

// NewApp opens every configured store and builds the batch service.
// A Redis server that cannot be reached disables the Redis sink; every
// other failure is returned.
func NewApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*App, error) {
	a := &App{
		cfg:     cfg,
		health:  metrics.NewHealthStatus(),
		metrics: metrics.NewMetrics(reg),
		log:     zap.L().Named("app"),
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	set, err := profile.Load(cfg.ProfileFile)
	if err != nil {
		return nil, err
	}
	p, err := set.Get(cfg.Profile)
	if err != nil {
		return nil, err
	}
	if len(cfg.Indicators) > 0 {
		p.Indicators = cfg.Indicators
	}
	active, err := profile.Compile(p)
	if err != nil {
		return nil, err
	}
	a.profiles = set

	a.sqlSink, err = sqlite.New(sqlite.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.sqlSink)
	a.bars, err = sqlite.NewReader(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.bars)
	a.health.CheckSQLite(ctx, a.sqlSink.DB())

	sinks := []Sink{{Name: "sqlite", Writer: a.sqlSink, Required: true}}

	if cfg.ClickHouseEnabled() {
		ch, err := clickhouse.New(ctx,
			clickhouse.WithAddr(cfg.ClickHouseAddr),
			clickhouse.WithDatabase(cfg.ClickHouseDatabase),
			clickhouse.WithCredentials(cfg.ClickHouseUser, cfg.ClickHousePassword),
			clickhouse.WithTable(cfg.ClickHouseTable),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		a.closers = append(a.closers, ch)
		sinks = append(sinks, Sink{Name: "clickhouse", Writer: ch})
	}

	a.health.SetRedisEnabled(cfg.RedisEnabled())
	if cfg.RedisEnabled() {
		if w := a.openRedis(); w != nil {
			sinks = append(sinks, Sink{Name: "redis", Writer: w})
		}
	}

	hub := gateway.NewHub()
	hub.OnClients = func(n int) { a.metrics.WSClients.Set(float64(n)) }
	hub.OnDrop = a.metrics.WSDrops.Inc
	a.closers = append(a.closers, hub)
	sinks = append(sinks, Sink{Name: "ws", Writer: hub})

	notifier := notification.Multi{notification.NewLogNotifier(zap.L())}
	if cfg.AlertWebhookURL != "" {
		notifier = append(notifier, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}

	a.svc, err = New(Options{
		Symbols:        cfg.Symbols,
		Source:         cfg.Source,
		Workers:        cfg.Workers,
		HistoryWindow:  cfg.HistoryWindow,
		AlertThreshold: cfg.FailureAlertThreshold,
	}, Deps{
		Bars:     a.bars,
		Sinks:    sinks,
		Ledger:   a.sqlSink,
		Notifier: notifier,
		Metrics:  a.metrics,
		Health:   a.health,
	}, active)
	if err != nil {
		return nil, err
	}

	a.server = metrics.NewServer(cfg.HTTPAddr, a.health, gatherer)
	a.svc.Routes(a.server)
	gateway.RegisterRoutes(a.server, hub)

	ok = true
	return a, nil
}

// openRedis returns the buffered Redis sink, or nil when the server is
// unreachable.
func (a *App) openRedis() *redis.BufferedWriter {
	breaker := redis.NewCircuitBreaker(breakerFailures, breakerReset)
	breaker.OnStateChange = func(from, to redis.State) {
		a.metrics.RedisCircuitBreakerState.Set(float64(to))
		if to == redis.StateOpen {
			a.metrics.RedisCircuitBreakerTrips.Inc()
		}
		a.health.SetRedisConnected(to != redis.StateOpen)
		a.log.Warn("redis circuit breaker", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	w, err := redis.New(redis.WriterConfig{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
		MaxLen:   a.cfg.RedisMaxLen,
	}, breaker)
	if err != nil {
		a.log.Warn("redis unavailable, sink disabled", zap.String("addr", a.cfg.RedisAddr), zap.Error(err))
		a.health.SetRedisConnected(false)
		return nil
	}
	a.health.SetRedisConnected(true)
	a.rdb = w.Client()
	bw := redis.NewBufferedWriter(w, 0)
	instrumentBuffer(bw, a.metrics)
	a.closers = append(a.closers, bw)
	return bw
}

func instrumentBuffer(bw *redis.BufferedWriter, m *metrics.Metrics) {
	bw.OnBuffer = func(n int) { m.RedisRowsBuffered.Add(float64(n)) }
	bw.OnDrop = func(n int) { m.RedisRowsDropped.Add(float64(n)) }
	bw.OnFlush = func(n int) { m.RedisRowsFlushed.Add(float64(n)) }
}

// Service returns the batch service.
func (a *App) Service() *Service { return a.svc }

// Run serves HTTP, runs the schedule and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	sched, err := NewScheduler(ctx, a.svc, a.cfg.Schedule)
	if err != nil {
		return err
	}

	a.server.Start()
	a.health.StartLivenessChecker(ctx, a.rdb, a.sqlSink.DB(), livenessInterval)
	if a.rdb != nil {
		a.svc.SubscribeProfiles(ctx, a.rdb, a.profiles)
	}
	sched.Start()

	active := a.svc.Active()
	a.log.Info("feature service running",
		zap.String("profile", active.Name),
		zap.Int("columns", len(active.Columns)),
		zap.Int("min_bars", active.MinBars),
		zap.String("schedule", a.cfg.Schedule),
		zap.String("http", a.cfg.HTTPAddr))

	var initial sync.WaitGroup
	if a.cfg.RunOnStart {
		initial.Add(1)
		go func() {
			defer initial.Done()
			sched.RunNow()
		}()
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	sched.Stop()
	initial.Wait()
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutCtx); err != nil {
		a.log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}
