package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	jwttoken "certreg/internal/jwt_token"
	"certreg/internal/outbox"
	"certreg/internal/platform/config"
	"certreg/internal/platform/httpserver"
	"certreg/internal/platform/kafka/consumer"
	"certreg/internal/platform/kafka/producer"
	"certreg/internal/platform/logger"
	"certreg/internal/platform/metrics"
	"certreg/internal/platform/postgres"
	redisclient "certreg/internal/platform/redis"
	"certreg/internal/registry/handler"
	registrymetrics "certreg/internal/registry/metrics"
	"certreg/internal/registry/service"
	"certreg/internal/registry/store"
	audit "certreg/pkg/platform/audit"
	auditconsumer "certreg/pkg/platform/audit/consumer"
	"certreg/pkg/platform/audit/publishers/compliance"
	auditmemory "certreg/pkg/platform/audit/store/memory"
	auditpostgres "certreg/pkg/platform/audit/store/postgres"
	opsadmin "certreg/pkg/platform/middleware/admin"
	"certreg/pkg/platform/middleware/metadata"
	"certreg/pkg/platform/middleware/request"
	"certreg/pkg/platform/middleware/requesttime"
)

func main() {
	if err := run(); err != nil {
		slog.Error("certreg exited", "error", err)
		os.Exit(1)
	}
}

// infra holds the connections opened at startup so they can be closed in
// reverse order.
type infra struct {
	db    *sql.DB
	redis *redisclient.Client
	kafka *producer.Producer
}

func (i *infra) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		JSON:       cfg.Log.JSON,
		Service:    cfg.Log.Service,
		Version:    cfg.Log.Version,
		InstanceID: true,
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := &infra{}
	defer res.close()

	st, err := buildStore(ctx, cfg, log, res)
	if err != nil {
		return err
	}
	admin, err := cfg.AdminPrincipal()
	if err != nil {
		return err
	}
	if err := st.Bootstrap(ctx, admin); err != nil {
		return fmt.Errorf("bootstrap registry: %w", err)
	}

	reg := prometheus.DefaultRegisterer
	publisher := compliance.New(buildAuditStore(res),
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)
	registry, err := service.New(withTxTimeout(st, cfg.Database.TxTimeout),
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(registrymetrics.New(reg)),
		service.WithTracer(otel.Tracer("certreg/registry")),
	)
	if err != nil {
		return err
	}

	checkers := map[string]httpserver.Checker{"store": st.Health}
	if res.kafka != nil {
		checkers["kafka"] = res.kafka.Health
	}
	health := httpserver.NewHealth(log, checkers)

	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer)
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(request.RequestID)
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(middleware.Recoverer)
	router.Use(metrics.NewHTTP(reg).Middleware)
	router.Use(func(next http.Handler) http.Handler {
		return httplogger.LoggingMiddlewareSlog(log, next)
	})
	health.Register(router)
	if cfg.OpsToken != "" {
		router.Group(func(r chi.Router) {
			r.Use(opsadmin.RequireOpsToken(cfg.OpsToken, log))
			health.RegisterDrain(r)
		})
	}
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
		handler.New(registry, log, jwttoken.NewJWTServiceAdapter(jwtService)).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router, cfg.HTTP.ReadHeaderTimeout)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certreg", "addr", cfg.Addr, "admin", admin)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	if res.kafka != nil {
		relay, err := outbox.NewRelay(outbox.NewPostgresStore(res.db), res.kafka,
			outbox.WithLogger(log),
			outbox.WithMetrics(outbox.NewMetrics(reg)),
			outbox.WithBatchSize(cfg.Kafka.RelayBatchSize),
			outbox.WithInterval(cfg.Kafka.RelayInterval),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return relay.Run(gctx) })
	}
	if cfg.ConsumerEnabled() {
		cons, err := buildAuditConsumer(cfg, log, res)
		if err != nil {
			return err
		}
		defer cons.Close()
		routes := auditRouter(log, auditpostgres.NewLogStore(res.db))
		g.Go(func() error { return cons.Run(gctx, routes) })
	}
	g.Go(func() error {
		<-gctx.Done()
		health.Drain()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("certreg stopped")
	return nil
}

// buildStore selects the in-memory store or PostgreSQL, with the optional
// Redis read cache in front of it.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger, res *infra) (store.Store, error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, registry state is in memory and lost on exit")
		return store.NewInMemory(), nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	res.db = db
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
	}

	var st store.Store = store.NewPostgres(db)
	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		res.redis = rc
		st = store.NewRedisCache(st, rc.Client, cfg.Redis.CacheTTL, log)
		log.Info("certificate cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	if cfg.RelayEnabled() {
		prod, err := producer.New(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		res.kafka = prod
		if err := prod.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// buildAuditStore writes events to the outbox when a database is present.
func buildAuditStore(res *infra) audit.Store {
	if res.db != nil {
		return auditpostgres.New(res.db)
	}
	return auditmemory.NewInMemoryStore()
}

func buildAuditConsumer(cfg *config.Config, log *slog.Logger, res *infra) (*consumer.Consumer, error) {
	if res.db == nil {
		return nil, errors.New("audit consumer requires a database")
	}
	return consumer.New(cfg.Kafka, log)
}

func auditRouter(log *slog.Logger, sink audit.Store) *auditconsumer.Router {
	router := auditconsumer.NewRouter(log, nil)
	router.Register(string(audit.CategoryCompliance), auditconsumer.NewComplianceHandler(sink, log))
	router.Register(string(audit.CategorySecurity), auditconsumer.NewSecurityHandler(sink, log))
	return router
}
