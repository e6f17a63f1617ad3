package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/regmarket/namereg/internal/adapters/api"
	"github.com/regmarket/namereg/internal/adapters/cache"
	"github.com/regmarket/namereg/internal/adapters/events"
	"github.com/regmarket/namereg/internal/adapters/gate"
	"github.com/regmarket/namereg/internal/adapters/repository"
	"github.com/regmarket/namereg/internal/adapters/routing"
	"github.com/regmarket/namereg/internal/adapters/vault"
	"github.com/regmarket/namereg/internal/config"
	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
	"github.com/regmarket/namereg/internal/core/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo ports.RegistryRepository
	if cfg.Database.URL != "" {
		db, err := sql.Open("pgx", cfg.Database.URL)
		if err != nil {
			log.Fatalf("unable to connect to database: %v", err)
		}
		defer db.Close()

		pg := repository.NewPostgresRepository(db)
		if err := pg.InitSchema(ctx); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
		repo = pg
		logger.Info("using postgres repository")
	} else {
		repo = repository.NewMemoryRepository()
		logger.Warn("DATABASE_URL not set, registry state will not survive restarts")
	}

	if err := seedFees(ctx, repo, cfg); err != nil {
		log.Fatalf("failed to seed fee schedule: %v", err)
	}

	sinks := []ports.EventSink{events.NewStoreSink(repo)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			log.Fatalf("failed to build kafka sink: %v", err)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		logger.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	svc := services.NewRegistrar(repo, vault.NewMemory(), gate.NewStatic(cfg.Registrar.Admins...), events.NewFanout(logger, sinks...), logger)

	var shared *cache.Redis
	if cfg.Redis.Addr != "" {
		shared = cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := shared.Ping(ctx); err != nil {
			logger.Warn("could not ping redis", "addr", cfg.Redis.Addr, "error", err)
		}
	}
	resolver := cache.NewResolver(svc, cache.NewLocal(), shared, cfg.Cache.TTL, logger)

	limiter := api.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst)
	mux := http.NewServeMux()
	api.NewHandler(resolver, repo, limiter).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("registrar API listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		resolver.Listen(ctx)
		return nil
	})

	if cfg.Anycast.Enabled {
		bgp := routing.NewGoBGPAdapter(logger)
		bgp.SetConfig(cfg.Anycast.RouterID, 0, cfg.Anycast.NextHop)
		if err := bgp.Start(ctx, cfg.Anycast.LocalASN, cfg.Anycast.PeerASN, cfg.Anycast.PeerIP); err != nil {
			log.Fatalf("failed to start BGP: %v", err)
		}
		defer bgp.Stop()

		manager := services.NewAnycastManager(resolver, bgp, routing.NewSystemVIPAdapter(logger), cfg.Anycast.VIP, cfg.Anycast.Iface, logger)
		g.Go(func() error {
			manager.Start(ctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	logger.Info("shutdown complete")
}

// seedFees writes the configured fee schedule on first boot. A non-zero
// schedule already in the store wins, admins change it through the API.
func seedFees(ctx context.Context, repo ports.RegistryRepository, cfg config.Config) error {
	fees, err := repo.GetFees(ctx)
	if err != nil {
		return err
	}
	if fees.Initial != 0 || fees.RenewPerPeriod != 0 {
		return nil
	}
	return repo.SaveFees(ctx, domain.Fees{
		Initial:        cfg.Registrar.InitialFee,
		RenewPerPeriod: cfg.Registrar.RenewFee,
	})
}
