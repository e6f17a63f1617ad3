package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/regmarket/namereg/internal/adapters/api"
	"github.com/regmarket/namereg/internal/adapters/cache"
	"github.com/regmarket/namereg/internal/adapters/events"
	"github.com/regmarket/namereg/internal/adapters/gate"
	"github.com/regmarket/namereg/internal/adapters/repository"
	"github.com/regmarket/namereg/internal/adapters/vault"
	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/services"
)

// runScaleTest stands up throwaway postgres and redis containers, seeds a
// million-name registry, and measures cold (database driven) against warm
// (cache driven) resolve performance on an in-process server.
func runScaleTest(count int, concurrency int) {
	ctx := context.Background()

	fmt.Println("Starting Scale-Test Infrastructure...")
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine", ExposedPorts: []string{"5432/tcp"},
			Env:        map[string]string{"POSTGRES_PASSWORD": "password", "POSTGRES_DB": "namereg"},
			WaitingFor: wait.ForListeningPort("5432/tcp"),
		},
		Started: true,
	})
	if err != nil {
		fmt.Printf("failed to start postgres: %v\n", err)
		return
	}
	defer pgContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "redis:7-alpine", ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		fmt.Printf("failed to start redis: %v\n", err)
		return
	}
	defer redisContainer.Terminate(ctx)

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")
	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	db, err := sql.Open("pgx", fmt.Sprintf("postgres://postgres:password@%s:%s/namereg?sslmode=disable", pgHost, pgPort.Port()))
	if err != nil {
		fmt.Printf("failed to open db: %v\n", err)
		return
	}
	defer db.Close()

	repo := repository.NewPostgresRepository(db)
	if err := repo.InitSchema(ctx); err != nil {
		fmt.Printf("failed to apply schema: %v\n", err)
		return
	}
	repo.SaveFees(ctx, domain.Fees{Initial: 1000, RenewPerPeriod: 100})

	totalNames := 1000000
	if err := seedDomains(ctx, db, totalNames); err != nil {
		fmt.Printf("seeding failed: %v\n", err)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := services.NewRegistrar(repo, vault.NewMemory(), gate.NewStatic("bench-admin"), events.NewStoreSink(repo), logger)

	shared := cache.NewRedis(fmt.Sprintf("%s:%s", redisHost, redisPort.Port()), "", 0)
	resolver := cache.NewResolver(svc, cache.NewLocal(), shared, time.Minute, logger)

	mux := http.NewServeMux()
	api.NewHandler(resolver, repo, nil).RegisterRoutes(mux)

	addr := "127.0.0.1:18080"
	srv := &http.Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	defer srv.Close()

	time.Sleep(1 * time.Second)

	fmt.Printf("\nExecuting Scale Benchmark\n")
	fmt.Println("\n--- PHASE 1: COLD RUN (Database Driven) ---")
	coldRes := runBenchmark(addr, count, concurrency, uint64(totalNames), 1.1, 100)
	fmt.Println("\n--- PHASE 2: WARM RUN (Cache Driven) ---")
	warmRes := runBenchmark(addr, count, concurrency, uint64(totalNames), 1.1, 100)

	fmt.Println("\n==========================================================")
	fmt.Println("            REGISTRY SCALE PERFORMANCE REPORT             ")
	fmt.Println("==========================================================")
	fmt.Printf("%-15s | %-15s | %-15s\n", "Metric", "Cold", "Warm")
	fmt.Println("----------------------------------------------------------")
	fmt.Printf("%-15s | %-15s | %-15s\n", "Throughput", coldRes.Throughput, warmRes.Throughput)
	fmt.Printf("%-15s | %-15s | %-15s\n", "P50 Latency", coldRes.P50, warmRes.P50)
	fmt.Printf("%-15s | %-15s | %-15s\n", "P99 Latency", coldRes.P99, warmRes.P99)
	fmt.Printf("%-15s | %-15s | %-15s\n", "Reliability", coldRes.Success, warmRes.Success)
	fmt.Println("==========================================================")
}
