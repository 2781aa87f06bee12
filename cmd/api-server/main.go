package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumacare/visit-scheduling/internal/api"
	"github.com/lumacare/visit-scheduling/internal/booking"
	"github.com/lumacare/visit-scheduling/internal/config"
	"github.com/lumacare/visit-scheduling/internal/db"
	redisclient "github.com/lumacare/visit-scheduling/internal/redis"
	"github.com/lumacare/visit-scheduling/internal/schedule"
	"github.com/lumacare/visit-scheduling/internal/visit"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("timezone error: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres and apply migrations
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migCtx, cfg.PostgresDSN)
	cancelMig()
	if err != nil {
		log.Fatalf("migration error: %v", err)
	}
	log.Println("migrations applied")

	// Connect Redis
	rdb, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	repo := visit.NewPgRepository(pgPool)
	index := booking.NewIndex()
	locker := redisclient.NewRedisCaregiverLocker(rdb, cfg.LockTTL)
	svc := schedule.NewService(repo, index, locker, cfg, loc)

	warmCtx, cancelWarm := context.WithTimeout(rootCtx, 30*time.Second)
	loaded, err := svc.WarmUp(warmCtx)
	cancelWarm()
	if err != nil {
		log.Fatalf("interval index warm-up error: %v", err)
	}
	log.Printf("interval index warmed with %d bookings", loaded)

	// Keep the index bounded to the look-back horizon.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				svc.PruneIndex()
			}
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Location: loc,
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}
