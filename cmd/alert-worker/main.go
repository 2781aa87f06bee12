package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumacare/visit-scheduling/internal/config"
	"github.com/lumacare/visit-scheduling/internal/db"
	redisclient "github.com/lumacare/visit-scheduling/internal/redis"
	"github.com/lumacare/visit-scheduling/internal/visit"
)

// StaffingAlert is the payload the external alerting collaborator consumes to
// raise an "N unfilled shifts" notice.
type StaffingAlert struct {
	Unfilled     int       `json:"unfilled"`
	HorizonHours int       `json:"horizon_hours"`
	GeneratedAt  time.Time `json:"generated_at"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("alert-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running alert worker in env=%s interval=%s lookahead=%s", cfg.Env, cfg.WorkerInterval, cfg.AlertLookahead)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

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

	// Run once at startup
	runOnce(rootCtx, repo, rdb, cfg)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping alert worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, repo, rdb, cfg)
		}
	}
}

func runOnce(ctx context.Context, repo visit.Repository, rdb *redis.Client, cfg config.Config) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	now := time.Now()
	count, err := repo.CountUnassignedStartingBetween(runCtx, now, now.Add(cfg.AlertLookahead))
	if err != nil {
		log.Printf("unassigned count error: %v", err)
		return
	}

	log.Printf("unfilled_visits=%d lookahead=%s", count, cfg.AlertLookahead)

	if count == 0 {
		return
	}

	alert := StaffingAlert{
		Unfilled:     count,
		HorizonHours: int(cfg.AlertLookahead.Hours()),
		GeneratedAt:  now,
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("marshal staffing alert: %v", err)
		return
	}

	if err := rdb.Publish(runCtx, cfg.AlertChannel, payload).Err(); err != nil {
		log.Printf("publish staffing alert: %v", err)
		return
	}
}
