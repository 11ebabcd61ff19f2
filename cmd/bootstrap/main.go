package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/scbe-labs/gate/pkg/config"
	"github.com/scbe-labs/gate/pkg/policy"
	"github.com/scbe-labs/gate/pkg/store"
)

// bootstrap seeds the policy surfaces from the YAML document: the local
// SQLite checkpoint always, Redis and the Postgres decision log when
// configured.
func main() {
	cfg := config.Load()

	ctx := context.Background()

	log.Printf("[bootstrap] Loading policy from %s...", cfg.PolicyPath)
	doc, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("Failed to load policy: %v", err)
	}
	log.Printf("[bootstrap] %d intents, %d trust entries.", len(doc.Intents), len(doc.Trust))

	// 1. Local checkpoint
	reg := policy.NewInMemory()
	if err := doc.Apply(ctx, reg); err != nil {
		log.Fatalf("Failed to apply policy: %v", err)
	}
	snap, err := reg.Snapshot(ctx)
	if err != nil {
		log.Fatalf("Failed to snapshot registry: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.CheckpointPath)
	if err != nil {
		log.Fatalf("Failed to open checkpoint db: %v", err)
	}
	defer func() { _ = db.Close() }()

	ckpt, err := store.NewSQLiteCheckpointStore(db)
	if err != nil {
		log.Fatalf("Failed to init checkpoint store: %v", err)
	}
	if err := ckpt.Save(ctx, snap); err != nil {
		log.Fatalf("Failed to save checkpoint: %v", err)
	}
	log.Printf("[bootstrap] Checkpoint written to %s.", cfg.CheckpointPath)

	// 2. Redis registry (optional)
	if cfg.RedisAddr != "" {
		log.Printf("[bootstrap] Seeding Redis registry at %s...", cfg.RedisAddr)
		redisReg := policy.NewRedisRegistry(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		if err := doc.Apply(ctx, redisReg); err != nil {
			log.Printf(">> Warning: Failed to seed Redis: %v", err)
		} else {
			log.Println("[bootstrap] Redis registry seeded.")
		}
	}

	// 3. Postgres decision log (optional)
	if url := os.Getenv("DATABASE_URL"); url != "" {
		log.Println("[bootstrap] Migrating decision log schema...")
		pg, err := sql.Open("postgres", url)
		if err != nil {
			log.Fatalf("Failed to open postgres: %v", err)
		}
		defer func() { _ = pg.Close() }()

		if err := store.NewPostgresDecisionLog(pg).Migrate(ctx); err != nil {
			log.Printf(">> Warning: Failed to migrate decision log: %v", err)
		} else {
			log.Println("[bootstrap] Decision log ready.")
		}
	}

	log.Println("[bootstrap] Bootstrap Complete.")
}
