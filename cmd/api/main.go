package main

import (
	"context"
	"database/sql"
	"log"

	_ "github.com/lib/pq"

	"github.com/buildtrix/mvp-studio-backend/config"
	"github.com/buildtrix/mvp-studio-backend/internal/auth"
	"github.com/buildtrix/mvp-studio-backend/internal/bootstrap"
	cronjob "github.com/buildtrix/mvp-studio-backend/internal/cron"
	"github.com/buildtrix/mvp-studio-backend/internal/genlog"
	"github.com/buildtrix/mvp-studio-backend/internal/llm"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp"
	"github.com/buildtrix/mvp-studio-backend/internal/quota"
	"github.com/buildtrix/mvp-studio-backend/internal/wizard"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	rdb, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	logDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("log db: %v", err)
	}
	defer logDB.Close()

	authClient, err := auth.InitializeFirebase(&cfg.Firebase)
	if err != nil {
		log.Fatalf("firebase: %v", err)
	}
	if authClient == nil {
		log.Println("Firebase credentials not configured, using header-based identity")
	}

	if err := bootstrap.LoadSnippets(cfg.App.SnippetsDir); err != nil {
		// Enrichment is best-effort; an empty knowledge base is fine.
		log.Printf("snippets: %v", err)
	}

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: "mvp-studio-backend",
		Version:     cfg.App.Version,
		DB:          pool,
		Redis:       rdb,
		LogDB:       logDB,
		AuthClient:  authClient,
		LLM:         llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model),
		QuotaLimit:  cfg.Quota.MonthlyLimit,
		QuotaWindow: cfg.Quota.Window(),
	})

	scheduler := cronjob.NewScheduler(
		wizard.NewSessionRepo(pool),
		mvp.NewRepo(pool),
		quota.NewStore(rdb),
		genlog.NewRepo(logDB),
		cfg.Quota.Window(),
	)
	scheduler.Start()

	log.Printf("listening on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
