package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/api"
	"github.com/hkrewson/collectz/internal/auth"
	"github.com/hkrewson/collectz/internal/config"
	"github.com/hkrewson/collectz/internal/db"
	"github.com/hkrewson/collectz/internal/dedup"
	"github.com/hkrewson/collectz/internal/importer"
	"github.com/hkrewson/collectz/internal/jobs"
	"github.com/hkrewson/collectz/internal/models"
	"github.com/hkrewson/collectz/internal/repository"
	"github.com/hkrewson/collectz/internal/scheduler"
	"github.com/hkrewson/collectz/internal/version"
)

func main() {
	ver := version.Load()
	log.Printf("collectz %s starting...", ver.Version)

	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database, "migrations"); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	cfg.MergeFromDB(database.DB)

	seedAdmin(repository.NewUserRepository(database.DB))

	jobRepo := repository.NewJobRepository(database.DB)

	// Any job still "running" belonged to a previous process.
	if n, err := jobRepo.FailStaleRunning("", "interrupted by restart"); err != nil {
		log.Printf("startup job sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("marked %d interrupted job(s) as failed", n)
	}

	engine := importer.NewEngine(
		repository.NewMediaRepository(database.DB),
		repository.NewVariantRepository(database.DB),
		dedup.NewPostgresLocker(database.DB),
	)
	orch := importer.NewOrchestrator(engine)
	manager := jobs.NewManager(jobRepo)

	queue := jobs.NewQueue(cfg.RedisAddr)
	jobs.RegisterHandlers(queue, orch, manager, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Start(ctx); err != nil {
		log.Fatalf("task queue failed to start: %v", err)
	}
	defer queue.Stop()

	sched := scheduler.New(jobRepo, cfg.StaleJobAfter)
	if err := sched.Start(); err != nil {
		log.Fatalf("scheduler failed to start: %v", err)
	}
	defer sched.Stop()

	srv, err := api.NewServer(cfg, database, queue, manager, orch)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

// seedAdmin creates the initial admin account on a fresh database. The
// password comes from ADMIN_PASSWORD; without it a fresh install has no
// users and no way to log in, so the omission is logged loudly.
func seedAdmin(users *repository.UserRepository) {
	count, err := users.Count()
	if err != nil {
		log.Printf("user count failed: %v", err)
		return
	}
	if count > 0 {
		return
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Println("no users exist and ADMIN_PASSWORD is not set; logins will fail until it is")
		return
	}
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Printf("admin seed failed: %v", err)
		return
	}
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := users.Create(user); err != nil {
		log.Printf("admin seed failed: %v", err)
		return
	}
	log.Printf("created initial admin user %q", username)
}
