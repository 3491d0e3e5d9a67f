package api

import (
	"fmt"
	"net/http"

	"github.com/hkrewson/collectz/internal/auth"
	"github.com/hkrewson/collectz/internal/config"
	"github.com/hkrewson/collectz/internal/db"
	"github.com/hkrewson/collectz/internal/importer"
	"github.com/hkrewson/collectz/internal/jobs"
	"github.com/hkrewson/collectz/internal/repository"
	"github.com/hkrewson/collectz/internal/version"
)

type Server struct {
	config       *config.Config
	db           *db.DB
	auth         *auth.Auth
	mw           *auth.Middleware
	userRepo     *repository.UserRepository
	mediaRepo    *repository.MediaRepository
	variantRepo  *repository.VariantRepository
	settingsRepo *repository.SettingsRepository
	manager      *jobs.Manager
	queue        *jobs.Queue
	orchestrator *importer.Orchestrator
	buildInfo    version.Info
	router       *http.ServeMux
}

func NewServer(cfg *config.Config, database *db.DB, queue *jobs.Queue, manager *jobs.Manager, orch *importer.Orchestrator) (*Server, error) {
	authService, err := auth.NewAuth(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return nil, fmt.Errorf("auth init: %w", err)
	}

	userRepo := repository.NewUserRepository(database.DB)

	s := &Server{
		config:       cfg,
		db:           database,
		auth:         authService,
		mw:           auth.NewMiddleware(authService, userRepo),
		userRepo:     userRepo,
		mediaRepo:    repository.NewMediaRepository(database.DB),
		variantRepo:  repository.NewVariantRepository(database.DB),
		settingsRepo: repository.NewSettingsRepository(database.DB),
		manager:      manager,
		queue:        queue,
		orchestrator: orch,
		buildInfo:    version.Load(),
		router:       http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.router.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	// Media
	s.router.Handle("GET /api/v1/media", s.authed(s.handleListMedia))
	s.router.Handle("POST /api/v1/media", s.authed(s.handleCreateMedia))
	s.router.Handle("GET /api/v1/media/{id}", s.authed(s.handleGetMedia))
	s.router.Handle("PUT /api/v1/media/{id}", s.authed(s.handleUpdateMedia))
	s.router.Handle("DELETE /api/v1/media/{id}", s.authed(s.handleDeleteMedia))

	// Imports
	s.router.Handle("POST /api/v1/media/import/csv", s.authed(s.handleImportCSV))
	s.router.Handle("POST /api/v1/media/import/legacy", s.authed(s.handleImportLegacy))
	s.router.Handle("POST /api/v1/media/import/library", s.authed(s.handleImportLibrary))

	// Sync jobs
	s.router.Handle("GET /api/v1/media/sync-jobs", s.authed(s.handleListSyncJobs))
	s.router.Handle("GET /api/v1/media/sync-jobs/{id}", s.authed(s.handleGetSyncJob))

	// Settings (admin)
	s.router.Handle("GET /api/v1/settings/{key}", s.admin(s.handleGetSetting))
	s.router.Handle("PUT /api/v1/settings/{key}", s.admin(s.handleSetSetting))
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.mw.RequireAuth(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.mw.RequireAuth(s.mw.RequireAdmin(h))
}

// Handler returns the root handler for the HTTP server.
func (s *Server) Handler() http.Handler {
	return s.router
}
