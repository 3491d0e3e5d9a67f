package jobs

import (
	"github.com/hkrewson/collectz/internal/config"
	"github.com/hkrewson/collectz/internal/importer"
)

// ──────── Payloads ────────

type RowsImportPayload struct {
	JobID    string `json:"job_id"`
	FilePath string `json:"file_path"`
}

type LibraryImportPayload struct {
	JobID string `json:"job_id"`
}

// ──────── Register all handlers ────────

func RegisterHandlers(q *Queue, orch *importer.Orchestrator, manager *Manager, cfg *config.Config) {
	q.RegisterHandler(TaskImportRows, NewRowsImportHandler(orch, manager, cfg))
	q.RegisterHandler(TaskImportLibrary, NewLibraryImportHandler(orch, manager, cfg))
}
