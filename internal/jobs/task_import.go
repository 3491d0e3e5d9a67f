package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/hkrewson/collectz/internal/config"
	"github.com/hkrewson/collectz/internal/enrich"
	"github.com/hkrewson/collectz/internal/importer"
	"github.com/hkrewson/collectz/internal/models"
)

// ──────── Bulk-file import ────────

type RowsImportHandler struct {
	orch    *importer.Orchestrator
	manager *Manager
	cfg     *config.Config
}

func NewRowsImportHandler(orch *importer.Orchestrator, manager *Manager, cfg *config.Config) *RowsImportHandler {
	return &RowsImportHandler{orch: orch, manager: manager, cfg: cfg}
}

func (h *RowsImportHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p RowsImportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	defer os.Remove(p.FilePath)

	jobID, err := uuid.Parse(p.JobID)
	if err != nil {
		return fmt.Errorf("bad job id %q: %w", p.JobID, err)
	}
	job, err := h.manager.Get(jobID, uuid.Nil, true)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	if err := h.manager.Start(jobID); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	log.Printf("Job: rows import %s (%s) running", jobID, job.Provider)

	rows, err := parseSpoolFile(p.FilePath, job.Provider)
	if err != nil {
		// Batch-fatal: a job that never produced a row fails terminally and
		// is not retried by the queue.
		h.manager.Fail(jobID, err.Error())
		log.Printf("Job: rows import %s failed: %v", jobID, err)
		return nil
	}

	summary := h.orch.RunRows(ctx, rows, importer.BatchOptions{
		Source:        job.Provider,
		Scope:         job.Scope(),
		Actor:         job.CreatedBy,
		Enricher:      newEnricher(h.cfg),
		ProgressEvery: h.cfg.ProgressEvery,
		OnProgress: func(p models.SyncProgress) {
			if err := h.manager.Progress(jobID, p); err != nil {
				log.Printf("Job: progress update for %s failed: %v", jobID, err)
			}
		},
	})

	if err := h.manager.Succeed(jobID, summary, summary.Progress()); err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}
	log.Printf("Job: rows import %s succeeded - %d created, %d updated", jobID, summary.Created, summary.Updated)
	return nil
}

// ──────── Foreign-library import ────────

type LibraryImportHandler struct {
	orch    *importer.Orchestrator
	manager *Manager
	cfg     *config.Config
}

func NewLibraryImportHandler(orch *importer.Orchestrator, manager *Manager, cfg *config.Config) *LibraryImportHandler {
	return &LibraryImportHandler{orch: orch, manager: manager, cfg: cfg}
}

func (h *LibraryImportHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p LibraryImportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	jobID, err := uuid.Parse(p.JobID)
	if err != nil {
		return fmt.Errorf("bad job id %q: %w", p.JobID, err)
	}
	job, err := h.manager.Get(jobID, uuid.Nil, true)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	if err := h.manager.Start(jobID); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	log.Printf("Job: library import %s running (%d sections)", jobID, len(job.Sections))

	if !h.cfg.MediaServerEnabled() {
		h.manager.Fail(jobID, "media server integration not configured")
		return nil
	}
	client := importer.NewMediaServerClient(h.cfg.MediaServerURL, h.cfg.MediaServerToken)

	summary, err := h.orch.RunLibrary(ctx, client, job.Sections, importer.BatchOptions{
		Source:        models.ImportSourceMediaServer,
		Scope:         job.Scope(),
		Actor:         job.CreatedBy,
		Enricher:      newEnricher(h.cfg),
		ProgressEvery: h.cfg.ProgressEvery,
		OnProgress: func(p models.SyncProgress) {
			if err := h.manager.Progress(jobID, p); err != nil {
				log.Printf("Job: progress update for %s failed: %v", jobID, err)
			}
		},
	})
	if err != nil {
		h.manager.Fail(jobID, err.Error())
		log.Printf("Job: library import %s failed: %v", jobID, err)
		return nil
	}

	if err := h.manager.Succeed(jobID, summary, summary.Progress()); err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}
	log.Printf("Job: library import %s succeeded - %d created, %d updated, %d variants",
		jobID, summary.Created, summary.Updated, summary.VariantsCreated+summary.VariantsUpdated)
	return nil
}

// ──────── helpers ────────

// newEnricher builds the per-run enrichment gateway, or nil when the
// lookup service is not configured.
func newEnricher(cfg *config.Config) importer.Enricher {
	if !cfg.EnrichEnabled() {
		return nil
	}
	client := enrich.NewClient(cfg.EnrichURL, cfg.EnrichKey)
	return enrich.NewGateway(client, rate.Every(cfg.EnrichMinInterval))
}

func parseSpoolFile(path string, provider models.ImportSource) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	switch provider {
	case models.ImportSourceLegacy:
		return importer.ParseLegacyXML(f)
	default:
		return importer.ParseCSV(f)
	}
}
