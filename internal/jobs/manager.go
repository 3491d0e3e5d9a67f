package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/models"
)

// JobStore is the persistence slice the manager drives, satisfied by
// *repository.JobRepository. Update enforces the field whitelist and
// terminal immutability at the query level.
type JobStore interface {
	Create(job *models.SyncJob) error
	Update(id uuid.UUID, fields map[string]interface{}) error
	Get(id, actorID uuid.UUID, isAdmin bool) (*models.SyncJob, error)
	List(actorID uuid.UUID, isAdmin bool, limit int) ([]*models.SyncJob, error)
}

// Manager owns the sync job state machine:
// queued → running → succeeded | failed, one-directional, no retry
// transition. A failed job is re-submitted as a new job.
type Manager struct {
	store JobStore
}

func NewManager(store JobStore) *Manager {
	return &Manager{store: store}
}

// Create persists a queued job snapshotting the actor's scope and section
// selection at submission time.
func (m *Manager) Create(jobType string, provider models.ImportSource, actor uuid.UUID, scope models.ScopeContext, sections []string, total int) (*models.SyncJob, error) {
	job := &models.SyncJob{
		ID:        uuid.New(),
		JobType:   jobType,
		Provider:  provider,
		Status:    models.JobQueued,
		CreatedBy: actor,
		SpaceID:   scope.SpaceID,
		LibraryID: scope.LibraryID,
		Sections:  sections,
		Progress:  &models.SyncProgress{Total: total},
	}
	if err := m.store.Create(job); err != nil {
		return nil, fmt.Errorf("create sync job: %w", err)
	}
	return job, nil
}

// Start flips a queued job to running.
func (m *Manager) Start(id uuid.UUID) error {
	return m.store.Update(id, map[string]interface{}{
		"status":     models.JobRunning,
		"started_at": time.Now(),
	})
}

// Progress overwrites the running job's progress snapshot.
func (m *Manager) Progress(id uuid.UUID, p models.SyncProgress) error {
	return m.store.Update(id, map[string]interface{}{
		"progress": p,
	})
}

// Succeed finishes the job with its final summary. The job becomes
// immutable afterwards.
func (m *Manager) Succeed(id uuid.UUID, summary interface{}, finalProgress models.SyncProgress) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return m.store.Update(id, map[string]interface{}{
		"status":      models.JobSucceeded,
		"summary":     json.RawMessage(data),
		"progress":    finalProgress,
		"finished_at": time.Now(),
	})
}

// Fail finishes the job with an error message.
func (m *Manager) Fail(id uuid.UUID, errText string) error {
	return m.store.Update(id, map[string]interface{}{
		"status":      models.JobFailed,
		"error":       errText,
		"finished_at": time.Now(),
	})
}

func (m *Manager) Get(id, actorID uuid.UUID, isAdmin bool) (*models.SyncJob, error) {
	return m.store.Get(id, actorID, isAdmin)
}

func (m *Manager) List(actorID uuid.UUID, isAdmin bool, limit int) ([]*models.SyncJob, error) {
	return m.store.List(actorID, isAdmin, limit)
}
