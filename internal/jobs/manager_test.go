package jobs

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkrewson/collectz/internal/models"
)

// fakeJobStore applies updates the way the repository does: whitelisted
// fields only, and terminal jobs reject every write.
type fakeJobStore struct {
	jobs map[uuid.UUID]*models.SyncJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[uuid.UUID]*models.SyncJob{}}
}

func (s *fakeJobStore) Create(job *models.SyncJob) error {
	cp := *job
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeJobStore) Update(id uuid.UUID, fields map[string]interface{}) error {
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return errors.New("sync job not found or already terminal")
	}
	for key, v := range fields {
		switch key {
		case "status":
			job.Status = v.(models.JobStatus)
		case "progress":
			p := v.(models.SyncProgress)
			job.Progress = &p
		case "summary":
			job.Summary = json.RawMessage(v.(json.RawMessage))
		case "error":
			e := v.(string)
			job.Error = &e
		case "started_at":
			ts := v.(time.Time)
			job.StartedAt = &ts
		case "finished_at":
			ts := v.(time.Time)
			job.FinishedAt = &ts
		default:
			return errors.New("field not updatable: " + key)
		}
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (s *fakeJobStore) Get(id, actorID uuid.UUID, isAdmin bool) (*models.SyncJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	if !isAdmin && job.CreatedBy != actorID {
		return nil, errors.New("not found")
	}
	return job, nil
}

func (s *fakeJobStore) List(actorID uuid.UUID, isAdmin bool, limit int) ([]*models.SyncJob, error) {
	var out []*models.SyncJob
	for _, job := range s.jobs {
		if isAdmin || job.CreatedBy == actorID {
			out = append(out, job)
		}
	}
	return out, nil
}

func TestManagerLifecycle(t *testing.T) {
	store := newFakeJobStore()
	m := NewManager(store)
	actor := uuid.New()
	space := uuid.New()

	job, err := m.Create(TaskImportRows, models.ImportSourceCSV, actor, models.ScopeContext{SpaceID: &space}, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Equal(t, actor, job.CreatedBy)
	require.NotNil(t, job.SpaceID)
	assert.Equal(t, space, *job.SpaceID)
	require.NotNil(t, job.Progress)
	assert.Equal(t, 10, job.Progress.Total)

	require.NoError(t, m.Start(job.ID))
	stored := store.jobs[job.ID]
	assert.Equal(t, models.JobRunning, stored.Status)
	require.NotNil(t, stored.StartedAt)

	require.NoError(t, m.Progress(job.ID, models.SyncProgress{Total: 10, Processed: 5, Created: 5}))
	assert.Equal(t, 5, store.jobs[job.ID].Progress.Processed)

	summary := map[string]int{"created": 8, "updated": 2}
	require.NoError(t, m.Succeed(job.ID, summary, models.SyncProgress{Total: 10, Processed: 10, Created: 8, Updated: 2}))
	stored = store.jobs[job.ID]
	assert.Equal(t, models.JobSucceeded, stored.Status)
	require.NotNil(t, stored.FinishedAt)
	assert.Equal(t, 10, stored.Progress.Processed)

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(stored.Summary, &decoded))
	assert.Equal(t, 8, decoded["created"])
}

func TestManagerTerminalJobsAreImmutable(t *testing.T) {
	store := newFakeJobStore()
	m := NewManager(store)
	actor := uuid.New()

	job, err := m.Create(TaskImportRows, models.ImportSourceCSV, actor, models.ScopeContext{}, nil, 0)
	require.NoError(t, err)
	require.NoError(t, m.Start(job.ID))
	require.NoError(t, m.Fail(job.ID, "parse error"))

	stored := store.jobs[job.ID]
	assert.Equal(t, models.JobFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, "parse error", *stored.Error)

	// No retry transition: every further write bounces.
	assert.Error(t, m.Start(job.ID))
	assert.Error(t, m.Progress(job.ID, models.SyncProgress{Processed: 1}))
	assert.Error(t, m.Succeed(job.ID, nil, models.SyncProgress{}))
	assert.Equal(t, models.JobFailed, store.jobs[job.ID].Status)
}

func TestManagerOwnershipFilter(t *testing.T) {
	store := newFakeJobStore()
	m := NewManager(store)
	owner := uuid.New()
	stranger := uuid.New()

	job, err := m.Create(TaskImportLibrary, models.ImportSourceMediaServer, owner, models.ScopeContext{}, []string{"1", "2"}, 0)
	require.NoError(t, err)

	got, err := m.Get(job.ID, owner, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, got.Sections)

	// A stranger sees the same response as for a job that does not exist.
	_, err = m.Get(job.ID, stranger, false)
	assert.Error(t, err)

	// Admins see everything.
	_, err = m.Get(job.ID, stranger, true)
	assert.NoError(t, err)

	mine, err := m.List(owner, false, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	theirs, err := m.List(stranger, false, 10)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}
