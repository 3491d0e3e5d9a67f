package repository

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkrewson/collectz/internal/models"
)

func newJobRepo(t *testing.T) (*JobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewJobRepository(db), mock
}

func TestJobUpdateBuildsSortedSetClauses(t *testing.T) {
	repo, mock := newJobRepo(t)
	id := uuid.New()
	started := time.Now()

	// Keys apply in sorted order: started_at before status.
	mock.ExpectExec(`UPDATE sync_jobs SET started_at = \$2, status = \$3, updated_at = NOW\(\)\s+WHERE id = \$1 AND status NOT IN \('succeeded', 'failed'\)`).
		WithArgs(id, started, models.JobRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(id, map[string]interface{}{
		"status":     models.JobRunning,
		"started_at": started,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobUpdateRejectsUnknownField(t *testing.T) {
	repo, _ := newJobRepo(t)
	err := repo.Update(uuid.New(), map[string]interface{}{"created_by": uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not updatable")
}

func TestJobUpdateTerminalGuard(t *testing.T) {
	repo, mock := newJobRepo(t)
	id := uuid.New()

	// Zero rows matched means the job is gone or already terminal.
	mock.ExpectExec(`UPDATE sync_jobs SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(id, map[string]interface{}{"status": models.JobRunning})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already terminal")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobUpdateMarshalsProgress(t *testing.T) {
	repo, mock := newJobRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE sync_jobs SET progress = \$2`).
		WithArgs(id, []byte(`{"total":4,"processed":2,"created":1,"updated":1,"skipped":0,"error_count":0}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(id, map[string]interface{}{
		"progress": models.SyncProgress{Total: 4, Processed: 2, Created: 1, Updated: 1},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobGetOwnershipFilter(t *testing.T) {
	repo, mock := newJobRepo(t)
	id := uuid.New()
	actor := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "job_type", "provider", "status", "created_by", "space_id", "library_id",
		"sections", "progress", "summary", "error", "created_at", "started_at", "finished_at", "updated_at",
	}).AddRow(id, "import:rows", "csv_generic", "succeeded", actor, nil, nil,
		"{}", []byte(`{"total":1,"processed":1,"created":1,"updated":0,"skipped":0,"error_count":0}`),
		nil, nil, time.Now(), nil, nil, time.Now())

	mock.ExpectQuery(`SELECT .+ FROM sync_jobs\s+WHERE id = \$1 AND \(\$2 OR created_by = \$3\)`).
		WithArgs(id, false, actor).
		WillReturnRows(rows)

	job, err := repo.Get(id, actor, false)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, job.Status)
	require.NotNil(t, job.Progress)
	assert.Equal(t, 1, job.Progress.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobGetNotOwnedReadsAsMissing(t *testing.T) {
	repo, mock := newJobRepo(t)
	id := uuid.New()
	stranger := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM sync_jobs`).
		WithArgs(id, false, stranger).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(id, stranger, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailStaleRunning(t *testing.T) {
	repo, mock := newJobRepo(t)

	// With a cutoff: only jobs stale past the interval.
	mock.ExpectExec(`UPDATE sync_jobs\s+SET status = 'failed', error = \$1, finished_at = NOW\(\), updated_at = NOW\(\)\s+WHERE status = 'running' AND updated_at < NOW\(\) - \$2::INTERVAL`).
		WithArgs("job stalled", "30 minutes").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.FailStaleRunning("30 minutes", "job stalled")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Without a cutoff: every running job (the startup sweep).
	mock.ExpectExec(`UPDATE sync_jobs\s+SET status = 'failed', error = \$1, finished_at = NOW\(\), updated_at = NOW\(\)\s+WHERE status = 'running'$`).
		WithArgs("interrupted by restart").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err = repo.FailStaleRunning("", "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, mock.ExpectationsWereMet())
}
