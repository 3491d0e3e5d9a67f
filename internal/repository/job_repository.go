package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hkrewson/collectz/internal/models"
)

const syncJobColumns = `id, job_type, provider, status, created_by, space_id, library_id,
	sections, progress, summary, error, created_at, started_at, finished_at, updated_at`

// Updatable sync job fields. Anything else in an update map is rejected.
var syncJobUpdatable = map[string]bool{
	"status":      true,
	"space_id":    true,
	"library_id":  true,
	"progress":    true,
	"summary":     true,
	"error":       true,
	"started_at":  true,
	"finished_at": true,
}

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func scanSyncJob(row rowScanner) (*models.SyncJob, error) {
	j := &models.SyncJob{}
	var progress, summary []byte
	err := row.Scan(&j.ID, &j.JobType, &j.Provider, &j.Status, &j.CreatedBy,
		&j.SpaceID, &j.LibraryID, pq.Array(&j.Sections), &progress, &summary,
		&j.Error, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(progress) > 0 {
		var p models.SyncProgress
		if err := json.Unmarshal(progress, &p); err == nil {
			j.Progress = &p
		}
	}
	if len(summary) > 0 {
		j.Summary = json.RawMessage(summary)
	}
	return j, nil
}

func (r *JobRepository) Create(job *models.SyncJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	var progress []byte
	if job.Progress != nil {
		progress, _ = json.Marshal(job.Progress)
	}
	return r.db.QueryRow(`
		INSERT INTO sync_jobs (id, job_type, provider, status, created_by, space_id, library_id, sections, progress)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		job.ID, job.JobType, job.Provider, job.Status, job.CreatedBy,
		job.SpaceID, job.LibraryID, pq.Array(job.Sections), nullableJSON(progress),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

// Update applies a whitelisted partial update. Terminal jobs are immutable:
// an update matching zero rows (absent or already finished) is an error.
func (r *JobRepository) Update(id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !syncJobUpdatable[k] {
			return fmt.Errorf("sync job field %q is not updatable", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	setClauses := make([]string, 0, len(keys)+1)
	args := make([]interface{}, 0, len(keys)+1)
	args = append(args, id)
	for i, k := range keys {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", k, i+2))
		args = append(args, normalizeJobValue(k, fields[k]))
	}
	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE sync_jobs SET %s
		WHERE id = $1 AND status NOT IN ('succeeded', 'failed')`,
		strings.Join(setClauses, ", "))

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sync job %s not found or already terminal", id)
	}
	return nil
}

// Get returns the job only when the actor owns it or is elevated. Ownership
// is part of the query filter so a foreign job is indistinguishable from a
// missing one.
func (r *JobRepository) Get(id, actorID uuid.UUID, isAdmin bool) (*models.SyncJob, error) {
	row := r.db.QueryRow(`
		SELECT `+syncJobColumns+` FROM sync_jobs
		WHERE id = $1 AND ($2 OR created_by = $3)`,
		id, isAdmin, actorID)
	job, err := scanSyncJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync job not found")
	}
	return job, err
}

func (r *JobRepository) List(actorID uuid.UUID, isAdmin bool, limit int) ([]*models.SyncJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT `+syncJobColumns+` FROM sync_jobs
		WHERE $1 OR created_by = $2
		ORDER BY created_at DESC
		LIMIT $3`, isAdmin, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// FailStaleRunning terminates running jobs whose last update is older than
// the cutoff interval, or all running jobs when olderThan is empty (the
// startup sweep after a restart). Returns the number of jobs failed.
func (r *JobRepository) FailStaleRunning(olderThan string, reason string) (int, error) {
	query := `
		UPDATE sync_jobs
		SET status = 'failed', error = $1, finished_at = NOW(), updated_at = NOW()
		WHERE status = 'running'`
	args := []interface{}{reason}
	if olderThan != "" {
		query += ` AND updated_at < NOW() - $2::INTERVAL`
		args = append(args, olderThan)
	}
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func normalizeJobValue(key string, v interface{}) interface{} {
	switch key {
	case "progress", "summary":
		switch val := v.(type) {
		case nil:
			return nil
		case json.RawMessage:
			return []byte(val)
		case []byte:
			return val
		default:
			data, _ := json.Marshal(val)
			return data
		}
	}
	return v
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
