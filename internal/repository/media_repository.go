package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/models"
)

// ErrNotFound is returned by lookup helpers when no row matches. Callers in
// the import pipeline treat it as "no existing identity", not as a failure.
var ErrNotFound = sql.ErrNoRows

const mediaItemColumns = `id, space_id, library_id, owner_id, title, media_type, year, release_date,
	format, director, genre, rating, user_rating, overview, poster_url, backdrop_url,
	runtime_minutes, location, notes, catalog_id, catalog_subtype, upc, type_details,
	import_source, created_at, updated_at`

type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMediaItem(row rowScanner) (*models.MediaItem, error) {
	m := &models.MediaItem{}
	err := row.Scan(&m.ID, &m.SpaceID, &m.LibraryID, &m.OwnerID, &m.Title, &m.MediaType,
		&m.Year, &m.ReleaseDate, &m.Format, &m.Director, &m.Genre, &m.Rating,
		&m.UserRating, &m.Overview, &m.PosterURL, &m.BackdropURL, &m.RuntimeMin,
		&m.Location, &m.Notes, &m.CatalogID, &m.CatalogSubtype, &m.UPC,
		&m.TypeDetails, &m.ImportSource, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MediaRepository) Create(m *models.MediaItem) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.TypeDetails == nil {
		m.TypeDetails = json.RawMessage("{}")
	}
	return r.db.QueryRow(`
		INSERT INTO media_items (id, space_id, library_id, owner_id, title, media_type, year,
		       release_date, format, director, genre, rating, user_rating, overview,
		       poster_url, backdrop_url, runtime_minutes, location, notes,
		       catalog_id, catalog_subtype, upc, type_details, import_source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		RETURNING created_at, updated_at`,
		m.ID, m.SpaceID, m.LibraryID, m.OwnerID, m.Title, m.MediaType, m.Year,
		m.ReleaseDate, m.Format, m.Director, m.Genre, m.Rating, m.UserRating, m.Overview,
		m.PosterURL, m.BackdropURL, m.RuntimeMin, m.Location, m.Notes,
		m.CatalogID, m.CatalogSubtype, m.UPC, m.TypeDetails, m.ImportSource,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *MediaRepository) GetByID(id uuid.UUID) (*models.MediaItem, error) {
	row := r.db.QueryRow(`SELECT `+mediaItemColumns+` FROM media_items WHERE id=$1`, id)
	m, err := scanMediaItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("media item not found: %w", err)
	}
	return m, err
}

// FindByMetaValue resolves an item through the auxiliary identity metadata
// table (library GUID, library item key). Oldest created record wins when
// more than one row carries the same identifier within the scope.
func (r *MediaRepository) FindByMetaValue(key, value string, scope models.ScopeContext) (*models.MediaItem, error) {
	row := r.db.QueryRow(`
		SELECT `+qualifiedMediaItemColumns()+`
		FROM media_items m
		JOIN media_item_meta mm ON mm.media_item_id = m.id
		WHERE mm.key=$1 AND mm.value=$2
		  AND m.space_id IS NOT DISTINCT FROM $3
		  AND m.library_id IS NOT DISTINCT FROM $4
		ORDER BY m.created_at ASC
		LIMIT 1`, key, value, scope.SpaceID, scope.LibraryID)
	return scanMediaItem(row)
}

// FindByCatalogID resolves an item by its external catalog id and subtype.
func (r *MediaRepository) FindByCatalogID(catalogID, subtype string, scope models.ScopeContext) (*models.MediaItem, error) {
	row := r.db.QueryRow(`
		SELECT `+mediaItemColumns+`
		FROM media_items
		WHERE catalog_id=$1 AND catalog_subtype=$2
		  AND space_id IS NOT DISTINCT FROM $3
		  AND library_id IS NOT DISTINCT FROM $4
		ORDER BY created_at ASC
		LIMIT 1`, catalogID, subtype, scope.SpaceID, scope.LibraryID)
	return scanMediaItem(row)
}

// FindByTitleYearType is the last-resort fuzzy identity: case-insensitive
// trimmed title plus media type, scoped. A NULL year on either side is a
// wildcard. Oldest created record wins the match.
func (r *MediaRepository) FindByTitleYearType(title string, year *int, mediaType models.MediaType, scope models.ScopeContext) (*models.MediaItem, error) {
	row := r.db.QueryRow(`
		SELECT `+mediaItemColumns+`
		FROM media_items
		WHERE LOWER(TRIM(title)) = LOWER(TRIM($1))
		  AND media_type = $2
		  AND ($3::INT IS NULL OR year IS NULL OR year = $3)
		  AND space_id IS NOT DISTINCT FROM $4
		  AND library_id IS NOT DISTINCT FROM $5
		ORDER BY created_at ASC
		LIMIT 1`, title, mediaType, year, scope.SpaceID, scope.LibraryID)
	return scanMediaItem(row)
}

// MergeUpdate writes the import merge for an existing item: each importable
// column keeps its current value when the incoming one is NULL, while the
// import source tag is always overwritten. TypeDetails arrives pre-merged
// by the upsert engine and replaces the stored JSON wholesale.
func (r *MediaRepository) MergeUpdate(m *models.MediaItem) error {
	if m.TypeDetails == nil {
		m.TypeDetails = json.RawMessage("{}")
	}
	res, err := r.db.Exec(`
		UPDATE media_items SET
			title           = COALESCE(NULLIF($2, ''), title),
			year            = COALESCE($3, year),
			release_date    = COALESCE($4, release_date),
			format          = COALESCE($5, format),
			director        = COALESCE($6, director),
			genre           = COALESCE($7, genre),
			rating          = COALESCE($8, rating),
			user_rating     = COALESCE($9, user_rating),
			overview        = COALESCE($10, overview),
			poster_url      = COALESCE($11, poster_url),
			backdrop_url    = COALESCE($12, backdrop_url),
			runtime_minutes = COALESCE($13, runtime_minutes),
			location        = COALESCE($14, location),
			notes           = COALESCE($15, notes),
			catalog_id      = COALESCE($16, catalog_id),
			catalog_subtype = COALESCE($17, catalog_subtype),
			upc             = COALESCE($18, upc),
			type_details    = $19,
			import_source   = $20,
			updated_at      = NOW()
		WHERE id = $1`,
		m.ID, m.Title, m.Year, m.ReleaseDate, m.Format, m.Director, m.Genre,
		m.Rating, m.UserRating, m.Overview, m.PosterURL, m.BackdropURL, m.RuntimeMin,
		m.Location, m.Notes, m.CatalogID, m.CatalogSubtype, m.UPC, m.TypeDetails,
		m.ImportSource)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("media item %s vanished during merge", m.ID)
	}
	return nil
}

// ManualUpdate writes a user edit verbatim, including explicit NULLs.
func (r *MediaRepository) ManualUpdate(m *models.MediaItem) error {
	if m.TypeDetails == nil {
		m.TypeDetails = json.RawMessage("{}")
	}
	_, err := r.db.Exec(`
		UPDATE media_items SET
			title=$2, media_type=$3, year=$4, release_date=$5, format=$6, director=$7,
			genre=$8, rating=$9, user_rating=$10, overview=$11, poster_url=$12,
			backdrop_url=$13, runtime_minutes=$14, location=$15, notes=$16,
			catalog_id=$17, catalog_subtype=$18, upc=$19, type_details=$20, updated_at=NOW()
		WHERE id=$1`,
		m.ID, m.Title, m.MediaType, m.Year, m.ReleaseDate, m.Format, m.Director,
		m.Genre, m.Rating, m.UserRating, m.Overview, m.PosterURL, m.BackdropURL,
		m.RuntimeMin, m.Location, m.Notes, m.CatalogID, m.CatalogSubtype, m.UPC,
		m.TypeDetails)
	return err
}

func (r *MediaRepository) List(scope models.ScopeContext, limit, offset int) ([]models.MediaItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT `+mediaItemColumns+`
		FROM media_items
		WHERE space_id IS NOT DISTINCT FROM $1
		  AND library_id IS NOT DISTINCT FROM $2
		ORDER BY LOWER(title) ASC
		LIMIT $3 OFFSET $4`, scope.SpaceID, scope.LibraryID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MediaItem
	for rows.Next() {
		m, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MediaRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec("DELETE FROM media_items WHERE id=$1", id)
	return err
}

func (r *MediaRepository) CountByScope(scope models.ScopeContext) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM media_items
		WHERE space_id IS NOT DISTINCT FROM $1
		  AND library_id IS NOT DISTINCT FROM $2`,
		scope.SpaceID, scope.LibraryID).Scan(&count)
	return count, err
}

// ──────────────────── Auxiliary identity metadata ────────────────────

// UpsertMeta writes a foreign identifier for an item; (item, key) is unique
// so re-imports overwrite the value in place.
func (r *MediaRepository) UpsertMeta(itemID uuid.UUID, key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO media_item_meta (id, media_item_id, key, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (media_item_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		uuid.New(), itemID, key, value)
	return err
}

func (r *MediaRepository) GetMeta(itemID uuid.UUID, key string) (string, error) {
	var value string
	err := r.db.QueryRow(`
		SELECT value FROM media_item_meta WHERE media_item_id=$1 AND key=$2`,
		itemID, key).Scan(&value)
	return value, err
}

func qualifiedMediaItemColumns() string {
	return `m.id, m.space_id, m.library_id, m.owner_id, m.title, m.media_type, m.year, m.release_date,
	m.format, m.director, m.genre, m.rating, m.user_rating, m.overview, m.poster_url, m.backdrop_url,
	m.runtime_minutes, m.location, m.notes, m.catalog_id, m.catalog_subtype, m.upc, m.type_details,
	m.import_source, m.created_at, m.updated_at`
}
