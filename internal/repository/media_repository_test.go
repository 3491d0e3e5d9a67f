package repository

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkrewson/collectz/internal/models"
)

func newMediaRepo(t *testing.T) (*MediaRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMediaRepository(db), mock
}

func mediaItemRow(id uuid.UUID, title string) *sqlmock.Rows {
	cols := []string{
		"id", "space_id", "library_id", "owner_id", "title", "media_type", "year", "release_date",
		"format", "director", "genre", "rating", "user_rating", "overview", "poster_url", "backdrop_url",
		"runtime_minutes", "location", "notes", "catalog_id", "catalog_subtype", "upc", "type_details",
		"import_source", "created_at", "updated_at",
	}
	return sqlmock.NewRows(cols).AddRow(
		id, nil, nil, nil, title, "movie", 2021, nil,
		nil, nil, nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil, nil, nil, []byte(`{}`),
		"csv_generic", time.Now(), time.Now())
}

func TestFindByTitleYearTypeScopedFuzzyMatch(t *testing.T) {
	repo, mock := newMediaRepo(t)
	id := uuid.New()
	space := uuid.New()
	year := 2021

	mock.ExpectQuery(`WHERE LOWER\(TRIM\(title\)\) = LOWER\(TRIM\(\$1\)\)\s+AND media_type = \$2\s+AND \(\$3::INT IS NULL OR year IS NULL OR year = \$3\)\s+AND space_id IS NOT DISTINCT FROM \$4\s+AND library_id IS NOT DISTINCT FROM \$5\s+ORDER BY created_at ASC\s+LIMIT 1`).
		WithArgs("  DUNE ", models.MediaTypeMovie, &year, &space, nil).
		WillReturnRows(mediaItemRow(id, "Dune"))

	m, err := repo.FindByTitleYearType("  DUNE ", &year, models.MediaTypeMovie, models.ScopeContext{SpaceID: &space})
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTitleYearTypeNoMatch(t *testing.T) {
	repo, mock := newMediaRepo(t)

	mock.ExpectQuery(`WHERE LOWER\(TRIM\(title\)\)`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByTitleYearType("Nothing", nil, models.MediaTypeMovie, models.ScopeContext{})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFindByMetaValueJoinsMetaScoped(t *testing.T) {
	repo, mock := newMediaRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`JOIN media_item_meta mm ON mm\.media_item_id = m\.id\s+WHERE mm\.key=\$1 AND mm\.value=\$2\s+AND m\.space_id IS NOT DISTINCT FROM \$3\s+AND m\.library_id IS NOT DISTINCT FROM \$4`).
		WithArgs(models.MetaKeyLibraryGUID, "lib://movie/abc", nil, nil).
		WillReturnRows(mediaItemRow(id, "Arrival"))

	m, err := repo.FindByMetaValue(models.MetaKeyLibraryGUID, "lib://movie/abc", models.ScopeContext{})
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeUpdateCoalescesAndRefreshesSource(t *testing.T) {
	repo, mock := newMediaRepo(t)
	id := uuid.New()
	director := "Denis Villeneuve"

	// Every merge column coalesces against the stored value; the import
	// source and type_details always overwrite.
	mock.ExpectExec(`UPDATE media_items SET\s+title\s+= COALESCE\(NULLIF\(\$2, ''\), title\),\s+year\s+= COALESCE\(\$3, year\),.+type_details\s+= \$19,\s+import_source\s+= \$20,\s+updated_at\s+= NOW\(\)\s+WHERE id = \$1`).
		WithArgs(id, "Dune", nil, nil, nil, &director, nil,
			nil, nil, nil, nil, nil, nil,
			nil, nil, nil, nil, nil, []byte(`{}`), models.ImportSourceLegacy).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MergeUpdate(&models.MediaItem{
		ID:           id,
		Title:        "Dune",
		Director:     &director,
		TypeDetails:  json.RawMessage(`{}`),
		ImportSource: models.ImportSourceLegacy,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeUpdateVanishedRow(t *testing.T) {
	repo, mock := newMediaRepo(t)

	mock.ExpectExec(`UPDATE media_items SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MergeUpdate(&models.MediaItem{ID: uuid.New(), Title: "Gone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vanished")
}

func TestUpsertMetaConflictClause(t *testing.T) {
	repo, mock := newMediaRepo(t)
	itemID := uuid.New()

	mock.ExpectExec(`INSERT INTO media_item_meta \(id, media_item_id, key, value\)\s+VALUES \(\$1, \$2, \$3, \$4\)\s+ON CONFLICT \(media_item_id, key\) DO UPDATE SET value = EXCLUDED\.value, updated_at = NOW\(\)`).
		WithArgs(sqlmock.AnyArg(), itemID, models.MetaKeyLibraryGUID, "lib://movie/abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertMeta(itemID, models.MetaKeyLibraryGUID, "lib://movie/abc")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
