package importer

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkrewson/collectz/internal/models"
)

// fakeFinder answers each lookup strategy from a canned result and records
// the order strategies were tried in.
type fakeFinder struct {
	byMeta    map[string]*models.MediaItem
	byCatalog *models.MediaItem
	byTitle   *models.MediaItem
	calls     []string
}

func (f *fakeFinder) FindByMetaValue(key, value string, scope models.ScopeContext) (*models.MediaItem, error) {
	f.calls = append(f.calls, "meta:"+key)
	if m, ok := f.byMeta[key+"="+value]; ok {
		return m, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeFinder) FindByCatalogID(catalogID, subtype string, scope models.ScopeContext) (*models.MediaItem, error) {
	f.calls = append(f.calls, "catalog")
	if f.byCatalog != nil {
		return f.byCatalog, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeFinder) FindByTitleYearType(title string, year *int, mediaType models.MediaType, scope models.ScopeContext) (*models.MediaItem, error) {
	f.calls = append(f.calls, "title")
	if f.byTitle != nil {
		return f.byTitle, nil
	}
	return nil, sql.ErrNoRows
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestResolveIdentityStrategyOrder(t *testing.T) {
	guid := "lib://movie/abc"
	want := &models.MediaItem{ID: uuid.New()}
	f := &fakeFinder{byMeta: map[string]*models.MediaItem{
		models.MetaKeyLibraryGUID + "=" + guid: want,
	}}

	item := &NormalizedItem{
		Title:          "Arrival",
		MediaType:      models.MediaTypeMovie,
		LibraryGUID:    &guid,
		LibraryItemKey: strPtr("12345"),
		CatalogID:      strPtr("tt2543164"),
		CatalogSubtype: strPtr("movie"),
	}

	match, strategy, err := ResolveIdentity(f, item, models.ScopeContext{})
	require.NoError(t, err)
	assert.Equal(t, want.ID, match.ID)
	assert.Equal(t, "library_guid", strategy)
	// The GUID hit short-circuits the weaker strategies.
	assert.Equal(t, []string{"meta:" + models.MetaKeyLibraryGUID}, f.calls)
}

func TestResolveIdentityFallsThroughToTitle(t *testing.T) {
	want := &models.MediaItem{ID: uuid.New()}
	f := &fakeFinder{byTitle: want}

	item := &NormalizedItem{
		Title:          "Arrival",
		MediaType:      models.MediaTypeMovie,
		LibraryGUID:    strPtr("lib://movie/missing"),
		CatalogID:      strPtr("tt0"),
		CatalogSubtype: strPtr("movie"),
	}

	match, strategy, err := ResolveIdentity(f, item, models.ScopeContext{})
	require.NoError(t, err)
	assert.Equal(t, want.ID, match.ID)
	assert.Equal(t, "title_year_type", strategy)
	assert.Equal(t, []string{"meta:" + models.MetaKeyLibraryGUID, "catalog", "title"}, f.calls)
}

func TestResolveIdentityNoMatch(t *testing.T) {
	f := &fakeFinder{}
	match, strategy, err := ResolveIdentity(f, &NormalizedItem{Title: "New Thing", MediaType: models.MediaTypeBook}, models.ScopeContext{})
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Empty(t, strategy)
}

func TestLockKeyStrongestIdentifierWins(t *testing.T) {
	scope := models.ScopeContext{}
	item := &NormalizedItem{
		Title:          "Arrival",
		MediaType:      models.MediaTypeMovie,
		Year:           intPtr(2016),
		LibraryGUID:    strPtr("lib://movie/abc"),
		LibraryItemKey: strPtr("12345"),
		CatalogID:      strPtr("tt2543164"),
		CatalogSubtype: strPtr("movie"),
	}
	assert.Equal(t, "space:global|library:all|guid:lib://movie/abc", LockKey(item, scope))

	item.LibraryGUID = nil
	assert.Equal(t, "space:global|library:all|itemkey:12345", LockKey(item, scope))

	item.LibraryItemKey = nil
	assert.Equal(t, "space:global|library:all|catalog:tt2543164:movie", LockKey(item, scope))

	item.CatalogID = nil
	assert.Equal(t, "space:global|library:all|title:arrival|year:2016|type:movie", LockKey(item, scope))

	item.Year = nil
	assert.Equal(t, "space:global|library:all|title:arrival|year:any|type:movie", LockKey(item, scope))
}

func TestLockKeyNormalizesTitle(t *testing.T) {
	a := &NormalizedItem{Title: "  The   Matrix ", MediaType: models.MediaTypeMovie}
	b := &NormalizedItem{Title: "the matrix", MediaType: models.MediaTypeMovie}
	assert.Equal(t, LockKey(a, models.ScopeContext{}), LockKey(b, models.ScopeContext{}))
}

func TestLockKeyScopeIsolation(t *testing.T) {
	spaceA := uuid.New()
	spaceB := uuid.New()
	item := &NormalizedItem{Title: "Dune", MediaType: models.MediaTypeMovie, Year: intPtr(2021)}

	keyA := LockKey(item, models.ScopeContext{SpaceID: &spaceA})
	keyB := LockKey(item, models.ScopeContext{SpaceID: &spaceB})
	keyGlobal := LockKey(item, models.ScopeContext{})

	assert.NotEqual(t, keyA, keyB)
	assert.NotEqual(t, keyA, keyGlobal)

	// Same scope always yields the same key.
	again := LockKey(item, models.ScopeContext{SpaceID: &spaceA})
	assert.Equal(t, keyA, again)
}

func TestLockKeyScopeHintOverridesBatchScope(t *testing.T) {
	hinted := uuid.New()
	batch := uuid.New()
	item := &NormalizedItem{
		Title:     "Dune",
		MediaType: models.MediaTypeMovie,
		Year:      intPtr(2021),
		ScopeHint: &models.ScopeContext{SpaceID: &hinted},
	}

	// The key is built from the item's own scope, so two runs under
	// different batch scopes still contend for the same lock.
	keyA := LockKey(item, models.ScopeContext{SpaceID: &batch})
	keyB := LockKey(item, models.ScopeContext{})
	assert.Equal(t, keyA, keyB)
	assert.Contains(t, keyA, "space:"+hinted.String())
}
