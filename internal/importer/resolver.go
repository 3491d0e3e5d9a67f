package importer

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hkrewson/collectz/internal/models"
)

// Finder is the slice of the media store the resolver queries. Every lookup
// is scope-filtered by the implementation.
type Finder interface {
	FindByMetaValue(key, value string, scope models.ScopeContext) (*models.MediaItem, error)
	FindByCatalogID(catalogID, subtype string, scope models.ScopeContext) (*models.MediaItem, error)
	FindByTitleYearType(title string, year *int, mediaType models.MediaType, scope models.ScopeContext) (*models.MediaItem, error)
}

// lookupStrategy is one identity predicate in priority order.
type lookupStrategy struct {
	name string
	run  func(Finder) (*models.MediaItem, error)
}

// strategies returns the ordered identity lookups for an item:
// library GUID, then library item key, then catalog id+subtype, then
// normalized title+year+type. Strategies whose identifier is absent from
// the item are omitted.
func strategies(item *NormalizedItem, scope models.ScopeContext) []lookupStrategy {
	var out []lookupStrategy
	if item.LibraryGUID != nil {
		guid := *item.LibraryGUID
		out = append(out, lookupStrategy{"library_guid", func(f Finder) (*models.MediaItem, error) {
			return f.FindByMetaValue(models.MetaKeyLibraryGUID, guid, scope)
		}})
	}
	if item.LibraryItemKey != nil {
		key := *item.LibraryItemKey
		out = append(out, lookupStrategy{"library_item_key", func(f Finder) (*models.MediaItem, error) {
			return f.FindByMetaValue(models.MetaKeyLibraryItemKey, key, scope)
		}})
	}
	if item.CatalogID != nil && item.CatalogSubtype != nil {
		id, sub := *item.CatalogID, *item.CatalogSubtype
		out = append(out, lookupStrategy{"catalog_id", func(f Finder) (*models.MediaItem, error) {
			return f.FindByCatalogID(id, sub, scope)
		}})
	}
	if item.Title != "" {
		title, year, mt := item.Title, item.Year, item.MediaType
		out = append(out, lookupStrategy{"title_year_type", func(f Finder) (*models.MediaItem, error) {
			return f.FindByTitleYearType(title, year, mt, scope)
		}})
	}
	return out
}

// ResolveIdentity runs the item's lookup strategies in priority order and
// returns the first match with the strategy that produced it, or (nil, "")
// when the item is new.
func ResolveIdentity(f Finder, item *NormalizedItem, scope models.ScopeContext) (*models.MediaItem, string, error) {
	for _, s := range strategies(item, item.EffectiveScope(scope)) {
		match, err := s.run(f)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, "", fmt.Errorf("identity lookup %s: %w", s.name, err)
		}
		if match != nil {
			return match, s.name, nil
		}
	}
	return nil, "", nil
}

// LockKey builds the deterministic dedup lock key from the strongest
// identifier the item carries, prefixed with the scope fingerprint so rows
// in different scopes never contend.
func LockKey(item *NormalizedItem, scope models.ScopeContext) string {
	prefix := item.EffectiveScope(scope).Fingerprint() + "|"
	switch {
	case item.LibraryGUID != nil:
		return prefix + "guid:" + *item.LibraryGUID
	case item.LibraryItemKey != nil:
		return prefix + "itemkey:" + *item.LibraryItemKey
	case item.CatalogID != nil && item.CatalogSubtype != nil:
		return prefix + "catalog:" + *item.CatalogID + ":" + *item.CatalogSubtype
	default:
		year := "any"
		if item.Year != nil {
			year = fmt.Sprintf("%d", *item.Year)
		}
		return prefix + "title:" + normalizeTitle(item.Title) + "|year:" + year + "|type:" + string(item.MediaType)
	}
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(title))), " ")
}
