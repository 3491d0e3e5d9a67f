package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/dedup"
	"github.com/hkrewson/collectz/internal/models"
)

// MediaStore is the slice of the catalog store the upsert engine writes
// through.
type MediaStore interface {
	Finder
	Create(m *models.MediaItem) error
	MergeUpdate(m *models.MediaItem) error
	UpsertMeta(itemID uuid.UUID, key, value string) error
}

// VariantStore handles the file/edition-level records under an item.
type VariantStore interface {
	Create(v *models.MediaVariant) error
	FindByPartKey(source, partKey string) (*models.MediaVariant, error)
	FindByItemKey(source, itemKey string) (*models.MediaVariant, error)
	MergeUpdate(v *models.MediaVariant) error
}

// Engine performs the match-then-merge-or-create write for one normalized
// item, serialized under the item's dedup lock key.
type Engine struct {
	media    MediaStore
	variants VariantStore
	locker   dedup.Locker
}

func NewEngine(media MediaStore, variants VariantStore, locker dedup.Locker) *Engine {
	return &Engine{media: media, variants: variants, locker: locker}
}

// Upsert resolves the item's identity inside the lock's critical section
// and either merge-updates the match or inserts a new record. The owner and
// scope apply only on insert; a merge never re-owns or re-scopes an item.
func (e *Engine) Upsert(ctx context.Context, item *NormalizedItem, scope models.ScopeContext, owner uuid.UUID, source models.ImportSource) (UpsertResult, error) {
	if item.Title == "" {
		return UpsertResult{Outcome: OutcomeInvalid, Detail: "missing title"}, nil
	}
	scope = item.EffectiveScope(scope)

	var result UpsertResult
	lockKey := LockKey(item, scope)
	err := e.locker.WithLock(ctx, lockKey, func() error {
		existing, strategy, err := ResolveIdentity(e.media, item, scope)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := e.mergeExisting(existing, item, source); err != nil {
				return fmt.Errorf("merge update (%s): %w", strategy, err)
			}
			result = UpsertResult{Outcome: OutcomeUpdated, ItemID: existing.ID}
		} else {
			created, err := e.createNew(item, scope, owner, source)
			if err != nil {
				return fmt.Errorf("create: %w", err)
			}
			result = UpsertResult{Outcome: OutcomeCreated, ItemID: created.ID}
		}

		if err := e.writeMeta(result.ItemID, item); err != nil {
			return fmt.Errorf("identity metadata: %w", err)
		}

		if item.Variant != nil {
			createdV, updatedV, err := e.upsertVariant(result.ItemID, item.Variant)
			if err != nil {
				return fmt.Errorf("variant: %w", err)
			}
			result.VariantCreated = createdV
			result.VariantUpdated = updatedV
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}

// mergeExisting updates the matched record field-by-field: absent incoming
// values never clobber present ones, the import source tag is always
// refreshed, and type details merge key-by-key under the type's allow-list.
func (e *Engine) mergeExisting(existing *models.MediaItem, item *NormalizedItem, source models.ImportSource) error {
	m := toMediaItem(item)
	m.ID = existing.ID
	m.MediaType = existing.MediaType
	m.TypeDetails = MergeTypeDetails(existing.TypeDetails, item.TypeDetails, existing.MediaType)
	m.ImportSource = source
	return e.media.MergeUpdate(m)
}

func (e *Engine) createNew(item *NormalizedItem, scope models.ScopeContext, owner uuid.UUID, source models.ImportSource) (*models.MediaItem, error) {
	m := toMediaItem(item)
	m.SpaceID = scope.SpaceID
	m.LibraryID = scope.LibraryID
	if owner != uuid.Nil {
		m.OwnerID = &owner
	}
	m.TypeDetails = MergeTypeDetails(nil, item.TypeDetails, item.MediaType)
	m.ImportSource = source
	if err := e.media.Create(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (e *Engine) writeMeta(itemID uuid.UUID, item *NormalizedItem) error {
	pairs := []struct {
		key   string
		value *string
	}{
		{models.MetaKeyLibraryGUID, item.LibraryGUID},
		{models.MetaKeyLibraryItemKey, item.LibraryItemKey},
		{models.MetaKeySectionID, item.SectionID},
	}
	for _, p := range pairs {
		if p.value == nil {
			continue
		}
		if err := e.media.UpsertMeta(itemID, p.key, *p.value); err != nil {
			return err
		}
	}
	return nil
}

// upsertVariant matches by part key first, then item key, else inserts.
func (e *Engine) upsertVariant(itemID uuid.UUID, in *VariantInput) (created, updated bool, err error) {
	v := &models.MediaVariant{
		MediaItemID: itemID,
		Source:      in.Source,
		ItemKey:     in.ItemKey,
		PartKey:     in.PartKey,
		Edition:     in.Edition,
		Container:   in.Container,
		VideoCodec:  in.VideoCodec,
		AudioCodec:  in.AudioCodec,
		Resolution:  in.Resolution,
		DurationSec: in.DurationSec,
	}

	var match *models.MediaVariant
	if in.PartKey != nil {
		match, err = e.variants.FindByPartKey(in.Source, *in.PartKey)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, false, err
		}
	}
	if match == nil && in.ItemKey != nil {
		match, err = e.variants.FindByItemKey(in.Source, *in.ItemKey)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, false, err
		}
	}

	if match != nil {
		v.ID = match.ID
		if err := e.variants.MergeUpdate(v); err != nil {
			return false, false, err
		}
		return false, true, nil
	}
	if err := e.variants.Create(v); err != nil {
		return false, false, err
	}
	return true, false, nil
}

func toMediaItem(item *NormalizedItem) *models.MediaItem {
	return &models.MediaItem{
		Title:          item.Title,
		MediaType:      item.MediaType,
		Year:           item.Year,
		ReleaseDate:    item.ReleaseDate,
		Format:         item.Format,
		Director:       item.Director,
		Genre:          item.Genre,
		Rating:         item.Rating,
		UserRating:     item.UserRating,
		RuntimeMin:     item.RuntimeMin,
		Overview:       item.Overview,
		PosterURL:      item.PosterURL,
		BackdropURL:    item.BackdropURL,
		Location:       item.Location,
		Notes:          item.Notes,
		CatalogID:      item.CatalogID,
		CatalogSubtype: item.CatalogSubtype,
		UPC:            item.UPC,
		TypeDetails:    json.RawMessage("{}"),
	}
}
