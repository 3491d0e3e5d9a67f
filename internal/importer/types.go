// Package importer implements the bulk ingestion pipeline: normalize one
// external record, resolve it against the existing catalog, and merge or
// create the canonical item under a dedup lock.
package importer

import (
	"time"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/models"
)

// VariantInput is the file/edition-level payload carried by sources that
// expose one (the media-server library does, bulk files do not).
type VariantInput struct {
	Source      string
	ItemKey     *string
	PartKey     *string
	Edition     *string
	Container   *string
	VideoCodec  *string
	AudioCodec  *string
	Resolution  *string
	DurationSec *int
}

// NormalizedItem is the canonical intermediate shape every source record is
// reduced to before identity resolution. Normalization never fails; a row
// without a usable title or type mapping still produces a partial item and
// the skip decision is made downstream.
type NormalizedItem struct {
	Title       string
	MediaType   models.MediaType
	// TypeMapped is false when the source's item type had no mapping to a
	// known media type; the orchestrator skips such rows without guessing.
	TypeMapped  bool
	Year        *int
	ReleaseDate *time.Time
	Format      *string
	Director    *string
	Genre       *string
	Rating      *string
	UserRating  *float64
	RuntimeMin  *int
	Overview    *string
	PosterURL   *string
	BackdropURL *string
	Location    *string
	Notes       *string

	CatalogID      *string
	CatalogSubtype *string
	UPC            *string

	// Foreign-library identity, recorded as auxiliary metadata on the item.
	LibraryGUID    *string
	LibraryItemKey *string
	SectionID      *string

	TypeDetails map[string]string
	Variant     *VariantInput

	// ScopeHint is a scope the source record carries itself. When present
	// it overrides the batch scope for lock keys, identity lookups, and
	// insert, so a row can land in a narrower scope than the run's.
	ScopeHint *models.ScopeContext
}

// EffectiveScope returns the scope the item is resolved and written under:
// its own hint when the record carried one, else the batch scope.
func (i *NormalizedItem) EffectiveScope(batch models.ScopeContext) models.ScopeContext {
	if i.ScopeHint != nil {
		return *i.ScopeHint
	}
	return batch
}

// Outcome classifies one item's write result.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeInvalid Outcome = "invalid"
)

// UpsertResult reports what the upsert engine did for one item.
type UpsertResult struct {
	Outcome Outcome
	ItemID  uuid.UUID
	Detail  string
	// Variant write, when the item carried one.
	VariantCreated bool
	VariantUpdated bool
}

// RowError records a contained per-row failure with the row's identity.
type RowError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// AuditRow is the per-row outcome list returned to synchronous callers.
type AuditRow struct {
	Title   string  `json:"title"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// Summary accumulates the outcome of one batch run.
type Summary struct {
	Total              int        `json:"total"`
	Processed          int        `json:"processed"`
	Created            int        `json:"created"`
	Updated            int        `json:"updated"`
	SkippedInvalid     int        `json:"skipped_invalid"`
	SkippedNonMatching int        `json:"skipped_non_matching"`
	Errors             []RowError `json:"errors"`
	EnrichmentErrors   []RowError `json:"enrichment_errors"`
	EnrichHits         int        `json:"enrich_hits,omitempty"`
	EnrichMisses       int        `json:"enrich_misses,omitempty"`
	VariantsCreated    int        `json:"variants_created,omitempty"`
	VariantsUpdated    int        `json:"variants_updated,omitempty"`
	Audit              []AuditRow `json:"-"`
}

func (s *Summary) Skipped() int {
	return s.SkippedInvalid + s.SkippedNonMatching
}

// Progress renders the summary as the snapshot persisted on a running job.
func (s *Summary) Progress() models.SyncProgress {
	return models.SyncProgress{
		Total:      s.Total,
		Processed:  s.Processed,
		Created:    s.Created,
		Updated:    s.Updated,
		Skipped:    s.Skipped(),
		ErrorCount: len(s.Errors),
	}
}

// ProgressFunc receives periodic snapshots during a batch run.
type ProgressFunc func(models.SyncProgress)
