package importer

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/enrich"
	"github.com/hkrewson/collectz/internal/models"
)

// OutcomeSkippedNonMatching is the orchestrator-level audit outcome for a
// row whose source item type had no media-type mapping.
const OutcomeSkippedNonMatching Outcome = "skipped_non_matching"

// Enricher is the per-run enrichment capability, satisfied by
// *enrich.Gateway. A nil Enricher disables enrichment for the run.
type Enricher interface {
	Lookup(ctx context.Context, title string, year *int, mediaType models.MediaType) (*enrich.Candidate, error)
}

// BatchOptions configures one batch run.
type BatchOptions struct {
	Source        models.ImportSource
	Scope         models.ScopeContext
	Actor         uuid.UUID
	Enricher      Enricher
	ProgressEvery int
	OnProgress    ProgressFunc
}

func (o *BatchOptions) progressEvery() int {
	if o.ProgressEvery > 0 {
		return o.ProgressEvery
	}
	return 25
}

// Orchestrator drives the per-item pipeline across a whole batch. Items are
// processed strictly in input order; a per-item failure is recorded and
// never stops the loop.
type Orchestrator struct {
	engine *Engine
}

func NewOrchestrator(engine *Engine) *Orchestrator {
	return &Orchestrator{engine: engine}
}

// RunRows imports a batch of string-keyed rows (CSV or legacy export).
// The rows are already in hand, so there is no batch-fatal path: the
// result is always a complete summary.
func (o *Orchestrator) RunRows(ctx context.Context, rows []map[string]string, opts BatchOptions) *Summary {
	summary := &Summary{Total: len(rows)}
	log.Printf("Import: starting %s batch of %d rows", opts.Source, len(rows))
	o.reportStart(opts, summary)

	for _, row := range rows {
		item := NormalizeRow(row, opts.Source)
		o.processItem(ctx, item, opts, summary)
		o.reportProgress(opts, summary)
	}

	log.Printf("Import: %s batch done - %d created, %d updated, %d skipped, %d errors",
		opts.Source, summary.Created, summary.Updated, summary.Skipped(), len(summary.Errors))
	return summary
}

// RunLibrary imports the selected sections of a foreign media library.
// Failing to reach the library before any item is processed aborts the
// whole run; per-item failures afterwards are contained as usual.
func (o *Orchestrator) RunLibrary(ctx context.Context, client LibraryClient, sections []string, opts BatchOptions) (*Summary, error) {
	if len(sections) == 0 {
		all, err := client.Sections(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch library sections: %w", err)
		}
		for _, s := range all {
			sections = append(sections, s.ID)
		}
	}

	var items []LibraryItem
	for _, sectionID := range sections {
		sectionItems, err := client.SectionItems(ctx, sectionID)
		if err != nil {
			return nil, fmt.Errorf("fetch library section %s: %w", sectionID, err)
		}
		items = append(items, sectionItems...)
	}

	summary := &Summary{Total: len(items)}
	log.Printf("Import: starting library batch of %d items across %d sections", len(items), len(sections))
	o.reportStart(opts, summary)

	for i := range items {
		item := NormalizeLibraryItem(&items[i])
		o.processItem(ctx, item, opts, summary)
		o.reportProgress(opts, summary)
	}

	log.Printf("Import: library batch done - %d created, %d updated, %d skipped, %d errors, %d enrich hits",
		summary.Created, summary.Updated, summary.Skipped(), len(summary.Errors), summary.EnrichHits)
	return summary, nil
}

// processItem runs normalize→enrich→upsert for one item and folds the
// outcome into the summary.
func (o *Orchestrator) processItem(ctx context.Context, item *NormalizedItem, opts BatchOptions, summary *Summary) {
	summary.Processed++

	if item.Title == "" {
		summary.SkippedInvalid++
		summary.Audit = append(summary.Audit, AuditRow{Title: "(untitled)", Outcome: OutcomeInvalid, Detail: "missing title"})
		return
	}
	if !item.TypeMapped {
		summary.SkippedNonMatching++
		summary.Audit = append(summary.Audit, AuditRow{Title: item.Title, Outcome: OutcomeSkippedNonMatching, Detail: "no media type mapping"})
		return
	}

	if opts.Enricher != nil {
		o.enrichItem(ctx, item, opts, summary)
	}

	result, err := o.engine.Upsert(ctx, item, opts.Scope, opts.Actor, opts.Source)
	if err != nil {
		// Contained: the row is recorded and the loop continues.
		log.Printf("Import: row %q failed: %v", item.Title, err)
		summary.Errors = append(summary.Errors, RowError{Title: item.Title, Detail: err.Error()})
		return
	}

	switch result.Outcome {
	case OutcomeCreated:
		summary.Created++
	case OutcomeUpdated:
		summary.Updated++
	case OutcomeInvalid:
		summary.SkippedInvalid++
	}
	if result.VariantCreated {
		summary.VariantsCreated++
	}
	if result.VariantUpdated {
		summary.VariantsUpdated++
	}
	summary.Audit = append(summary.Audit, AuditRow{Title: item.Title, Outcome: result.Outcome, Detail: result.Detail})
}

func (o *Orchestrator) enrichItem(ctx context.Context, item *NormalizedItem, opts BatchOptions, summary *Summary) {
	candidate, err := opts.Enricher.Lookup(ctx, item.Title, item.Year, item.MediaType)
	if err != nil {
		// Non-fatal: the row's own catalog write proceeds unenriched.
		summary.EnrichmentErrors = append(summary.EnrichmentErrors, RowError{Title: item.Title, Detail: err.Error()})
		return
	}
	if candidate == nil {
		summary.EnrichMisses++
		return
	}
	summary.EnrichHits++
	applyCandidate(item, candidate)
}

// applyCandidate fills in fields the source record did not carry. Source
// values always win over enrichment.
func applyCandidate(item *NormalizedItem, c *enrich.Candidate) {
	if item.CatalogID == nil && c.CatalogID != "" {
		id := c.CatalogID
		item.CatalogID = &id
		sub := c.CatalogSubtype
		if sub == "" {
			sub = string(item.MediaType)
		}
		item.CatalogSubtype = &sub
	}
	if item.Year == nil && c.Year != nil {
		item.Year = c.Year
	}
	if item.Director == nil {
		item.Director = c.Director
	}
	if item.Genre == nil {
		item.Genre = c.Genre
	}
	if item.Rating == nil {
		item.Rating = c.Rating
	}
	if item.Overview == nil {
		item.Overview = c.Overview
	}
	if item.PosterURL == nil {
		item.PosterURL = c.PosterURL
	}
	if item.BackdropURL == nil {
		item.BackdropURL = c.BackdropURL
	}
	if item.RuntimeMin == nil {
		item.RuntimeMin = c.RuntimeMin
	}
	if item.UPC == nil {
		item.UPC = c.UPC
	}
}

// reportStart publishes the zero-processed snapshot as soon as the batch
// total is known, so a poller sees the denominator before the first
// interval elapses.
func (o *Orchestrator) reportStart(opts BatchOptions, summary *Summary) {
	if opts.OnProgress != nil {
		opts.OnProgress(summary.Progress())
	}
}

// reportProgress fires the callback every N processed items and always on
// the final one, so a poller never misses the terminal snapshot.
func (o *Orchestrator) reportProgress(opts BatchOptions, summary *Summary) {
	if opts.OnProgress == nil {
		return
	}
	if summary.Processed%opts.progressEvery() == 0 || summary.Processed == summary.Total {
		opts.OnProgress(summary.Progress())
	}
}
