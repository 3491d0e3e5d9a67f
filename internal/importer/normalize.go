package importer

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/hkrewson/collectz/internal/models"
)

var yearRe = regexp.MustCompile(`\b(1[89]\d\d|20\d\d)\b`)

// Legacy collection-export item types. Anything not listed here has no
// mapping and the row is skipped as non-matching rather than guessed.
var legacyTypeMap = map[string]models.MediaType{
	"dvd":        models.MediaTypeMovie,
	"blu-ray":    models.MediaTypeMovie,
	"bluray":     models.MediaTypeMovie,
	"4k uhd":     models.MediaTypeMovie,
	"uhd":        models.MediaTypeMovie,
	"vhs":        models.MediaTypeMovie,
	"laserdisc":  models.MediaTypeMovie,
	"tv series":  models.MediaTypeTVSeries,
	"tv box set": models.MediaTypeTVSeries,
	"book":       models.MediaTypeBook,
	"hardcover":  models.MediaTypeBook,
	"paperback":  models.MediaTypeBook,
	"audiobook":  models.MediaTypeBook,
	"music cd":   models.MediaTypeAudio,
	"cd":         models.MediaTypeAudio,
	"vinyl":      models.MediaTypeAudio,
	"cassette":   models.MediaTypeAudio,
	"video game": models.MediaTypeGame,
	"game":       models.MediaTypeGame,
	"comic":      models.MediaTypeComicBook,
	"comic book": models.MediaTypeComicBook,
}

// Media-server library item types.
var libraryTypeMap = map[string]models.MediaType{
	"movie":   models.MediaTypeMovie,
	"show":    models.MediaTypeTVSeries,
	"season":  models.MediaTypeTVSeries,
	"episode": models.MediaTypeTVEpisode,
	"artist":  models.MediaTypeAudio,
	"album":   models.MediaTypeAudio,
	"track":   models.MediaTypeAudio,
}

// NormalizeRow reduces one string-keyed source row to the canonical item
// shape. It performs no I/O and never fails: unparsable values become nil
// and a missing title or type mapping is decided downstream.
func NormalizeRow(row map[string]string, source models.ImportSource) *NormalizedItem {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := row[k]; ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	item := &NormalizedItem{
		Title: get("title"),
	}

	item.MediaType, item.TypeMapped = mapRowType(row, source)

	item.Year = parseYear(get("year", "release_year"))
	item.ReleaseDate = parseDate(get("release_date", "released", "date"))
	if item.Year == nil && item.ReleaseDate != nil {
		y := item.ReleaseDate.Year()
		item.Year = &y
	}
	if item.Year == nil {
		// Lenient fallback: pull a 4-digit year out of whatever free text
		// the date column carried.
		item.Year = parseYear(get("release_date", "released", "date"))
	}

	item.Format = strp(get("format"))
	item.Genre = strp(get("genre"))
	item.Director = strp(get("director"))
	item.Rating = strp(get("rating", "content_rating"))
	item.UserRating = parseFloat(get("user_rating", "my_rating"))
	item.RuntimeMin = parseInt(get("runtime", "runtime_minutes", "length"))
	item.Overview = strp(get("overview", "description", "plot"))
	item.Location = strp(get("location", "shelf"))
	item.Notes = strp(get("notes", "comments"))
	item.UPC = strp(get("upc", "barcode"))
	item.CatalogID = strp(get("catalog_id", "product_id"))
	item.CatalogSubtype = strp(get("catalog_subtype", "product_section"))
	if item.CatalogID != nil && item.CatalogSubtype == nil {
		sub := string(item.MediaType)
		item.CatalogSubtype = &sub
	}

	item.TypeDetails = rowTypeDetails(row, item.MediaType)
	item.ScopeHint = rowScopeHint(row)
	return item
}

// rowScopeHint reads an explicit scope the row itself carries. A malformed
// id is ignored rather than failing the row.
func rowScopeHint(row map[string]string) *models.ScopeContext {
	space := parseUUIDp(row["space_id"])
	library := parseUUIDp(row["library_id"])
	if space == nil && library == nil {
		return nil
	}
	return &models.ScopeContext{SpaceID: space, LibraryID: library}
}

// NormalizeLibraryItem reduces one foreign-library item to the canonical
// shape, carrying the library's GUID/rating-key identity and the media-part
// detail as a variant.
func NormalizeLibraryItem(li *LibraryItem) *NormalizedItem {
	item := &NormalizedItem{
		Title: strings.TrimSpace(li.Title),
	}
	item.MediaType, item.TypeMapped = mapLibraryType(li.Type)

	if li.Year > 0 {
		y := li.Year
		item.Year = &y
	}
	item.ReleaseDate = parseDate(li.OriginallyAvailableAt)
	if item.Year == nil && item.ReleaseDate != nil {
		y := item.ReleaseDate.Year()
		item.Year = &y
	}
	item.Genre = strp(strings.Join(li.Genres, ", "))
	item.Director = strp(strings.Join(li.Directors, ", "))
	item.Rating = strp(li.ContentRating)
	item.Overview = strp(li.Summary)
	item.PosterURL = strp(li.Thumb)
	item.BackdropURL = strp(li.Art)
	if li.DurationMs > 0 {
		min := li.DurationMs / 60000
		item.RuntimeMin = &min
	}

	item.LibraryGUID = strp(li.GUID)
	item.LibraryItemKey = strp(li.RatingKey)
	item.SectionID = strp(li.SectionID)

	if part := li.FirstPart(); part != nil {
		dur := 0
		if li.DurationMs > 0 {
			dur = li.DurationMs / 1000
		}
		item.Variant = &VariantInput{
			Source:     string(models.ImportSourceMediaServer),
			ItemKey:    strp(li.RatingKey),
			PartKey:    strp(part.Key),
			Container:  strp(part.Container),
			VideoCodec: strp(part.VideoCodec),
			AudioCodec: strp(part.AudioCodec),
			Resolution: strp(part.Resolution),
		}
		if dur > 0 {
			item.Variant.DurationSec = &dur
		}
	}
	return item
}

func mapRowType(row map[string]string, source models.ImportSource) (models.MediaType, bool) {
	if explicit := strings.ToLower(strings.TrimSpace(row["media_type"])); explicit != "" {
		if models.ValidMediaType(explicit) {
			return models.MediaType(explicit), true
		}
		return models.MediaTypeOther, false
	}

	if source == models.ImportSourceLegacy {
		raw := strings.ToLower(strings.TrimSpace(row["item_type"]))
		if raw == "" {
			raw = strings.ToLower(strings.TrimSpace(row["type"]))
		}
		if mt, ok := legacyTypeMap[raw]; ok {
			return mt, true
		}
		return models.MediaTypeOther, false
	}

	// Generic CSV without a media_type column defaults to movie, the
	// dominant shape of generic exports.
	return models.MediaTypeMovie, true
}

func mapLibraryType(raw string) (models.MediaType, bool) {
	if mt, ok := libraryTypeMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return mt, true
	}
	return models.MediaTypeOther, false
}

func rowTypeDetails(row map[string]string, mediaType models.MediaType) map[string]string {
	details := map[string]string{}
	for _, key := range typeDetailFields[mediaType] {
		if v := strings.TrimSpace(row[key]); v != "" {
			details[key] = v
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// ──────────────────── lenient scalar parsing ────────────────────

func strp(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func parseYear(s string) *int {
	if s == "" {
		return nil
	}
	if y, err := cast.ToIntE(s); err == nil && y >= 1800 && y <= 2100 {
		return &y
	}
	if m := yearRe.FindString(s); m != "" {
		y := cast.ToInt(m)
		return &y
	}
	return nil
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", "Jan 2, 2006", "2 January 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	if n, err := cast.ToIntE(strings.TrimSuffix(strings.TrimSpace(s), " min")); err == nil && n > 0 {
		return &n
	}
	return nil
}

func parseUUIDp(s string) *uuid.UUID {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if id, err := uuid.Parse(s); err == nil {
		return &id
	}
	return nil
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	if f, err := cast.ToFloat64E(s); err == nil {
		return &f
	}
	return nil
}
