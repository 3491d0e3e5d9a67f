package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Enums ────────────────────

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

type MediaType string

const (
	MediaTypeMovie     MediaType = "movie"
	MediaTypeTVSeries  MediaType = "tv_series"
	MediaTypeTVEpisode MediaType = "tv_episode"
	MediaTypeBook      MediaType = "book"
	MediaTypeAudio     MediaType = "audio"
	MediaTypeGame      MediaType = "game"
	MediaTypeComicBook MediaType = "comic_book"
	MediaTypeOther     MediaType = "other"
)

// ValidMediaType reports whether s is one of the known media type values.
func ValidMediaType(s string) bool {
	switch MediaType(s) {
	case MediaTypeMovie, MediaTypeTVSeries, MediaTypeTVEpisode, MediaTypeBook,
		MediaTypeAudio, MediaTypeGame, MediaTypeComicBook, MediaTypeOther:
		return true
	}
	return false
}

type ImportSource string

const (
	ImportSourceManual      ImportSource = "manual"
	ImportSourceCSV         ImportSource = "csv_generic"
	ImportSourceLegacy      ImportSource = "legacy_export"
	ImportSourceMediaServer ImportSource = "media_server"
)

// ──────────────────── User ────────────────────

type User struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Username       string     `json:"username" db:"username"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	Role           UserRole   `json:"role" db:"role"`
	DefaultSpaceID *uuid.UUID `json:"default_space_id,omitempty" db:"default_space_id"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ──────────────────── Space / Library ────────────────────

type Space struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	OwnerID   uuid.UUID `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Library struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	SpaceID   *uuid.UUID `json:"space_id,omitempty" db:"space_id"`
	Name      string     `json:"name" db:"name"`
	MediaType *MediaType `json:"media_type,omitempty" db:"media_type"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ──────────────────── Scope ────────────────────

// ScopeContext narrows every identity lookup and catalog write to an
// optional space and library. A nil field means unscoped on that axis.
type ScopeContext struct {
	SpaceID   *uuid.UUID `json:"space_id,omitempty"`
	LibraryID *uuid.UUID `json:"library_id,omitempty"`
}

// Fingerprint renders the scope as a stable string used as the prefix of
// dedup lock keys. Items in different scopes never contend for a lock.
func (s ScopeContext) Fingerprint() string {
	space := "global"
	if s.SpaceID != nil {
		space = s.SpaceID.String()
	}
	library := "all"
	if s.LibraryID != nil {
		library = s.LibraryID.String()
	}
	return "space:" + space + "|library:" + library
}

// ──────────────────── MediaItem ────────────────────

type MediaItem struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	SpaceID     *uuid.UUID `json:"space_id,omitempty" db:"space_id"`
	LibraryID   *uuid.UUID `json:"library_id,omitempty" db:"library_id"`
	OwnerID     *uuid.UUID `json:"owner_id,omitempty" db:"owner_id"`
	Title       string     `json:"title" db:"title"`
	MediaType   MediaType  `json:"media_type" db:"media_type"`
	Year        *int       `json:"year,omitempty" db:"year"`
	ReleaseDate *time.Time `json:"release_date,omitempty" db:"release_date"`
	Format      *string    `json:"format,omitempty" db:"format"`
	Director    *string    `json:"director,omitempty" db:"director"`
	Genre       *string    `json:"genre,omitempty" db:"genre"`
	Rating      *string    `json:"rating,omitempty" db:"rating"`
	UserRating  *float64   `json:"user_rating,omitempty" db:"user_rating"`
	Overview    *string    `json:"overview,omitempty" db:"overview"`
	PosterURL   *string    `json:"poster_url,omitempty" db:"poster_url"`
	BackdropURL *string    `json:"backdrop_url,omitempty" db:"backdrop_url"`
	RuntimeMin  *int       `json:"runtime_minutes,omitempty" db:"runtime_minutes"`
	Location    *string    `json:"location,omitempty" db:"location"`
	Notes       *string    `json:"notes,omitempty" db:"notes"`
	// External catalog identity (a product id plus the catalog section it
	// was found under, e.g. "movie" vs "tv").
	CatalogID      *string `json:"catalog_id,omitempty" db:"catalog_id"`
	CatalogSubtype *string `json:"catalog_subtype,omitempty" db:"catalog_subtype"`
	UPC            *string `json:"upc,omitempty" db:"upc"`
	// Per-media-type detail fields, filtered against an allow-list on write.
	TypeDetails  json.RawMessage `json:"type_details,omitempty" db:"type_details"`
	ImportSource ImportSource    `json:"import_source" db:"import_source"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Scope returns the item's own scope pair.
func (m *MediaItem) Scope() ScopeContext {
	return ScopeContext{SpaceID: m.SpaceID, LibraryID: m.LibraryID}
}

// ──────────────────── MediaVariant ────────────────────

// MediaVariant is one file- or edition-level record under a MediaItem.
// For a given source, part_key and item_key are each unique; the import
// upsert relies on those to decide update-vs-insert.
type MediaVariant struct {
	ID          uuid.UUID `json:"id" db:"id"`
	MediaItemID uuid.UUID `json:"media_item_id" db:"media_item_id"`
	Source      string    `json:"source" db:"source"`
	ItemKey     *string   `json:"item_key,omitempty" db:"item_key"`
	PartKey     *string   `json:"part_key,omitempty" db:"part_key"`
	Edition     *string   `json:"edition,omitempty" db:"edition"`
	Container   *string   `json:"container,omitempty" db:"container"`
	VideoCodec  *string   `json:"video_codec,omitempty" db:"video_codec"`
	AudioCodec  *string   `json:"audio_codec,omitempty" db:"audio_codec"`
	Resolution  *string   `json:"resolution,omitempty" db:"resolution"`
	DurationSec *int      `json:"duration_seconds,omitempty" db:"duration_seconds"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ──────────────────── Auxiliary identity metadata ────────────────────

// Meta keys recorded against a MediaItem for source-specific identifiers
// that are not first-class columns.
const (
	MetaKeyLibraryGUID    = "library_guid"
	MetaKeyLibraryItemKey = "library_item_key"
	MetaKeySectionID      = "library_section_id"
)

type MediaItemMeta struct {
	ID          uuid.UUID `json:"id" db:"id"`
	MediaItemID uuid.UUID `json:"media_item_id" db:"media_item_id"`
	Key         string    `json:"key" db:"key"`
	Value       string    `json:"value" db:"value"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ──────────────────── Sync Jobs ────────────────────

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// SyncProgress is the snapshot written to a running job at fixed intervals.
type SyncProgress struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	ErrorCount int `json:"error_count"`
}

type SyncJob struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	JobType    string          `json:"job_type" db:"job_type"`
	Provider   ImportSource    `json:"provider" db:"provider"`
	Status     JobStatus       `json:"status" db:"status"`
	CreatedBy  uuid.UUID       `json:"created_by" db:"created_by"`
	SpaceID    *uuid.UUID      `json:"space_id,omitempty" db:"space_id"`
	LibraryID  *uuid.UUID      `json:"library_id,omitempty" db:"library_id"`
	Sections   []string        `json:"sections,omitempty" db:"sections"`
	Progress   *SyncProgress   `json:"progress,omitempty" db:"progress"`
	Summary    json.RawMessage `json:"summary,omitempty" db:"summary"`
	Error      *string         `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Scope returns the scope snapshot captured when the job was created.
func (j *SyncJob) Scope() ScopeContext {
	return ScopeContext{SpaceID: j.SpaceID, LibraryID: j.LibraryID}
}
