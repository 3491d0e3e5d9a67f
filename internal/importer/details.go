package importer

import (
	"encoding/json"

	"github.com/hkrewson/collectz/internal/models"
)

// Per-media-type detail field allow-lists. Keys outside the resolved type's
// list are dropped at write time, never persisted.
var typeDetailFields = map[models.MediaType][]string{
	models.MediaTypeMovie:     {"edition", "studio", "collection", "imdb_id", "video_format", "audio_format", "region", "aspect_ratio"},
	models.MediaTypeTVSeries:  {"network", "seasons", "episodes", "status", "imdb_id"},
	models.MediaTypeTVEpisode: {"series_title", "season", "episode", "air_date"},
	models.MediaTypeBook:      {"author", "isbn", "publisher", "pages", "series", "edition"},
	models.MediaTypeAudio:     {"artist", "album", "tracks", "label", "disc_count"},
	models.MediaTypeGame:      {"platform", "developer", "publisher", "players", "region"},
	models.MediaTypeComicBook: {"series", "issue", "publisher", "writer", "artist", "cover_date"},
	models.MediaTypeOther:     {"category", "description"},
}

// FilterTypeDetails keeps only the keys allowed for the media type.
func FilterTypeDetails(mediaType models.MediaType, details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(typeDetailFields[mediaType]))
	for _, k := range typeDetailFields[mediaType] {
		allowed[k] = true
	}
	out := make(map[string]string)
	for k, v := range details {
		if allowed[k] && v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MergeTypeDetails merges incoming detail fields into the stored JSON
// key-by-key: existing keys survive unless the import carries a value for
// them, and unknown keys for the media type are dropped from both sides.
func MergeTypeDetails(existing json.RawMessage, incoming map[string]string, mediaType models.MediaType) json.RawMessage {
	merged := map[string]string{}
	if len(existing) > 0 {
		json.Unmarshal(existing, &merged)
	}
	for k, v := range incoming {
		if v != "" {
			merged[k] = v
		}
	}
	merged = FilterTypeDetails(mediaType, merged)
	if merged == nil {
		return json.RawMessage("{}")
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return json.RawMessage("{}")
	}
	return out
}
