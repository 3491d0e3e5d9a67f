package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/models"
)

const variantColumns = `id, media_item_id, source, item_key, part_key, edition, container,
	video_codec, audio_codec, resolution, duration_seconds, created_at, updated_at`

type VariantRepository struct {
	db *sql.DB
}

func NewVariantRepository(db *sql.DB) *VariantRepository {
	return &VariantRepository{db: db}
}

func scanVariant(row rowScanner) (*models.MediaVariant, error) {
	v := &models.MediaVariant{}
	err := row.Scan(&v.ID, &v.MediaItemID, &v.Source, &v.ItemKey, &v.PartKey,
		&v.Edition, &v.Container, &v.VideoCodec, &v.AudioCodec, &v.Resolution,
		&v.DurationSec, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *VariantRepository) Create(v *models.MediaVariant) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return r.db.QueryRow(`
		INSERT INTO media_variants (id, media_item_id, source, item_key, part_key, edition,
		       container, video_codec, audio_codec, resolution, duration_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		v.ID, v.MediaItemID, v.Source, v.ItemKey, v.PartKey, v.Edition,
		v.Container, v.VideoCodec, v.AudioCodec, v.Resolution, v.DurationSec,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

// FindByPartKey looks a variant up by its file-level key, unique per source.
func (r *VariantRepository) FindByPartKey(source, partKey string) (*models.MediaVariant, error) {
	row := r.db.QueryRow(`
		SELECT `+variantColumns+` FROM media_variants
		WHERE source=$1 AND part_key=$2`, source, partKey)
	return scanVariant(row)
}

// FindByItemKey looks a variant up by its item-level key, unique per source.
func (r *VariantRepository) FindByItemKey(source, itemKey string) (*models.MediaVariant, error) {
	row := r.db.QueryRow(`
		SELECT `+variantColumns+` FROM media_variants
		WHERE source=$1 AND item_key=$2`, source, itemKey)
	return scanVariant(row)
}

// MergeUpdate refreshes a matched variant, keeping present values when the
// incoming ones are NULL. The owning item is never changed here; variant
// re-parenting is not an import concern.
func (r *VariantRepository) MergeUpdate(v *models.MediaVariant) error {
	_, err := r.db.Exec(`
		UPDATE media_variants SET
			item_key         = COALESCE($2, item_key),
			part_key         = COALESCE($3, part_key),
			edition          = COALESCE($4, edition),
			container        = COALESCE($5, container),
			video_codec      = COALESCE($6, video_codec),
			audio_codec      = COALESCE($7, audio_codec),
			resolution       = COALESCE($8, resolution),
			duration_seconds = COALESCE($9, duration_seconds),
			updated_at       = NOW()
		WHERE id = $1`,
		v.ID, v.ItemKey, v.PartKey, v.Edition, v.Container,
		v.VideoCodec, v.AudioCodec, v.Resolution, v.DurationSec)
	return err
}

func (r *VariantRepository) ListByItem(itemID uuid.UUID) ([]models.MediaVariant, error) {
	rows, err := r.db.Query(`
		SELECT `+variantColumns+` FROM media_variants
		WHERE media_item_id=$1 ORDER BY created_at ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MediaVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
