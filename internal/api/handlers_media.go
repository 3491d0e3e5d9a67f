package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/auth"
	"github.com/hkrewson/collectz/internal/httputil"
	"github.com/hkrewson/collectz/internal/importer"
	"github.com/hkrewson/collectz/internal/models"
)

// MediaRequest carries the caller-editable fields for manual create and
// update. Scope, ownership and import source are never taken from the body.
type MediaRequest struct {
	Title          string            `json:"title"`
	MediaType      string            `json:"media_type"`
	Year           *int              `json:"year"`
	ReleaseDate    *time.Time        `json:"release_date"`
	Format         *string           `json:"format"`
	Director       *string           `json:"director"`
	Genre          *string           `json:"genre"`
	Rating         *string           `json:"rating"`
	UserRating     *float64          `json:"user_rating"`
	Overview       *string           `json:"overview"`
	PosterURL      *string           `json:"poster_url"`
	BackdropURL    *string           `json:"backdrop_url"`
	RuntimeMin     *int              `json:"runtime_minutes"`
	Location       *string           `json:"location"`
	Notes          *string           `json:"notes"`
	CatalogID      *string           `json:"catalog_id"`
	CatalogSubtype *string           `json:"catalog_subtype"`
	UPC            *string           `json:"upc"`
	TypeDetails    map[string]string `json:"type_details"`
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	scope := auth.ScopeFromContext(r.Context())

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	items, err := s.mediaRepo.List(scope, limit, offset)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list media")
		return
	}
	total, err := s.mediaRepo.CountByScope(scope)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to count media")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid media ID")
		return
	}

	item, err := s.mediaRepo.GetByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "media item not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load media item")
		return
	}

	variants, err := s.variantRepo.ListByItem(id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load variants")
		return
	}

	body := map[string]interface{}{
		"ok":       true,
		"item":     item,
		"variants": variants,
	}
	if guid, err := s.mediaRepo.GetMeta(id, models.MetaKeyLibraryGUID); err == nil && guid != "" {
		body["library_guid"] = guid
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

func (s *Server) handleCreateMedia(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	scope := auth.ScopeFromContext(r.Context())

	var req MediaRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.Title == "" {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "title is required")
		return
	}
	if req.MediaType != "" && !models.ValidMediaType(req.MediaType) {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown media type")
		return
	}
	mediaType := models.MediaType(req.MediaType)
	if req.MediaType == "" {
		mediaType = models.MediaTypeOther
	}

	item := &models.MediaItem{
		ID:           uuid.New(),
		SpaceID:      scope.SpaceID,
		LibraryID:    scope.LibraryID,
		OwnerID:      &user.UserID,
		Title:        req.Title,
		MediaType:    mediaType,
		ImportSource: models.ImportSourceManual,
	}
	applyMediaRequest(item, &req)

	if err := s.mediaRepo.Create(item); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to create media item")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":   true,
		"item": item,
	})
}

func (s *Server) handleUpdateMedia(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid media ID")
		return
	}

	var req MediaRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.Title == "" {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "title is required")
		return
	}
	if req.MediaType != "" && !models.ValidMediaType(req.MediaType) {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown media type")
		return
	}

	item, err := s.mediaRepo.GetByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "media item not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load media item")
		return
	}

	item.Title = req.Title
	if req.MediaType != "" {
		item.MediaType = models.MediaType(req.MediaType)
	}
	applyMediaRequest(item, &req)

	if err := s.mediaRepo.ManualUpdate(item); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to update media item")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"item": item,
	})
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid media ID")
		return
	}

	if _, err := s.mediaRepo.GetByID(id); errors.Is(err, sql.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "media item not found")
		return
	} else if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load media item")
		return
	}

	if err := s.mediaRepo.Delete(id); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete media item")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// applyMediaRequest copies the optional body fields onto the item. Manual
// writes are authoritative, so nil body fields clear the stored value.
func applyMediaRequest(item *models.MediaItem, req *MediaRequest) {
	item.Year = req.Year
	item.ReleaseDate = req.ReleaseDate
	item.Format = req.Format
	item.Director = req.Director
	item.Genre = req.Genre
	item.Rating = req.Rating
	item.UserRating = req.UserRating
	item.Overview = req.Overview
	item.PosterURL = req.PosterURL
	item.BackdropURL = req.BackdropURL
	item.RuntimeMin = req.RuntimeMin
	item.Location = req.Location
	item.Notes = req.Notes
	item.CatalogID = req.CatalogID
	item.CatalogSubtype = req.CatalogSubtype
	item.UPC = req.UPC

	details := importer.FilterTypeDetails(item.MediaType, req.TypeDetails)
	if len(details) == 0 {
		item.TypeDetails = json.RawMessage("{}")
	} else if raw, err := json.Marshal(details); err == nil {
		item.TypeDetails = raw
	}
}
