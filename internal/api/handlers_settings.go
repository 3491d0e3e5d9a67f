package api

import (
	"net/http"

	"github.com/hkrewson/collectz/internal/httputil"
)

// Runtime-adjustable settings keys. Everything else lives in env config.
var settingsKeys = map[string]bool{
	"enrich_url":            true,
	"enrich_api_key":        true,
	"media_server_url":      true,
	"media_server_token":    true,
	"import_progress_every": true,
}

type SettingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !settingsKeys[key] {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "unknown setting")
		return
	}
	value, err := s.settingsRepo.Get(key)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to read setting")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"key":   key,
		"value": value,
	})
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !settingsKeys[key] {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "unknown setting")
		return
	}
	var req SettingRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if err := s.settingsRepo.Set(key, req.Value); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to save setting")
		return
	}
	// Applied to the live config on next restart (or next MergeFromDB).
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}
