package api

import (
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hkrewson/collectz/internal/auth"
	"github.com/hkrewson/collectz/internal/enrich"
	"github.com/hkrewson/collectz/internal/httputil"
	"github.com/hkrewson/collectz/internal/importer"
	"github.com/hkrewson/collectz/internal/jobs"
	"github.com/hkrewson/collectz/internal/models"
)

const maxImportUpload = 64 << 20 // 64 MiB

type LibraryImportRequest struct {
	Sections []string `json:"sections"`
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	s.importRows(w, r, models.ImportSourceCSV)
}

func (s *Server) handleImportLegacy(w http.ResponseWriter, r *http.Request) {
	s.importRows(w, r, models.ImportSourceLegacy)
}

func (s *Server) importRows(w http.ResponseWriter, r *http.Request, source models.ImportSource) {
	user := auth.UserFromContext(r.Context())
	scope := auth.ScopeFromContext(r.Context())

	if err := r.ParseMultipartForm(maxImportUpload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "expected multipart upload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "missing file field")
		return
	}
	defer file.Close()

	if wantsAsync(r) {
		s.queueRowsImport(w, file, source, user, scope)
		return
	}

	rows, err := parseRows(file, source)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	summary := s.orchestrator.RunRows(r.Context(), rows, importer.BatchOptions{
		Source:        source,
		Scope:         scope,
		Actor:         user.UserID,
		Enricher:      s.newEnricher(),
		ProgressEvery: s.config.ProgressEvery,
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"summary":   summary,
		"auditRows": summary.Audit,
	})
}

// queueRowsImport spools the upload to disk, records a queued job, and
// hands it to the task queue. The job ID doubles as the task's unique ID
// so re-submitting the same job cannot run it twice.
func (s *Server) queueRowsImport(w http.ResponseWriter, file io.Reader, source models.ImportSource, user *auth.ContextUserData, scope models.ScopeContext) {
	spool, err := os.CreateTemp("", "collectz-import-*")
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to spool upload")
		return
	}
	if _, err := io.Copy(spool, file); err != nil {
		spool.Close()
		os.Remove(spool.Name())
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to spool upload")
		return
	}
	spool.Close()

	job, err := s.manager.Create(jobs.TaskImportRows, source, user.UserID, scope, nil, 0)
	if err != nil {
		os.Remove(spool.Name())
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to create job")
		return
	}

	payload := jobs.RowsImportPayload{JobID: job.ID.String(), FilePath: spool.Name()}
	if _, err := s.queue.EnqueueUnique(jobs.TaskImportRows, payload, job.ID.String()); err != nil {
		log.Printf("Import: enqueue rows import %s failed: %v", job.ID, err)
		s.manager.Fail(job.ID, "failed to enqueue import task")
		os.Remove(spool.Name())
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to enqueue import")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"ok":     true,
		"queued": true,
		"job":    job,
	})
}

func (s *Server) handleImportLibrary(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	scope := auth.ScopeFromContext(r.Context())

	if !s.config.MediaServerEnabled() {
		httputil.WriteError(w, http.StatusBadRequest, "NOT_CONFIGURED", "media server integration not configured")
		return
	}

	var req LibraryImportRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			return
		}
	}

	if wantsAsync(r) {
		job, err := s.manager.Create(jobs.TaskImportLibrary, models.ImportSourceMediaServer, user.UserID, scope, req.Sections, 0)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to create job")
			return
		}
		payload := jobs.LibraryImportPayload{JobID: job.ID.String()}
		if _, err := s.queue.EnqueueUnique(jobs.TaskImportLibrary, payload, job.ID.String()); err != nil {
			log.Printf("Import: enqueue library import %s failed: %v", job.ID, err)
			s.manager.Fail(job.ID, "failed to enqueue import task")
			httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to enqueue import")
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"ok":     true,
			"queued": true,
			"job":    job,
		})
		return
	}

	client := importer.NewMediaServerClient(s.config.MediaServerURL, s.config.MediaServerToken)
	summary, err := s.orchestrator.RunLibrary(r.Context(), client, req.Sections, importer.BatchOptions{
		Source:        models.ImportSourceMediaServer,
		Scope:         scope,
		Actor:         user.UserID,
		Enricher:      s.newEnricher(),
		ProgressEvery: s.config.ProgressEvery,
	})
	if err != nil {
		httputil.WriteError(w, http.StatusBadGateway, "UPSTREAM", err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"summary":   summary,
		"auditRows": summary.Audit,
	})
}

func (s *Server) handleListSyncJobs(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	list, err := s.manager.List(user.UserID, user.IsAdmin, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list jobs")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"jobs": list,
	})
}

func (s *Server) handleGetSyncJob(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid job ID")
		return
	}

	// Ownership is part of the lookup: a job belonging to someone else is
	// indistinguishable from one that does not exist.
	job, err := s.manager.Get(id, user.UserID, user.IsAdmin)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":  true,
		"job": job,
	})
}

func wantsAsync(r *http.Request) bool {
	switch r.URL.Query().Get("async") {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseRows(file io.Reader, source models.ImportSource) ([]map[string]string, error) {
	if source == models.ImportSourceLegacy {
		return importer.ParseLegacyXML(file)
	}
	return importer.ParseCSV(file)
}

func (s *Server) newEnricher() importer.Enricher {
	if !s.config.EnrichEnabled() {
		return nil
	}
	client := enrich.NewClient(s.config.EnrichURL, s.config.EnrichKey)
	return enrich.NewGateway(client, rate.Every(s.config.EnrichMinInterval))
}
