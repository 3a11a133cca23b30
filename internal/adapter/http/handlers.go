package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lFer17/codebase-gen/internal/port/artifactstore"
	"github.com/lFer17/codebase-gen/internal/service"
)

// Handlers holds the dependencies of the HTTP endpoints.
type Handlers struct {
	Generation    *service.GenerationService
	Archives      artifactstore.Store
	StorageDriver string
	// Connections reports open generation connections; nil reports zero.
	Connections func() int
}

type healthResponse struct {
	Status      string `json:"status"`
	ActiveJobs  int    `json:"active_jobs"`
	MaxJobs     int    `json:"max_jobs"`
	Connections int    `json:"connections"`
	Storage     string `json:"storage"`
}

// Health reports liveness and current load.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	reg := h.Generation.Registry()
	resp := healthResponse{
		Status:     "ok",
		ActiveJobs: reg.Len(),
		MaxJobs:    reg.Cap(),
		Storage:    h.StorageDriver,
	}
	if h.Connections != nil {
		resp.Connections = h.Connections()
	}
	writeJSON(w, http.StatusOK, resp)
}

type templateSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Languages   []string `json:"languages"`
	Files       []string `json:"files"`
	Builtin     bool     `json:"builtin"`
}

// ListTemplates returns the template catalog without file contents.
func (h *Handlers) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	templates := h.Generation.Planner().Catalog().Templates()
	out := make([]templateSummary, 0, len(templates))
	for i := range templates {
		t := &templates[i]
		files := make([]string, 0, len(t.Files))
		for _, f := range t.Files {
			files = append(files, f.Path)
		}
		langs := t.Languages
		if langs == nil {
			langs = []string{}
		}
		out = append(out, templateSummary{
			Name:        t.Name,
			Description: t.Description,
			Languages:   langs,
			Files:       files,
			Builtin:     t.Builtin,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListLanguages returns the languages that have a dedicated system prompt.
func (h *Handlers) ListLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"languages": h.Generation.Planner().Catalog().Languages(),
	})
}

// ListJobs returns snapshots of the jobs currently in the registry.
func (h *Handlers) ListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Generation.Registry().Active())
}

// CancelJob cancels an active job. No new units are dispatched; units
// already calling the backend finish and still report their files. The
// stream then ends with a "job cancelled" error and no archive is built.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := urlParam(r, "jobID")
	if err := sanitizeName(jobID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id: "+err.Error())
		return
	}
	if !h.Generation.Registry().Cancel(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download streams a stored archive.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	jobID := urlParam(r, "jobID")
	name := urlParam(r, "name")
	for _, v := range []string{jobID, name} {
		if err := sanitizeName(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if !strings.HasSuffix(name, ".zip") {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}

	data, err := h.Archives.Get(r.Context(), service.ArchiveKey(jobID, strings.TrimSuffix(name, ".zip")))
	if err != nil {
		writeDomainError(w, err, "archive not found")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
