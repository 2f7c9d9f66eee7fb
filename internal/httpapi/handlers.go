package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/search"
	"github.com/codemaphq/codemap/internal/service"
	"github.com/codemaphq/codemap/internal/store"
)

// decodeBody parses and validates a JSON request body.
func (s *Server) decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cmerrors.InvalidInput(fmt.Sprintf("invalid request body: %v", err))
	}
	if err := s.validate.Struct(v); err != nil {
		return cmerrors.InvalidInput(fmt.Sprintf("validation failed: %v", err))
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// --- registry ---

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.svc.ListRepos(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repos": repos})
}

func (s *Server) handleAddRepo(w http.ResponseWriter, r *http.Request) {
	var params service.AddRepoParams
	if err := s.decodeBody(r, &params); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	repo, err := s.svc.AddRepo(r.Context(), params)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.svc.ResolveRepo(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// updateRepoRequest is the partial-update body; absent fields are left
// unchanged.
type updateRepoRequest struct {
	RootPath      *string           `json:"root_path,omitempty"`
	Enabled       *bool             `json:"enabled,omitempty"`
	AutoIndex     *bool             `json:"auto_index,omitempty"`
	AutoEmbed     *bool             `json:"auto_embed,omitempty"`
	AutoWatch     *bool             `json:"auto_watch,omitempty"`
	AutoSummaries *bool             `json:"auto_summaries,omitempty"`
	Config        map[string]string `json:"config,omitempty"`
}

func (s *Server) handleUpdateRepo(w http.ResponseWriter, r *http.Request) {
	var req updateRepoRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	repo, err := s.svc.UpdateRepo(r.Context(), chi.URLParam(r, "name"), store.RepoUpdate{
		RootPath:      req.RootPath,
		Enabled:       req.Enabled,
		AutoIndex:     req.AutoIndex,
		AutoEmbed:     req.AutoEmbed,
		AutoWatch:     req.AutoWatch,
		AutoSummaries: req.AutoSummaries,
		Config:        req.Config,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (s *Server) handleRemoveRepo(w http.ResponseWriter, r *http.Request) {
	dropSchema := r.URL.Query().Get("delete_schema") == "true"
	if err := s.svc.RemoveRepo(r.Context(), chi.URLParam(r, "name"), dropSchema); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true, "schema_dropped": dropSchema})
}

// --- jobs ---

func (s *Server) handleListRepoJobs(w http.ResponseWriter, r *http.Request) {
	params := service.ListJobsParams{
		Repo:  chi.URLParam(r, "name"),
		Limit: queryInt(r, "limit", 50),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		params.Statuses = strings.Split(raw, ",")
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		params.Types = strings.Split(raw, ",")
	}
	jobs, err := s.svc.ListJobs(r.Context(), params)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleTriggerRepoJob(w http.ResponseWriter, r *http.Request) {
	var params service.TriggerJobParams
	if err := s.decodeBody(r, &params); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	params.Repo = chi.URLParam(r, "name")
	s.triggerJob(w, r, params)
}

func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	var params service.TriggerJobParams
	if err := s.decodeBody(r, &params); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.triggerJob(w, r, params)
}

func (s *Server) triggerJob(w http.ResponseWriter, r *http.Request, params service.TriggerJobParams) {
	job, created, err := s.svc.TriggerJob(r.Context(), params)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"job": job, "created": created})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type cancelJobRequest struct {
	ID string `json:"id" validate:"required"`
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	var req cancelJobRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	status, err := s.svc.CancelJob(r.Context(), req.ID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "status": status})
}

// --- search ---

type searchRequest struct {
	Repo             string         `json:"repo,omitempty"`
	Query            string         `json:"query" validate:"required"`
	TopK             int            `json:"top_k,omitempty" validate:"gte=0,lte=100"`
	Filters          search.Filters `json:"filters,omitempty"`
	RequireTextMatch bool           `json:"require_text_match,omitempty"`
}

func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	resp, repo, err := s.svc.HybridSearch(r.Context(), req.Repo, search.Request{
		Query:            req.Query,
		TopK:             req.TopK,
		Filters:          req.Filters,
		RequireTextMatch: req.RequireTextMatch,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repo":     repo.Name,
		"results":  resp.Results,
		"degraded": resp.Degraded,
		"took_ms":  resp.TookMS,
	})
}

func (s *Server) handleDocSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	resp, repo, err := s.svc.DocSearch(r.Context(), req.Repo, search.Request{
		Query: req.Query,
		TopK:  req.TopK,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repo":     repo.Name,
		"results":  resp.Results,
		"degraded": resp.Degraded,
		"took_ms":  resp.TookMS,
	})
}

type patternRequest struct {
	Repo    string `json:"repo,omitempty"`
	Pattern string `json:"pattern" validate:"required"`
	Limit   int    `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

func (s *Server) handlePatternScan(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	results, err := s.svc.PatternScan(r.Context(), req.Repo, req.Pattern, req.Limit)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// --- stats ---

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.svc.Overview(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repos": overview})
}

func (s *Server) handleDaemonStatus(w http.ResponseWriter, r *http.Request) {
	daemons, err := s.svc.DaemonStatus(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daemons": daemons})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.svc.JobStats(r.Context(), r.URL.Query().Get("repo"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.GetCapabilities())
}
