package httpapi

import (
	"net/http"
)

func (s *Server) handleVectorIndexes(w http.ResponseWriter, r *http.Request) {
	states, err := s.svc.VectorIndexStates(r.Context(), r.URL.Query().Get("repo"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexes": states})
}

func (s *Server) handleVectorIndexRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.VectorIndexRecommendations(r.Context(), r.URL.Query().Get("repo"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

type maintenanceRequest struct {
	Repo  string `json:"repo,omitempty"`
	Table string `json:"table" validate:"required,oneof=chunks documents summaries"`
}

type switchIndexRequest struct {
	Repo  string `json:"repo,omitempty"`
	Table string `json:"table" validate:"required,oneof=chunks documents summaries"`
	Kind  string `json:"kind" validate:"required,oneof=ivfflat hnsw"`
}

func (s *Server) handleSwitchVectorIndex(w http.ResponseWriter, r *http.Request) {
	var req switchIndexRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := s.svc.SwitchVectorIndex(r.Context(), req.Repo, req.Table, req.Kind); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": req.Table, "kind": req.Kind})
}

func (s *Server) handleRebuildVectorIndex(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	rebuilt, err := s.svc.RebuildVectorIndex(r.Context(), req.Repo, req.Table)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": req.Table, "rebuilt": rebuilt})
}

func (s *Server) handleEmbeddingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.EmbeddingStatus(r.Context(), r.URL.Query().Get("repo"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": status})
}

func (s *Server) handleEmbedMissing(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	job, created, err := s.svc.EnqueueEmbedMissing(r.Context(), req.Repo, req.Table)
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

func (s *Server) handleReembedTable(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	job, err := s.svc.ReembedTable(r.Context(), req.Repo, req.Table)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}
