package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/raphaelgruber/pricecat/internal/embedding"
	"github.com/raphaelgruber/pricecat/internal/metrics"
	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/service"
)

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse lists matches closest first.
type SearchResponse struct {
	Items []models.CatalogItem `json:"items"`
}

// VectorizeRequest is the body of POST /vectorize. Both fields are optional.
type VectorizeRequest struct {
	BatchSize int  `json:"batchSize,omitempty"`
	Force     bool `json:"force,omitempty"`
}

// JobsResponse wraps GET /jobs.
type JobsResponse struct {
	Jobs []models.IngestionJob `json:"jobs"`
}

// StatsResponse combines catalog coverage with runtime metrics.
type StatsResponse struct {
	Catalog service.CatalogStats `json:"catalog"`
	Metrics metrics.Snapshot     `json:"metrics"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := s.deps.Jobs.List(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	items, err := s.deps.Search.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]models.CatalogItem, len(items))
	for i, item := range items {
		out[i] = item.WithoutEmbedding()
	}
	writeJSON(w, http.StatusOK, SearchResponse{Items: out})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	item, err := s.deps.Search.Get(r.Context(), code)
	if err != nil {
		s.fail(w, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found: "+code)
		return
	}
	writeJSON(w, http.StatusOK, item.WithoutEmbedding())
}

func (s *Server) handleVectorize(w http.ResponseWriter, r *http.Request) {
	var req VectorizeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.BatchSize <= 0 {
		req.BatchSize = s.deps.BatchSize
	}

	summary, err := s.deps.Vectorize.Execute(r.Context(), service.VectorizeOptions{
		BatchSize: req.BatchSize,
		Force:     req.Force,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := service.CollectStats(r.Context(), s.deps.Catalog, 0)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Catalog: stats, Metrics: s.deps.Metrics.Snapshot()})
}

// fail maps service errors to HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, embedding.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
