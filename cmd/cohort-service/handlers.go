package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/synaptica-ai/registercohort/pkg/analytics/cohort"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/middleware"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/observability/metrics"
)

const eventCohortBuild = "cohort.build"

type CohortService struct {
	runner *cohort.Runner
}

func (s *CohortService) router() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")
	router.HandleFunc("/api/v1/cohort/runs", s.handleCreateRun).Methods("POST")
	router.HandleFunc("/api/v1/cohort/runs", s.handleListRuns).Methods("GET")
	router.HandleFunc("/api/v1/cohort/runs/{id}", s.handleGetRun).Methods("GET")
	return router
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *CohortService) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.CohortBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	run, err := s.runner.Enqueue(r.Context(), req)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to enqueue cohort run")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *CohortService) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.runner.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *CohortService) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}
	run, err := s.runner.Get(r.Context(), id)
	if errors.Is(err, cohort.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleBuildEvent turns a cohort.build event into a queued run. Other event
// types on the topic are ignored.
func (s *CohortService) handleBuildEvent(ctx context.Context, event models.Event) error {
	if event.Type != eventCohortBuild {
		return nil
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode build request: %w", err)
	}
	var req models.CohortBuildRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode build request: %w", err)
	}
	if req.RequestedBy == "" {
		req.RequestedBy = event.Source
	}
	run, err := s.runner.Enqueue(ctx, req)
	if err != nil {
		return err
	}
	logger.Log.WithFields(map[string]interface{}{
		"event_id": event.ID,
		"run_id":   run.ID.String(),
	}).Info("Cohort run queued from event")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
