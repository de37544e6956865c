// Package api exposes restores over HTTP: a request starts one background
// job and its status is polled by id. Callers are expected to be
// authenticated upstream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	restoreerrors "dbrestore/internal/errors"
	"dbrestore/internal/logger"
	"dbrestore/internal/restore"
)

// Runner executes a restore
type Runner interface {
	Run(ctx context.Context, req restore.Request) (*restore.Result, error)
}

// Server handles the restore endpoints
type Server struct {
	runner Runner
	jobs   *JobStore
	log    logger.Logger
	wg     sync.WaitGroup
}

// NewServer creates a server that runs restores with runner
func NewServer(runner Runner, jobs *JobStore, log logger.Logger) *Server {
	if jobs == nil {
		jobs = NewJobStore()
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Server{runner: runner, jobs: jobs, log: log}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/restore", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "jobs": s.jobs.Len()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req restore.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job := s.jobs.Create(req)
	s.log.Info("Restore job accepted", "job_id", job.ID, "source", req.Source,
		"target", req.Target, "mode", req.Mode, "request_id", chimw.GetReqID(r.Context()))

	s.wg.Add(1)
	go s.execute(job.ID, req)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": job.ID, "status": job.Status})
}

// execute runs detached from the request that started it
func (s *Server) execute(id string, req restore.Request) {
	defer s.wg.Done()
	s.jobs.start(id)

	result, err := s.runner.Run(context.Background(), req)
	if err != nil {
		s.log.Error("Restore job failed", "job_id", id, "error", err)
	} else {
		s.log.Info("Restore job completed", "job_id", id)
	}
	s.jobs.finish(id, result, err)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Wait blocks until every started job has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

// ListenAndServe serves until ctx is cancelled, then shuts down and waits
// for running jobs
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.log.Info("Waiting for running restore jobs")
	s.Wait()
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]interface{}{"error": err.Error()}
	if code := restoreerrors.GetCode(err); code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}
