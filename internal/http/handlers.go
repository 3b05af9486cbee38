package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"budgetflow/internal/amqp"
	"budgetflow/internal/export"
	"budgetflow/internal/log"
	"budgetflow/internal/storage"
)

const (
	maxListLimit   = 500
	maxRequestBody = 4 << 10
)

// combinedAlias names the combined matrix in URLs.
const combinedAlias = "combined"

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.Ping(r.Context()); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		http.Error(w, "run history unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, "List runs failed", err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// runDetail is a run with its per-source outcome and quarter summaries.
type runDetail struct {
	storage.Run
	Sources  []storage.RunSource      `json:"sources"`
	Quarters []storage.QuarterSummary `json:"quarters"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	run, err := s.runs.GetRun(ctx, id)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		s.internalError(w, r, "Get run failed", err)
		return
	}

	detail := runDetail{Run: run, Sources: []storage.RunSource{}, Quarters: []storage.QuarterSummary{}}
	if sources, err := s.runs.ListRunSources(ctx, id); err != nil {
		s.internalError(w, r, "List run sources failed", err)
		return
	} else if sources != nil {
		detail.Sources = sources
	}
	if quarters, err := s.runs.QuarterSummaries(ctx, id); err != nil {
		s.internalError(w, r, "List quarter summaries failed", err)
		return
	} else if quarters != nil {
		detail.Quarters = quarters
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleSourceCSV serves one allocation matrix of a run as CSV. Matrices are
// stored when a run finishes and never change, so they are cached.
func (s *Server) handleSourceCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	source := r.PathValue("source")
	if source == combinedAlias {
		source = storage.CombinedSource
	}

	key := id + "/" + source + "?" + s.layout
	body, ok := s.cache.Get(key)
	if !ok {
		t, err := s.runs.MatrixTable(ctx, id, source, s.layout)
		if errors.Is(err, storage.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		} else if err != nil {
			s.internalError(w, r, "Build matrix failed", err)
			return
		}
		var buf bytes.Buffer
		if err := t.WriteCSV(&buf); err != nil {
			s.internalError(w, r, "Encode matrix failed", err)
			return
		}
		body = buf.Bytes()
		s.cache.Set(key, body)
	} else {
		log.FromContext(ctx).DebugContext(ctx, "Matrix served from cache", log.FieldRunID, id, log.FieldFundingSource, source)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ObjectName(r.PathValue("source"))))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// createRunRequest is the body of POST /api/runs.
type createRunRequest struct {
	Kind        string `json:"kind"`
	Source      string `json:"source,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	if s.queue == nil && s.executor == nil {
		writeError(w, http.StatusServiceUnavailable, "runs cannot be started from this server")
		return
	}

	var body createRunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind, err := amqp.ParseKind(strings.TrimSpace(body.Kind))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	source := strings.TrimSpace(body.Source)
	if kind == amqp.KindAccounts && source == "" {
		writeError(w, http.StatusUnprocessableEntity, "accounts runs need a source")
		return
	}
	if body.RequestedBy == "" {
		body.RequestedBy = "api"
	}

	run, err := s.runs.QueueRun(ctx, string(kind), body.RequestedBy)
	if err != nil {
		s.internalError(w, r, "Queue run failed", err)
		return
	}
	req := amqp.NewRunRequest(run.ID, kind, body.RequestedBy)
	req.Source = source

	if s.queue != nil {
		if err := s.queue.PublishRunRequest(ctx, req); err != nil {
			logger.ErrorContext(ctx, "Publish run request failed", log.FieldRunID, run.ID, log.FieldError, err)
			_ = s.runs.FinishRun(ctx, run.ID, storage.Outcome{Err: fmt.Errorf("enqueue: %w", err)})
			writeError(w, http.StatusServiceUnavailable, "run queue unavailable")
			return
		}
		logger.InfoContext(ctx, "Run queued", log.FieldRunID, run.ID, "kind", kind)
	} else {
		s.runInline(req)
		logger.InfoContext(ctx, "Run started in process", log.FieldRunID, run.ID, "kind", kind)
	}

	w.Header().Set("Location", "/api/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) runInline(req *amqp.RunRequest) {
	s.inline.Add(1)
	go func() {
		defer s.inline.Done()
		note, err := s.executor.Execute(s.baseCtx, req)
		if err != nil {
			s.logger.Error("Inline run failed", log.FieldRunID, req.RunID, log.FieldError, err)
			return
		}
		s.logger.Info("Inline run completed", log.FieldRunID, req.RunID, "note", note)
	}()
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), msg, log.FieldError, err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
