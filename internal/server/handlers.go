package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/logger"
	"github.com/spigell/resume-batch/internal/report"
	"github.com/spigell/resume-batch/internal/scoring"
	"go.uber.org/zap"
)

const wsWriteWait = 10 * time.Second

type startRequest struct {
	Dir             string `json:"dir"`
	JobRequirements string `json:"job_requirements"`
	Concurrency     int    `json:"concurrency"`
	Strategy        string `json:"strategy"`
}

type startResponse struct {
	BatchID     string         `json:"batch_id"`
	Total       int            `json:"total"`
	Status      batch.Status   `json:"status"`
	Strategy    batch.Strategy `json:"strategy"`
	Concurrency int            `json:"concurrency"`
}

type resultsResponse struct {
	batch.Report
	Summary report.Summary `json:"summary"`
}

type scoreRequest struct {
	Parsed          ai.ParsedResume `json:"parsed"`
	JobRequirements string          `json:"job_requirements"`
	// Criteria switches to scoring against caller-defined weights.
	Criteria []ai.Criterion `json:"criteria,omitempty"`
}

type scoreResponse struct {
	Scores       scoring.Scores  `json:"scores"`
	Explanations ai.Explanations `json:"explanations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, batch.ErrBatchAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, batch.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, batch.ErrInvalidConcurrency),
		errors.Is(err, ai.ErrInvalidCriteria),
		errors.Is(err, ai.ErrCandidateCount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	var (
		req  startRequest
		refs []document.Ref
		err  error
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		req, refs, err = s.readUploads(w, r)
	} else {
		req, refs, err = s.readDirRequest(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	strategy := s.cfg.Strategy
	if req.Strategy != "" {
		if strategy, err = batch.ParseStrategy(req.Strategy); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Concurrency == 0 {
		req.Concurrency = s.cfg.Concurrency
	}

	id, err := s.deps.Manager.Start(s.ctx, refs, batch.Options{
		Concurrency: req.Concurrency,
		Strategy:    strategy,
		Job:         req.JobRequirements,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	b, err := s.deps.Manager.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusAccepted, startResponse{
		BatchID:     id,
		Total:       len(refs),
		Status:      b.State().Status,
		Strategy:    b.Strategy,
		Concurrency: b.Concurrency,
	})
}

func (s *Server) readDirRequest(r *http.Request) (startRequest, []document.Ref, error) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, nil, fmt.Errorf("invalid request body: %w", err)
	}
	if strings.TrimSpace(req.Dir) == "" {
		return req, nil, errors.New("dir is required")
	}

	refs, err := s.deps.Resolver.Dir(r.Context(), req.Dir)
	return req, refs, err
}

func (s *Server) readUploads(w http.ResponseWriter, r *http.Request) (startRequest, []document.Ref, error) {
	var req startRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return req, nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	req.JobRequirements = r.FormValue("job_requirements")
	req.Strategy = r.FormValue("strategy")
	if v := r.FormValue("concurrency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, nil, fmt.Errorf("invalid concurrency %q", v)
		}
		req.Concurrency = n
	}

	var headers []*multipart.FileHeader
	for _, field := range []string{"files", "files[]"} {
		headers = append(headers, r.MultipartForm.File[field]...)
	}

	uploads := make([]document.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return req, nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, document.Upload{Name: fh.Filename, Data: data})
	}

	return req, s.deps.Resolver.Uploads(uploads), nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Manager.Cancel(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	logger.WithBatch(s.logger, id).Info("batch cancellation requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": id, "status": "cancelling"})
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Publisher.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) latestProgress(w http.ResponseWriter, _ *http.Request) {
	b, err := s.deps.Manager.Latest()
	if err != nil {
		writeJSON(w, http.StatusOK, batch.State{Status: batch.StatusIdle})
		return
	}
	writeJSON(w, http.StatusOK, b.State())
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Manager.Results(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.resultsFor(rep))
}

func (s *Server) latestResults(w http.ResponseWriter, _ *http.Request) {
	b, err := s.deps.Manager.Latest()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.resultsFor(b.Report()))
}

func (s *Server) resultsFor(rep batch.Report) resultsResponse {
	end := rep.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	summary := report.Summarize(rep.Results, rep.StartedAt, end)
	rep.Results = report.Order(rep.Results)
	return resultsResponse{Report: rep, Summary: summary}
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.deps.Manager.Results(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="resume-batch-%s.%s"`, id, format))

	if err := report.Write(w, format, report.Export{BatchID: id, Job: rep.JobRequirements, Outcomes: rep.Results}); err != nil {
		logger.WithBatch(s.logger, id).Error("export failed", zap.String("format", string(format)), zap.Error(err))
	}
}

// stream pushes progress as server-sent events until the batch is terminal.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	updates, err := s.deps.Publisher.Subscribe(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for state := range updates {
		payload, err := json.Marshal(state)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) wsStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.deps.Publisher.Snapshot(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// a read error means the client went away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates, err := s.deps.Publisher.Subscribe(ctx, id)
	if err != nil {
		return
	}

	for state := range updates {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(state); err != nil {
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished"))
}

func (s *Server) processOne(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart body: %w", err))
		return
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	refs := s.deps.Resolver.Uploads([]document.Upload{{Name: fh.Filename, Data: data}})
	if len(refs) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported or empty document %q", fh.Filename))
		return
	}

	outcome := s.deps.Processor.Process(r.Context(), refs[0], r.FormValue("job_requirements"))
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Parsed) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("parsed is required"))
		return
	}

	if len(req.Criteria) > 0 {
		s.scoreCriteria(w, r, req)
		return
	}

	assessment, err := s.deps.Scorer.Score(r.Context(), req.Parsed.Normalize(), ai.JobOrDefault(req.JobRequirements))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse{
		Scores:       scoring.Compute(assessment.Scores),
		Explanations: assessment.Explanations,
	})
}

func (s *Server) scoreCriteria(w http.ResponseWriter, r *http.Request, req scoreRequest) {
	if s.deps.CriteriaScorer == nil {
		writeError(w, http.StatusNotImplemented, errors.New("criteria scoring is not configured"))
		return
	}
	if err := ai.ValidateCriteria(req.Criteria); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	assessment, err := s.deps.CriteriaScorer.ScoreCriteria(r.Context(), req.Parsed.Normalize(), req.JobRequirements, req.Criteria)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	if s.deps.Comparer == nil {
		writeError(w, http.StatusNotImplemented, errors.New("comparison is not configured"))
		return
	}

	var req ai.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	comparison, err := s.deps.Comparer.Compare(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, comparison)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
