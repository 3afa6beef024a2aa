package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-scanner/internal/api/middleware"
	scanapp "github.com/khanhnv2901/seca-scanner/internal/application/scan"
	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	domainReport "github.com/khanhnv2901/seca-scanner/internal/domain/report"
	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
	"github.com/khanhnv2901/seca-scanner/internal/domain/target"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/notify"
	"github.com/khanhnv2901/seca-scanner/internal/report"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 25
	maxListLimit     = 100
)

// ScanService is the part of the scan lifecycle the API exposes.
type ScanService interface {
	CreateScan(ctx context.Context, req scanapp.Request) (*job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context, filter job.ListFilter) ([]*job.Job, error)
	ListTargets(ctx context.Context) ([]*target.Target, error)
	Report(ctx context.Context, jobID string) (*domainReport.UnifiedReport, error)
	ProcessedReport(ctx context.Context, jobID string) (*report.ProcessedReport, error)
}

// Observer starts watching a job on behalf of its requester.
type Observer interface {
	Observe(jobID string, dest notify.Destination) bool
}

// Subscriber feeds terminal job events to stream handlers.
type Subscriber interface {
	Subscribe() (<-chan notify.Message, func())
}

type Config struct {
	Scans       ScanService
	Observer    Observer
	Events      Subscriber
	Health      func() error
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
}

type Server struct {
	cfg      Config
	router   chi.Router
	limiter  *middleware.RateLimiter
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	srv := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		limiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(cfg.CORSOrigins) == 0 {
					return true
				}
				for _, allowed := range cfg.CORSOrigins {
					if allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SweepLimiters drops idle per-client rate limiters.
func (s *Server) SweepLimiters() int {
	return s.limiter.Sweep()
}

func (s *Server) routes() {
	r := s.router

	// RequestID -> Logging -> RateLimit -> CORS -> Auth -> Handler
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.cfg.Logger))
	r.Use(s.limiter.Handler)
	r.Use(middleware.CORS(s.cfg.CORSOrigins))
	r.Use(middleware.Auth(s.cfg.AuthToken))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "NOT_FOUND", errors.New("route not found"))
	})
	r.MethodNotAllowed(s.methodNotAllowed)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/scan", s.handleCreateScan)
		r.Get("/scan-types", s.handleScanTypes)
		r.Get("/targets", s.handleListTargets)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Get("/jobs/{jobID}/report", s.handleReport)
		r.Get("/jobs/{jobID}/report.html", s.handleReportHTML)
		r.Get("/jobs/{jobID}/report.md", s.handleReportMarkdown)
		r.Get("/jobs/{jobID}/checklist.pdf", s.handleChecklistPDF)
		r.Get("/jobs/{jobID}/prompt", s.handlePrompt)
		r.Get("/jobs-stream", s.handleJobStream)
		r.Get("/ws", s.handleJobsWS)
	})
}

// JobResponse is the wire form of a job.
type JobResponse struct {
	JobID        string          `json:"jobId"`
	TargetID     string          `json:"targetId"`
	ScanType     string          `json:"scanType"`
	RequestedBy  string          `json:"requestedBy"`
	Status       job.Status      `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	ResolvedIPs  []string        `json:"resolvedIps"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	SummaryJSON  json.RawMessage `json:"summaryJson,omitempty"`
}

func newJobResponse(j *job.Job) JobResponse {
	ips := j.ResolvedIPs()
	if ips == nil {
		ips = []string{}
	}
	return JobResponse{
		JobID:        j.ID(),
		TargetID:     j.TargetID(),
		ScanType:     j.ScanType(),
		RequestedBy:  j.RequestedBy(),
		Status:       j.Status(),
		CreatedAt:    j.CreatedAt(),
		StartedAt:    optionalTime(j.StartedAt()),
		FinishedAt:   optionalTime(j.FinishedAt()),
		ResolvedIPs:  ips,
		ErrorCode:    j.ErrorCode(),
		ErrorMessage: j.ErrorMessage(),
		SummaryJSON:  j.Summary(),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// TargetResponse is the wire form of a target.
type TargetResponse struct {
	TargetID    string    `json:"targetId"`
	BaseURL     string    `json:"baseUrl"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health(); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, sharedErrors.CodeUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req scanapp.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, sharedErrors.CodeValidation, errors.New("request body must be a JSON object"))
		return
	}
	if strings.TrimSpace(req.RequestedBy) == "" {
		req.RequestedBy = string(notify.ChannelAPI) + ":" + middleware.ClientIP(r)
	}

	created, err := s.cfg.Scans.CreateScan(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	logger := s.requestLogger(r).With(zap.String("job_id", created.ID()))
	if dest, err := notify.ParseDestination(created.RequestedBy()); err != nil {
		logger.Warn("requester has no notification destination", zap.String("requested_by", created.RequestedBy()))
	} else if s.cfg.Observer != nil {
		s.cfg.Observer.Observe(created.ID(), dest)
	}
	logger.Info("scan_queued", zap.String("target_id", created.TargetID()))

	writeJSON(w, http.StatusCreated, newJobResponse(created))
}

func (s *Server) handleScanTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scan.Known())
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.cfg.Scans.ListTargets(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]TargetResponse, 0, len(targets))
	for _, t := range targets {
		out = append(out, TargetResponse{
			TargetID:    t.ID(),
			BaseURL:     t.BaseURL(),
			Description: t.Description(),
			CreatedAt:   t.CreatedAt(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	jobs, err := s.cfg.Scans.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

// parseListFilter reads status (comma separated), limit and offset.
func parseListFilter(r *http.Request) (job.ListFilter, error) {
	q := r.URL.Query()
	filter := job.ListFilter{Limit: defaultListLimit}

	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := job.ParseStatus(strings.ToUpper(strings.TrimSpace(part)))
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, &sharedErrors.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		filter.Limit = min(limit, maxListLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, &sharedErrors.ValidationError{Field: "offset", Message: "must be a non-negative integer"}
		}
		filter.Offset = offset
	}
	return filter, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.cfg.Scans.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(j))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.cfg.Scans.Report(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	s.renderReport(w, r, "text/html; charset=utf-8", func(buf *bytes.Buffer, p *report.ProcessedReport) error {
		return report.WriteHTML(buf, p)
	})
}

func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	s.renderReport(w, r, "text/markdown; charset=utf-8", func(buf *bytes.Buffer, p *report.ProcessedReport) error {
		return report.WriteMarkdown(buf, p)
	})
}

func (s *Server) handleChecklistPDF(w http.ResponseWriter, r *http.Request) {
	s.renderReport(w, r, "application/pdf", func(buf *bytes.Buffer, p *report.ProcessedReport) error {
		data, err := report.RenderChecklistPDF(p)
		if err != nil {
			return err
		}
		_, err = buf.Write(data)
		return err
	})
}

// renderReport buffers the rendering so a failure can still produce an error response.
func (s *Server) renderReport(w http.ResponseWriter, r *http.Request, contentType string, render func(*bytes.Buffer, *report.ProcessedReport) error) {
	processed, err := s.cfg.Scans.ProcessedReport(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := render(&buf, processed); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, sharedErrors.CodeScanExecution, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.requestLogger(r).Error("failed to write response", zap.Error(err))
	}
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	rep, err := s.cfg.Scans.Report(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	grouped, _ := strconv.ParseBool(r.URL.Query().Get("grouped"))
	prompt := report.Prompt(rep, grouped)
	if prompt == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(prompt.PromptText))
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		s.writeError(w, r, http.StatusNotFound, "NOT_FOUND", errors.New("event stream not available"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, sharedErrors.CodeUnavailable, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates, unsubscribe := s.cfg.Events.Subscribe()
	defer unsubscribe()
	jobID := r.URL.Query().Get("jobId")
	ctx := r.Context()
	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if jobID != "" && msg.Event.JobID != jobID {
				continue
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				s.cfg.Logger.Error("failed to marshal job event", zap.Error(err))
				continue
			}
			if !s.writeStreamChunk(w, []byte("event: job\ndata: ")) ||
				!s.writeStreamChunk(w, payload) ||
				!s.writeStreamChunk(w, []byte("\n\n")) {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleJobsWS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		s.writeError(w, r, http.StatusNotFound, "NOT_FOUND", errors.New("event stream not available"))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.requestLogger(r).Warn("upgrading to websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.cfg.Events.Subscribe()
	defer unsubscribe()

	// The client never sends; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	jobID := r.URL.Query().Get("jobId")
	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if jobID != "" && msg.Event.JobID != jobID {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	RunningJobID string `json:"runningJobId,omitempty"`
}

// writeServiceError maps an application error to its status and code.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *sharedErrors.RateLimitedError
	if errors.As(err, &limited) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:        sharedErrors.CodeRateLimited,
			Message:      err.Error(),
			RunningJobID: limited.RunningJobID,
		})
		return
	}

	switch {
	case errors.Is(err, sharedErrors.ErrRepositoryOperation),
		errors.Is(err, sharedErrors.ErrDeserializationFailed),
		errors.Is(err, sharedErrors.ErrSerializationFailed):
		s.writeError(w, r, http.StatusServiceUnavailable, sharedErrors.CodeUnavailable, err)
	case errors.Is(err, sharedErrors.ErrJobNotFound),
		errors.Is(err, sharedErrors.ErrTargetNotFound),
		errors.Is(err, sharedErrors.ErrReportNotFound):
		s.writeError(w, r, http.StatusNotFound, sharedErrors.Code(err), err)
	case errors.Is(err, sharedErrors.ErrValidation),
		errors.Is(err, sharedErrors.ErrInvalidURL),
		errors.Is(err, sharedErrors.ErrMissingRequired),
		errors.Is(err, sharedErrors.ErrInvalidScanType),
		errors.Is(err, sharedErrors.ErrEmptyRequester),
		errors.Is(err, sharedErrors.ErrEmptyTargetID):
		code := sharedErrors.Code(err)
		if code == sharedErrors.CodeScanExecution {
			code = sharedErrors.CodeValidation
		}
		s.writeError(w, r, http.StatusBadRequest, code, err)
	default:
		s.writeError(w, r, http.StatusInternalServerError, sharedErrors.CodeScanExecution, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	// Sanitize error messages to prevent information disclosure
	msg := err.Error()

	// For 5xx errors, return generic message and log details server-side
	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = http.StatusText(status)
	}

	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", errors.New("method not allowed"))
}

func (s *Server) writeStreamChunk(w http.ResponseWriter, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		s.cfg.Logger.Error("failed to write stream chunk", zap.Error(err))
		return false
	}
	return true
}
