// Package api exposes the HTTP interface for the submission service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
	"github.com/spunwebtech/wayback-submitter/internal/config"
	"github.com/spunwebtech/wayback-submitter/internal/content"
	"github.com/spunwebtech/wayback-submitter/internal/store"
	"github.com/spunwebtech/wayback-submitter/internal/submitter"
	"github.com/spunwebtech/wayback-submitter/internal/telemetry"
)

// ArchiveClient is the slice of the archive client the API needs beyond the
// orchestrator: credential probes and availability lookups.
type ArchiveClient interface {
	TestConnection(ctx context.Context, creds archive.Credentials) archive.TestResult
	CheckAvailability(ctx context.Context, rawURL string) (*archive.Snapshot, error)
}

// IDGenerator mints request IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router    chi.Router
	store     store.SubmissionStore
	submitter *submitter.Submitter
	registry  *content.Registry
	client    ArchiveClient
	idGen     IDGenerator
	clock     archive.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	st store.SubmissionStore,
	sub *submitter.Submitter,
	registry *content.Registry,
	client ArchiveClient,
	idGen IDGenerator,
	clock archive.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     st,
		submitter: sub,
		registry:  registry,
		client:    client,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(telemetry.Middleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(90 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}

		r.Route("/events", func(r chi.Router) {
			r.Post("/published", s.contentPublished)
			r.Post("/updated", s.contentUpdated)
			r.Post("/unpublished", s.contentUnpublished)
		})

		r.Route("/content/{content_id}", func(r chi.Router) {
			r.Post("/submit", s.submitNow)
			r.Get("/status", s.contentStatus)
			r.Get("/history", s.contentHistory)
		})

		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", s.listSubmissions)
			r.Get("/stats", s.submissionStats)
			r.Get("/export", s.exportSubmissions)
		})

		r.Post("/batch", s.batchSubmit)
		r.Post("/credentials/test", s.testCredentials)
		r.Get("/availability", s.checkAvailability)
		r.Post("/callbacks/submission", s.submissionCallback)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Stats(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// eventRequest mirrors the content item payload host systems send on
// publish and update events.
type eventRequest struct {
	ContentID int64  `json:"content_id"`
	Type      string `json:"content_type"`
	Status    string `json:"status"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Excluded  bool   `json:"excluded"`
}

func (req eventRequest) item() archive.ContentItem {
	return archive.ContentItem{
		ID:       req.ContentID,
		Type:     req.Type,
		Status:   req.Status,
		URL:      req.URL,
		Title:    req.Title,
		Excluded: req.Excluded,
	}
}

func (req eventRequest) validate() error {
	if req.ContentID <= 0 {
		return errors.New("content_id required")
	}
	if req.URL == "" {
		return errors.New("url required")
	}
	return nil
}

func (s *Server) contentPublished(w http.ResponseWriter, r *http.Request) {
	s.handleContentEvent(w, r, s.submitter.HandlePublish)
}

func (s *Server) contentUpdated(w http.ResponseWriter, r *http.Request) {
	s.handleContentEvent(w, r, s.submitter.HandleUpdate)
}

func (s *Server) handleContentEvent(
	w http.ResponseWriter,
	r *http.Request,
	handle func(ctx context.Context, item archive.ContentItem) (submitter.Result, error),
) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item := req.item()
	s.registry.Put(item)

	res, err := handle(r.Context(), item)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if res.Disposition == submitter.DispositionQueued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) contentUnpublished(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContentID int64 `json:"content_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContentID <= 0 {
		writeError(w, http.StatusBadRequest, "content_id required")
		return
	}
	s.registry.Remove(req.ContentID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) submitNow(w http.ResponseWriter, r *http.Request) {
	contentID, err := contentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.submitter.SubmitNow(r.Context(), contentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec})
}

func (s *Server) contentStatus(w http.ResponseWriter, r *http.Request) {
	contentID, err := contentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.store.LatestFor(r.Context(), contentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no submissions for content")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec})
}

func (s *Server) contentHistory(w http.ResponseWriter, r *http.Request) {
	contentID, err := contentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.store.HistoryFor(r.Context(), contentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) submissionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type batchRequest struct {
	URLs         []string `json:"urls"`
	DelaySeconds *int     `json:"delay_seconds"`
}

// batchSubmit accepts a list of URLs and runs them sequentially in the
// background; with the inter-request delay a large batch easily outlives the
// request timeout. Results land in the submission history.
func (s *Server) batchSubmit(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}

	delay := -time.Second
	if req.DelaySeconds != nil {
		if *req.DelaySeconds < 0 {
			writeError(w, http.StatusBadRequest, "delay_seconds must be >= 0")
			return
		}
		delay = time.Duration(*req.DelaySeconds) * time.Second
	}

	batchID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate batch id")
		return
	}

	urls := make([]string, len(req.URLs))
	copy(urls, req.URLs)
	go func() {
		if _, err := s.submitter.BatchSubmit(context.Background(), urls, delay); err != nil {
			s.logger.Error("batch submission failed",
				zap.String("batch_id", batchID),
				zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": batchID,
		"count":    len(urls),
	})
}

type credentialsRequest struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// testCredentials probes the archive endpoint with the supplied key pair,
// falling back to the configured one when the body omits it.
func (s *Server) testCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	creds := archive.Credentials{AccessKey: req.AccessKey, SecretKey: req.SecretKey}
	if !creds.Complete() {
		creds = archive.Credentials{
			AccessKey: s.cfg.Archive.AccessKey,
			SecretKey: s.cfg.Archive.SecretKey,
		}
	}

	start := time.Now()
	result := s.client.TestConnection(r.Context(), creds)
	telemetry.ObserveRemoteCall("test_connection", time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) checkAvailability(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}

	start := time.Now()
	snapshot, err := s.client.CheckAvailability(r.Context(), rawURL)
	telemetry.ObserveRemoteCall("availability", time.Since(start))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if snapshot == nil {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true, "snapshot": snapshot})
}

type callbackRequest struct {
	RecordID   int64  `json:"record_id"`
	Status     string `json:"status"`
	ArchiveURL string `json:"archive_url"`
	Message    string `json:"message"`
}

// submissionCallback lets the archive service (or an operator) resolve a
// pending record out of band. Only terminal statuses are accepted.
func (s *Server) submissionCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RecordID <= 0 {
		writeError(w, http.StatusBadRequest, "record_id required")
		return
	}
	status := archive.Status(req.Status)
	if !status.Terminal() {
		writeError(w, http.StatusBadRequest, "status must be success or failed")
		return
	}

	err := s.store.UpdateStatus(r.Context(), req.RecordID, status, req.ArchiveURL, req.Message, s.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func contentIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "content_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid content_id")
	}
	return id, nil
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	filter := store.Filter{Limit: 50}
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		status := archive.Status(raw)
		switch status {
		case archive.StatusPending, archive.StatusSuccess, archive.StatusFailed:
			filter.Status = status
		default:
			return store.Filter{}, fmt.Errorf("unknown status %q", raw)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 500 {
			return store.Filter{}, errors.New("limit must be in [1,500]")
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return store.Filter{}, errors.New("offset must be >= 0")
		}
		filter.Offset = offset
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, err := s.idGen.NewID()
		if err != nil {
			reqID = "unknown"
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}
