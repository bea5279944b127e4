// Package httphandler is the HTTP driving adapter that serves the REST API.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/govambam/prospector/internal/application"
	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
	"github.com/govambam/prospector/internal/repocache"
)

// RepoCloner is the slice of the repo cache the clone endpoint needs.
type RepoCloner interface {
	EnsureClone(ctx context.Context, owner, repo string) (repocache.Action, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	queueSvc    *application.QueueService
	discoverSvc *application.DiscoveryService
	cache       RepoCloner
	forkStore   driven.ForkStore
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	queueSvc *application.QueueService,
	discoverSvc *application.DiscoveryService,
	cache RepoCloner,
	forkStore driven.ForkStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		queueSvc:    queueSvc,
		discoverSvc: discoverSvc,
		cache:       cache,
		forkStore:   forkStore,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/queue/simulate-pr", h.EnqueueSimulatePR)
	mux.HandleFunc("GET /api/v1/queue/status", h.QueueStatus)
	mux.HandleFunc("DELETE /api/v1/queue/{id}", h.CancelOperation)
	mux.HandleFunc("POST /api/v1/repos/clone", h.CloneRepo)
	mux.HandleFunc("POST /api/v1/discover", h.Discover)
	mux.HandleFunc("GET /api/v1/forks", h.ListForks)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// EnqueueSimulatePR queues a simulate PR operation and returns the ids of
// the optimistic rows created for it.
func (h *Handler) EnqueueSimulatePR(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.queueSvc.EnqueueSimulatePR(r.Context(), req.PRURL, req.TargetOrg, requestUser(r), req.Priority)
	if err != nil {
		h.respondError(w, r, err, "failed to enqueue simulate PR")
		return
	}

	writeJSON(w, http.StatusCreated, EnqueueResponse{
		Success:       true,
		QueueID:       result.QueueID,
		ForkID:        result.ForkID,
		PRID:          result.PRID,
		QueuePosition: result.QueuePosition,
	})
}

// QueueStatus returns specific operations when ?ids= is given, or the
// pending overview otherwise.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ids parameter")
		return
	}

	ops, overview, err := h.queueSvc.Status(r.Context(), ids)
	if err != nil {
		h.respondError(w, r, err, "failed to query queue status")
		return
	}

	if overview != nil {
		pending := make([]OperationResponse, 0, len(overview.Pending))
		for _, op := range overview.Pending {
			pending = append(pending, toOperationResponse(op))
		}
		writeJSON(w, http.StatusOK, QueueStatusResponse{Success: true, Status: overview.Status, Pending: pending})
		return
	}

	resp := make([]OperationResponse, 0, len(ops))
	for _, op := range ops {
		resp = append(resp, toOperationResponse(op))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelOperation cancels a still-queued operation. Operations that are
// processing, finished, or unknown all report 404: from the caller's view
// there is no cancellable operation with that id.
func (h *Handler) CancelOperation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid operation id")
		return
	}

	if err := h.queueSvc.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrInvalidState) {
			writeError(w, http.StatusNotFound, "no cancellable operation with that id")
			return
		}
		h.respondError(w, r, err, "failed to cancel operation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CloneRepo ensures an up-to-date cache clone of the requested repository.
func (h *Handler) CloneRepo(w http.ResponseWriter, r *http.Request) {
	var req CloneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := h.cache.EnsureClone(r.Context(), req.RepoOwner, req.RepoName)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeError(w, http.StatusBadRequest, "invalid repository name")
			return
		}
		h.respondError(w, r, err, "failed to clone repository")
		return
	}

	writeJSON(w, http.StatusOK, CloneResponse{Success: true, Action: string(action)})
}

// Discover runs the PR discovery pipeline for a repository or organization.
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	appReq, err := toDiscoverAppRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.discoverSvc.Discover(r.Context(), appReq)
	if err != nil {
		h.respondError(w, r, err, "discovery failed")
		return
	}

	writeJSON(w, http.StatusOK, toDiscoverResponse(result))
}

// ListForks returns all internal forks.
func (h *Handler) ListForks(w http.ResponseWriter, r *http.Request) {
	forks, err := h.forkStore.ListInternal(r.Context())
	if err != nil {
		h.respondError(w, r, err, "failed to list forks")
		return
	}

	resp := make([]ForkResponse, 0, len(forks))
	for _, fork := range forks {
		resp = append(resp, toForkResponse(fork))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// respondError maps domain sentinel errors to HTTP statuses and logs
// anything unexpected. Nothing escapes as an unhandled fault.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error(logMsg, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// toDiscoverAppRequest converts the wire request into the application
// request, parsing the repo URL and applying filter defaults.
func toDiscoverAppRequest(req DiscoverRequest) (application.DiscoverRequest, error) {
	appReq := application.DiscoverRequest{
		Org:     req.Org,
		Mode:    application.DiscoverMode(req.Mode),
		Filters: model.DefaultDiscoverFilters(),
	}

	if appReq.Mode == "" {
		appReq.Mode = application.ModeFast
	}

	if req.RepoURL != "" {
		owner, name, ok := parseRepoURL(req.RepoURL)
		if !ok {
			return application.DiscoverRequest{}, errors.New("repo_url must be owner/repo or a github.com repository URL")
		}
		appReq.RepoOwner = owner
		appReq.RepoName = name
	}

	if f := req.Filters; f != nil {
		if f.IncludeOpen != nil {
			appReq.Filters.IncludeOpen = *f.IncludeOpen
		}
		if f.IncludeMerged != nil {
			appReq.Filters.IncludeMerged = *f.IncludeMerged
		}
		if f.MergedWithinDays != nil {
			appReq.Filters.MergedWithinDays = *f.MergedWithinDays
		}
		if f.MinLinesChanged != nil {
			appReq.Filters.MinLinesChanged = *f.MinLinesChanged
		}
		if f.MaxResults != nil {
			appReq.Filters.MaxResults = *f.MaxResults
		}
	}

	return appReq, nil
}

// parseRepoURL accepts "owner/repo" or a full github.com repository URL.
func parseRepoURL(raw string) (string, string, bool) {
	s := strings.TrimPrefix(raw, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.Trim(s, "/")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || !model.IsValidRepoPart(parts[0]) || !model.IsValidRepoPart(parts[1]) {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// parseIDList parses a comma-separated id list; empty input yields nil.
func parseIDList(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// requestUser extracts the caller identity from the X-User header, falling
// back to "api". Authentication itself lives at the edge proxy.
func requestUser(r *http.Request) string {
	if user := r.Header.Get("X-User"); user != "" {
		return user
	}
	return "api"
}
