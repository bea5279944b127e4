package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/govambam/prospector/internal/application"
	"github.com/govambam/prospector/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error envelope with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// EnqueueRequest is the JSON body for the simulate PR enqueue endpoint.
type EnqueueRequest struct {
	PRURL     string `json:"prUrl"`
	TargetOrg string `json:"targetOrg,omitempty"`
	Priority  int    `json:"priority,omitempty"`
}

// EnqueueResponse is returned when a simulate PR operation is queued.
type EnqueueResponse struct {
	Success       bool  `json:"success"`
	QueueID       int64 `json:"queueId"`
	ForkID        int64 `json:"forkId"`
	PRID          int64 `json:"prId"`
	QueuePosition int   `json:"queuePosition"`
}

// OperationResponse is the JSON representation of a queue operation.
type OperationResponse struct {
	ID          int64                    `json:"id"`
	Type        string                   `json:"operation_type"`
	Payload     model.SimulatePRPayload  `json:"payload"`
	Status      string                   `json:"status"`
	Priority    int                      `json:"priority"`
	CreatedBy   string                   `json:"created_by"`
	CreatedAt   string                   `json:"created_at"`
	StartedAt   string                   `json:"started_at,omitempty"`
	CompletedAt string                   `json:"completed_at,omitempty"`
	Result      *model.SimulatePRResult  `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// QueueStatusResponse is returned for a status query without IDs.
type QueueStatusResponse struct {
	Success bool                `json:"success"`
	Status  string              `json:"status"`
	Pending []OperationResponse `json:"pending"`
}

// CloneRequest is the JSON body for the clone/update endpoint.
type CloneRequest struct {
	RepoOwner string `json:"repoOwner"`
	RepoName  string `json:"repoName"`
}

// CloneResponse reports whether the repo cache was cloned or updated.
type CloneResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
}

// DiscoverRequest is the JSON body for the discovery endpoint.
type DiscoverRequest struct {
	RepoURL string          `json:"repo_url,omitempty"`
	Org     string          `json:"org,omitempty"`
	Mode    string          `json:"mode,omitempty"`
	Filters *DiscoverFilter `json:"filters,omitempty"`
}

// DiscoverFilter overrides the default discovery filters. Pointer fields
// distinguish "absent" from zero values.
type DiscoverFilter struct {
	IncludeOpen      *bool `json:"include_open,omitempty"`
	IncludeMerged    *bool `json:"include_merged,omitempty"`
	MergedWithinDays *int  `json:"merged_within_days,omitempty"`
	MinLinesChanged  *int  `json:"min_lines_changed,omitempty"`
	MaxResults       *int  `json:"max_results,omitempty"`
}

// CandidateResponse is the JSON representation of a scored PR candidate.
type CandidateResponse struct {
	Number         int                  `json:"number"`
	Repository     string               `json:"repository"`
	Title          string               `json:"title"`
	URL            string               `json:"url"`
	Author         string               `json:"author"`
	State          string               `json:"state"`
	Additions      int                  `json:"additions"`
	Deletions      int                  `json:"deletions"`
	ChangedFiles   int                  `json:"changed_files"`
	FastScore      int                  `json:"overall_score"`
	Breakdown      model.ScoreBreakdown `json:"score_breakdown"`
	LLMScore       *int                 `json:"llm_score,omitempty"`
	RiskCategories []string             `json:"risk_categories,omitempty"`
	CombinedScore  int                  `json:"combined_score"`
}

// DiscoverResponse is the full discovery result.
type DiscoverResponse struct {
	Success          bool                `json:"success"`
	Candidates       []CandidateResponse `json:"candidates"`
	TotalPRsAnalyzed int                 `json:"total_prs_analyzed"`
	AnalysisTimeMS   int64               `json:"analysis_time_ms"`
	MonthlyMetrics   *MetricsResponse    `json:"monthly_metrics,omitempty"`
}

// MetricsResponse is the JSON representation of trailing org metrics.
type MetricsResponse struct {
	Org          string `json:"org"`
	PRCount      int    `json:"pr_count"`
	CommitCount  int    `json:"commit_count"`
	LinesChanged int    `json:"lines_changed"`
	ComputedAt   string `json:"computed_at"`
}

// ForkResponse is the JSON representation of a tracked fork.
type ForkResponse struct {
	ID         int64  `json:"id"`
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	URL        string `json:"url"`
	IsInternal bool   `json:"is_internal"`
	CreatedAt  string `json:"created_at"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toOperationResponse converts a domain QueueOperation to its JSON representation.
func toOperationResponse(op model.QueueOperation) OperationResponse {
	resp := OperationResponse{
		ID:        op.ID,
		Type:      string(op.Type),
		Payload:   op.Payload,
		Status:    string(op.Status),
		Priority:  op.Priority,
		CreatedBy: op.CreatedBy,
		CreatedAt: op.CreatedAt.UTC().Format(time.RFC3339),
		Result:    op.Result,
		Error:     op.Error,
	}

	if op.StartedAt != nil {
		resp.StartedAt = op.StartedAt.UTC().Format(time.RFC3339)
	}
	if op.CompletedAt != nil {
		resp.CompletedAt = op.CompletedAt.UTC().Format(time.RFC3339)
	}

	return resp
}

// toCandidateResponse converts a scored candidate to its JSON representation.
func toCandidateResponse(c model.PRCandidate) CandidateResponse {
	return CandidateResponse{
		Number:         c.Number,
		Repository:     c.RepoFullName,
		Title:          c.Title,
		URL:            c.URL,
		Author:         c.Author,
		State:          string(c.State),
		Additions:      c.Additions,
		Deletions:      c.Deletions,
		ChangedFiles:   c.ChangedFiles,
		FastScore:      c.FastScore,
		Breakdown:      c.Breakdown,
		LLMScore:       c.LLMScore,
		RiskCategories: c.RiskCategories,
		CombinedScore:  c.CombinedScore,
	}
}

// toDiscoverResponse converts a discovery result to its JSON representation.
func toDiscoverResponse(result *application.DiscoverResult) DiscoverResponse {
	candidates := make([]CandidateResponse, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		candidates = append(candidates, toCandidateResponse(c))
	}

	resp := DiscoverResponse{
		Success:          true,
		Candidates:       candidates,
		TotalPRsAnalyzed: result.TotalPRsAnalyzed,
		AnalysisTimeMS:   result.AnalysisTime.Milliseconds(),
	}

	if result.MonthlyMetrics != nil {
		resp.MonthlyMetrics = &MetricsResponse{
			Org:          result.MonthlyMetrics.Org,
			PRCount:      result.MonthlyMetrics.PRCount,
			CommitCount:  result.MonthlyMetrics.CommitCount,
			LinesChanged: result.MonthlyMetrics.LinesChanged,
			ComputedAt:   result.MonthlyMetrics.ComputedAt.UTC().Format(time.RFC3339),
		}
	}

	return resp
}

// toForkResponse converts a domain Fork to its JSON representation.
func toForkResponse(fork model.Fork) ForkResponse {
	return ForkResponse{
		ID:         fork.ID,
		Owner:      fork.Owner,
		Repo:       fork.Repo,
		URL:        fork.URL,
		IsInternal: fork.IsInternal,
		CreatedAt:  fork.CreatedAt.UTC().Format(time.RFC3339),
	}
}
