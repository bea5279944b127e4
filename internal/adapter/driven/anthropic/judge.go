// Package anthropic implements the BugJudge port using the Anthropic API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
)

const (
	defaultModel   = "claude-haiku-4-5"
	maxRetries     = 3
	initialBackoff = 1 * time.Second

	// Per-candidate output budget. The judge emits a compact JSON object per
	// PR; 120 tokens each plus slack covers the array syntax.
	tokensPerCandidate = 120
	minMaxTokens       = 1024
)

// Compile-time interface satisfaction check.
var _ driven.BugJudge = (*Judge)(nil)

// Judge scores batches of PR candidates for bug likelihood via the
// Anthropic Messages API.
type Judge struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewJudge creates a Judge. The API key must be non-empty; callers decide
// whether a missing key disables advanced mode or fails startup.
func NewJudge(apiKey string) (*Judge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is empty", model.ErrNotConfigured)
	}

	return &Judge{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(defaultModel),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// ScoreBatch scores the given candidates in a single completion call and
// parses the strict JSON contract. Incomplete output (the model ran out of
// tokens mid-array) returns model.ErrTruncated.
func (j *Judge) ScoreBatch(ctx context.Context, candidates []model.PRCandidate, files map[int][]model.ChangedFile) ([]model.BugJudgment, error) {
	if len(candidates) == 0 {
		return []model.BugJudgment{}, nil
	}

	prompt := buildPrompt(candidates, files)

	maxTokens := int64(len(candidates) * tokensPerCandidate)
	if maxTokens < minMaxTokens {
		maxTokens = minMaxTokens
	}

	text, stopReason, err := j.callWithRetry(ctx, prompt, maxTokens)
	if err != nil {
		return nil, err
	}

	judgments, err := parseJudgments(text, stopReason)
	if err != nil {
		return nil, err
	}

	return clampJudgments(judgments), nil
}

func (j *Judge) callWithRetry(ctx context.Context, prompt string, maxTokens int64) (string, string, error) {
	params := anthropic.MessageNewParams{
		Model:     j.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error

	for attempt := 0; attempt <= j.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := j.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", "", ctx.Err()
			}
		}

		message, err := j.client.Messages.New(ctx, params)
		if err == nil {
			slog.Debug("anthropic api call",
				"model", string(j.model),
				"input_tokens", message.Usage.InputTokens,
				"output_tokens", message.Usage.OutputTokens,
				"attempts", attempt+1,
			)

			if len(message.Content) == 0 {
				return "", "", fmt.Errorf("unexpected response format: no content blocks")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return content.Text, string(message.StopReason), nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}

		if !isRetryable(err) {
			return "", "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", "", fmt.Errorf("failed after %d retries: %w", j.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		return statusCode == 429 || statusCode >= 500
	}

	return false
}

// parseJudgments enforces the strict response contract: the entire text body
// must be one JSON array of judgment objects. A stop reason of max_tokens, or
// an unmarshal failure on text that does not close its array, is reported as
// truncation rather than a generic parse error.
func parseJudgments(text, stopReason string) ([]model.BugJudgment, error) {
	trimmed := strings.TrimSpace(text)

	var judgments []model.BugJudgment
	if err := json.Unmarshal([]byte(trimmed), &judgments); err != nil {
		if stopReason == "max_tokens" || (strings.HasPrefix(trimmed, "[") && !strings.HasSuffix(trimmed, "]")) {
			return nil, fmt.Errorf("%w: response ended mid-array (stop_reason=%s)", model.ErrTruncated, stopReason)
		}
		return nil, fmt.Errorf("parse judgment array: %w", err)
	}

	if stopReason == "max_tokens" {
		return nil, fmt.Errorf("%w: output budget exhausted (stop_reason=%s)", model.ErrTruncated, stopReason)
	}

	return judgments, nil
}

// clampJudgments clamps scores into the 1-10 contract range and drops
// judgments with no usable PR number.
func clampJudgments(judgments []model.BugJudgment) []model.BugJudgment {
	out := make([]model.BugJudgment, 0, len(judgments))
	for _, jd := range judgments {
		if jd.Number <= 0 {
			continue
		}
		if jd.Score < 1 {
			jd.Score = 1
		}
		if jd.Score > 10 {
			jd.Score = 10
		}
		if jd.RiskCategories == nil {
			jd.RiskCategories = []string{}
		}
		out = append(out, jd)
	}
	return out
}

// buildPrompt renders the batch scoring prompt: instructions, the strict
// output contract, then one block per candidate with title, diff stats, and
// the changed file list.
func buildPrompt(candidates []model.PRCandidate, files map[int][]model.ChangedFile) string {
	var b strings.Builder

	b.WriteString("You are reviewing pull requests to estimate how likely each one introduced a bug.\n")
	b.WriteString("Score each PR from 1 (very unlikely) to 10 (very likely) and name the risk categories\n")
	b.WriteString("involved (e.g. concurrency, error-handling, null-safety, off-by-one, resource-leak).\n\n")
	b.WriteString("Respond with ONLY a JSON array, no prose and no code fences:\n")
	b.WriteString(`[{"number": <pr number>, "score": <1-10>, "risk_categories": ["..."]}]`)
	b.WriteString("\n\n")

	for _, c := range candidates {
		fmt.Fprintf(&b, "PR #%d: %s\n", c.Number, c.Title)
		fmt.Fprintf(&b, "+%d/-%d across %d files\n", c.Additions, c.Deletions, c.ChangedFiles)
		for _, f := range files[c.Number] {
			fmt.Fprintf(&b, "  %s (+%d/-%d)\n", f.Filename, f.Additions, f.Deletions)
		}
		b.WriteString("\n")
	}

	return b.String()
}
