package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govambam/prospector/internal/domain/model"
)

func TestNewJudge_EmptyKey(t *testing.T) {
	j, err := NewJudge("")

	assert.Nil(t, j)
	require.ErrorIs(t, err, model.ErrNotConfigured)
}

func TestParseJudgments_ValidArray(t *testing.T) {
	text := `[
		{"number": 42, "score": 7, "risk_categories": ["concurrency"]},
		{"number": 43, "score": 2, "risk_categories": []}
	]`

	judgments, err := parseJudgments(text, "end_turn")

	require.NoError(t, err)
	require.Len(t, judgments, 2)
	assert.Equal(t, 42, judgments[0].Number)
	assert.Equal(t, 7, judgments[0].Score)
	assert.Equal(t, []string{"concurrency"}, judgments[0].RiskCategories)
}

func TestParseJudgments_SurroundingWhitespace(t *testing.T) {
	judgments, err := parseJudgments("\n  [{\"number\": 1, \"score\": 5}]  \n", "end_turn")

	require.NoError(t, err)
	assert.Len(t, judgments, 1)
}

// A response cut off mid-array is truncation, not a generic parse failure,
// so callers can distinguish "ask for less" from "model went off-script".
func TestParseJudgments_TruncatedMidArray(t *testing.T) {
	text := `[{"number": 42, "score": 7, "risk_categories": ["concurrency"]}, {"number": 43, "sco`

	judgments, err := parseJudgments(text, "max_tokens")

	assert.Nil(t, judgments)
	require.ErrorIs(t, err, model.ErrTruncated)
}

func TestParseJudgments_UnclosedArrayWithoutStopReason(t *testing.T) {
	text := `[{"number": 42, "score": 7}`

	_, err := parseJudgments(text, "end_turn")

	require.ErrorIs(t, err, model.ErrTruncated)
}

// A complete array that still reports max_tokens cannot be trusted: the tail
// of the batch may be missing entirely.
func TestParseJudgments_CompleteArrayButMaxTokens(t *testing.T) {
	text := `[{"number": 42, "score": 7, "risk_categories": []}]`

	_, err := parseJudgments(text, "max_tokens")

	require.ErrorIs(t, err, model.ErrTruncated)
}

func TestParseJudgments_ProseIsParseError(t *testing.T) {
	_, err := parseJudgments("Here are my scores: PR 42 looks risky.", "end_turn")

	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrTruncated)
}

func TestClampJudgments(t *testing.T) {
	in := []model.BugJudgment{
		{Number: 1, Score: 0},
		{Number: 2, Score: 15, RiskCategories: []string{"concurrency"}},
		{Number: 0, Score: 5},  // No usable PR number, dropped.
		{Number: -3, Score: 5}, // Same.
		{Number: 3, Score: 7},
	}

	out := clampJudgments(in)

	require.Len(t, out, 3)
	assert.Equal(t, 1, out[0].Score)
	assert.Equal(t, 10, out[1].Score)
	assert.Equal(t, 7, out[2].Score)
	for _, jd := range out {
		assert.NotNil(t, jd.RiskCategories)
	}
}

func TestBuildPrompt(t *testing.T) {
	candidates := []model.PRCandidate{
		{Number: 42, Title: "Fix race in worker pool", Additions: 120, Deletions: 30, ChangedFiles: 4},
	}
	files := map[int][]model.ChangedFile{
		42: {{Filename: "pool.go", Additions: 100, Deletions: 25}},
	}

	prompt := buildPrompt(candidates, files)

	assert.Contains(t, prompt, "PR #42: Fix race in worker pool")
	assert.Contains(t, prompt, "+120/-30 across 4 files")
	assert.Contains(t, prompt, "pool.go (+100/-25)")
	assert.Contains(t, prompt, "ONLY a JSON array")
}
