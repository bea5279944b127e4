package model

import "time"

// CandidateState represents the state of a candidate pull request.
type CandidateState string

const (
	CandidateStateOpen   CandidateState = "open"
	CandidateStateMerged CandidateState = "merged"
	CandidateStateClosed CandidateState = "closed"
)

// ScoreBreakdown holds the normalized sub-scores that make up a fast score.
type ScoreBreakdown struct {
	SizeScore    int `json:"size_score"`
	FilesScore   int `json:"files_score"`
	RecencyScore int `json:"recency_score"`
}

// PRCandidate is a third-party pull request under consideration for a
// simulated PR, produced per discovery request and never persisted.
type PRCandidate struct {
	Number       int
	RepoFullName string
	Title        string
	URL          string
	Author       string
	State        CandidateState
	IsBot        bool
	Additions    int
	Deletions    int
	ChangedFiles int
	CreatedAt    time.Time
	MergedAt     *time.Time

	FastScore      int
	Breakdown      ScoreBreakdown
	LLMScore       *int // 1-10 bug-likelihood judgment; nil when not scored.
	RiskCategories []string
	CombinedScore  int
}

// LinesChanged returns the total additions plus deletions.
func (c PRCandidate) LinesChanged() int {
	return c.Additions + c.Deletions
}

// MergedWithin reports whether the candidate merged within the trailing
// window of days. Open and closed candidates report false.
func (c PRCandidate) MergedWithin(days int, now time.Time) bool {
	if c.MergedAt == nil {
		return false
	}
	return now.Sub(*c.MergedAt) <= time.Duration(days)*24*time.Hour
}

// BugJudgment is a single LLM bug-likelihood verdict for a candidate.
type BugJudgment struct {
	Number         int      `json:"number"`
	Score          int      `json:"score"` // 1 (unlikely buggy) to 10 (very likely).
	RiskCategories []string `json:"risk_categories"`
}

// ChangedFile is one file touched by a candidate PR, fed to the LLM judge.
type ChangedFile struct {
	Filename  string
	Additions int
	Deletions int
	Patch     string
}

// DiscoverFilters controls candidate filtering during discovery.
type DiscoverFilters struct {
	IncludeOpen      bool
	IncludeMerged    bool
	MergedWithinDays int
	MinLinesChanged  int
	MaxResults       int
}

// DefaultDiscoverFilters returns the standard filter set: open and merged
// PRs, merged within 30 days, at least 50 lines changed, top 10 results.
func DefaultDiscoverFilters() DiscoverFilters {
	return DiscoverFilters{
		IncludeOpen:      true,
		IncludeMerged:    true,
		MergedWithinDays: 30,
		MinLinesChanged:  50,
		MaxResults:       10,
	}
}
