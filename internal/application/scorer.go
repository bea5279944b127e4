package application

import (
	"math"
	"time"

	"github.com/govambam/prospector/internal/domain/model"
)

// Heuristic scoring weights. Change size dominates, recency second,
// breadth of files third.
const (
	sizeWeight    = 0.45
	filesWeight   = 0.25
	recencyWeight = 0.30

	recencyWindowDays = 90
)

// FastScore computes the deterministic 0-100 heuristic score for a candidate
// from its metadata alone. Identical input (candidate fields and now) always
// produces an identical score.
func FastScore(c model.PRCandidate, now time.Time) (int, model.ScoreBreakdown) {
	breakdown := model.ScoreBreakdown{
		SizeScore:    sizeScore(c.LinesChanged()),
		FilesScore:   filesScore(c.ChangedFiles),
		RecencyScore: recencyScore(c, now),
	}

	overall := int(math.Round(
		sizeWeight*float64(breakdown.SizeScore) +
			filesWeight*float64(breakdown.FilesScore) +
			recencyWeight*float64(breakdown.RecencyScore),
	))

	return overall, breakdown
}

// sizeScore rewards substantive changes. Under 50 lines a PR rarely carries
// an interesting bug; 50-1000 lines is the sweet spot, climbing on a log
// scale; beyond 1000 lines the score decays because huge PRs are usually
// vendored code or generated churn.
func sizeScore(lines int) int {
	switch {
	case lines <= 0:
		return 0
	case lines < 50:
		return int(math.Round(float64(lines) / 50 * 40))
	case lines <= 1000:
		// log scale from 40 at 50 lines to 100 at 1000 lines.
		return int(math.Round(40 + 60*math.Log10(float64(lines)/50)/math.Log10(20)))
	default:
		excess := float64(lines-1000) / 200
		if excess > 40 {
			excess = 40
		}
		return int(math.Round(100 - excess))
	}
}

// filesScore peaks for changes touching 3-15 files: focused enough to
// review, broad enough to have interactions.
func filesScore(files int) int {
	switch {
	case files <= 0:
		return 0
	case files <= 2:
		return 50
	case files <= 15:
		return 100
	case files <= 30:
		// Linear decay from 100 at 15 files to 40 at 30 files.
		return int(math.Round(100 - float64(files-15)*4))
	default:
		return 30
	}
}

// recencyScore decays linearly from 100 (activity today) to 0 over the
// trailing window. Merged PRs age from their merge time, others from
// creation.
func recencyScore(c model.PRCandidate, now time.Time) int {
	activity := c.CreatedAt
	if c.MergedAt != nil {
		activity = *c.MergedAt
	}

	ageDays := now.Sub(activity).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays >= recencyWindowDays {
		return 0
	}

	return int(math.Round(100 * (1 - ageDays/recencyWindowDays)))
}

// CombineScores blends the fast score with an LLM bug-likelihood judgment.
// A candidate with no judgment defaults to the neutral midpoint 5 before
// scaling to the 0-100 range.
func CombineScores(fastScore int, llmScore *int) int {
	llm := 5
	if llmScore != nil {
		llm = *llmScore
	}
	return int(math.Round(float64(fastScore)*0.4 + float64(llm*10)*0.6))
}
