package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
)

// DiscoverMode selects between pure heuristic scoring and LLM reranking.
type DiscoverMode string

const (
	ModeFast     DiscoverMode = "fast"
	ModeAdvanced DiscoverMode = "advanced"
)

const (
	// maxCandidates caps how many PRs one discovery run considers, whether
	// from a single repository or aggregated across an organization.
	maxCandidates = 100
	// enrichLimit caps how many candidates get detail and commit fetches.
	enrichLimit = 50
	// fetchConcurrency bounds in-flight GitHub detail/file fetches.
	fetchConcurrency = 10
	// rerankLimit caps how many top candidates the LLM rerank considers.
	rerankLimit = 18
	// maxFilesPerPR caps changed files fetched per candidate for the judge.
	maxFilesPerPR = 20
)

// DiscoverRequest describes one discovery run. Exactly one of
// (RepoOwner, RepoName) or Org must be set.
type DiscoverRequest struct {
	RepoOwner string
	RepoName  string
	Org       string
	Mode      DiscoverMode
	Filters   model.DiscoverFilters
}

// DiscoverResult is the ranked candidate list for one discovery run.
type DiscoverResult struct {
	Candidates       []model.PRCandidate
	TotalPRsAnalyzed int
	AnalysisTime     time.Duration
	MonthlyMetrics   *model.OrgMetrics
}

// DiscoveryService fetches candidate PRs, applies the cutoff filter and
// heuristic scorer, and optionally reranks the top slice via the LLM judge.
// Discovery is a pure request/response pipeline; it keeps no state between
// invocations beyond persisted org metrics.
type DiscoveryService struct {
	gh      driven.GitHubClient
	judge   driven.BugJudge // May be nil; advanced mode then degrades to fast.
	metrics driven.MetricsStore
	cutoff  time.Time
	now     func() time.Time
}

// NewDiscoveryService creates a DiscoveryService. The cutoff date excludes
// PRs containing any commit at or before it.
func NewDiscoveryService(gh driven.GitHubClient, judge driven.BugJudge, metrics driven.MetricsStore, cutoff time.Time) *DiscoveryService {
	return &DiscoveryService{
		gh:      gh,
		judge:   judge,
		metrics: metrics,
		cutoff:  cutoff,
		now:     time.Now,
	}
}

// Discover runs the full pipeline: fetch, cutoff filter, heuristic scoring,
// filtering and sorting, optional LLM rerank, and org metrics bookkeeping.
// Rerank failures degrade to the fast result rather than failing the run.
func (s *DiscoveryService) Discover(ctx context.Context, req DiscoverRequest) (*DiscoverResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.gh == nil {
		return nil, fmt.Errorf("%w: github credentials required for discovery", model.ErrNotConfigured)
	}

	start := s.now()

	candidates, err := s.fetchCandidates(ctx, req)
	if err != nil {
		return nil, err
	}
	total := len(candidates)

	candidates, commitTimes := s.enrichAndCutoff(ctx, candidates)

	now := s.now()
	for i := range candidates {
		candidates[i].FastScore, candidates[i].Breakdown = FastScore(candidates[i], now)
		candidates[i].CombinedScore = candidates[i].FastScore
	}

	filtered := filterCandidates(candidates, req.Filters, now)
	sortByFastScore(filtered)

	final := truncate(filtered, req.Filters.MaxResults)

	if req.Mode == ModeAdvanced {
		if reranked, rerankErr := s.rerank(ctx, filtered, req); rerankErr != nil {
			// Graceful degradation: the fast result set stands.
			slog.Error("llm rerank failed, returning fast results", "error", rerankErr)
		} else {
			final = truncate(reranked, req.Filters.MaxResults)
		}
	}

	result := &DiscoverResult{
		Candidates:       final,
		TotalPRsAnalyzed: total,
		AnalysisTime:     s.now().Sub(start),
	}

	if req.Org != "" {
		result.MonthlyMetrics = s.recordOrgMetrics(ctx, req.Org, candidates, commitTimes, len(final))
	}

	return result, nil
}

func validateRequest(req DiscoverRequest) error {
	hasRepo := req.RepoOwner != "" && req.RepoName != ""
	if hasRepo == (req.Org != "") {
		return fmt.Errorf("%w: exactly one of repo_url or org is required", model.ErrValidation)
	}
	if hasRepo && (!model.IsValidRepoPart(req.RepoOwner) || !model.IsValidRepoPart(req.RepoName)) {
		return fmt.Errorf("%w: invalid repository name %s/%s", model.ErrValidation, req.RepoOwner, req.RepoName)
	}
	if req.Org != "" && !model.IsValidRepoPart(req.Org) {
		return fmt.Errorf("%w: invalid organization name %q", model.ErrValidation, req.Org)
	}
	if req.Mode != ModeFast && req.Mode != ModeAdvanced {
		return fmt.Errorf("%w: mode must be fast or advanced", model.ErrValidation)
	}
	return nil
}

// fetchCandidates lists PRs for a single repository, or aggregates up to
// maxCandidates across an organization's repositories.
func (s *DiscoveryService) fetchCandidates(ctx context.Context, req DiscoverRequest) ([]model.PRCandidate, error) {
	if req.Org == "" {
		candidates, err := s.gh.ListPullRequests(ctx, req.RepoOwner, req.RepoName, maxCandidates)
		if err != nil {
			return nil, err
		}
		for i := range candidates {
			if candidates[i].RepoFullName == "" {
				candidates[i].RepoFullName = req.RepoOwner + "/" + req.RepoName
			}
		}
		return candidates, nil
	}

	repos, err := s.gh.ListOrgRepos(ctx, req.Org)
	if err != nil {
		return nil, err
	}

	var all []model.PRCandidate
	for _, repo := range repos {
		remaining := maxCandidates - len(all)
		if remaining <= 0 {
			break
		}

		candidates, err := s.gh.ListPullRequests(ctx, req.Org, repo, remaining)
		if err != nil {
			// One unreadable repo must not sink the whole org run.
			slog.Warn("skipping org repo", "org", req.Org, "repo", repo, "error", err)
			continue
		}
		for i := range candidates {
			if candidates[i].RepoFullName == "" {
				candidates[i].RepoFullName = req.Org + "/" + repo
			}
		}
		all = append(all, candidates...)
	}

	return all, nil
}

// enrichAndCutoff fills in diff stats and applies the cutoff filter for the
// first enrichLimit candidates, with detail and commit fetches bounded to
// fetchConcurrency in flight. A candidate with any commit at or before the
// cutoff date is excluded. Per-candidate fetch failures are logged and the
// candidate is kept with its list data, so a flaky API call can neither
// sink the batch nor hide a good candidate. Returns the surviving
// candidates and the timestamps of all commits observed, which org metrics
// later window down to the trailing month.
func (s *DiscoveryService) enrichAndCutoff(ctx context.Context, candidates []model.PRCandidate) ([]model.PRCandidate, []time.Time) {
	n := len(candidates)
	if n > enrichLimit {
		n = enrichLimit
	}

	exclude := make([]bool, len(candidates))
	commitTimes := make([][]time.Time, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			c := &candidates[i]
			owner, repo, ok := splitFullName(c.RepoFullName)
			if !ok {
				return nil
			}

			detail, err := s.gh.FetchPRDetail(gctx, owner, repo, c.Number)
			if err != nil {
				slog.Warn("candidate detail fetch failed", "repo", c.RepoFullName, "number", c.Number, "error", err)
			} else {
				c.Additions = detail.Additions
				c.Deletions = detail.Deletions
				c.ChangedFiles = detail.ChangedFiles
			}

			commits, err := s.gh.FetchPRCommits(gctx, owner, repo, c.Number)
			if err != nil {
				slog.Warn("cutoff check failed, keeping candidate", "repo", c.RepoFullName, "number", c.Number, "error", err)
				return nil
			}

			times := make([]time.Time, 0, len(commits))
			for _, commit := range commits {
				times = append(times, commit.CommittedAt)
			}
			commitTimes[i] = times

			for _, commit := range commits {
				if !commit.CommittedAt.After(s.cutoff) {
					exclude[i] = true
					return nil
				}
			}
			return nil
		})
	}

	_ = g.Wait() // Workers only log; they never return errors.

	var allTimes []time.Time
	for _, times := range commitTimes {
		allTimes = append(allTimes, times...)
	}

	kept := make([]model.PRCandidate, 0, len(candidates))
	for i, c := range candidates {
		if !exclude[i] {
			kept = append(kept, c)
		}
	}
	return kept, allTimes
}

// filterCandidates applies the state, merge-window, and size filters.
func filterCandidates(candidates []model.PRCandidate, f model.DiscoverFilters, now time.Time) []model.PRCandidate {
	kept := make([]model.PRCandidate, 0, len(candidates))
	for _, c := range candidates {
		switch c.State {
		case model.CandidateStateOpen:
			if !f.IncludeOpen {
				continue
			}
		case model.CandidateStateMerged:
			if !f.IncludeMerged || !c.MergedWithin(f.MergedWithinDays, now) {
				continue
			}
		default:
			// Closed-unmerged PRs never become outreach collateral.
			continue
		}

		if c.LinesChanged() < f.MinLinesChanged {
			continue
		}

		kept = append(kept, c)
	}
	return kept
}

// rerank runs the advanced-mode pass: select eligible candidates, fetch
// their changed files, batch-score through the LLM, blend, and re-sort.
// Candidates outside the scored subset keep their fast score as the
// combined score and backfill the merged list, so the overall result never
// shrinks just because a PR was ineligible or its files were unavailable.
// Any error aborts the whole pass; the caller falls back to fast results.
func (s *DiscoveryService) rerank(ctx context.Context, candidates []model.PRCandidate, req DiscoverRequest) ([]model.PRCandidate, error) {
	if s.judge == nil {
		return nil, fmt.Errorf("%w: anthropic credentials required for advanced mode", model.ErrNotConfigured)
	}

	now := s.now()
	eligible := make([]model.PRCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.IsBot || c.LinesChanged() < 50 {
			continue
		}
		if c.State != model.CandidateStateOpen && !c.MergedWithin(30, now) {
			continue
		}
		eligible = append(eligible, c)
	}

	sortByFastScore(eligible)
	if len(eligible) > rerankLimit {
		eligible = eligible[:rerankLimit]
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no candidates eligible for rerank")
	}

	files, scorable := s.fetchRerankFiles(ctx, eligible)
	if len(scorable) == 0 {
		return nil, fmt.Errorf("no rerank candidate files could be retrieved")
	}

	judgments, err := s.judge.ScoreBatch(ctx, scorable, files)
	if err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}

	byNumber := make(map[int]model.BugJudgment, len(judgments))
	for _, j := range judgments {
		byNumber[j.Number] = j
	}

	for i := range scorable {
		if j, ok := byNumber[scorable[i].Number]; ok {
			score := j.Score
			scorable[i].LLMScore = &score
			scorable[i].RiskCategories = j.RiskCategories
		}
		scorable[i].CombinedScore = CombineScores(scorable[i].FastScore, scorable[i].LLMScore)
	}

	scored := make(map[string]bool, len(scorable))
	for _, c := range scorable {
		scored[c.RepoFullName+"#"+strconv.Itoa(c.Number)] = true
	}

	merged := scorable
	for _, c := range candidates {
		if !scored[c.RepoFullName+"#"+strconv.Itoa(c.Number)] {
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(a, b int) bool {
		if merged[a].CombinedScore != merged[b].CombinedScore {
			return merged[a].CombinedScore > merged[b].CombinedScore
		}
		return merged[a].Number > merged[b].Number
	})

	return merged, nil
}

// fetchRerankFiles fetches up to maxFilesPerPR changed files per eligible
// candidate with bounded concurrency. Candidates whose files cannot be
// retrieved are dropped from the rerank subset; they remain available via
// the fast-scored fallback.
func (s *DiscoveryService) fetchRerankFiles(ctx context.Context, eligible []model.PRCandidate) (map[int][]model.ChangedFile, []model.PRCandidate) {
	type fileResult struct {
		files []model.ChangedFile
		ok    bool
	}
	results := make([]fileResult, len(eligible))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i := range eligible {
		g.Go(func() error {
			c := eligible[i]
			owner, repo, ok := splitFullName(c.RepoFullName)
			if !ok {
				return nil
			}

			files, err := s.gh.FetchPRFiles(gctx, owner, repo, c.Number, maxFilesPerPR)
			if err != nil {
				slog.Warn("rerank file fetch failed, dropping from subset", "repo", c.RepoFullName, "number", c.Number, "error", err)
				return nil
			}
			results[i] = fileResult{files: files, ok: true}
			return nil
		})
	}

	_ = g.Wait()

	files := make(map[int][]model.ChangedFile)
	scorable := make([]model.PRCandidate, 0, len(eligible))
	for i, c := range eligible {
		if results[i].ok {
			files[c.Number] = results[i].files
			scorable = append(scorable, c)
		}
	}
	return files, scorable
}

// recordOrgMetrics persists trailing-monthly aggregates for an org run, or
// retires them when the run produced no actionable candidates. All three
// aggregates use the same trailing-30-day window. Returns the metrics that
// remain persisted, if any.
func (s *DiscoveryService) recordOrgMetrics(ctx context.Context, org string, candidates []model.PRCandidate, commitTimes []time.Time, finalCount int) *model.OrgMetrics {
	if finalCount == 0 {
		if err := s.metrics.Delete(ctx, org); err != nil {
			slog.Error("failed to delete org metrics", "org", org, "error", err)
		}
		return nil
	}

	now := s.now()
	m := model.OrgMetrics{
		Org:        org,
		ComputedAt: now.UTC(),
	}

	monthAgo := now.AddDate(0, 0, -30)
	for _, committedAt := range commitTimes {
		if committedAt.After(monthAgo) {
			m.CommitCount++
		}
	}
	for _, c := range candidates {
		recent := c.CreatedAt.After(monthAgo) || (c.MergedAt != nil && c.MergedAt.After(monthAgo))
		if !recent {
			continue
		}
		m.PRCount++
		m.LinesChanged += c.LinesChanged()
	}

	if err := s.metrics.Upsert(ctx, m); err != nil {
		slog.Error("failed to upsert org metrics", "org", org, "error", err)
		return nil
	}

	return &m
}

// sortByFastScore orders candidates by fast score descending, breaking ties
// on PR number descending so ordering is stable across runs.
func sortByFastScore(candidates []model.PRCandidate) {
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].FastScore != candidates[b].FastScore {
			return candidates[a].FastScore > candidates[b].FastScore
		}
		return candidates[a].Number > candidates[b].Number
	})
}

func truncate(candidates []model.PRCandidate, maxResults int) []model.PRCandidate {
	if maxResults > 0 && len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	out := make([]model.PRCandidate, len(candidates))
	copy(out, candidates)
	return out
}

// splitFullName splits "owner/repo" into its two components.
func splitFullName(fullName string) (string, string, bool) {
	owner, repo, found := strings.Cut(fullName, "/")
	if !found || owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}
