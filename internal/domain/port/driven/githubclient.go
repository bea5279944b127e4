package driven

import (
	"context"
	"time"

	"github.com/govambam/prospector/internal/domain/model"
)

// CommitInfo is the minimal commit data needed for cutoff filtering and
// org activity metrics.
type CommitInfo struct {
	SHA         string
	CommittedAt time.Time
}

// GitHubClient defines the driven port for interacting with the GitHub API.
// Read methods fetch candidate data; write methods drive the simulated PR
// workflow (fork, branch, PR creation).
type GitHubClient interface {
	// Read methods

	// ListPullRequests returns up to limit pull requests for the repository,
	// most recently updated first, mapped to candidates without detail stats.
	ListPullRequests(ctx context.Context, owner, repo string, limit int) ([]model.PRCandidate, error)
	// ListOrgRepos returns the names of an organization's repositories.
	ListOrgRepos(ctx context.Context, org string) ([]string, error)
	// FetchPRDetail fills in additions, deletions, and changed file counts.
	FetchPRDetail(ctx context.Context, owner, repo string, number int) (*model.PRCandidate, error)
	// FetchPRFiles returns up to maxFiles changed files for a PR.
	FetchPRFiles(ctx context.Context, owner, repo string, number, maxFiles int) ([]model.ChangedFile, error)
	// FetchPRCommits returns the commits on a PR, used for cutoff filtering.
	FetchPRCommits(ctx context.Context, owner, repo string, number int) ([]CommitInfo, error)
	// DefaultBranchSHA returns the head SHA of the repository's default branch.
	DefaultBranchSHA(ctx context.Context, owner, repo string) (branch, sha string, err error)

	// Write methods

	// CreateFork forks owner/repo into targetOrg (or the authenticated user
	// when targetOrg is empty) and returns the fork's owner and clone URL.
	// Fork creation is asynchronous on GitHub's side; callers poll the fork
	// until it is ready.
	CreateFork(ctx context.Context, owner, repo, targetOrg string) (forkOwner, forkURL string, err error)
	// GetRepo returns whether owner/repo exists and its clone URL.
	GetRepo(ctx context.Context, owner, repo string) (url string, exists bool, err error)
	// CreateBranch creates a new ref at the given SHA.
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) error
	// CreatePullRequest opens a PR from head (owner:branch) onto base in the
	// given repository and returns its number and URL.
	CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (number int, url string, err error)
}

// BugJudge defines the driven port for LLM bug-likelihood scoring.
type BugJudge interface {
	// ScoreBatch scores the given candidates (with their changed files) and
	// returns one judgment per candidate the model could assess. A response
	// that ends before the structured payload completes yields
	// model.ErrTruncated.
	ScoreBatch(ctx context.Context, candidates []model.PRCandidate, files map[int][]model.ChangedFile) ([]model.BugJudgment, error)
}
