// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// Client implements the driven.GitHubClient port using the go-github library.
type Client struct {
	gh       *gh.Client
	username string
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token, username string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:       client,
		username: username,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, username string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:       client,
		username: username,
	}, nil
}

// ListPullRequests returns up to limit pull requests for the repository,
// most recently updated first. Pagination stops once limit is reached.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string, limit int) ([]model.PRCandidate, error) {
	opts := &gh.PullRequestListOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	candidates := []model.PRCandidate{}

	for {
		prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s/%s (page %d): %w", owner, repo, opts.Page, err)
		}

		logRateLimit(resp, owner+"/"+repo, opts.Page, len(prs))

		for _, pr := range prs {
			candidates = append(candidates, mapCandidate(pr))
			if len(candidates) >= limit {
				return candidates, nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return candidates, nil
}

// ListOrgRepos returns the names of an organization's repositories,
// paginating until exhausted.
func (c *Client) ListOrgRepos(ctx context.Context, org string) ([]string, error) {
	opts := &gh.RepositoryListByOrgOptions{
		Sort:        "pushed",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var names []string

	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories for org %s (page %d): %w", org, opts.Page, err)
		}

		logRateLimit(resp, org+"/repos", opts.Page, len(repos))

		for _, r := range repos {
			names = append(names, r.GetName())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return names, nil
}

// FetchPRDetail returns a candidate with diff stats (additions, deletions,
// changed files) populated from the single-PR endpoint.
func (c *Client) FetchPRDetail(ctx context.Context, owner, repo string, number int) (*model.PRCandidate, error) {
	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching PR detail for %s/%s#%d: %w", owner, repo, number, err)
	}

	logRateLimit(resp, fmt.Sprintf("%s/%s/pr-detail", owner, repo), 0, 1)

	candidate := mapCandidate(pr)
	candidate.Additions = pr.GetAdditions()
	candidate.Deletions = pr.GetDeletions()
	candidate.ChangedFiles = pr.GetChangedFiles()

	return &candidate, nil
}

// FetchPRFiles returns up to maxFiles changed files for a PR.
func (c *Client) FetchPRFiles(ctx context.Context, owner, repo string, number, maxFiles int) ([]model.ChangedFile, error) {
	opts := &gh.ListOptions{PerPage: maxFiles}

	files, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, number, opts)
	if err != nil {
		return nil, fmt.Errorf("listing files for %s/%s#%d: %w", owner, repo, number, err)
	}

	logRateLimit(resp, fmt.Sprintf("%s/%s/pr-files", owner, repo), 0, len(files))

	changed := make([]model.ChangedFile, 0, len(files))
	for _, f := range files {
		if len(changed) >= maxFiles {
			break
		}
		changed = append(changed, model.ChangedFile{
			Filename:  f.GetFilename(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Patch:     f.GetPatch(),
		})
	}

	return changed, nil
}

// FetchPRCommits returns the commits on a PR with their committer timestamps.
func (c *Client) FetchPRCommits(ctx context.Context, owner, repo string, number int) ([]driven.CommitInfo, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var commits []driven.CommitInfo

	for {
		page, resp, err := c.gh.PullRequests.ListCommits(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s/%s#%d (page %d): %w", owner, repo, number, opts.Page, err)
		}

		for _, rc := range page {
			commits = append(commits, driven.CommitInfo{
				SHA:         rc.GetSHA(),
				CommittedAt: rc.GetCommit().GetCommitter().GetDate().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return commits, nil
}

// DefaultBranchSHA returns the repository's default branch name and its head
// commit SHA.
func (c *Client) DefaultBranchSHA(ctx context.Context, owner, repo string) (string, string, error) {
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", "", fmt.Errorf("fetching repository %s/%s: %w", owner, repo, err)
	}

	logRateLimit(resp, owner+"/"+repo+"/repo", 0, 1)

	branch := r.GetDefaultBranch()
	ref, _, err := c.gh.Git.GetRef(ctx, owner, repo, "refs/heads/"+branch)
	if err != nil {
		return "", "", fmt.Errorf("fetching ref %s for %s/%s: %w", branch, owner, repo, err)
	}

	return branch, ref.GetObject().GetSHA(), nil
}

// CreateFork forks owner/repo into targetOrg (or the authenticated user when
// targetOrg is empty). GitHub creates forks asynchronously and returns 202;
// go-github surfaces that as *AcceptedError, which is success here.
func (c *Client) CreateFork(ctx context.Context, owner, repo, targetOrg string) (string, string, error) {
	opts := &gh.RepositoryCreateForkOptions{}
	if targetOrg != "" {
		opts.Organization = targetOrg
	}

	fork, _, err := c.gh.Repositories.CreateFork(ctx, owner, repo, opts)
	if err != nil {
		if _, accepted := err.(*gh.AcceptedError); !accepted {
			return "", "", fmt.Errorf("forking %s/%s: %w", owner, repo, err)
		}
	}

	forkOwner := targetOrg
	if forkOwner == "" {
		forkOwner = c.username
	}

	forkURL := fmt.Sprintf("https://github.com/%s/%s", forkOwner, repo)
	if fork != nil && fork.GetHTMLURL() != "" {
		forkURL = fork.GetHTMLURL()
		forkOwner = fork.GetOwner().GetLogin()
	}

	return forkOwner, forkURL, nil
}

// GetRepo returns whether owner/repo exists and its HTML URL. A 404 is
// reported as exists=false, not an error, so callers can poll fork readiness.
func (c *Client) GetRepo(ctx context.Context, owner, repo string) (string, bool, error) {
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fetching repository %s/%s: %w", owner, repo, err)
	}

	return r.GetHTMLURL(), true, nil
}

// CreateBranch creates refs/heads/branch at the given SHA.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	ref := gh.CreateRef{
		Ref: "refs/heads/" + branch,
		SHA: sha,
	}

	_, _, err := c.gh.Git.CreateRef(ctx, owner, repo, ref)
	if err != nil {
		return fmt.Errorf("creating branch %s in %s/%s: %w", branch, owner, repo, err)
	}

	return nil
}

// CreatePullRequest opens a PR from head onto base in the given repository.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (int, string, error) {
	newPR := &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Body:  gh.Ptr(body),
		Head:  gh.Ptr(head),
		Base:  gh.Ptr(base),
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, newPR)
	if err != nil {
		return 0, "", fmt.Errorf("creating pull request in %s/%s: %w", owner, repo, err)
	}

	return pr.GetNumber(), pr.GetHTMLURL(), nil
}

// mapCandidate converts a go-github PullRequest to a discovery candidate.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapCandidate(pr *gh.PullRequest) model.PRCandidate {
	state := model.CandidateStateOpen
	var mergedAt *time.Time
	if !pr.GetMergedAt().IsZero() {
		state = model.CandidateStateMerged
		t := pr.GetMergedAt().Time
		mergedAt = &t
	} else if pr.GetState() == "closed" {
		state = model.CandidateStateClosed
	}

	return model.PRCandidate{
		Number:       pr.GetNumber(),
		RepoFullName: pr.GetBase().GetRepo().GetFullName(),
		Title:        pr.GetTitle(),
		URL:          pr.GetHTMLURL(),
		Author:       pr.GetUser().GetLogin(),
		State:        state,
		IsBot:        pr.GetUser().GetType() == "Bot",
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		CreatedAt:    pr.GetCreatedAt().Time,
		MergedAt:     mergedAt,
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
