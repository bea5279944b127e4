package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghadapter "github.com/govambam/prospector/internal/adapter/driven/github"
	"github.com/govambam/prospector/internal/domain/model"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *ghadapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghadapter.NewClientWithHTTPClient(server.Client(), server.URL+"/", "bot-user")
	require.NoError(t, err)

	return client
}

// prJSON is a helper struct for building GitHub API pull request responses.
type prJSON struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	State     string   `json:"state"`
	HTMLURL   string   `json:"html_url"`
	User      userJSON `json:"user"`
	Base      baseJSON `json:"base"`
	CreatedAt string   `json:"created_at"`
	MergedAt  *string  `json:"merged_at,omitempty"`
	Additions int      `json:"additions,omitempty"`
	Deletions int      `json:"deletions,omitempty"`
	Changed   int      `json:"changed_files,omitempty"`
}

type userJSON struct {
	Login string `json:"login"`
	Type  string `json:"type,omitempty"`
}

type baseJSON struct {
	Repo repoJSON `json:"repo"`
}

type repoJSON struct {
	FullName string `json:"full_name"`
}

func openPR(number int, author string) prJSON {
	return prJSON{
		Number:    number,
		Title:     fmt.Sprintf("Fix issue %d", number),
		State:     "open",
		HTMLURL:   fmt.Sprintf("https://github.com/acme/widget/pull/%d", number),
		User:      userJSON{Login: author, Type: "User"},
		Base:      baseJSON{Repo: repoJSON{FullName: "acme/widget"}},
		CreatedAt: "2026-01-10T00:00:00Z",
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_ListPullRequests_SinglePage(t *testing.T) {
	merged := "2026-02-01T12:00:00Z"

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("direction"))

		prs := []prJSON{
			openPR(3, "alice"),
			{
				Number:    2,
				Title:     "Already merged",
				State:     "closed",
				HTMLURL:   "https://github.com/acme/widget/pull/2",
				User:      userJSON{Login: "bob", Type: "User"},
				Base:      baseJSON{Repo: repoJSON{FullName: "acme/widget"}},
				CreatedAt: "2026-01-05T00:00:00Z",
				MergedAt:  &merged,
			},
			{
				Number:    1,
				Title:     "Abandoned",
				State:     "closed",
				HTMLURL:   "https://github.com/acme/widget/pull/1",
				User:      userJSON{Login: "dependabot[bot]", Type: "Bot"},
				Base:      baseJSON{Repo: repoJSON{FullName: "acme/widget"}},
				CreatedAt: "2026-01-01T00:00:00Z",
			},
		}
		writeJSON(t, w, prs)
	})

	client := newTestClient(t, mux)

	candidates, err := client.ListPullRequests(context.Background(), "acme", "widget", 100)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, 3, candidates[0].Number)
	assert.Equal(t, model.CandidateStateOpen, candidates[0].State)
	assert.Equal(t, "alice", candidates[0].Author)
	assert.Equal(t, "acme/widget", candidates[0].RepoFullName)
	assert.False(t, candidates[0].IsBot)

	assert.Equal(t, model.CandidateStateMerged, candidates[1].State)
	require.NotNil(t, candidates[1].MergedAt)
	assert.Equal(t, 2026, candidates[1].MergedAt.Year())

	assert.Equal(t, model.CandidateStateClosed, candidates[2].State)
	assert.True(t, candidates[2].IsBot)
}

func TestClient_ListPullRequests_StopsAtLimit(t *testing.T) {
	var pagesServed int

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		// Advertise a next page; the client must not follow it once the
		// limit is satisfied.
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/widget/pulls?page=2>; rel="next"`, r.Host))
		writeJSON(t, w, []prJSON{openPR(5, "alice"), openPR(4, "bob"), openPR(3, "carol")})
	})

	client := newTestClient(t, mux)

	candidates, err := client.ListPullRequests(context.Background(), "acme", "widget", 2)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
	assert.Equal(t, 1, pagesServed)
}

func TestClient_ListPullRequests_FollowsPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, []prJSON{openPR(1, "bob")})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/widget/pulls?page=2>; rel="next"`, r.Host))
		writeJSON(t, w, []prJSON{openPR(2, "alice")})
	})

	client := newTestClient(t, mux)

	candidates, err := client.ListPullRequests(context.Background(), "acme", "widget", 100)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, 2, candidates[0].Number)
	assert.Equal(t, 1, candidates[1].Number)
}

func TestClient_ListPullRequests_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Server Error"}`, http.StatusInternalServerError)
	})

	client := newTestClient(t, mux)

	_, err := client.ListPullRequests(context.Background(), "acme", "widget", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing pull requests for acme/widget")
}

func TestClient_ListOrgRepos(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, []map[string]any{{"name": "gadget"}})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/orgs/acme/repos?page=2>; rel="next"`, r.Host))
		writeJSON(t, w, []map[string]any{{"name": "widget"}, {"name": "sprocket"}})
	})

	client := newTestClient(t, mux)

	names, err := client.ListOrgRepos(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"widget", "sprocket", "gadget"}, names)
}

func TestClient_FetchPRDetail_PopulatesDiffStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		pr := openPR(42, "alice")
		pr.Additions = 120
		pr.Deletions = 30
		pr.Changed = 4
		writeJSON(t, w, pr)
	})

	client := newTestClient(t, mux)

	detail, err := client.FetchPRDetail(context.Background(), "acme", "widget", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, detail.Number)
	assert.Equal(t, 120, detail.Additions)
	assert.Equal(t, 30, detail.Deletions)
	assert.Equal(t, 4, detail.ChangedFiles)
}

func TestClient_FetchPRFiles_CapsAtMaxFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		files := []map[string]any{
			{"filename": "pool.go", "additions": 100, "deletions": 25, "patch": "@@ -1 +1 @@"},
			{"filename": "pool_test.go", "additions": 40, "deletions": 0},
			{"filename": "README.md", "additions": 2, "deletions": 1},
		}
		writeJSON(t, w, files)
	})

	client := newTestClient(t, mux)

	files, err := client.FetchPRFiles(context.Background(), "acme", "widget", 7, 2)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "pool.go", files[0].Filename)
	assert.Equal(t, 100, files[0].Additions)
	assert.Equal(t, 25, files[0].Deletions)
	assert.Equal(t, "@@ -1 +1 @@", files[0].Patch)
	assert.Equal(t, "pool_test.go", files[1].Filename)
}

func TestClient_FetchPRCommits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/7/commits", func(w http.ResponseWriter, r *http.Request) {
		commits := []map[string]any{
			{
				"sha": "abc123",
				"commit": map[string]any{
					"committer": map[string]any{"date": "2026-02-10T09:00:00Z"},
				},
			},
			{
				"sha": "def456",
				"commit": map[string]any{
					"committer": map[string]any{"date": "2026-02-11T09:00:00Z"},
				},
			},
		}
		writeJSON(t, w, commits)
	})

	client := newTestClient(t, mux)

	commits, err := client.FetchPRCommits(context.Background(), "acme", "widget", 7)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "abc123", commits[0].SHA)
	assert.Equal(t, 10, commits[0].CommittedAt.Day())
	assert.Equal(t, "def456", commits[1].SHA)
}

func TestClient_DefaultBranchSHA(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"name": "widget", "default_branch": "main"})
	})
	mux.HandleFunc("/repos/acme/widget/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"ref":    "refs/heads/main",
			"object": map[string]any{"sha": "cafe42", "type": "commit"},
		})
	})

	client := newTestClient(t, mux)

	branch, sha, err := client.DefaultBranchSHA(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
	assert.Equal(t, "cafe42", sha)
}

func TestClient_CreateFork_AcceptedIsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/forks", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acme-sim", body["organization"])

		// GitHub forks asynchronously: 202 before the fork repo exists.
		w.WriteHeader(http.StatusAccepted)
		writeJSON(t, w, map[string]any{})
	})

	client := newTestClient(t, mux)

	forkOwner, forkURL, err := client.CreateFork(context.Background(), "acme", "widget", "acme-sim")
	require.NoError(t, err)
	assert.Equal(t, "acme-sim", forkOwner)
	assert.Equal(t, "https://github.com/acme-sim/widget", forkURL)
}

func TestClient_CreateFork_UsesResponseBodyWhenPresent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/forks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		writeJSON(t, w, map[string]any{
			"html_url": "https://github.com/sim-org/widget",
			"owner":    map[string]any{"login": "sim-org"},
		})
	})

	client := newTestClient(t, mux)

	forkOwner, forkURL, err := client.CreateFork(context.Background(), "acme", "widget", "acme-sim")
	require.NoError(t, err)
	assert.Equal(t, "sim-org", forkOwner)
	assert.Equal(t, "https://github.com/sim-org/widget", forkURL)
}

func TestClient_CreateFork_DefaultsToUsername(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/forks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		writeJSON(t, w, map[string]any{})
	})

	client := newTestClient(t, mux)

	forkOwner, forkURL, err := client.CreateFork(context.Background(), "acme", "widget", "")
	require.NoError(t, err)
	assert.Equal(t, "bot-user", forkOwner)
	assert.Equal(t, "https://github.com/bot-user/widget", forkURL)
}

func TestClient_CreateFork_Error(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/forks", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Forbidden"}`, http.StatusForbidden)
	})

	client := newTestClient(t, mux)

	_, _, err := client.CreateFork(context.Background(), "acme", "widget", "acme-sim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forking acme/widget")
}

func TestClient_GetRepo_Exists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme-sim/widget", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"name":     "widget",
			"html_url": "https://github.com/acme-sim/widget",
		})
	})

	client := newTestClient(t, mux)

	url, exists, err := client.GetRepo(context.Background(), "acme-sim", "widget")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "https://github.com/acme-sim/widget", url)
}

func TestClient_GetRepo_NotFoundIsNotAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme-sim/widget", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	client := newTestClient(t, mux)

	url, exists, err := client.GetRepo(context.Background(), "acme-sim", "widget")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, url)
}

func TestClient_CreateBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme-sim/widget/git/refs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refs/heads/simulated-pr-9", body["ref"])
		assert.Equal(t, "cafe42", body["sha"])

		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, map[string]any{"ref": "refs/heads/simulated-pr-9"})
	})

	client := newTestClient(t, mux)

	err := client.CreateBranch(context.Background(), "acme-sim", "widget", "simulated-pr-9", "cafe42")
	require.NoError(t, err)
}

func TestClient_CreatePullRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme-sim/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Simulated change", body["title"])
		assert.Equal(t, "simulated-pr-9", body["head"])
		assert.Equal(t, "main", body["base"])

		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, map[string]any{
			"number":   17,
			"html_url": "https://github.com/acme-sim/widget/pull/17",
		})
	})

	client := newTestClient(t, mux)

	number, url, err := client.CreatePullRequest(
		context.Background(), "acme-sim", "widget",
		"Simulated change", "Exercises the review pipeline.", "simulated-pr-9", "main",
	)
	require.NoError(t, err)
	assert.Equal(t, 17, number)
	assert.Equal(t, "https://github.com/acme-sim/widget/pull/17", url)
}
