package repocache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/govambam/prospector/internal/domain/model"
)

// Action reports what EnsureClone did to satisfy the request.
type Action string

const (
	ActionCloned  Action = "cloned"
	ActionUpdated Action = "updated"
)

// gitRunner executes a git command. Extracted so tests can substitute a fake
// instead of shelling out.
type gitRunner func(ctx context.Context, dir string, args ...string) error

// Cache owns the on-disk repository cache directory. Every clone or fetch
// runs under the repository's lock and a global semaphore permit, so one
// repository never has two git operations in flight and total network-heavy
// operations stay bounded.
type Cache struct {
	dir      string
	token    string
	username string
	locks    *LockManager
	sem      *Semaphore
	runGit   gitRunner
}

// NewCache creates a Cache rooted at dir with the given credentials and
// concurrency primitives. The token may be empty; EnsureClone then fails
// with model.ErrNotConfigured.
func NewCache(dir, token, username string, locks *LockManager, sem *Semaphore) *Cache {
	return &Cache{
		dir:      dir,
		token:    token,
		username: username,
		locks:    locks,
		sem:      sem,
		runGit:   runGitCommand,
	}
}

// EnsureClone guarantees an up-to-date local clone of owner/repo and reports
// whether it was freshly cloned or updated. Identifier validation happens
// before any lock, filesystem, or network activity. A failed clone removes
// the partial directory before the error propagates.
func (c *Cache) EnsureClone(ctx context.Context, owner, repo string) (Action, error) {
	if !model.IsValidRepoPart(owner) || !model.IsValidRepoPart(repo) {
		return "", fmt.Errorf("%w: invalid repository name %s/%s", model.ErrValidation, owner, repo)
	}
	if c.token == "" {
		return "", fmt.Errorf("%w: github token required for clone operations", model.ErrNotConfigured)
	}

	releaseLock, err := c.locks.Acquire(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	defer releaseLock()

	releasePermit, err := c.sem.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer releasePermit()

	repoDir := filepath.Join(c.dir, owner, repo)

	if _, statErr := os.Stat(filepath.Join(repoDir, ".git")); statErr == nil {
		if err := c.runGit(ctx, repoDir, "fetch", "--all", "--prune"); err != nil {
			return "", fmt.Errorf("updating %s/%s: %w", owner, repo, redactToken(err, c.token))
		}
		slog.Info("repo cache updated", "repo", owner+"/"+repo)
		return ActionUpdated, nil
	}

	if err := os.MkdirAll(filepath.Dir(repoDir), 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory for %s/%s: %w", owner, repo, err)
	}

	remote := fmt.Sprintf("https://%s:%s@github.com/%s/%s.git", c.username, c.token, owner, repo)
	if err := c.runGit(ctx, "", "clone", remote, repoDir); err != nil {
		// Do not leave a partial clone behind; the next attempt must start clean.
		if rmErr := os.RemoveAll(repoDir); rmErr != nil {
			slog.Error("failed to remove partial clone", "dir", repoDir, "error", rmErr)
		}
		return "", fmt.Errorf("cloning %s/%s: %w", owner, repo, redactToken(err, c.token))
	}

	slog.Info("repo cache cloned", "repo", owner+"/"+repo)
	return ActionCloned, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// runGitCommand shells out to git. When dir is empty the command runs from
// the process working directory (used for clone, where the target does not
// exist yet).
func runGitCommand(ctx context.Context, dir string, args ...string) error {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// redactToken scrubs the access token from error text before it reaches
// logs or API responses.
func redactToken(err error, token string) error {
	if token == "" || err == nil {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), token, "***")
	if msg == err.Error() {
		return err
	}
	return fmt.Errorf("%s", msg)
}
