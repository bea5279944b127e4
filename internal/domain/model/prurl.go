package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParsePRURL extracts owner, repo, and PR number from a GitHub pull request
// URL of the form https://github.com/{owner}/{repo}/pull/{number}.
func ParsePRURL(raw string) (owner, repo string, number int, err error) {
	u, parseErr := url.Parse(raw)
	if parseErr != nil {
		return "", "", 0, fmt.Errorf("%w: invalid PR URL %q", ErrValidation, raw)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", 0, fmt.Errorf("%w: PR URL %q must be an http(s) URL", ErrValidation, raw)
	}
	if !strings.EqualFold(u.Host, "github.com") && !strings.EqualFold(u.Host, "www.github.com") {
		return "", "", 0, fmt.Errorf("%w: PR URL %q must be a github.com URL", ErrValidation, raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[2] != "pull" {
		return "", "", 0, fmt.Errorf("%w: PR URL %q must match /owner/repo/pull/number", ErrValidation, raw)
	}

	owner, repo = parts[0], parts[1]
	if !IsValidRepoPart(owner) || !IsValidRepoPart(repo) {
		return "", "", 0, fmt.Errorf("%w: PR URL %q has an invalid owner or repo segment", ErrValidation, raw)
	}

	number, numErr := strconv.Atoi(parts[3])
	if numErr != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("%w: PR URL %q has an invalid PR number", ErrValidation, raw)
	}

	return owner, repo, number, nil
}

// NormalizePRURL returns the canonical form of a PR URL for duplicate
// detection: lowercased owner/repo on the github.com host, no trailing slash.
func NormalizePRURL(raw string) (string, error) {
	owner, repo, number, err := ParsePRURL(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://github.com/%s/%s/pull/%d",
		strings.ToLower(owner), strings.ToLower(repo), number), nil
}

// IsValidRepoPart validates a repository owner or name: non-empty, not a
// relative path component, and free of path separators. Used before any
// filesystem or network call touches the repo cache.
func IsValidRepoPart(part string) bool {
	if part == "" || part == "." || part == ".." {
		return false
	}
	if strings.ContainsAny(part, "/\\") {
		return false
	}
	for _, ch := range part {
		if !isRepoPartChar(ch) {
			return false
		}
	}
	return true
}

func isRepoPartChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
