// Package updater asks GitHub whether a newer release of rnv exists.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
)

// LatestReleaseURL is the GitHub API endpoint for the newest release.
const LatestReleaseURL = "https://api.github.com/repos/kraitsura/refnet/releases/latest"

// DefaultTimeout keeps the check from holding up the command for long.
const DefaultTimeout = 2 * time.Second

// Release is the part of the GitHub release payload we read.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Checker queries a release endpoint.
type Checker struct {
	URL    string
	Client *http.Client
}

// NewChecker returns a checker for LatestReleaseURL with DefaultTimeout.
func NewChecker() *Checker {
	return &Checker{URL: LatestReleaseURL, Client: &http.Client{Timeout: DefaultTimeout}}
}

// Latest fetches the newest release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api returned status: %s", resp.Status)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &rel, nil
}

// CheckForUpdates returns the newest release if it is newer than current,
// or nil when current is up to date. Development builds ("dev" or any
// non-semver version) are never reported as outdated.
func (c *Checker) CheckForUpdates(ctx context.Context, current string) (*Release, error) {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return nil, nil
	}
	rel, err := c.Latest(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := semver.NewVersion(rel.TagName)
	if err != nil {
		return nil, fmt.Errorf("release tag %q: %w", rel.TagName, err)
	}
	if latest.GreaterThan(cur) {
		return rel, nil
	}
	return nil, nil
}
