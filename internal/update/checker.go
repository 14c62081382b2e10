// Package update checks GitHub releases for a newer launcher build than
// the one currently running, so cmd/launcher can surface an "update
// available" notice at startup without embedding a full updater.
//
// Grounded on project-tachyon's internal/updater.CheckForUpdates, kept
// nearly verbatim: the same tag-normalization comparison, retargeted at
// whatever owner/repo the launcher is built from instead of being
// hardcoded to one project.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Release is the subset of a GitHub release the launcher cares about.
type Release struct {
	TagName string `json:"tag_name"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdates queries GitHub's latest-release endpoint for
// owner/repo and returns the release if its tag differs from
// currentVersion, or nil if the caller is already up to date.
func CheckForUpdates(ctx context.Context, currentVersion, owner, repo string) (*Release, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("update: owner and repo required")
	}

	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "nekolauncher-updater")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update: check failed with status %d", resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, err
	}

	current := strings.TrimPrefix(currentVersion, "v")
	remote := strings.TrimPrefix(rel.TagName, "v")
	if current == remote {
		return nil, nil
	}
	return &rel, nil
}
