package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// UpdateInfo contains information about available updates.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	Error           error
}

// GitHubRelease represents the GitHub API response for releases and tags.
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// Checker queries the GitHub API for newer releases.
type Checker struct {
	APIBase string
	Client  *http.Client
}

// NewChecker returns a checker for the public GitHub API.
func NewChecker() *Checker {
	return &Checker{
		APIBase: "https://api.github.com",
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Check compares the latest release (or tag, when nothing is released) with Version.
func (c *Checker) Check(ctx context.Context) UpdateInfo {
	info := UpdateInfo{
		CurrentVersion: Version,
	}

	var release GitHubRelease
	status, err := c.getJSON(ctx, "/repos/"+Repo+"/releases/latest", &release)
	if err != nil {
		info.Error = err
		return info
	}

	latest := release.TagName
	if status != http.StatusOK {
		// If no releases, try tags instead
		var tags []GitHubRelease
		status, err = c.getJSON(ctx, "/repos/"+Repo+"/tags", &tags)
		if err != nil {
			info.Error = err
			return info
		}
		if status != http.StatusOK {
			info.Error = fmt.Errorf("failed to check for updates: status %d", status)
			return info
		}
		if len(tags) == 0 {
			info.LatestVersion = info.CurrentVersion
			return info
		}
		// Tags are returned newest first
		latest = tags[0].Name
	}

	info.LatestVersion = normalizeVersion(latest)
	info.UpdateAvailable = isNewerVersion(info.LatestVersion, info.CurrentVersion)
	return info
}

// getJSON decodes the body into out only on 200.
func (c *Checker) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.APIBase+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse update response: %w", err)
	}
	return resp.StatusCode, nil
}

// normalizeVersion strips the "v" prefix if present.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion returns true if latest is newer than current.
func isNewerVersion(latest, current string) bool {
	// Split into parts and compare numerically
	latestParts := strings.Split(latest, ".")
	currentParts := strings.Split(current, ".")

	for i := 0; i < len(latestParts) && i < len(currentParts); i++ {
		var latestNum, currentNum int
		fmt.Sscanf(latestParts[i], "%d", &latestNum)
		fmt.Sscanf(currentParts[i], "%d", &currentNum)

		if latestNum > currentNum {
			return true
		} else if latestNum < currentNum {
			return false
		}
	}

	return len(latestParts) > len(currentParts)
}

// InstallCommand returns the command to update the application.
func InstallCommand() string {
	return "go install github.com/" + Repo + "/cmd/torrent-deck@latest"
}
