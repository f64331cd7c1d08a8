// Package updatecheck implements a one-shot startup version check
// against a GitHub releases feed. It only ever reports whether a newer
// release exists — unlike the service it's grounded on, it never
// downloads or applies an update itself; that stays a manual, explicit
// action for the operator.
package updatecheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
)

// Result is the outcome of a single update check.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
}

func isPrerelease(version string) bool {
	return version == "dev" || strings.Contains(version, "-beta") || strings.Contains(version, "-rc")
}

func comparableVersion(version string) string {
	if version == "dev" {
		return "0.0.0"
	}
	return version
}

// Check queries repoSlug's GitHub releases (format "owner/repo") for a
// release newer than currentVersion. Pre-release and dev builds also see
// pre-releases; anything else only sees stable releases.
func Check(ctx context.Context, currentVersion, repoSlug string) (*Result, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("updatecheck: create github source: %w", err)
	}

	cfg := selfupdate.Config{Source: source}
	if isPrerelease(currentVersion) {
		cfg.Prerelease = true
	}

	updater, err := selfupdate.NewUpdater(cfg)
	if err != nil {
		return nil, fmt.Errorf("updatecheck: create updater: %w", err)
	}

	slug := selfupdate.ParseSlug(repoSlug)
	result := &Result{CurrentVersion: currentVersion}

	latest, found, err := updater.DetectLatest(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("updatecheck: detect latest: %w", err)
	}
	if !found {
		return result, nil
	}

	result.LatestVersion = latest.Version()
	result.ReleaseURL = latest.ReleaseNotes

	current, err := semver.NewVersion(comparableVersion(currentVersion))
	if err != nil {
		return result, fmt.Errorf("updatecheck: parse current version %q: %w", currentVersion, err)
	}
	if latest.GreaterThan(current.String()) {
		result.UpdateAvailable = true
	}
	return result, nil
}
