// Package update checks GitHub releases for newer nexus builds and installs them.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultAPIURL is the GitHub API root used when Updater.APIURL is empty.
const DefaultAPIURL = "https://api.github.com"

// ErrDevBuild is returned by Check for binaries built without a version.
var ErrDevBuild = errors.New("update: development build cannot be updated")

// Release is the newest published build for the running platform.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Updater checks for and applies self-updates.
type Updater struct {
	CurrentVersion string
	Repo           string // owner/name
	APIURL         string
	// Binary is the file replaced by Apply. Empty means the running executable.
	Binary string
	GOOS   string
	GOARCH string

	httpClient *http.Client
}

// New returns an Updater for the GoCodeAlone/nexus releases.
func New(currentVersion, binary string) *Updater {
	return &Updater{
		CurrentVersion: currentVersion,
		Repo:           "GoCodeAlone/nexus",
		APIURL:         DefaultAPIURL,
		Binary:         binary,
		GOOS:           runtime.GOOS,
		GOARCH:         runtime.GOARCH,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Check returns the latest release, or nil when the current version is
// already the latest.
func (u *Updater) Check(ctx context.Context) (*Release, error) {
	if u.CurrentVersion == "" || u.CurrentVersion == "dev" {
		return nil, ErrDevBuild
	}
	api := strings.TrimRight(u.APIURL, "/")
	if api == "" {
		api = DefaultAPIURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api+"/repos/"+u.Repo+"/releases/latest", nil)
	if err != nil {
		return nil, fmt.Errorf("update: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "nexus/"+u.CurrentVersion)

	resp, err := u.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("update: fetch latest release: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update: github API returned %d", resp.StatusCode)
	}

	var rel githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("update: decode release: %w", err)
	}
	if strings.TrimPrefix(rel.TagName, "v") == strings.TrimPrefix(u.CurrentVersion, "v") {
		return nil, nil
	}

	dl := u.assetURL(rel.Assets)
	if dl == "" {
		return nil, fmt.Errorf("update: no %s/%s asset in release %s", u.GOOS, u.GOARCH, rel.TagName)
	}
	return &Release{Version: rel.TagName, URL: dl}, nil
}

func (u *Updater) assetURL(assets []githubAsset) string {
	goarch := u.GOARCH
	if goarch == "amd64" {
		goarch = "x86_64"
	}
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		if strings.Contains(name, u.GOOS) && strings.Contains(name, goarch) {
			return a.BrowserDownloadURL
		}
	}
	return ""
}

// Apply downloads rel and atomically replaces the target binary.
func (u *Updater) Apply(ctx context.Context, rel *Release) error {
	target := u.Binary
	if target == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("update: locate executable: %w", err)
		}
		target = exe
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rel.URL, nil)
	if err != nil {
		return fmt.Errorf("update: build request: %w", err)
	}
	resp, err := u.client().Do(req)
	if err != nil {
		return fmt.Errorf("update: download release: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update: download returned %d", resp.StatusCode)
	}

	// Same directory as the target so the final rename stays on one filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".nexus-update-*")
	if err != nil {
		return fmt.Errorf("update: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("update: write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("update: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return fmt.Errorf("update: chmod: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("update: replace binary: %w", err)
	}
	return nil
}

func (u *Updater) client() *http.Client {
	if u.httpClient == nil {
		return http.DefaultClient
	}
	return u.httpClient
}
