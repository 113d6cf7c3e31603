package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/dshills/addonhost/internal/addon"
)

type ghAsset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

type ghRelease struct {
	Tag        string    `json:"tag_name"`
	Draft      bool      `json:"draft"`
	Prerelease bool      `json:"prerelease"`
	Assets     []ghAsset `json:"assets"`
}

// github returns the newest usable release of the repository named by
// req.UpdateLink.
func (c *Checker) github(ctx context.Context, req addon.UpdateRequest) (*release, error) {
	owner, repo, err := parseRepo(req.UpdateLink)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", strings.TrimRight(c.githubAPI, "/"),
		url.PathEscape(owner), url.PathEscape(repo))

	var releases []ghRelease
	err = c.get(ctx, endpoint, "application/vnd.github+json", func(body io.Reader) error {
		releases = nil
		if err := json.NewDecoder(body).Decode(&releases); err != nil {
			return fmt.Errorf("%w: %v", ErrBadManifest, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var best *ghRelease
	var bestAsset ghAsset
	for i := range releases {
		r := &releases[i]
		tag := canonicalTag(r.Tag)
		if r.Draft || tag == "" {
			continue
		}
		if (r.Prerelease || semver.Prerelease(tag) != "") && !req.AllowPrereleases {
			continue
		}
		asset, ok := pickAsset(r.Assets, req.Path)
		if !ok {
			continue
		}
		if best == nil || compareTags(tag, canonicalTag(best.Tag)) > 0 {
			best, bestAsset = r, asset
		}
	}
	if best == nil {
		c.log.WithField("repo", owner+"/"+repo).Debug("no matching release")
		return nil, nil
	}

	tag := canonicalTag(best.Tag)
	v, _ := addon.ParseVersion(tag)
	return &release{Version: v, Tag: tag, URL: bestAsset.URL}, nil
}

// parseRepo accepts "owner/repo", github.com URLs and api.github.com URLs.
func parseRepo(link string) (string, string, error) {
	s := strings.TrimSpace(link)
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		s = strings.TrimPrefix(u.Path, "/")
		s = strings.TrimPrefix(s, "repos/")
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q is not a GitHub repository", ErrBadLink, link)
	}
	return parts[0], parts[1], nil
}

// pickAsset prefers an asset named like the installed file and falls back
// to the first asset with the same extension.
func pickAsset(assets []ghAsset, path string) (ghAsset, bool) {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))
	var fallback *ghAsset
	for i := range assets {
		name := strings.ToLower(assets[i].Name)
		if name == base {
			return assets[i], true
		}
		if fallback == nil && ext != "" && strings.HasSuffix(name, ext) {
			fallback = &assets[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return ghAsset{}, false
}

// canonicalTag returns tag with a v prefix, or "" when it is neither
// semver nor a four part addon version.
func canonicalTag(tag string) string {
	t := strings.TrimSpace(tag)
	if !strings.HasPrefix(t, "v") {
		t = "v" + t
	}
	if semver.IsValid(t) {
		return t
	}
	if _, err := addon.ParseVersion(t); err == nil {
		return t
	}
	return ""
}

func compareTags(a, b string) int {
	if semver.IsValid(a) && semver.IsValid(b) {
		return semver.Compare(a, b)
	}
	va, _ := addon.ParseVersion(a)
	vb, _ := addon.ParseVersion(b)
	return va.Compare(vb)
}

// compareTag compares a release tag with the installed version.
func compareTag(tag string, installed addon.Version) int {
	if semver.IsValid(tag) {
		return semver.Compare(tag, installed.Semver())
	}
	v, _ := addon.ParseVersion(tag)
	return v.Compare(installed)
}
