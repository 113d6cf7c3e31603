package update

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/addonhost/internal/addon"
)

// manifest is the document a direct provider serves. JSON manifests decode
// through the same YAML parser.
type manifest struct {
	Version    string `yaml:"version"`
	URL        string `yaml:"url"`
	Prerelease bool   `yaml:"prerelease"`
}

// direct fetches the manifest at req.UpdateLink.
func (c *Checker) direct(ctx context.Context, req addon.UpdateRequest) (*release, error) {
	base, err := url.Parse(strings.TrimSpace(req.UpdateLink))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadLink, req.UpdateLink)
	}

	var m manifest
	err = c.get(ctx, base.String(), "application/yaml, application/json", func(body io.Reader) error {
		data, err := io.ReadAll(io.LimitReader(body, 1<<20))
		if err != nil {
			return err
		}
		m = manifest{}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: %v", ErrBadManifest, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.Prerelease && !req.AllowPrereleases {
		return nil, nil
	}
	v, err := addon.ParseVersion(m.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}
	if m.URL == "" {
		return nil, fmt.Errorf("%w: missing url", ErrBadManifest)
	}
	ref, err := url.Parse(m.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}
	return &release{Version: v, URL: base.ResolveReference(ref).String()}, nil
}
