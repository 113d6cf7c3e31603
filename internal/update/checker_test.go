package update

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/addonhost/internal/addon"
)

func newTestChecker(srv *httptest.Server) *Checker {
	return NewChecker(
		WithHTTPClient(srv.Client()),
		WithGitHubAPI(srv.URL),
		WithRetries(3, time.Millisecond),
	)
}

func installed(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("old"), 0o644))
	return p
}

func releasesHandler(releases string, asset []byte, hits *atomic.Int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/clock/releases", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, releases)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(asset)
	})
	return mux
}

func releasesJSON(base string) string {
	return fmt.Sprintf(`[
	{"tag_name": "v1.3.0-beta.1", "prerelease": true, "assets": [{"name": "clock.lua", "browser_download_url": "%[1]s/download/beta"}]},
	{"tag_name": "v1.2.0", "assets": [{"name": "README.md", "browser_download_url": "%[1]s/download/readme"}, {"name": "clock.lua", "browser_download_url": "%[1]s/download/stable"}]},
	{"tag_name": "v1.4.0", "draft": true, "assets": [{"name": "clock.lua", "browser_download_url": "%[1]s/download/draft"}]},
	{"tag_name": "v1.1.0", "assets": [{"name": "clock.lua", "browser_download_url": "%[1]s/download/old"}]}
]`, base)
}

func TestGitHubStagesNewerRelease(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		releasesHandler(releasesJSON(srv.URL), []byte("new build"), nil).ServeHTTP(w, r)
	}))
	defer srv.Close()

	path := installed(t, "clock.lua")
	c := newTestChecker(srv)
	found, err := c.CheckAndMaybeDownload(context.Background(), addon.UpdateRequest{
		Name:       "Clock",
		Version:    addon.Version{Major: 1, Minor: 1},
		Provider:   addon.ProviderGitHub,
		UpdateLink: "https://github.com/acme/clock",
		Path:       path,
	})
	require.NoError(t, err)
	assert.True(t, found)

	data, err := os.ReadFile(path + addon.UpdateSuffix)
	require.NoError(t, err)
	assert.Equal(t, "new build", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary download file left behind")
}

func TestGitHubUpToDate(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		releasesHandler(releasesJSON(srv.URL), []byte("x"), nil).ServeHTTP(w, r)
	}))
	defer srv.Close()

	path := installed(t, "clock.lua")
	found, err := newTestChecker(srv).CheckAndMaybeDownload(context.Background(), addon.UpdateRequest{
		Version:    addon.Version{Major: 1, Minor: 2, Revision: 5},
		Provider:   addon.ProviderGitHub,
		UpdateLink: "acme/clock",
		Path:       path,
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoFileExists(t, path+addon.UpdateSuffix)
}

func TestGitHubPrereleases(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/download/beta" {
			w.Write([]byte("beta build"))
			return
		}
		releasesHandler(releasesJSON(srv.URL), []byte("stable build"), nil).ServeHTTP(w, r)
	}))
	defer srv.Close()

	path := installed(t, "clock.lua")
	found, err := newTestChecker(srv).CheckAndMaybeDownload(context.Background(), addon.UpdateRequest{
		Version:          addon.Version{Major: 1, Minor: 2},
		Provider:         addon.ProviderGitHub,
		UpdateLink:       "acme/clock",
		Path:             path,
		AllowPrereleases: true,
	})
	require.NoError(t, err)
	require.True(t, found)

	data, err := os.ReadFile(path + addon.UpdateSuffix)
	require.NoError(t, err)
	assert.Equal(t, "beta build", string(data))
}

func TestDirectManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		allowPre bool
		found    bool
	}{
		{"yaml newer", "version: 1.0.0.3\nurl: files/clock.lua\n", false, true},
		{"json newer", `{"version": "1.0.1", "url": "files/clock.lua"}`, false, true},
		{"same version", "version: 1.0.0.2\nurl: files/clock.lua\n", false, false},
		{"prerelease filtered", "version: 2.0\nurl: files/clock.lua\nprerelease: true\n", false, false},
		{"prerelease allowed", "version: 2.0\nurl: files/clock.lua\nprerelease: true\n", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/clock/manifest.yaml":
					fmt.Fprint(w, tt.manifest)
				case "/clock/files/clock.lua":
					fmt.Fprint(w, "fresh")
				default:
					http.NotFound(w, r)
				}
			}))
			defer srv.Close()

			path := installed(t, "clock.lua")
			found, err := newTestChecker(srv).CheckAndMaybeDownload(context.Background(), addon.UpdateRequest{
				Version:          addon.Version{Major: 1, Revision: 2},
				Provider:         addon.ProviderDirect,
				UpdateLink:       srv.URL + "/clock/manifest.yaml",
				Path:             path,
				AllowPrereleases: tt.allowPre,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			if tt.found {
				data, err := os.ReadFile(path + addon.UpdateSuffix)
				require.NoError(t, err)
				assert.Equal(t, "fresh", string(data))
			}
		})
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/manifest" {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, "version: 9.0\nurl: /blob\n")
			return
		}
		fmt.Fprint(w, "blob")
	}))
	defer srv.Close()

	path := installed(t, "clock.lua")
	found, err := newTestChecker(srv).CheckAndMaybeDownload(context.Background(), addon.UpdateRequest{
		Provider:   addon.ProviderDirect,
		UpdateLink: srv.URL + "/manifest",
		Path:       path,
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestChecker(srv).CheckAndMaybeDownload(context.Background(), addon.UpdateRequest{
		Provider:   addon.ProviderDirect,
		UpdateLink: srv.URL + "/missing",
		Path:       installed(t, "clock.lua"),
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, se.Temporary())
	assert.Equal(t, int32(1), attempts.Load())
}

func TestEmptyDownloadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/manifest" {
			fmt.Fprint(w, "version: 9.0\nurl: /blob\n")
		}
	}))
	defer srv.Close()

	path := installed(t, "clock.lua")
	_, err := newTestChecker(srv).CheckAndMaybeDownload(context.Background(), addon.UpdateRequest{
		Provider:   addon.ProviderDirect,
		UpdateLink: srv.URL + "/manifest",
		Path:       path,
	})
	require.ErrorIs(t, err, ErrEmptyDownload)
	assert.NoFileExists(t, path+addon.UpdateSuffix)
}

func TestProviderAnswersAreCached(t *testing.T) {
	var hits atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		releasesHandler(releasesJSON(srv.URL), []byte("x"), &hits).ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := newTestChecker(srv)
	req := addon.UpdateRequest{
		Version:    addon.Version{Major: 5},
		Provider:   addon.ProviderGitHub,
		UpdateLink: "acme/clock",
		Path:       installed(t, "clock.lua"),
	}
	for i := 0; i < 3; i++ {
		found, err := c.CheckAndMaybeDownload(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, found)
	}
	assert.Equal(t, int32(1), hits.Load())

	c.Forget()
	_, err := c.CheckAndMaybeDownload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestParseRepo(t *testing.T) {
	tests := []struct {
		link  string
		owner string
		repo  string
		ok    bool
	}{
		{"acme/clock", "acme", "clock", true},
		{"https://github.com/acme/clock", "acme", "clock", true},
		{"https://github.com/acme/clock.git", "acme", "clock", true},
		{"https://api.github.com/repos/acme/clock/releases", "acme", "clock", true},
		{"clock", "", "", false},
		{"https://github.com/", "", "", false},
	}
	for _, tt := range tests {
		owner, repo, err := parseRepo(tt.link)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrBadLink, tt.link)
			continue
		}
		require.NoError(t, err, tt.link)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}

func TestCompareTag(t *testing.T) {
	v := addon.Version{Major: 1, Minor: 2, Build: 3, Revision: 4}
	assert.Equal(t, 0, compareTag("v1.2.3", v))
	assert.Equal(t, 1, compareTag("v1.2.4", v))
	assert.Equal(t, -1, compareTag("v1.2.3-rc.1", v))
	assert.Equal(t, 1, compareTag("v1.2.3.5", v))
	assert.Equal(t, "", canonicalTag("nightly"))
	assert.Equal(t, "v2.0.1", canonicalTag("2.0.1"))
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewChecker().CheckAndMaybeDownload(context.Background(), addon.UpdateRequest{
		Provider: addon.ProviderNone,
	})
	assert.ErrorIs(t, err, ErrBadLink)
}
