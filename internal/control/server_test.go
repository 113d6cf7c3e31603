package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/notify"
)

type request struct {
	path string
	verb addon.Verb
}

type fakeManager struct {
	mu       sync.Mutex
	records  map[string]addon.Info
	requests []request
	checks   []string
	prefs    map[addon.Preference]bool
	rescans  int
	err      error
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		records: map[string]addon.Info{
			"/addons/clock.lua": {Path: "/addons/clock.lua", Signature: 0xC10C0001, Name: "Clock", State: "loaded"},
			"/addons/radar.so":  {Path: "/addons/radar.so", Signature: 0x0000BEEF, Name: "Radar", State: "loaded_locked"},
		},
		prefs: make(map[addon.Preference]bool),
	}
}

func (f *fakeManager) Records() []addon.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []addon.Info{f.records["/addons/clock.lua"], f.records["/addons/radar.so"]}
}

func (f *fakeManager) Record(path string) (addon.Info, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.records[path]
	return info, ok
}

func (f *fakeManager) PathForSignature(sig uint32) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p, info := range f.records {
		if info.Signature == sig {
			return p, true
		}
	}
	return "", false
}

func (f *fakeManager) Request(path string, v addon.Verb) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, request{path, v})
	return nil
}

func (f *fakeManager) CheckForUpdate(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.HasSuffix(path, ".so") {
		return fmt.Errorf("%s: %w", path, addon.ErrNoProvider)
	}
	f.checks = append(f.checks, path)
	return nil
}

func (f *fakeManager) SetPreference(path string, p addon.Preference, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs[p] = value
	info := f.records[path]
	switch p {
	case addon.PrefFavorite:
		info.Favorite = value
	case addon.PrefPausingUpdates:
		info.PausingUpdates = value
	}
	f.records[path] = info
	return nil
}

func (f *fakeManager) Rescan() {
	f.mu.Lock()
	f.rescans++
	f.mu.Unlock()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestListAddons(t *testing.T) {
	s := New(newFakeManager())
	w := do(t, s.Handler(), http.MethodGet, "/addons", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got []addon.Info
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "Clock", got[0].Name)
	assert.Equal(t, "loaded_locked", got[1].State)
}

func TestGetAddon(t *testing.T) {
	s := New(newFakeManager())

	w := do(t, s.Handler(), http.MethodGet, "/addons/0xC10C0001", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info addon.Info
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, "/addons/clock.lua", info.Path)

	// Decimal signatures are accepted too.
	w = do(t, s.Handler(), http.MethodGet, "/addons/48879", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s.Handler(), http.MethodGet, "/addons/0x12345678", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s.Handler(), http.MethodGet, "/addons/clock", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestAction(t *testing.T) {
	m := newFakeManager()
	s := New(m)

	for _, action := range []string{"load", "unload", "reload", "uninstall"} {
		w := do(t, s.Handler(), http.MethodPost, "/addons/0xC10C0001/"+action, "")
		require.Equal(t, http.StatusAccepted, w.Code, action)

		var resp actionResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Queued)
		assert.Equal(t, "0xC10C0001", resp.Signature)
	}
	assert.Equal(t, []request{
		{"/addons/clock.lua", addon.VerbLoad},
		{"/addons/clock.lua", addon.VerbUnload},
		{"/addons/clock.lua", addon.VerbReload},
		{"/addons/clock.lua", addon.VerbUninstall},
	}, m.requests)

	w := do(t, s.Handler(), http.MethodPost, "/addons/0xC10C0001/explode", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s.Handler(), http.MethodGet, "/addons/0xC10C0001/load", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRequestActionErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{addon.ErrBusy, http.StatusConflict},
		{addon.ErrShuttingDown, http.StatusServiceUnavailable},
		{addon.ErrNotTracked, http.StatusNotFound},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		m := newFakeManager()
		m.err = fmt.Errorf("wrapped: %w", tt.err)
		w := do(t, New(m).Handler(), http.MethodPost, "/addons/0xC10C0001/unload", "")
		assert.Equal(t, tt.status, w.Code, tt.err.Error())

		var body errorBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Contains(t, body.Error, tt.err.Error())
	}
}

func TestCheckForUpdate(t *testing.T) {
	m := newFakeManager()
	s := New(m)

	w := do(t, s.Handler(), http.MethodPost, "/addons/0xC10C0001/check", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"/addons/clock.lua"}, m.checks)

	w = do(t, s.Handler(), http.MethodPost, "/addons/0x0000BEEF/check", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetPreferences(t *testing.T) {
	m := newFakeManager()
	s := New(m)

	w := do(t, s.Handler(), http.MethodPatch, "/addons/0xC10C0001", `{"favorite": true, "pausing_updates": false}`)
	require.Equal(t, http.StatusOK, w.Code)

	var info addon.Info
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.True(t, info.Favorite)
	assert.Equal(t, map[addon.Preference]bool{
		addon.PrefFavorite:       true,
		addon.PrefPausingUpdates: false,
	}, m.prefs)

	w = do(t, s.Handler(), http.MethodPatch, "/addons/0xC10C0001", `{"shiny": true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRescan(t *testing.T) {
	m := newFakeManager()
	w := do(t, New(m).Handler(), http.MethodPost, "/rescan", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, m.rescans)
}

func TestNotifications(t *testing.T) {
	q := notify.NewQueue()
	q.Notify("updated:0xC10C0001", "Clock was updated.")
	s := New(newFakeManager(), WithNotices(q))

	w := do(t, s.Handler(), http.MethodGet, "/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got []notify.Notice
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "Clock was updated.", got[0].Message)

	w = do(t, s.Handler(), http.MethodDelete, "/notifications/updated:0xC10C0001", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, q.Pending())

	w = do(t, s.Handler(), http.MethodDelete, "/notifications/updated:0xC10C0001", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationsDisabledWithoutQueue(t *testing.T) {
	w := do(t, New(newFakeManager()).Handler(), http.MethodGet, "/notifications", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	addon.NewMetrics(reg).Loaded.Set(2)

	w := do(t, New(newFakeManager(), WithGatherer(reg)).Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "addon_loaded 2")
}

func TestStartAndShutdown(t *testing.T) {
	s := New(newFakeManager())
	addr, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/addons")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
	_, err = http.Get("http://" + addr + "/addons")
	assert.Error(t, err)
}
