package addon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/addonhost/internal/capability"
	"github.com/dshills/addonhost/internal/policy"
)

// fakeModule describes what a fake binary does. def receives the file
// contents so tests can vary the definition by rewriting the file.
type fakeModule struct {
	def     func(content string) *Definition
	noEntry bool
}

type fakeHandle struct {
	path    string
	content string
	rng     capability.AddressRange
	mod     *fakeModule
}

func (h *fakeHandle) Path() string { return h.path }

type fakeLoader struct {
	mu       sync.Mutex
	modules  map[string]*fakeModule
	next     uintptr
	loads    int
	unloads  int
	mapped   map[*fakeHandle]bool
	contents []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		modules: make(map[string]*fakeModule),
		next:    0x100000,
		mapped:  make(map[*fakeHandle]bool),
	}
}

func (l *fakeLoader) add(name string, mod *fakeModule) {
	l.mu.Lock()
	l.modules[name] = mod
	l.mu.Unlock()
}

func (l *fakeLoader) Load(path string) (Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	mod, ok := l.modules[filepath.Base(path)]
	if !ok {
		return nil, errors.New("not a module")
	}
	h := &fakeHandle{
		path:    path,
		content: string(data),
		rng:     capability.AddressRange{Start: l.next, End: l.next + 0x1000},
		mod:     mod,
	}
	l.next += 0x10000
	l.loads++
	l.mapped[h] = true
	l.contents = append(l.contents, string(data))
	return h, nil
}

func (l *fakeLoader) Unload(h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fh := h.(*fakeHandle)
	if !l.mapped[fh] {
		return errors.New("handle not mapped")
	}
	delete(l.mapped, fh)
	l.unloads++
	return nil
}

func (l *fakeLoader) ResolveEntry(h Handle) (DefinitionFactory, bool) {
	fh := h.(*fakeHandle)
	if fh.mod.noEntry {
		return nil, false
	}
	return func() *Definition { return fh.mod.def(fh.content) }, true
}

func (l *fakeLoader) AddressRange(h Handle) capability.AddressRange {
	return h.(*fakeHandle).rng
}

func (l *fakeLoader) Tagger(h Handle) capability.Tagger {
	rng := h.(*fakeHandle).rng
	return capability.TaggerFunc(func(any) uintptr { return rng.Start + 0x10 })
}

func (l *fakeLoader) Extensions() []string { return []string{".addon"} }

func (l *fakeLoader) mappedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.mapped)
}

func (l *fakeLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// fakeTable is the capability table the fake API provider hands out.
type fakeTable struct {
	version int
	tagger  capability.Tagger
}

type fakeAPI struct{}

func (fakeAPI) Supports(v int) bool { return v >= capability.V1 && v <= capability.V3 }

func (fakeAPI) Table(v int, _ uint32, tagger capability.Tagger) (any, error) {
	return &fakeTable{version: v, tagger: tagger}, nil
}

type fakeCleaner struct {
	mu     sync.Mutex
	name   string
	addrs  []uintptr
	passes int
}

func (c *fakeCleaner) register(api any) {
	t := api.(*fakeTable)
	c.mu.Lock()
	c.addrs = append(c.addrs, t.tagger.Tag(nil))
	c.mu.Unlock()
}

func (c *fakeCleaner) Name() string { return c.name }

func (c *fakeCleaner) CleanupReferences(start, end uintptr) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.passes++
	rng := capability.AddressRange{Start: start, End: end}
	kept := c.addrs[:0]
	var n uint32
	for _, a := range c.addrs {
		if rng.Contains(a) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	c.addrs = kept
	return n
}

func (c *fakeCleaner) passCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passes
}

func (c *fakeCleaner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.addrs)
}

type raised struct {
	name string
	sig  uint32
}

type fakeEvents struct {
	mu     sync.Mutex
	events []raised
}

func (e *fakeEvents) Raise(name string, payload any) {
	e.mu.Lock()
	e.events = append(e.events, raised{name: name, sig: payload.(uint32)})
	e.mu.Unlock()
}

func (e *fakeEvents) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.name == name {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *fakeNotifier) Notify(key, message string) bool {
	n.mu.Lock()
	n.notices = append(n.notices, key)
	n.mu.Unlock()
	return true
}

func (n *fakeNotifier) withPrefix(prefix string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, k := range n.notices {
		if strings.HasPrefix(k, prefix) {
			c++
		}
	}
	return c
}

// fakeChecker reports an update for the signatures in found and stages the
// bytes in payload as the update file.
type fakeChecker struct {
	mu      sync.Mutex
	found   map[uint32]string
	calls   int
	release chan struct{}
}

func (c *fakeChecker) CheckAndMaybeDownload(ctx context.Context, req UpdateRequest) (bool, error) {
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	c.mu.Lock()
	c.calls++
	payload, ok := c.found[req.Signature]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := os.WriteFile(req.Path+UpdateSuffix, []byte(payload), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func (c *fakeChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// harness bundles a manager with its fakes.
type harness struct {
	t        *testing.T
	dir      string
	loader   *fakeLoader
	cleaner  *fakeCleaner
	events   *fakeEvents
	notifier *fakeNotifier
	store    *policy.Memory
	m        *Manager
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		dir:      t.TempDir(),
		loader:   newFakeLoader(),
		cleaner:  &fakeCleaner{name: "fake"},
		events:   &fakeEvents{},
		notifier: &fakeNotifier{},
		store:    policy.NewMemory(),
	}
	cfg.Directory = h.dir
	h.m = h.build(cfg, opts...)
	return h
}

func (h *harness) build(cfg Config, opts ...Option) *Manager {
	h.t.Helper()
	all := append([]Option{
		WithCleaners(h.cleaner),
		WithEvents(h.events),
		WithNotifier(h.notifier),
		WithPolicyStore(h.store),
	}, opts...)
	m, err := NewManager(h.loader, fakeAPI{}, cfg, all...)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func (h *harness) write(name, content string) string {
	h.t.Helper()
	p := h.path(name)
	require.NoError(h.t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// settle drains the queue and waits for background work until nothing is
// left to do.
func (h *harness) settle() {
	h.t.Helper()
	for i := 0; i < 20; i++ {
		n := h.m.ProcessQueue()
		h.m.tasks.Wait()
		if n == 0 && h.m.Pending() == 0 {
			return
		}
	}
	h.t.Fatal("manager did not settle")
}

func (h *harness) state(path string) State {
	h.t.Helper()
	info, ok := h.m.Record(path)
	require.True(h.t, ok, "record %s", path)
	return info.StateValue()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	return cfg
}

// def builds a valid hotloadable definition whose version build number is
// the file content length.
func def(sig uint32, name string) func(string) *Definition {
	return func(content string) *Definition {
		return &Definition{
			Signature:   sig,
			APIVersion:  capability.V2,
			Name:        name,
			Version:     Version{Major: 1, Build: uint16(len(content))},
			Author:      "tester",
			Description: "test addon",
			Load:        func(any) error { return nil },
			Unload:      func() error { return nil },
		}
	}
}
