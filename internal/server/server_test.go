package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/peer-weaver/internal/generator"
	"github.com/alvmarrod/peer-weaver/internal/metrics"
	"github.com/alvmarrod/peer-weaver/internal/registry"
	"github.com/alvmarrod/peer-weaver/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRegistry struct {
	mu    sync.Mutex
	urls  []string
	err   error
	calls []string
}

func (f *fakeRegistry) Register(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.err != nil {
		return f.err
	}
	f.urls = append(f.urls, url)
	return nil
}

func (f *fakeRegistry) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.urls...)
}

func (f *fakeRegistry) Peers() []registry.Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	peers := make([]registry.Peer, 0, len(f.urls))
	for _, u := range f.urls {
		peers = append(peers, registry.Peer{URL: u, RegisteredAt: registeredAt, LastCheckedAt: registeredAt})
	}
	return peers
}

var registeredAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeGenerator struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
}

func (f *fakeGenerator) Generate(context.Context) (*generator.Artifact, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &generator.Artifact{
		RunID:    "run-1",
		Document: "digraph Network {}\n",
		Image:    []byte("PNGDATA"),
		Format:   "png",
	}, nil
}

type fakeSnapshots struct {
	run *storage.Run
	err error
}

func (f fakeSnapshots) LatestRun() (*storage.Run, error) { return f.run, f.err }

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetadata(t *testing.T) {
	s := New(Options{
		Registry:  &fakeRegistry{},
		Generator: &fakeGenerator{},
		Metadata:  Metadata{Name: "node", Owner: "ops", Description: "test node"},
	})

	w := do(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())

	w = do(t, s.Handler(), http.MethodGet, "/metadata", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var md Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &md))
	assert.Equal(t, "node", md.Name)
	assert.Equal(t, "ops", md.Owner)
	assert.Contains(t, md.Services, "/nodes")
	assert.Contains(t, md.Services, "/peers")
	assert.Contains(t, md.Services, "/network.png")
	assert.NotContains(t, md.Services, "/metrics")
}

func TestRegisterAndListNodes(t *testing.T) {
	reg := &fakeRegistry{}
	s := New(Options{Registry: reg, Generator: &fakeGenerator{}})

	w := do(t, s.Handler(), http.MethodPost, "/nodes", []byte(`{"url":"https://a.example"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"Registered"`, w.Body.String())

	w = do(t, s.Handler(), http.MethodGet, "/nodes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["https://a.example"]`, w.Body.String())

	w = do(t, s.Handler(), http.MethodGet, "/peers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"url":"https://a.example","registered_at":"2026-01-02T03:04:05Z","last_checked_at":"2026-01-02T03:04:05Z"}]`, w.Body.String())
}

func TestRegisterRejections(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{name: "malformed body", body: `{"url":`, want: http.StatusBadRequest},
		{name: "invalid url", err: registry.ErrInvalidURL, body: `{"url":""}`, want: http.StatusBadRequest},
		{name: "unhealthy", err: registry.ErrUnhealthy, body: `{"url":"https://dead"}`, want: http.StatusBadRequest},
		{name: "unexpected", err: errors.New("boom"), body: `{"url":"https://x"}`, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{Registry: &fakeRegistry{err: tt.err}, Generator: &fakeGenerator{}})

			w := do(t, s.Handler(), http.MethodPost, "/nodes", []byte(tt.body))
			assert.Equal(t, tt.want, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestNetworkServesArtifacts(t *testing.T) {
	gen := &fakeGenerator{}
	s := New(Options{Registry: &fakeRegistry{}, Generator: gen, MinInterval: time.Hour})

	w := do(t, s.Handler(), http.MethodGet, "/network.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "ran", w.Header().Get(OutcomeHeader))
	assert.Equal(t, "PNGDATA", w.Body.String())

	w = do(t, s.Handler(), http.MethodGet, "/network.dot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cached", w.Header().Get(OutcomeHeader))
	assert.Equal(t, "digraph Network {}\n", w.Body.String())
	assert.Equal(t, int32(1), gen.calls.Load())

	// a new peer makes the cached graph stale
	do(t, s.Handler(), http.MethodPost, "/nodes", []byte(`{"url":"https://new.example"}`))
	w = do(t, s.Handler(), http.MethodGet, "/network.dot", nil)
	assert.Equal(t, "ran", w.Header().Get(OutcomeHeader))
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestNetworkConcurrentRequestsShareOneRun(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	s := New(Options{Registry: &fakeRegistry{}, Generator: gen, MinInterval: time.Hour})

	const callers = 5
	outcomes := make(chan string, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w := do(t, s.Handler(), http.MethodGet, "/network.png", nil)
		outcomes <- w.Header().Get(OutcomeHeader)
	}()
	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, time.Millisecond)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := do(t, s.Handler(), http.MethodGet, "/network.png", nil)
			outcomes <- w.Header().Get(OutcomeHeader)
		}()
	}
	// let the followers queue behind the in-flight run
	time.Sleep(50 * time.Millisecond)
	close(gen.release)
	wg.Wait()
	close(outcomes)

	counts := map[string]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Equal(t, 1, counts["ran"])
	assert.Equal(t, callers-1, counts["shared"]+counts["cached"])
}

func TestNetworkGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("dot: exit status 1")}
	s := New(Options{Registry: &fakeRegistry{}, Generator: gen})

	w := do(t, s.Handler(), http.MethodGet, "/network.dot", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "ran", w.Header().Get(OutcomeHeader))
	assert.True(t, strings.Contains(w.Body.String(), "exit status 1"))

	do(t, s.Handler(), http.MethodGet, "/network.dot", nil)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestSnapshot(t *testing.T) {
	s := New(Options{Registry: &fakeRegistry{}, Generator: &fakeGenerator{}, Snapshots: fakeSnapshots{}})
	w := do(t, s.Handler(), http.MethodGet, "/network.json", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	run := &storage.Run{RunID: "r1", Nodes: []storage.Node{{URL: "https://a", DisplayKey: "a"}}}
	s = New(Options{Registry: &fakeRegistry{}, Generator: &fakeGenerator{}, Snapshots: fakeSnapshots{run: run}})
	w = do(t, s.Handler(), http.MethodGet, "/network.json", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got storage.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, "a", got.Nodes[0].DisplayKey)
}

func TestProfileImage(t *testing.T) {
	s := New(Options{Registry: &fakeRegistry{}, Generator: &fakeGenerator{}})
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/profile.png", nil).Code)

	path := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nrest"), 0o644))

	s = New(Options{Registry: &fakeRegistry{}, Generator: &fakeGenerator{}, ProfileImage: path})
	w := do(t, s.Handler(), http.MethodGet, "/profile.png", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "\x89PNG\r\n\x1a\nrest", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	collectors := metrics.NewCollectors()
	collectors.SetRegistryPeers(3)
	s := New(Options{Registry: &fakeRegistry{}, Generator: &fakeGenerator{}, Collectors: collectors})

	w := do(t, s.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "peerweaver_registry_peers 3")
}

func TestAvatarImagesServedAtLinkedPath(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := filepath.Join("public", "images")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("\x89PNG\r\n\x1a\nA"), 0o644))

	s := New(Options{Registry: &fakeRegistry{}, Generator: &fakeGenerator{}, Format: "svg", ImagesDir: dir})

	w := do(t, s.Handler(), http.MethodGet, "/public/images/a.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "\x89PNG\r\n\x1a\nA", w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/public/images/missing.png", nil).Code)
}

func TestImagesRoute(t *testing.T) {
	tests := []struct {
		dir  string
		want string
		ok   bool
	}{
		{dir: "public/images", want: "/public/images", ok: true},
		{dir: "./out/images/", want: "/out/images", ok: true},
		{dir: "", ok: false},
		{dir: "/var/lib/peerweaver/images", ok: false},
		{dir: "../images", ok: false},
	}
	for _, tt := range tests {
		got, ok := imagesRoute(tt.dir)
		assert.Equal(t, tt.ok, ok, tt.dir)
		assert.Equal(t, tt.want, got, tt.dir)
	}
}
