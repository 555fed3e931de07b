package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/peer-weaver/internal/metrics"
)

func newPeerServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestClientHealth(t *testing.T) {
	ok := newPeerServer(t, map[string]http.HandlerFunc{"/health": jsonHandler(200, `{"status":"OK"}`)})
	wrong := newPeerServer(t, map[string]http.HandlerFunc{"/health": jsonHandler(200, `{"status":"DEGRADED"}`)})
	garbage := newPeerServer(t, map[string]http.HandlerFunc{"/health": jsonHandler(200, `<html>`)})
	failing := newPeerServer(t, map[string]http.HandlerFunc{"/health": jsonHandler(503, `{"status":"OK"}`)})

	c := NewClient(2 * time.Second)
	ctx := context.Background()

	assert.NoError(t, c.Health(ctx, ok.URL))
	assert.ErrorIs(t, c.Health(ctx, wrong.URL), ErrNotOK)
	assert.Error(t, c.Health(ctx, garbage.URL))
	assert.ErrorIs(t, c.Health(ctx, failing.URL), ErrBadStatus)
	assert.Error(t, c.Health(ctx, "http://127.0.0.1:1"))
}

func TestClientNodes(t *testing.T) {
	srv := newPeerServer(t, map[string]http.HandlerFunc{
		"/nodes": jsonHandler(200, `["https://b/", "https://c"]`),
	})
	notArray := newPeerServer(t, map[string]http.HandlerFunc{
		"/nodes": jsonHandler(200, `{"peers":[]}`),
	})
	missing := newPeerServer(t, nil)

	c := NewClient(2 * time.Second)
	ctx := context.Background()

	got, err := c.Nodes(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b/", "https://c"}, got)

	_, err = c.Nodes(ctx, notArray.URL)
	assert.ErrorIs(t, err, ErrNotArray)

	_, err = c.Nodes(ctx, missing.URL)
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestClientRegisterSendsJSON(t *testing.T) {
	var mu sync.Mutex
	var got map[string]string
	var contentType string

	srv := newPeerServer(t, map[string]http.HandlerFunc{
		"/nodes": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			contentType = r.Header.Get("Content-Type")
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`"Registered"`))
		},
	})
	rejecting := newPeerServer(t, map[string]http.HandlerFunc{"/nodes": jsonHandler(400, `"Bad request"`)})

	c := NewClient(2 * time.Second)
	require.NoError(t, c.Register(context.Background(), srv.URL, "https://me.example"))

	mu.Lock()
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, map[string]string{"url": "https://me.example"}, got)
	mu.Unlock()

	assert.ErrorIs(t, c.Register(context.Background(), rejecting.URL, "https://me.example"), ErrBadStatus)
}

func TestClientCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(time.Second).Nodes(ctx, "http://127.0.0.1:1")
	assert.ErrorIs(t, err, context.Canceled)
}

// Two live peers that list each other plus one dead peer, crawled over HTTP.
func TestCrawlOverHTTP(t *testing.T) {
	var a, b *httptest.Server
	dead := newPeerServer(t, map[string]http.HandlerFunc{
		"/health": jsonHandler(500, `{}`),
	})

	a = newPeerServer(t, map[string]http.HandlerFunc{
		"/health": jsonHandler(200, `{"status":"OK"}`),
		"/nodes": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([]string{b.URL + "/", dead.URL, a.URL})
		},
	})
	b = newPeerServer(t, map[string]http.HandlerFunc{
		"/health": jsonHandler(200, `{"status":"OK"}`),
		"/nodes": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([]string{a.URL + "/nodes"})
		},
	})

	client := NewClient(2 * time.Second)
	c := NewCrawler(client, NewHealthProber(client), 2)

	g, err := c.Crawl(context.Background(), []string{a.URL}, metrics.NewTracker("http", nil))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{a.URL, b.URL}, g.Nodes)
	assert.Len(t, g.Edges, 2)
	assert.Equal(t, []string{dead.URL}, g.Unhealthy)
}
