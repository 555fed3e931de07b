package main

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestGracefulShutdownReleasesInFlightGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entered := make(chan struct{})
	httpServer := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			close(entered)
			// stands in for a generation bound to the base context
			<-ctx.Done()
			w.WriteHeader(http.StatusInternalServerError)
		}),
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = httpServer.Serve(ln) }()

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/network.png")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
	}()

	store := &closeRecorder{}
	start := time.Now()
	gracefulShutdown(cancel, httpServer, &wg, store, 10*time.Second)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, store.closed)
}
