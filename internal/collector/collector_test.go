package collector

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnv = Environment{
	Language:  "fr-FR",
	UserAgent: "visit-recorder-beacon/test (linux; amd64)",
	Platform:  "linux amd64",
	Timezone:  "Europe/Paris",
}

func newTestCollector(opts Options) *Collector {
	c := New(opts, testEnv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 123_000_000, time.UTC) }
	return c
}

// capture records the requests a fake destination receives
type capture struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	status   int
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, r)
	c.bodies = append(c.bodies, string(body))
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func TestGather(t *testing.T) {
	c := newTestCollector(Options{Destination: "http://example.invalid/save"})

	rec := c.Gather()

	assert.Equal(t, Record{
		Language:  "fr-FR",
		UserAgent: "visit-recorder-beacon/test (linux; amd64)",
		Platform:  "linux amd64",
		Timezone:  "Europe/Paris",
		Date:      "2025-03-14T09:26:53.123Z",
	}, rec)
}

func TestSend_PostJSON(t *testing.T) {
	dest := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(dest.handler))
	defer srv.Close()

	c := newTestCollector(Options{Destination: srv.URL + "/save", Method: MethodPost})

	require.NoError(t, c.Send(context.Background()))

	require.Len(t, dest.requests, 1)
	r := dest.requests[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/save", r.URL.Path)
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(dest.bodies[0]), &body))
	assert.Equal(t, "fr-FR", body["language"])
	assert.Equal(t, "Europe/Paris", body["timezone"])
	assert.Equal(t, "2025-03-14T09:26:53.123Z", body["date"])
	assert.NotContains(t, body, "ip")
}

func TestSend_WithIPLookup(t *testing.T) {
	lookup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(`{"ip":"203.0.113.42"}`))
	}))
	defer lookup.Close()

	dest := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(dest.handler))
	defer srv.Close()

	c := newTestCollector(Options{
		Destination:     srv.URL + "/save",
		Method:          MethodPost,
		IncludeIPLookup: true,
		LookupURL:       lookup.URL + "?format=json",
		AppendIPParam:   true,
	})

	require.NoError(t, c.Send(context.Background()))

	require.Len(t, dest.requests, 1)
	assert.Equal(t, "203.0.113.42", dest.requests[0].URL.Query().Get("ip"))
	assert.Contains(t, dest.bodies[0], `"ip":"203.0.113.42"`)
}

func TestSend_LookupFailureStillSubmits(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) }},
		{"invalid address", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"ip":"not-an-ip"}`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := httptest.NewServer(tt.handler)
			defer lookup.Close()

			dest := &capture{}
			srv := httptest.NewServer(http.HandlerFunc(dest.handler))
			defer srv.Close()

			c := newTestCollector(Options{
				Destination:     srv.URL + "/save",
				IncludeIPLookup: true,
				LookupURL:       lookup.URL,
			})

			require.NoError(t, c.Send(context.Background()))
			require.Len(t, dest.bodies, 1)
			assert.Contains(t, dest.bodies[0], `"ip":"0.0.0.0"`)
			assert.Contains(t, dest.bodies[0], `"language":"fr-FR"`)
		})
	}
}

func TestSend_LookupUnreachable(t *testing.T) {
	lookup := httptest.NewServer(http.NotFoundHandler())
	lookupURL := lookup.URL
	lookup.Close()

	dest := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(dest.handler))
	defer srv.Close()

	c := newTestCollector(Options{Destination: srv.URL, IncludeIPLookup: true, LookupURL: lookupURL})

	require.NoError(t, c.Send(context.Background()))
	assert.Contains(t, dest.bodies[0], `"ip":"0.0.0.0"`)
}

func TestSend_QueryWebhook(t *testing.T) {
	dest := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(dest.handler))
	defer srv.Close()

	c := newTestCollector(Options{Destination: srv.URL + "/macros/exec?sheet=visits", Method: MethodQuery})
	rec := c.Gather()
	rec.IP = "198.51.100.7"

	require.NoError(t, c.Submit(context.Background(), rec))

	require.Len(t, dest.requests, 1)
	r := dest.requests[0]
	assert.Equal(t, http.MethodGet, r.Method)
	q := r.URL.Query()
	assert.Equal(t, "visits", q.Get("sheet"))
	assert.Equal(t, "198.51.100.7", q.Get("ip"))
	assert.Equal(t, "fr-FR", q.Get("lang"))
	assert.Equal(t, "visit-recorder-beacon/test (linux; amd64)", q.Get("ua"))
	assert.Equal(t, "linux amd64", q.Get("os"))
	assert.Equal(t, "Europe/Paris", q.Get("tz"))
	assert.Contains(t, r.URL.RawQuery, "tz="+url.QueryEscape("Europe/Paris"))
}

func TestSubmit_RejectedStatusIsAnError(t *testing.T) {
	dest := &capture{status: http.StatusInternalServerError}
	srv := httptest.NewServer(http.HandlerFunc(dest.handler))
	defer srv.Close()

	c := newTestCollector(Options{Destination: srv.URL})

	err := c.Send(context.Background())

	require.Error(t, err)
	assert.Len(t, dest.requests, 1, "beacons are not retried")
}

func TestFire_DoesNotBlockAndDelivers(t *testing.T) {
	delivered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
		close(delivered)
	}))
	defer srv.Close()

	c := newTestCollector(Options{Destination: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	c.Fire(ctx)
	cancel()
	close(release)

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("beacon was not delivered")
	}
}

func TestHeartbeat_FiresUntilCancelled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestCollector(Options{Destination: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Heartbeat(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return hits.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat did not stop after cancel")
	}
}
