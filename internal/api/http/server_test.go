package http

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/scheduler"
)

type fakeDatabase struct{ err error }

func (d fakeDatabase) Ping(context.Context) error { return d.err }

type fakeInbox struct{ stats scheduler.Stats }

func (i fakeInbox) GetStats() scheduler.Stats { return i.stats }

func TestHealth(t *testing.T) {
	s := newTestServer(t, newFakeService())
	s.SetDatabase(fakeDatabase{})

	rec := do(t, s, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, "not configured", body.Services["inbox"])

	s.SetDatabase(fakeDatabase{err: errors.New("connection refused")})
	s.SetInbox(fakeInbox{})
	rec = do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Contains(t, body.Services["postgres"], "connection refused")
	assert.Equal(t, "healthy", body.Services["inbox"])
}

func TestHealthProbes(t *testing.T) {
	s := newTestServer(t, newFakeService())

	rec := do(t, s, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetDatabase(fakeDatabase{})
	rec = do(t, s, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, newFakeService())

	rec := do(t, s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[MetricsResponse](t, rec)
	assert.Nil(t, body.Inbox)
	assert.Nil(t, body.Database)

	hub := NewHub(zap.NewNop())
	s.SetHub(hub)
	s.SetDatabase(fakeDatabase{})
	s.SetInbox(fakeInbox{stats: scheduler.Stats{Workers: 2, Processed: 7}})

	rec = do(t, s, http.MethodGet, "/metrics", "", "")
	body = decode[MetricsResponse](t, rec)
	require.NotNil(t, body.Inbox)
	assert.Equal(t, int64(7), body.Inbox.Processed)
	assert.Equal(t, 2, body.Inbox.Workers)
	assert.Nil(t, body.Database)
	assert.Equal(t, 0, body.WSClients)
}

func TestWSWithoutHub(t *testing.T) {
	s := newTestServer(t, newFakeService())

	rec := do(t, s, http.MethodGet, "/ws", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStaticDashboard(t *testing.T) {
	s := newTestServer(t, newFakeService())

	rec := do(t, s, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.SetStatic(fstest.MapFS{
		"index.html":    {Data: []byte("<html>dashboard</html>")},
		"assets/app.js": {Data: []byte("console.log('runs')")},
	})

	rec = do(t, s, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dashboard")

	rec = do(t, s, http.MethodGet, "/assets/app.js", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "runs")

	rec = do(t, s, http.MethodGet, "/runs/123", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dashboard")

	rec = do(t, s, http.MethodGet, "/api/v1/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseDuration("", 30*time.Second))
	assert.Equal(t, 5*time.Second, parseDuration("5s", 0))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
}
