package stacklight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccptests/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler, mutate func(*config.StacklightSettings)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	settings := config.StacklightSettings{
		ElasticsearchURL: srv.URL,
		InfluxDBURL:      srv.URL,
		GrafanaURL:       srv.URL + "/",
	}
	if mutate != nil {
		mutate(&settings)
	}
	return NewClient(settings, WithRetries(2), WithRetryWait(time.Millisecond, 5*time.Millisecond))
}

func TestCountLogs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/log-2017.01.12/_count", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "programname:nova-api AND severity_label:ERROR", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"count": 3, "_shards": {"total": 5}}`))
	})
	c := newTestClient(t, mux, nil)

	n, err := c.CountLogs(context.Background(), "log-2017.01.12", "programname:nova-api AND severity_label:ERROR")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountLogs_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"count": 1}`))
	}), nil)

	n, err := c.CountLogs(context.Background(), "log", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCountLogs_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "index_not_found_exception"}`))
	}), nil)

	_, err := c.CountLogs(context.Background(), "missing", "")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "index_not_found_exception")
}

func TestWaitLogEntry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"count": 0}`))
			return
		}
		_, _ = w.Write([]byte(`{"count": 2}`))
	}), nil)

	require.NoError(t, c.WaitLogEntry(context.Background(), "log", "Hostname:master", time.Second, 10*time.Millisecond))
}

func TestUnconfiguredEndpoint(t *testing.T) {
	c := NewClient(config.StacklightSettings{})
	_, err := c.CountLogs(context.Background(), "log", "")
	assert.ErrorContains(t, err, "not configured")
}

func TestQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "lma", q.Get("db"))
		assert.Equal(t, "admin", q.Get("u"))
		assert.Equal(t, "secret", q.Get("p"))
		switch q.Get("q") {
		case "SHOW MEASUREMENTS":
			_, _ = w.Write([]byte(`{"results":[{"series":[{"name":"measurements","columns":["name"],"values":[["cpu_idle"],["k8s_pods"]]}]}]}`))
		case "SELECT bad":
			_, _ = w.Write([]byte(`{"results":[{"error":"error parsing query"}]}`))
		default:
			_, _ = w.Write([]byte(`{"results":[{"series":[{"name":"cpu_idle","tags":{"hostname":"master"},"columns":["time","value"],"values":[["2017-01-12T10:00:00Z",97.5],["2017-01-12T10:00:10Z",98]]}]}]}`))
		}
	}), func(s *config.StacklightSettings) {
		s.InfluxDBUser = "admin"
		s.InfluxDBPassword = "secret"
	})
	ctx := context.Background()

	series, err := c.Query(ctx, "lma", `SELECT value FROM cpu_idle WHERE hostname = 'master'`)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "master", series[0].Tags["hostname"])
	assert.Equal(t, []any{97.5, float64(98)}, series[0].Column("value"))
	assert.Nil(t, series[0].Column("missing"))

	ok, err := c.HasMeasurement(ctx, "lma", "k8s_pods")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasMeasurement(ctx, "lma", "haproxy_backend")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Query(ctx, "lma", "SELECT bad")
	assert.ErrorContains(t, err, "error parsing query")
}

func TestGrafana(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer glsa_token", r.Header.Get("Authorization"))
		assert.Equal(t, "dash-db", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`[{"title":"Kubernetes"},{"title":"RabbitMQ"}]`))
	})
	mux.HandleFunc("/api/dashboards/uid/k8s", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer glsa_token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"dashboard":{"title":"Kubernetes","panels":[{"id":1}]},"meta":{"slug":"kubernetes"}}`))
	})
	c := newTestClient(t, mux, func(s *config.StacklightSettings) {
		s.GrafanaToken = "glsa_token"
	})
	ctx := context.Background()

	titles, err := c.DashboardTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Kubernetes", "RabbitMQ"}, titles)

	d, err := c.Dashboard(ctx, "k8s")
	require.NoError(t, err)
	assert.Equal(t, "Kubernetes", d["title"])
}
