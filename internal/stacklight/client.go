// Package stacklight checks the observable state of a deployment: logs in
// Elasticsearch, metrics in InfluxDB, dashboards in Grafana, and the health of the
// clustered services (RabbitMQ, Galera, etcd) running in Kubernetes.
package stacklight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"ccptests/internal/config"
	"ccptests/pkg/logging"
	pkgstrings "ccptests/pkg/strings"
)

// DefaultRetries is how many times a failed HTTP request is retried.
const DefaultRetries = 3

// Client talks to the Stacklight HTTP endpoints.
type Client struct {
	settings config.StacklightSettings
	http     *http.Client
	grafana  *http.Client
}

// Option configures a Client.
type Option func(*retryablehttp.Client)

// WithRetries sets the retry count.
func WithRetries(n int) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

// WithRetryWait bounds the wait between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = minWait
		c.RetryWaitMax = maxWait
	}
}

// NewClient creates a Client for the configured endpoints.
func NewClient(settings config.StacklightSettings, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = DefaultRetries
	rc.Logger = leveledLogger{}
	for _, opt := range opts {
		opt(rc)
	}
	base := rc.StandardClient()

	grafana := base
	if settings.GrafanaToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		grafana = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: settings.GrafanaToken,
			TokenType:   "Bearer",
		}))
	}

	return &Client{settings: settings, http: base, grafana: grafana}
}

// leveledLogger routes retryablehttp logging to the harness logger.
type leveledLogger struct{}

func kv(keysAndValues []interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	logging.Error("Stacklight", nil, "%s%s", msg, kv(keysAndValues))
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	logging.Warn("Stacklight", "%s%s", msg, kv(keysAndValues))
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("Stacklight", "%s%s", msg, kv(keysAndValues))
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	logging.Debug("Stacklight", "%s%s", msg, kv(keysAndValues))
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

func (c *Client) getJSON(ctx context.Context, hc *http.Client, base, path string, query url.Values, into any) error {
	if base == "" {
		return fmt.Errorf("endpoint for %s is not configured", path)
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", base, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", redact(u), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: reading body: %w", redact(u), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{URL: redact(u), StatusCode: resp.StatusCode, Body: pkgstrings.OneLine(string(body), 200)}
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", redact(u), err)
	}
	return nil
}

// redact hides credentials passed as InfluxDB query parameters.
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("p") {
		q.Set("p", "xxxxx")
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}
