package stacklight

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"ccptests/pkg/logging"
	"ccptests/pkg/poll"
)

// CountLogs returns how many documents of index match the Lucene query string.
func (c *Client) CountLogs(ctx context.Context, index, query string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if err := c.getJSON(ctx, c.http, c.settings.ElasticsearchURL, "/"+url.PathEscape(index)+"/_count", q, &resp); err != nil {
		return 0, err
	}
	logging.Debug("Stacklight", "%d log entries in %s match %q", resp.Count, index, query)
	return resp.Count, nil
}

// WaitLogEntry waits until at least one document of index matches query.
func (c *Client) WaitLogEntry(ctx context.Context, index, query string, timeout, interval time.Duration) error {
	return poll.Until(ctx, func(ctx context.Context) (bool, error) {
		n, err := c.CountLogs(ctx, index, query)
		return n > 0, err
	}, timeout, interval, fmt.Sprintf("no log entry in %s matches %q", index, query))
}
