package stacklight

import (
	"context"
	"net/url"
)

// Dashboard returns the dashboard model stored under uid.
func (c *Client) Dashboard(ctx context.Context, uid string) (map[string]any, error) {
	var resp struct {
		Dashboard map[string]any `json:"dashboard"`
	}
	if err := c.getJSON(ctx, c.grafana, c.settings.GrafanaURL, "/api/dashboards/uid/"+url.PathEscape(uid), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dashboard, nil
}

// DashboardTitles lists the titles of all dashboards.
func (c *Client) DashboardTitles(ctx context.Context) ([]string, error) {
	var resp []struct {
		Title string `json:"title"`
	}
	q := url.Values{}
	q.Set("type", "dash-db")
	if err := c.getJSON(ctx, c.grafana, c.settings.GrafanaURL, "/api/search", q, &resp); err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp))
	for _, d := range resp {
		titles = append(titles, d.Title)
	}
	return titles, nil
}
