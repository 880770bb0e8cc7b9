package stacklight

import (
	"context"
	"fmt"
	"net/url"
	"slices"
)

// Series is one result series of an InfluxQL query.
type Series struct {
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags,omitempty"`
	Columns []string          `json:"columns"`
	Values  [][]any           `json:"values"`
}

// Query runs an InfluxQL statement against db.
func (c *Client) Query(ctx context.Context, db, influxQL string) ([]Series, error) {
	var resp struct {
		Results []struct {
			Series []Series `json:"series"`
			Error  string   `json:"error"`
		} `json:"results"`
		Error string `json:"error"`
	}

	q := url.Values{}
	q.Set("db", db)
	q.Set("q", influxQL)
	if c.settings.InfluxDBUser != "" {
		q.Set("u", c.settings.InfluxDBUser)
		q.Set("p", c.settings.InfluxDBPassword)
	}
	if err := c.getJSON(ctx, c.http, c.settings.InfluxDBURL, "/query", q, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("influxdb query %q: %s", influxQL, resp.Error)
	}

	var series []Series
	for _, r := range resp.Results {
		if r.Error != "" {
			return nil, fmt.Errorf("influxdb query %q: %s", influxQL, r.Error)
		}
		series = append(series, r.Series...)
	}
	return series, nil
}

// HasMeasurement reports whether db contains the measurement.
func (c *Client) HasMeasurement(ctx context.Context, db, measurement string) (bool, error) {
	series, err := c.Query(ctx, db, "SHOW MEASUREMENTS")
	if err != nil {
		return false, err
	}
	for _, s := range series {
		for _, row := range s.Values {
			if len(row) > 0 && row[0] == measurement {
				return true, nil
			}
		}
	}
	return false, nil
}

// Column returns the values of the named column across all rows of s.
func (s Series) Column(name string) []any {
	i := slices.Index(s.Columns, name)
	if i < 0 {
		return nil
	}
	out := make([]any, 0, len(s.Values))
	for _, row := range s.Values {
		if i < len(row) {
			out = append(out, row[i])
		}
	}
	return out
}
