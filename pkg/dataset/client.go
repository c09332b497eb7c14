// Package dataset implements the external data provider client. The
// provider speaks the PostgREST convention (Supabase and self-hosted
// PostgREST both fit): rows come back as JSON arrays, pagination uses
// Range headers, and exact totals ride the Content-Range header.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/fault"
)

// Record is one opaque row owned by the external provider.
type Record map[string]any

// Client fetches records from a PostgREST-style endpoint using a
// service-role credential. The table name is injected configuration;
// nothing in this package hardcodes it.
type Client struct {
	baseURL    string
	serviceKey string
	table      string
	pageSize   int
	maxRows    int
	client     *http.Client
}

// New creates a Client from dataset configuration.
func New(cfg config.DatasetConfig) *Client {
	return &Client{
		baseURL:    restURL(cfg.URL),
		serviceKey: cfg.ServiceKey,
		table:      cfg.Table,
		pageSize:   cfg.PageSize,
		maxRows:    cfg.MaxRows,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// restURL normalizes the provider base URL. Supabase projects expose
// PostgREST under /rest/v1; a bare PostgREST deployment may already
// include it or serve tables at the root.
func restURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/rest/v1") {
		return base
	}
	return base + "/rest/v1"
}

// FetchAll retrieves every row of the configured table, page by page.
// MaxRows, when positive, caps the total; the snapshot then marks
// itself partial via Count comparison rather than erroring.
func (c *Client) FetchAll(ctx context.Context) (*Snapshot, error) {
	var rows []Record
	for offset := 0; ; offset += c.pageSize {
		limit := c.pageSize
		if c.maxRows > 0 && offset+limit > c.maxRows {
			limit = c.maxRows - offset
		}
		if limit <= 0 {
			break
		}

		page, total, err := c.fetchRange(ctx, offset, offset+limit-1, false)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)

		if len(page) < limit {
			break
		}
		if total >= 0 && len(rows) >= total {
			break
		}
		if c.maxRows > 0 && len(rows) >= c.maxRows {
			break
		}
	}
	return newSnapshot(rows), nil
}

// Count returns the provider's exact row count without transferring
// rows.
func (c *Client) Count(ctx context.Context) (int, error) {
	_, total, err := c.fetchRange(ctx, 0, 0, true)
	if err != nil {
		return 0, err
	}
	if total < 0 {
		return 0, fault.New(fault.KindUpstream, "dataset.count", "provider omitted exact count")
	}
	return total, nil
}

// Probe checks provider reachability with a single-row fetch. Used by
// health checks; the caller bounds ctx.
func (c *Client) Probe(ctx context.Context) error {
	_, _, err := c.fetchRange(ctx, 0, 0, false)
	return err
}

// fetchRange performs one ranged GET against the table. When exact is
// true the request asks for (and requires) an exact total and the rows
// are not decoded. Returns total -1 when the provider did not report
// one.
func (c *Client) fetchRange(ctx context.Context, from, to int, exact bool) ([]Record, int, error) {
	url := fmt.Sprintf("%s/%s?select=*", c.baseURL, c.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, -1, fault.Wrap(fault.KindUpstream, "dataset.fetch", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", from, to))
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, -1, fault.Wrap(fault.KindUpstream, "dataset.fetch", err)
	}
	defer resp.Body.Close()

	// PostgREST answers ranged requests with 200 or 206.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, -1, fault.Newf(fault.KindUpstream, "dataset.fetch",
			"HTTP %d from provider: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	total := parseContentRange(resp.Header.Get("Content-Range"))

	if exact {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, total, nil
	}

	var rows []Record
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, total, fault.Wrap(fault.KindUpstream, "dataset.fetch", err)
	}
	return rows, total, nil
}

// parseContentRange extracts the total from a "start-end/total" or
// "*/total" header value. Returns -1 when absent or unparseable.
func parseContentRange(v string) int {
	if v == "" {
		return -1
	}
	idx := strings.LastIndexByte(v, '/')
	if idx < 0 || idx == len(v)-1 {
		return -1
	}
	tail := v[idx+1:]
	if tail == "*" {
		return -1
	}
	n, err := strconv.Atoi(tail)
	if err != nil {
		return -1
	}
	return n
}

// Table returns the configured table identifier.
func (c *Client) Table() string { return c.table }

// Timeout returns the per-call budget, for callers sizing contexts.
func (c *Client) Timeout() time.Duration { return c.client.Timeout }
