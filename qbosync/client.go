package qbosync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	pageSize = 500

	// rateLimitWait is how long to sleep before the single retry that a
	// rate-limited page gets.
	rateLimitWait = 61 * time.Second

	// queryTimeFormat is the timestamp layout the query language accepts
	// in WHERE clauses. No timezone suffix; values are formatted in UTC.
	queryTimeFormat = "2006-01-02T15:04:05"
)

// Client fetches entity records page by page through the query endpoint.
type Client struct {
	apiBase string
	http    *http.Client
	sleep   func(time.Duration)
}

func NewClient() *Client {
	base := os.Getenv("QBO_API_BASE")
	if base == "" {
		base = defaultApiBase
	}
	return &Client{
		apiBase: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
		sleep:   time.Sleep,
	}
}

type queryEnvelope struct {
	QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	Fault         *struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
		} `json:"Error"`
	} `json:"Fault"`
}

// Query pulls every page of the given entity, optionally restricted to
// records updated after since, and returns the raw records. Pagination is
// STARTPOSITION-based and stops on the first page shorter than the page
// size.
func (c *Client) Query(ctx context.Context, realmId string, accessToken string, entity string, since *time.Time) ([]json.RawMessage, error) {
	var all []json.RawMessage
	start := 1
	for {
		rows, err := c.queryPage(ctx, realmId, accessToken, entity, since, start)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < pageSize {
			return all, nil
		}
		start += pageSize
	}
}

func (c *Client) queryPage(ctx context.Context, realmId string, accessToken string, entity string, since *time.Time, start int) ([]json.RawMessage, error) {
	query := fmt.Sprintf("SELECT * FROM %s", entity)
	if since != nil {
		query += fmt.Sprintf(" WHERE Metadata.LastUpdatedTime > '%s'", since.UTC().Format(queryTimeFormat))
	}
	query += fmt.Sprintf(" STARTPOSITION %d MAXRESULTS %d", start, pageSize)

	retried := false
	for {
		status, body, err := c.doQuery(ctx, realmId, accessToken, query)
		if err != nil {
			return nil, err
		}
		if status == http.StatusTooManyRequests {
			if retried {
				return nil, fmt.Errorf("%w: %s page starting at %d", ErrRateLimited, entity, start)
			}
			retried = true
			c.sleep(rateLimitWait)
			continue
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("query %s returned %d: %s", entity, status, strings.TrimSpace(string(body)))
		}
		var env queryEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("query %s: decode response: %w", entity, err)
		}
		if env.Fault != nil && len(env.Fault.Error) > 0 {
			return nil, fmt.Errorf("query %s fault: %s", entity, env.Fault.Error[0].Message)
		}
		raw, ok := env.QueryResponse[entity]
		if !ok {
			// An empty result set omits the entity key entirely.
			return nil, nil
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("query %s: decode records: %w", entity, err)
		}
		return rows, nil
	}
}

func (c *Client) doQuery(ctx context.Context, realmId string, accessToken string, query string) (int, []byte, error) {
	endpoint := fmt.Sprintf("%s/v3/company/%s/query?query=%s", c.apiBase, url.PathEscape(realmId), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, err
	}
	return res.StatusCode, body, nil
}
