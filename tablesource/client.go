package tablesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client pulls paginated exports over HTTP. Page fetches respect the source's
// rate limit and retry transient failures with exponential backoff; a retry
// budget exhausted mid-table surfaces as an entity-level extraction failure,
// not a run abort.
type Client struct {
	baseURL     string
	apiKey      string
	apiKeyHdr   string
	http        *http.Client
	limiter     <-chan time.Time
	maxAttempts int
}

func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("TABLESOURCE_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.tablesource.io"
	}
	apiKey := strings.TrimSpace(os.Getenv("TABLESOURCE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("tablesource api key is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("TABLESOURCE_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "Authorization"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("TABLESOURCE_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	maxAttempts := 4
	if v := strings.TrimSpace(os.Getenv("TABLESOURCE_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxAttempts = n
		}
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		apiKeyHdr:   apiKeyHeader,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     time.Tick(interval),
		maxAttempts: maxAttempts,
	}, nil
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// FetchTable pulls every page of one table. Pagination is offset-token based.
func (c *Client) FetchTable(ctx context.Context, table string) ([]Record, error) {
	var all []Record
	offset := ""
	for {
		page, nextOffset, err := c.fetchPage(ctx, table, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if nextOffset == "" {
			return all, nil
		}
		offset = nextOffset
	}
}

func (c *Client) fetchPage(ctx context.Context, table string, offset string) ([]Record, string, error) {
	params := url.Values{}
	params.Set("pageSize", "100")
	if offset != "" {
		params.Set("offset", offset)
	}
	endpoint := c.baseURL + "/v0/" + url.PathEscape(table) + "?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-c.limiter:
		}

		resp, err := c.getOnce(ctx, endpoint)
		if err == nil {
			return resp.Records, resp.Offset, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxAttempts {
			break
		}
		backoff := time.Duration(1<<attempt) * 250 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, "", fmt.Errorf("tablesource %s: %w", table, lastErr)
}

func (c *Client) getOnce(ctx context.Context, endpoint string) (listResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return listResponse{}, err
	}
	if c.apiKeyHdr == "Authorization" {
		req.Header.Set(c.apiKeyHdr, "Bearer "+c.apiKey)
	} else {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return listResponse{}, &transportError{err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return listResponse{}, &transportError{fmt.Errorf("tablesource api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return listResponse{}, fmt.Errorf("tablesource api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed listResponse
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return listResponse{}, err
	}
	return parsed, nil
}

// transportError marks failures worth retrying: network errors, 5xx, 429.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}
