// Package forum is a thin client for the forum REST API: paginated thread
// and post listings plus partial-merge writes to extended data. It is both
// the source of posts and the sink for updated market state.
package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/forumkita/marketpulse/internal/model"
	"github.com/forumkita/marketpulse/internal/resilience"
)

const defaultTimeout = 30 * time.Second

// SortFilter orders a post listing.
type SortFilter string

const (
	SortNewest SortFilter = "newest"
	SortOldest SortFilter = "oldest"
)

// PostListParams are the query parameters for listing posts in a thread.
type PostListParams struct {
	Filter SortFilter
	Cursor string
	Limit  int
}

// PostPage is one page of a post listing.
type PostPage struct {
	Posts          []model.Post `json:"posts"`
	NextPostCursor string       `json:"nextPostCursor"`
}

// ThreadListParams are the query parameters for listing threads.
type ThreadListParams struct {
	Cursor string
	Limit  int
}

// ThreadPage is one page of a thread listing.
type ThreadPage struct {
	Threads          []model.Thread `json:"threads"`
	NextThreadCursor string         `json:"nextThreadCursor"`
}

// Client defines the forum API operations the analyzer needs.
type Client interface {
	ListThreads(ctx context.Context, params ThreadListParams) (*ThreadPage, error)
	ListPosts(ctx context.Context, threadID string, params PostListParams) (*PostPage, error)
	UpdateThreadExtendedData(ctx context.Context, threadID string, patch map[string]any) error
	UpdatePostExtendedData(ctx context.Context, postID string, patch map[string]any) error
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a forum API client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) ListThreads(ctx context.Context, params ThreadListParams) (*ThreadPage, error) {
	q := url.Values{}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	var page ThreadPage
	if err := c.getJSON(ctx, "/api/threads", q, &page); err != nil {
		return nil, eris.Wrap(err, "forum: list threads")
	}
	return &page, nil
}

func (c *httpClient) ListPosts(ctx context.Context, threadID string, params PostListParams) (*PostPage, error) {
	q := url.Values{}
	if params.Filter != "" {
		q.Set("filter", string(params.Filter))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	var page PostPage
	path := fmt.Sprintf("/api/threads/%s/posts", url.PathEscape(threadID))
	if err := c.getJSON(ctx, path, q, &page); err != nil {
		return nil, eris.Wrapf(err, "forum: list posts for thread %s", threadID)
	}
	return &page, nil
}

func (c *httpClient) UpdateThreadExtendedData(ctx context.Context, threadID string, patch map[string]any) error {
	path := fmt.Sprintf("/api/threads/%s/extended-data", url.PathEscape(threadID))
	if err := c.patchJSON(ctx, path, patch); err != nil {
		return eris.Wrapf(err, "forum: update thread %s extended data", threadID)
	}
	return nil
}

func (c *httpClient) UpdatePostExtendedData(ctx context.Context, postID string, patch map[string]any) error {
	path := fmt.Sprintf("/api/posts/%s/extended-data", url.PathEscape(postID))
	if err := c.patchJSON(ctx, path, patch); err != nil {
		return eris.Wrapf(err, "forum: update post %s extended data", postID)
	}
	return nil
}

func (c *httpClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		body, err := c.send(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
		return nil
	})
}

func (c *httpClient) patchJSON(ctx context.Context, path string, patch map[string]any) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return eris.Wrap(err, "marshal patch")
	}
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		_, err := c.send(ctx, http.MethodPatch, path, nil, payload)
		return err
	})
}

func (c *httpClient) send(ctx context.Context, method, path string, q url.Values, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter")
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}
