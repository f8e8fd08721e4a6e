package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/batalabs/nexus3d/internal/netguard"
)

const (
	defaultTimeout = 30 * time.Second
	defaultPerPage = 20
	maxPerPage     = 100
	maxRetries     = 3
	retryBackoff   = 1.5
	maxRetryAfter  = 60 * time.Second
)

// Client is an authenticated, retrying, paginating REST client for one
// GitLab Instance. Created lazily by a Base and cached there per host;
// each skill's Base keeps its own cache, so Clients are not shared
// between skills.
type Client struct {
	instance Instance
	baseURL  string
	http     *http.Client
	token    string
}

// NewClient builds a Client for instance. The token is resolved
// immediately (not lazily) so a missing-credential error surfaces at
// construction rather than on the first request.
func NewClient(instance Instance) (*Client, error) {
	token, err := instance.ResolveToken()
	if err != nil {
		return nil, &APIError{StatusCode: 401, Message: err.Error()}
	}
	return &Client{
		instance: instance,
		baseURL:  strings.TrimRight(instance.URL, "/") + "/api/v4",
		token:    token,
		http: &http.Client{
			Timeout: defaultTimeout,
			// Never follow redirects: an SSRF check on the original URL
			// is worthless if a redirect can retarget the request to a
			// private address afterward.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// encodePath percent-encodes a project/group path (e.g. "group/sub/repo")
// as a single opaque segment ("group%2Fsub%2Frepo") before substitution
// into an endpoint template. PathEscape, not QueryEscape: the latter
// encodes a space as "+", which GitLab's path segment parsing does not
// interpret as a space.
func encodePath(projectOrGroup string) string {
	return url.PathEscape(projectOrGroup)
}

// request performs one HTTP call with SSRF re-validation, retry on 429
// (honoring Retry-After, clamped to 60s) and 5xx (exponential backoff,
// base 1.5), and terminal APIError on 4xx or exhausted retries. Returns
// the parsed JSON body, or nil for a 204.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, body any) (any, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{StatusCode: 0, Message: fmt.Sprintf("encoding request body: %v", err)}
		}
		bodyReader = bytes.NewReader(b)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Re-validated on every attempt, not just the first: defense in
		// depth against a config that slipped past load-time validation.
		if err := netguard.ValidateURL(reqURL, true, false); err != nil {
			return nil, &APIError{StatusCode: 0, Message: fmt.Sprintf("SSRF check failed: %v", err)}
		}

		var bodyForAttempt io.Reader
		if bodyReader != nil {
			b, _ := io.ReadAll(bodyReader)
			bodyReader = bytes.NewReader(b)
			bodyForAttempt = bytes.NewReader(b)
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, bodyForAttempt)
		if err != nil {
			return nil, &APIError{StatusCode: 0, Message: fmt.Sprintf("building request: %v", err)}
		}
		httpReq.Header.Set("PRIVATE-TOKEN", c.token)
		httpReq.Header.Set("User-Agent", "nexus3-gitlab-client/1.0")
		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			lastErr = &APIError{StatusCode: 0, Message: fmt.Sprintf("request failed: %v", err)}
			if attempt < maxRetries {
				if !sleepWithContext(ctx, backoffDelay(attempt)) {
					return nil, ctx.Err()
				}
				continue
			}
			return nil, lastErr
		}

		result, retry, err := c.handleResponse(resp, attempt)
		if retry {
			if attempt < maxRetries {
				delay := backoffDelay(attempt)
				if d, ok := retryAfterOverride(resp); ok {
					delay = d
				}
				if !sleepWithContext(ctx, delay) {
					return nil, ctx.Err()
				}
				continue
			}
		}
		return result, err
	}
	return nil, lastErr
}

func (c *Client) handleResponse(resp *http.Response, attempt int) (result any, shouldRetry bool, err error) {
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		if attempt < maxRetries {
			return nil, true, nil
		}
		return nil, false, &APIError{StatusCode: 429, Message: "rate limit exceeded"}
	}
	if resp.StatusCode >= 500 {
		if attempt < maxRetries {
			return nil, true, nil
		}
	}

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("reading response: %v", readErr)}
	}

	if resp.StatusCode >= 400 {
		message := string(data)
		var parsed map[string]any
		if jsonErr := json.Unmarshal(data, &parsed); jsonErr == nil {
			if m, ok := parsed["message"].(string); ok {
				message = m
			} else if e, ok := parsed["error"].(string); ok {
				message = e
			}
		} else {
			parsed = nil
		}
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: message, Body: parsed}
	}

	if resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil, false, nil
	}

	var out any
	if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("parsing response: %v", jsonErr)}
	}
	return out, false, nil
}

func retryAfterOverride(resp *http.Response) (time.Duration, bool) {
	if resp.StatusCode != 429 {
		return 0, false
	}
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 5 * time.Second, true
	}
	secs, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || secs < 0 {
		return 5 * time.Second, true
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d, true
}

func backoffDelay(attempt int) time.Duration {
	seconds := math.Pow(retryBackoff, float64(attempt))
	return time.Duration(seconds * float64(time.Second))
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Get issues a GET request with query parameters.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (any, error) {
	return c.request(ctx, http.MethodGet, path, params, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (any, error) {
	return c.request(ctx, http.MethodPost, path, nil, body)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (any, error) {
	return c.request(ctx, http.MethodPut, path, nil, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (any, error) {
	return c.request(ctx, http.MethodDelete, path, nil, nil)
}

// Paginate fetches path page by page (capped at maxPerPage), invoking
// yield for every item until limit items have been yielded or a short
// page signals the end. yield returning false stops iteration early.
func (c *Client) Paginate(ctx context.Context, path string, limit int, params url.Values, yield func(item any) bool) error {
	if limit <= 0 {
		limit = defaultPerPage
	}
	perPage := limit
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if params == nil {
		params = url.Values{}
	}

	page := 1
	count := 0
	for count < limit {
		p := url.Values{}
		for k, v := range params {
			p[k] = v
		}
		p.Set("page", strconv.Itoa(page))
		p.Set("per_page", strconv.Itoa(perPage))

		result, err := c.Get(ctx, path, p)
		if err != nil {
			return err
		}
		items, ok := result.([]any)
		if !ok || len(items) == 0 {
			break
		}
		for _, item := range items {
			if !yield(item) {
				return nil
			}
			count++
			if count >= limit {
				break
			}
		}
		if len(items) < perPage {
			break
		}
		page++
	}
	return nil
}
