package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// userAgent mirrors a desktop browser; the cohort site serves a browser
// session and rejects obviously non-browser clients.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36"

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// IsAuthError reports whether the error indicates an expired or missing
// upstream session (401/403 or equivalent wording).
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unauthorized") ||
		strings.Contains(text, "forbidden") ||
		strings.Contains(text, "401") ||
		strings.Contains(text, "403")
}

// Client is a cookie-authenticated JSON client for the cohort API.
type Client struct {
	apiBase     string
	previewPath string
	pageSize    int
	referer     string
	cookies     map[string]string
	http        *http.Client
}

// NewClient builds a client from the configuration. It fails when the API
// base or the session cookie header is missing, mirroring what the live API
// would reject anyway.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIBase) == "" {
		return nil, errors.New("upstream: api_base is not configured")
	}
	cookies := ParseCookieHeader(cfg.CookieHeader)
	if len(cookies) == 0 {
		return nil, errors.New("upstream: cookie header is missing; cannot call the live cohort API")
	}

	timeout := cfg.TimeoutSeconds
	if timeout < 30 {
		timeout = 30
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeoutDuration,
	}

	previewPath := cfg.PreviewPath
	if previewPath == "" {
		previewPath = "/query_tools/preview/"
	}
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = 1
	}

	return &Client{
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		previewPath: previewPath,
		pageSize:    pageSize,
		referer:     cfg.Referer,
		cookies:     cookies,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeoutDuration,
		},
	}, nil
}

// PageSize returns the preview page size the client was configured with.
func (c *Client) PageSize() int {
	return c.pageSize
}

// SourceLabel describes the data source for status output.
func (c *Client) SourceLabel() string {
	return fmt.Sprintf("%s%s?page=1&records_per_page=%d", c.apiBase, c.previewPath, c.pageSize)
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	for k, v := range c.cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<20))
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}
	return payload, nil
}

// GetJSON performs a GET against path (relative to the API base).
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	u := c.apiBase + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// PostJSON performs a POST with a JSON body against path.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// ClearCohort resets all cohort criteria so preview calls see the full
// dataset.
func (c *Client) ClearCohort(ctx context.Context) error {
	resp, err := c.PostJSON(ctx, "/cohort_def/", map[string]any{
		"transformation": map[string]any{"type": "clear_all"},
	})
	if err != nil {
		return err
	}
	if errs := payloadErrors(resp); len(errs) > 0 {
		return fmt.Errorf("failed to clear cohort filters: %v", errs)
	}
	return nil
}

// AddCriteriaSet scopes the cohort to one site collection.
func (c *Client) AddCriteriaSet(ctx context.Context, collectionID string) error {
	resp, err := c.PostJSON(ctx, "/cohort_def/", map[string]any{
		"transformation": map[string]any{"type": "add_criteria_set", "collection_id": collectionID},
	})
	if err != nil {
		return err
	}
	if errs := payloadErrors(resp); len(errs) > 0 {
		return fmt.Errorf("failed to add criteria set %q: %v", collectionID, errs)
	}
	return nil
}

// Count returns the current cohort count payload.
func (c *Client) Count(ctx context.Context) (map[string]any, error) {
	return c.GetJSON(ctx, "/query_tools/count/", nil)
}

func payloadErrors(payload map[string]any) []any {
	raw, ok := payload["errors"]
	if !ok {
		return nil
	}
	list, _ := raw.([]any)
	return list
}

// ParseCookieHeader parses a raw Cookie header value into a name/value map.
func ParseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k != "" {
			cookies[k] = v
		}
	}
	return cookies
}

// ParsePreviewURL validates a full preview URL and splits it into an API
// base, a preview path and a page-size override. A missing records_per_page
// keeps fallbackPageSize.
func ParsePreviewURL(raw string, fallbackPageSize int) (apiBase, previewPath string, pageSize int, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", 0, errors.New("preview URL is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", "", 0, errors.New("preview URL must include protocol and host")
	}

	const marker = "/query_tools/preview"
	idx := strings.Index(parsed.Path, marker)
	if idx < 0 {
		return "", "", 0, fmt.Errorf("preview URL must include %q", marker)
	}

	basePath := strings.TrimRight(parsed.Path[:idx], "/")
	if basePath == "" {
		return "", "", 0, fmt.Errorf("preview URL is missing the API base path before %q", marker)
	}

	previewPath = parsed.Path[idx:]
	if !strings.HasSuffix(previewPath, "/") {
		previewPath += "/"
	}

	apiBase = strings.TrimRight(parsed.Scheme+"://"+parsed.Host+basePath, "/")

	pageSize = fallbackPageSize
	if rawPerPage := strings.TrimSpace(parsed.Query().Get("records_per_page")); rawPerPage != "" {
		n, convErr := strconv.Atoi(rawPerPage)
		if convErr != nil {
			return "", "", 0, errors.New("records_per_page in preview URL must be an integer")
		}
		// Zero or negative page sizes clamp to 1 rather than erroring.
		if n < 1 {
			n = 1
		}
		pageSize = n
	}
	return apiBase, previewPath, pageSize, nil
}
