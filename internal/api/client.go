package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Backend is the subset of the fridge API the dashboard depends on.
// It is implemented by *Client and can be faked in tests.
type Backend interface {
	FetchStatus(ctx context.Context) (*StatusResponse, error)
	FetchRules(ctx context.Context, endpoint string) (*RulesResponse, error)
	RegisterSubscriber(ctx context.Context, sub Subscription) error
	UpdateRule(ctx context.Context, update RuleUpdate) error
	FetchMeasurements(ctx context.Context, query MeasurementQuery) ([]Reading, error)
}

// Ensure Client implements Backend at compile time.
var _ Backend = (*Client)(nil)

// ErrNotFound matches any 404 response from the API.
var ErrNotFound = errors.New("not found")

// StatusError reports a non-2xx API response.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api %s returned status %d", e.Path, e.Code)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Client talks to the fridge HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	defaultAPIURL    = "http://127.0.0.1:5000/api"
	defaultUserAgent = "fridgewatch/0.1"
	requestTimeout   = 5 * time.Second

	// QueryTimeLayout is the datetime format the /measurements endpoint accepts.
	QueryTimeLayout = "2006-01-02T15:04:05"
)

// NewClient builds a Client rooted at apiURL. A bare host:port is treated as http.
func NewClient(apiURL string) (*Client, error) {
	base, err := parseBaseURL(apiURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL.String()
}

// FetchStatus retrieves the device snapshot and the push public key.
func (c *Client) FetchStatus(ctx context.Context) (*StatusResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload StatusResponse
	if err := c.do(ctx, http.MethodGet, "status", nil, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchRules loads the notification rules stored for a subscriber endpoint.
func (c *Client) FetchRules(ctx context.Context, endpoint string) (*RulesResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint required")
	}
	values := url.Values{}
	values.Set("endpoint", endpoint)
	var payload RulesResponse
	if err := c.do(ctx, http.MethodGet, "subscribe", values, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// RegisterSubscriber posts a freshly opened push subscription.
func (c *Client) RegisterSubscriber(ctx context.Context, sub Subscription) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(sub.Endpoint) == "" {
		return fmt.Errorf("endpoint required")
	}
	return c.do(ctx, http.MethodPost, "subscribe", nil, sub, nil)
}

// UpdateRule upserts the rule for one device of a subscriber.
func (c *Client) UpdateRule(ctx context.Context, update RuleUpdate) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(update.Endpoint) == "" {
		return fmt.Errorf("endpoint required")
	}
	return c.do(ctx, http.MethodPut, "subscribe", nil, update, nil)
}

// MeasurementQuery configures /measurements requests.
type MeasurementQuery struct {
	Start    time.Time
	End      time.Time
	DeviceID string
}

// FetchMeasurements retrieves readings in [Start, End] for one device. A
// response whose data field is missing or not an array yields no readings.
func (c *Client) FetchMeasurements(ctx context.Context, query MeasurementQuery) ([]Reading, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	values.Set("start", query.Start.Format(QueryTimeLayout))
	values.Set("end", query.End.Format(QueryTimeLayout))
	if id := strings.TrimSpace(query.DeviceID); id != "" {
		values.Set("device_id", id)
	}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "measurements", values, nil, &raw)
	var syntaxErr *json.SyntaxError
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &syntaxErr) {
		// Empty or non-JSON body.
		return []Reading{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeMeasurements(raw), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	reqURL := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return &StatusError{Path: "/" + path, Code: resp.StatusCode}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(apiURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiURL)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_url %q: %w", apiURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api_url %q: missing host", apiURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
