package newt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/query"
)

// API types select the delivery endpoint.
const (
	APITypeCDN = "cdn"
	APITypeAPI = "api"
)

// ErrNotConfigured is returned when the client has no space or token.
var ErrNotConfigured = errors.New("newt client not configured")

// Options configures a Client.
type Options struct {
	SpaceUID string
	Token    string
	APIType  string
	// RateLimit caps requests per second; 0 disables pacing.
	RateLimit float64
	Timeout   time.Duration
	// BaseURL overrides the endpoint derived from SpaceUID and APIType.
	BaseURL string
}

// Client is an HTTP client for the Newt content delivery API.
type Client struct {
	baseURL string
	token   string
	limiter *rate.Limiter
	client  *http.Client
}

// NewClient creates a new Newt client.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	base := opts.BaseURL
	if base == "" && opts.SpaceUID != "" {
		apiType := opts.APIType
		if apiType != APITypeAPI {
			apiType = APITypeCDN
		}
		base = fmt.Sprintf("https://%s.%s.newt.so/v1", opts.SpaceUID, apiType)
	}

	c := &Client{
		baseURL: base,
		token:   opts.Token,
		client:  &http.Client{Timeout: opts.Timeout},
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// IsConfigured reports whether the client has an endpoint and a token.
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.token != ""
}

// GetContents lists records of modelUID in appUID matching q.
func (c *Client) GetContents(ctx context.Context, appUID, modelUID string, q query.Query) (*query.Result, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?%s",
		c.baseURL, url.PathEscape(appUID), url.PathEscape(modelUID), q.Values().Encode())

	var result query.Result
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetApp returns the metadata of appUID.
func (c *Client) GetApp(ctx context.Context, appUID string) (*content.App, error) {
	endpoint := fmt.Sprintf("%s/space/apps/%s", c.baseURL, url.PathEscape(appUID))

	var app content.App
	if err := c.get(ctx, endpoint, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("newt API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// StatusError is a non-200 response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("newt API returned %d: %s", e.Code, e.Body)
}
