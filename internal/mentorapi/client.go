package mentorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mentorbuddy-backend/config"
)

// API is the subset of the upstream mentorship API the backend uses.
type API interface {
	FetchSlots(ctx context.Context, mentorID, date string) ([]SlotDay, error)
	BookSlot(ctx context.Context, req BookRequest) (*BookResponse, error)
	FetchPackage(ctx context.Context, packageID string) (*Package, error)
	FetchMentorPackages(ctx context.Context, mentorID string) ([]Package, error)
	FetchUserPackages(ctx context.Context, userID, packageType string) ([]Package, error)
	FetchGroupSessions(ctx context.Context, mentorID string) ([]GroupSession, error)
	BookGroupSession(ctx context.Context, sessionID, userID string) (*GroupSession, error)
	FetchWallet(ctx context.Context) (*Wallet, error)
	FetchMyCalls(ctx context.Context) ([]Call, error)
	FetchRecording(ctx context.Context, callID string) (*Recording, error)
}

// Client talks to the upstream API on behalf of a single bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ API = (*Client)(nil)

// New creates a client from the upstream configuration.
func New(cfg config.UpstreamConfig, logger *zap.Logger) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid upstream proxy URL; not using a proxy", zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	limit := rate.Inf
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("mentorapi"),
	}
}

// WithToken returns a client that shares transport and rate limit but
// authenticates with a different token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the bearer token the client sends.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) FetchSlots(ctx context.Context, mentorID, date string) ([]SlotDay, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	return call[[]SlotDay](ctx, c, http.MethodGet, "/slot/mentor/"+url.PathEscape(mentorID), q, nil)
}

func (c *Client) BookSlot(ctx context.Context, req BookRequest) (*BookResponse, error) {
	resp, err := call[BookResponse](ctx, c, http.MethodPut, "/slot/book", nil, req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FetchPackage(ctx context.Context, packageID string) (*Package, error) {
	pkg, err := call[Package](ctx, c, http.MethodGet, "/session/package/detail/"+url.PathEscape(packageID), nil, nil)
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) FetchMentorPackages(ctx context.Context, mentorID string) ([]Package, error) {
	return call[[]Package](ctx, c, http.MethodGet, "/mentor/packages/"+url.PathEscape(mentorID), nil, nil)
}

func (c *Client) FetchUserPackages(ctx context.Context, userID, packageType string) ([]Package, error) {
	q := url.Values{}
	if packageType != "" {
		q.Set("type", packageType)
	}
	return call[[]Package](ctx, c, http.MethodGet, "/session/package/"+url.PathEscape(userID), q, nil)
}

func (c *Client) FetchGroupSessions(ctx context.Context, mentorID string) ([]GroupSession, error) {
	return call[[]GroupSession](ctx, c, http.MethodGet, "/group-session/mentor/"+url.PathEscape(mentorID), nil, nil)
}

func (c *Client) BookGroupSession(ctx context.Context, sessionID, userID string) (*GroupSession, error) {
	body := map[string]string{"userId": userID}
	gs, err := call[GroupSession](ctx, c, http.MethodPut, "/group-session/book/"+url.PathEscape(sessionID), nil, body)
	if err != nil {
		return nil, err
	}
	return &gs, nil
}

func (c *Client) FetchWallet(ctx context.Context) (*Wallet, error) {
	w, err := call[Wallet](ctx, c, http.MethodGet, "/buddy-coin/wallet", nil, nil)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) FetchMyCalls(ctx context.Context) ([]Call, error) {
	return call[[]Call](ctx, c, http.MethodGet, "/call/my-calls", nil, nil)
}

func (c *Client) FetchRecording(ctx context.Context, callID string) (*Recording, error) {
	rec, err := call[Recording](ctx, c, http.MethodGet, "/call/recording/"+url.PathEscape(callID), nil, nil)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// call performs one request and decodes the data field of the response envelope.
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (T, error) {
	var zero T

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return zero, &NetworkError{Method: method, URL: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("upstream request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return zero, &NetworkError{Method: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, &NetworkError{Method: method, URL: endpoint, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
		c.logger.Debug("upstream rejected request", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode), zap.String("message", apiErr.Message))
		return zero, apiErr
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("failed to unmarshal api response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return zero, &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}

// errorMessage pulls the human readable message out of an error body.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
