package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"schooladmin/internal/metrics"
)

// ErrNoCredentials is returned when an authenticated request cannot resolve a token.
var ErrNoCredentials = errors.New("apiclient: no credentials")

const connectionError = "Connection error"

// maxLoggedBody caps how much of an error response body ends up in the log.
const maxLoggedBody = 2048

// Credentials resolves the bearer token for a request.
type Credentials interface {
	AccessToken(ctx context.Context) (string, error)
}

// CredentialsFunc adapts a function to Credentials.
type CredentialsFunc func(ctx context.Context) (string, error)

// AccessToken implements Credentials.
func (f CredentialsFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// Invalidator marks cached data under a prefix as stale.
type Invalidator interface {
	Invalidate(ctx context.Context, prefix string) error
}

// File is a binary form part sent with a multipart request.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Request describes one logical call against the REST API.
type Request struct {
	Method string
	// Path is relative to the client's BaseURL and may already carry a query.
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
	Files  map[string]File
	// Multipart sends Body and Files as multipart/form-data instead of JSON.
	Multipart bool
	// SkipAuth sends the request without an Authorization header.
	SkipAuth bool
	// Token overrides the client's credential provider for this request.
	Token string
	// Revalidate is a cache prefix invalidated after a successful response.
	Revalidate string
}

// Client calls the school REST API and normalizes every outcome into a Result.
type Client struct {
	BaseURL     string
	HTTP        *http.Client
	Log         *zap.Logger
	Invalidator Invalidator
	Credentials Credentials
}

// New creates a client with the given upstream timeout.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Log:     log,
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithCredentials returns a copy of the client bound to creds.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.Credentials = creds
	return &cp
}

// Invalidate forwards to the configured invalidator, if any.
func (c *Client) Invalidate(ctx context.Context, prefix string) {
	if c.Invalidator == nil || prefix == "" {
		return
	}
	if err := c.Invalidator.Invalidate(ctx, prefix); err != nil {
		c.Log.Warn("cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
	}
}

// Do performs the request and classifies the response. It never returns an error;
// every outcome is described by the Result.
func (c *Client) Do(ctx context.Context, req Request) Result[json.RawMessage] {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := c.newRequest(ctx, method, req)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			c.Log.Warn("api request without credentials", zap.String("method", method), zap.String("path", req.Path), zap.Error(err))
			return unauthorized[json.RawMessage](0)
		}
		c.Log.Error("api request build failed", zap.String("method", method), zap.String("path", req.Path), zap.Error(err))
		return failure[json.RawMessage](0, connectionError)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(httpReq)
	metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(method, "error").Inc()
		c.Log.Error("api request failed", zap.String("method", method), zap.String("url", httpReq.URL.String()), zap.Error(err))
		return failure[json.RawMessage](0, connectionError)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Log.Error("api response read failed", zap.String("method", method), zap.String("url", httpReq.URL.String()), zap.Error(err))
		return failure[json.RawMessage](resp.StatusCode, connectionError)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logged := body
		if len(logged) > maxLoggedBody {
			logged = logged[:maxLoggedBody]
		}
		c.Log.Warn("api error response",
			zap.Int("status", resp.StatusCode),
			zap.String("method", method),
			zap.String("url", httpReq.URL.String()),
			zap.ByteString("body", logged))
	}

	res := classify(resp.StatusCode, resp.Status, body)
	if res.Success && req.Revalidate != "" {
		c.Invalidate(ctx, req.Revalidate)
	}
	return res
}

// Fetch performs the request and decodes a successful body into T. A body that
// does not decode leaves Data empty, the same as an empty body.
func Fetch[T any](ctx context.Context, c *Client, req Request) Result[T] {
	raw := c.Do(ctx, req)
	out := Result[T]{
		Success:      raw.Success,
		Error:        raw.Error,
		Status:       raw.Status,
		Unauthorized: raw.Unauthorized,
	}
	if raw.Success && raw.Data != nil {
		var v T
		if err := json.Unmarshal(*raw.Data, &v); err != nil {
			c.Log.Warn("api response decode failed", zap.String("path", req.Path), zap.Error(err))
			return out
		}
		out.Data = &v
	}
	return out
}

func (c *Client) newRequest(ctx context.Context, method string, req Request) (*http.Request, error) {
	target := c.BaseURL + req.Path
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	header := make(http.Header)
	for k, vals := range req.Header {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	header.Set("Accept", "application/json")

	var body io.Reader
	switch {
	case req.Multipart:
		buf, contentType, err := encodeMultipart(req.Body, req.Files)
		if err != nil {
			return nil, err
		}
		body = buf
		header.Set("Content-Type", contentType)
	default:
		if req.Body != nil {
			raw, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("apiclient: encode body: %w", err)
			}
			body = bytes.NewReader(raw)
		}
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	}

	if !req.SkipAuth {
		token, err := c.resolveToken(ctx, req.Token)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create request: %w", err)
	}
	httpReq.Header = header
	return httpReq, nil
}

func (c *Client) resolveToken(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if c.Credentials == nil {
		return "", ErrNoCredentials
	}
	token, err := c.Credentials.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	if token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}
