package transport

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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peopledesk/peopledesk/internal/client/auth"
)

// ErrSessionExpired is returned when a request hit a 401 and the
// forced-logout side effect ran (or had already run).
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx response. Message is taken from a JSON
// "message" field in the body when one is present.
type APIError struct {
	Status  int
	Body    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Options configures a Client.
type Options struct {
	Creds  *auth.Store
	Logger *zap.SugaredLogger

	// Timeout for the whole round trip. Zero means none, which is
	// the default behavior callers rely on.
	Timeout time.Duration

	// LogoutPath is exempt from the forced-logout side effect: a 401
	// there is a benign race, not a hijacked session.
	LogoutPath string

	// OnSessionExpired is the navigation hook invoked after the
	// credential has been cleared by a guarded 401.
	OnSessionExpired func()
}

// Client wraps *http.Client with bearer injection, JSON defaults and
// the global session-expiry policy.
type Client struct {
	http       *http.Client
	creds      *auth.Store
	log        *zap.SugaredLogger
	logoutPath string
	onExpired  func()
	expiryMu   sync.Mutex
}

func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		http:       &http.Client{Timeout: opts.Timeout},
		creds:      opts.Creds,
		log:        log,
		logoutPath: opts.LogoutPath,
		onExpired:  opts.OnSessionExpired,
	}
}

type callOptions struct {
	body    any
	headers map[string]string
	noAuth  bool
	noGuard bool
}

type Option func(*callOptions)

// WithBody JSON-encodes v as the request body.
func WithBody(v any) Option {
	return func(o *callOptions) { o.body = v }
}

func WithHeader(key, value string) Option {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithoutAuth skips bearer injection for this call.
func WithoutAuth() Option {
	return func(o *callOptions) { o.noAuth = true }
}

// WithoutSessionGuard disables the global 401 side effect for this
// call; the caller handles session invalidation itself.
func WithoutSessionGuard() Option {
	return func(o *callOptions) { o.noGuard = true }
}

// Call issues a request and returns the decoded body: nil for an
// empty 2xx body, the parsed value for a JSON body, or the raw text
// when the body is not JSON (a 2xx never fails on decode).
func (c *Client) Call(ctx context.Context, method, rawURL string, opts ...Option) (any, error) {
	_, header, body, err := c.do(ctx, method, rawURL, opts...)
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return nil, nil
	}
	if strings.Contains(header.Get("Content-Type"), "application/json") {
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return string(body), nil
		}
		return v, nil
	}
	return string(body), nil
}

// CallJSON issues a request and decodes a 2xx JSON body into out.
// out may be nil when the response body is irrelevant.
func (c *Client) CallJSON(ctx context.Context, method, rawURL string, out any, opts ...Option) error {
	_, _, body, err := c.do(ctx, method, rawURL, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) do(ctx context.Context, method, rawURL string, opts ...Option) (int, http.Header, []byte, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	var reader io.Reader
	if o.body != nil {
		data, err := json.Marshal(o.body)
		if err != nil {
			c.log.Errorw("encode request body", "url", rawURL, "err", err)
			return 0, nil, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		c.log.Errorw("build request", "url", rawURL, "err", err)
		return 0, nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	if !o.noAuth && c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure: surfaced unchanged, retries are a
		// caller concern.
		c.log.Errorw("request failed", "method", method, "url", rawURL, "err", err)
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Errorw("read response body", "url", rawURL, "err", err)
		return 0, nil, nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !o.noGuard && !c.isLogoutURL(rawURL) {
		c.log.Warnw("session rejected by server, forcing logout", "url", rawURL)
		c.expireSession()
		return 0, nil, nil, ErrSessionExpired
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Body: string(body)}
		var parsed struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
			apiErr.Message = parsed.Message
		}
		c.log.Errorw("request rejected", "method", method, "url", rawURL,
			"status", resp.StatusCode, "message", apiErr.Message)
		return 0, nil, nil, apiErr
	}

	return resp.StatusCode, resp.Header, body, nil
}

func (c *Client) isLogoutURL(rawURL string) bool {
	if c.logoutPath == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, c.logoutPath)
}

// expireSession clears the credential and fires the navigation hook,
// but only if a credential is still present: another path may already
// have logged the user out.
func (c *Client) expireSession() {
	c.expiryMu.Lock()
	if c.creds == nil || c.creds.Token() == "" {
		c.expiryMu.Unlock()
		return
	}
	c.creds.Clear()
	handler := c.onExpired
	c.expiryMu.Unlock()

	if handler != nil {
		handler()
	}
}
