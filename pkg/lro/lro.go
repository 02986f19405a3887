// Package lro drives remote long-running operations through a
// start, poll, resolve and fetch pipeline.
//
// Polling uses a fixed interval and a bounded number of attempts; together
// they are the operation's only timeout. The caller's context bounds each
// individual HTTP request but does not stop polling once started.
package lro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/metrics"
	"github.com/pario-ai/lens/pkg/resolve"
)

// Pipeline stage errors. Each is surfaced distinctly to callers.
var (
	ErrStartFailed              = errors.New("operation start failed")
	ErrOperationFailed          = errors.New("operation failed")
	ErrOperationTimedOut        = errors.New("operation timed out")
	ErrResultUnresolvable       = errors.New("operation result unresolvable")
	ErrUnsupportedLocatorScheme = errors.New("unsupported locator scheme")
	ErrDownloadFailed           = errors.New("download failed")
)

// State is the lifecycle position of an Operation.
type State int

const (
	Pending State = iota
	Polling
	Done
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Polling:
		return "polling"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Operation is one in-flight remote job. It lives for a single
// orchestration call and is never persisted.
type Operation struct {
	ID        string
	StartedAt time.Time
	Attempts  int
	State     State
}

// DefaultContentType is assumed when a download carries no Content-Type.
const DefaultContentType = "video/mp4"

// maxErrorBody caps how much of an error response is echoed into errors.
const maxErrorBody = 512

// Client talks to one long-running-operation API.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	interval    time.Duration
	maxAttempts int
	wait        func(time.Duration)
	resolver    *resolve.Resolver
	now         func() time.Time
	log         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval sets the fixed delay before each poll.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

// WithMaxAttempts sets the poll budget.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithWait replaces time.Sleep between polls, mostly for tests.
func WithWait(wait func(time.Duration)) Option {
	return func(c *Client) { c.wait = wait }
}

// WithResolver replaces the default result shape resolver.
func WithResolver(r *resolve.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		interval:    10 * time.Second,
		maxAttempts: 30,
		wait:        time.Sleep,
		resolver:    resolve.New(),
		now:         time.Now,
		log:         logging.Component("lro"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Budget is the wall-clock ceiling of AwaitCompletion.
func (c *Client) Budget() time.Duration {
	return c.interval * time.Duration(c.maxAttempts)
}

// MaxAttempts returns the poll budget.
func (c *Client) MaxAttempts() int { return c.maxAttempts }

// Start issues the initiating POST to path and returns the new Operation.
func (c *Client) Start(ctx context.Context, path string, body any) (*Operation, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrStartFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrStartFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	status, respBody, _, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	if !success(status) {
		return nil, fmt.Errorf("%w: status %d: %s", ErrStartFailed, status, truncate(respBody))
	}

	name := gjson.GetBytes(respBody, "name").String()
	if name == "" {
		return nil, fmt.Errorf("%w: response has no operation name", ErrStartFailed)
	}

	op := &Operation{ID: name, StartedAt: c.now(), State: Pending}
	c.log.Info().Str("operation", op.ID).Msg("operation started")
	return op, nil
}

// AwaitCompletion polls op until it reports done, reports an error, or the
// attempt budget is spent, and returns the terminal response body.
func (c *Client) AwaitCompletion(ctx context.Context, op *Operation) ([]byte, error) {
	// Abandoning the caller does not stop polling; only the budget does.
	pollCtx := context.WithoutCancel(ctx)
	log := c.log.With().Str("operation", op.ID).Logger()

	for op.Attempts < c.maxAttempts {
		c.wait(c.interval)
		op.Attempts++
		op.State = Polling
		metrics.OperationPollsTotal.Inc()

		body, err := c.poll(pollCtx, op.ID)
		if err != nil {
			log.Warn().Err(err).Int("attempt", op.Attempts).Msg("poll failed")
			continue
		}

		doc := gjson.ParseBytes(body)
		if e := doc.Get("error"); e.Exists() && e.Type != gjson.Null {
			op.State = Failed
			msg := e.Get("message").String()
			if msg == "" {
				msg = e.Raw
			}
			log.Warn().Str("reason", msg).Int("attempt", op.Attempts).Msg("operation reported error")
			return nil, fmt.Errorf("%w: %s", ErrOperationFailed, msg)
		}
		if doc.Get("done").Bool() {
			op.State = Done
			log.Info().Int("attempts", op.Attempts).Dur("elapsed", c.now().Sub(op.StartedAt)).Msg("operation done")
			return body, nil
		}
		log.Debug().Int("attempt", op.Attempts).Msg("operation still running")
	}

	op.State = TimedOut
	return nil, fmt.Errorf("%w: not done after %d attempts (%s)", ErrOperationTimedOut, op.Attempts, c.Budget())
}

// Resolve extracts a fetchable locator from a terminal response.
func (c *Client) Resolve(payload []byte) (string, error) {
	loc, matcher, ok := c.resolver.Resolve(payload)
	if !ok {
		return "", fmt.Errorf("%w: no locator in response", ErrResultUnresolvable)
	}
	if !resolve.Fetchable(loc) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocatorScheme, resolve.Scheme(loc))
	}
	c.log.Debug().Str("matcher", matcher).Msg("resolved locator")
	return loc, nil
}

// FetchPayload downloads the resource at locator.
func (c *Client) FetchPayload(ctx context.Context, locator string) ([]byte, string, error) {
	if !resolve.Fetchable(locator) {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedLocatorScheme, resolve.Scheme(locator))
	}

	target, err := url.Parse(locator)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	// Files API download links need alt=media to return bytes instead of metadata.
	if strings.HasSuffix(target.Path, ":download") && target.Query().Get("alt") == "" {
		q := target.Query()
		q.Set("alt", "media")
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: create request: %w", ErrDownloadFailed, err)
	}
	if c.sameHost(target) {
		c.authorize(req)
	}

	status, body, header, err := c.do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	if !success(status) {
		return nil, "", fmt.Errorf("%w: status %d: %s", ErrDownloadFailed, status, truncate(body))
	}

	contentType := header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = DefaultContentType
	}
	return body, contentType, nil
}

func (c *Client) poll(ctx context.Context, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+name, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	status, body, _, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, fmt.Errorf("poll status %d: %s", status, truncate(body))
	}
	return body, nil
}

func (c *Client) do(req *http.Request) (int, []byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, resp.Header, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
}

// sameHost keeps the API key from leaking to third-party download hosts.
func (c *Client) sameHost(target *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Host, target.Host)
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
