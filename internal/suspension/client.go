// Package suspension is the HTTP client of the status/suspension API. Calls
// are rate limited, retried with exponential backoff and guarded by a
// circuit breaker. When every attempt fails the caller gets a failure
// envelope rather than an error, matching what the API itself returns for
// rejected notices.
package suspension

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"recon/pkg/platform/circuit"
)

//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks Applier

const (
	// DefaultEndpoint is appended to the base URL.
	DefaultEndpoint = "/ocms/v1/suspension/apply-suspension"

	AppCodeSuccess = "OCMS-0000"
	AppCodeFailure = "OCMS-9999"
)

// Request asks for one notice to be suspended.
type Request struct {
	NoticeNo       string
	SuspensionType string
	Reason         string
	Remark         string
	ActorID        string
	SubsystemID    string
	CaseNo         *string
	RevivalDays    *int
}

// Response is the per-notice result envelope.
type Response struct {
	NoticeNo string `json:"noticeNo"`
	AppCode  string `json:"appCode,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Success reports whether the API accepted the suspension. An absent app
// code counts as success.
func (r *Response) Success() bool {
	return r != nil && (r.AppCode == "" || r.AppCode == AppCodeSuccess)
}

// ErrorMessage returns the API's message for a failed suspension.
func (r *Response) ErrorMessage() string {
	if r == nil {
		return "No response from API"
	}
	return r.Message
}

// Applier is what the side-effect applier depends on.
type Applier interface {
	Apply(ctx context.Context, req Request) (*Response, error)
}

// Client calls the suspension API over HTTP.
type Client struct {
	baseURL    string
	endpoint   string
	url        string
	httpClient *http.Client
	backoff    BackoffPolicy
	limiter    *rate.Limiter
	breaker    *circuit.Breaker
	logger     *slog.Logger
	jitter     func() float64
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(path string) Option {
	return func(c *Client) {
		c.endpoint = path
	}
}

func WithBackoff(p BackoffPolicy) Option {
	return func(c *Client) {
		c.backoff = p.normalized()
	}
}

// WithRateLimit caps calls per second. A zero rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("suspension API base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff:    DefaultBackoffPolicy(),
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		breaker:    circuit.New("suspension-api"),
		logger:     slog.Default(),
		jitter:     randomFraction,
		sleep:      sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.url = c.baseURL + "/" + strings.TrimLeft(c.endpoint, "/")
	return c, nil
}

// wireRequest is the API's JSON body. The API takes a list of notices; this
// client always sends one.
type wireRequest struct {
	NoticeNo                     []string `json:"noticeNo"`
	SuspensionType               string   `json:"suspensionType"`
	ReasonOfSuspension           string   `json:"reasonOfSuspension"`
	SuspensionRemarks            string   `json:"suspensionRemarks"`
	OfficerAuthorisingSuspension string   `json:"officerAuthorisingSuspension"`
	SuspensionSource             string   `json:"suspensionSource"`
	CaseNo                       *string  `json:"caseNo,omitempty"`
	DaysToRevive                 *int     `json:"daysToRevive,omitempty"`
}

// Apply suspends one notice. It returns an error only when ctx ends or the
// request cannot be encoded; API failures come back as a failure envelope.
func (c *Client) Apply(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(toWire(req))
	if err != nil {
		return nil, fmt.Errorf("encoding suspension request: %w", err)
	}

	if c.breaker != nil && !c.breaker.Allow() {
		c.logger.WarnContext(ctx, "suspension API circuit open",
			"notice_no", req.NoticeNo,
		)
		return failure(req.NoticeNo, "API call failed: circuit open"), nil
	}

	schedule := c.backoff.schedule()
	var lastErr error
	for retry := 1; ; retry++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.post(ctx, req.NoticeNo, body)
		if err == nil {
			c.recordSuccess()
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		next := schedule.NextBackOff()
		if next == backoff.Stop {
			break
		}
		d := c.backoff.jittered(next, c.jitter())
		c.logger.WarnContext(ctx, "suspension API call failed, retrying",
			"notice_no", req.NoticeNo,
			"retry", retry,
			"max_retries", c.backoff.MaxRetries,
			"delay", d,
			"error", lastErr,
		)
		if err := c.sleep(ctx, d); err != nil {
			return nil, err
		}
	}

	c.recordFailure(ctx)
	c.logger.ErrorContext(ctx, "suspension API call failed after retries",
		"notice_no", req.NoticeNo,
		"retries", c.backoff.MaxRetries,
		"error", lastErr,
	)
	return failure(req.NoticeNo, "API call failed: "+lastErr.Error()), nil
}

func (c *Client) post(ctx context.Context, noticeNo string, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var results []Response
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	for i := range results {
		if results[i].NoticeNo == noticeNo {
			return &results[i], nil
		}
	}
	if len(results) > 0 {
		return &results[0], nil
	}
	return failure(noticeNo, "No response from API"), nil
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}

func (c *Client) recordFailure(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.ErrorContext(ctx, "suspension API circuit opened", "breaker", c.breaker.Name())
	}
}

func toWire(r Request) wireRequest {
	w := wireRequest{
		NoticeNo:                     []string{r.NoticeNo},
		SuspensionType:               r.SuspensionType,
		ReasonOfSuspension:           r.Reason,
		SuspensionRemarks:            r.Remark,
		OfficerAuthorisingSuspension: r.ActorID,
		SuspensionSource:             r.SubsystemID,
	}
	if r.CaseNo != nil && strings.TrimSpace(*r.CaseNo) != "" {
		w.CaseNo = r.CaseNo
	}
	if r.RevivalDays != nil && *r.RevivalDays > 0 {
		w.DaysToRevive = r.RevivalDays
	}
	return w
}

func failure(noticeNo, message string) *Response {
	return &Response{NoticeNo: noticeNo, AppCode: AppCodeFailure, Message: message}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
