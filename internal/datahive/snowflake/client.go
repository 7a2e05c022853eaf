// Package snowflake implements query.Client over the Snowflake SQL REST API.
package snowflake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"recon/internal/datahive/query"
)

const (
	statementsPath = "/api/v2/statements"

	tokenTypeHeader = "X-Snowflake-Authorization-Token-Type"
	tokenTypeValue  = "KEYPAIR_JWT"

	statusRunning = "running"
)

// TokenSource issues bearer tokens.
type TokenSource interface {
	Token() (string, error)
}

// Config locates the warehouse the statements run in.
type Config struct {
	BaseURL   string
	Database  string
	Schema    string
	Warehouse string
	Role      string

	// APIMHeader and APIMKey add a gateway subscription header when both
	// are set.
	APIMHeader string
	APIMKey    string

	PollInterval time.Duration
	MaxPolls     int
}

// Client submits statements and polls until their results are ready.
type Client struct {
	cfg        Config
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client. PollInterval defaults to 1s and MaxPolls to 60.
func New(cfg Config, tokens TokenSource, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("snowflake: base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("snowflake: token source is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type submitRequest struct {
	Statement string `json:"statement"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`
	Role      string `json:"role,omitempty"`
}

type resultResponse struct {
	Code              string      `json:"code"`
	Message           string      `json:"message"`
	SQLState          string      `json:"sqlState"`
	Status            string      `json:"status"`
	StatementHandle   string      `json:"statementHandle"`
	Data              [][]*string `json:"data"`
	ResultSetMetaData *resultMeta `json:"resultSetMetaData"`
}

type resultMeta struct {
	NumRows       int64           `json:"numRows"`
	PartitionInfo []partitionInfo `json:"partitionInfo"`
}

type partitionInfo struct {
	RowCount int64 `json:"rowCount"`
}

// objectMissingCode is returned when the queried view does not exist or is
// not authorized.
const objectMissingCode = "002003"

// Query submits statement, waits for it to finish and returns every row of
// every result partition.
func (c *Client) Query(ctx context.Context, statement string) ([]query.RawRow, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, query.NewError(query.ErrorAuthentication, "snowflake", "issue token", err)
	}

	body, err := json.Marshal(submitRequest{
		Statement: statement,
		Database:  c.cfg.Database,
		Schema:    c.cfg.Schema,
		Warehouse: c.cfg.Warehouse,
		Role:      c.cfg.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}

	submitURL := c.cfg.BaseURL + statementsPath + "?requestId=" + uuid.NewString()
	status, res, err := c.do(ctx, http.MethodPost, submitURL, token, body)
	if err != nil {
		return nil, err
	}

	for polls := 0; isRunning(status, res); polls++ {
		if polls >= c.cfg.MaxPolls {
			return nil, query.NewError(query.ErrorTimeout, "snowflake",
				fmt.Sprintf("statement %s still running after %d polls", res.StatementHandle, polls), nil)
		}
		if err := wait(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
		c.logger.DebugContext(ctx, "polling statement", "handle", res.StatementHandle, "poll", polls+1)
		status, res, err = c.do(ctx, http.MethodGet, c.statementURL(res.StatementHandle, 0), token, nil)
		if err != nil {
			return nil, err
		}
	}

	rows := toRows(res.Data)
	if res.ResultSetMetaData != nil {
		for p := 1; p < len(res.ResultSetMetaData.PartitionInfo); p++ {
			_, part, err := c.do(ctx, http.MethodGet, c.statementURL(res.StatementHandle, p), token, nil)
			if err != nil {
				return nil, fmt.Errorf("fetch partition %d: %w", p, err)
			}
			rows = append(rows, toRows(part.Data)...)
		}
	}
	return rows, nil
}

func (c *Client) statementURL(handle string, partition int) string {
	u := c.cfg.BaseURL + statementsPath + "/" + url.PathEscape(handle)
	if partition > 0 {
		u += "?partition=" + strconv.Itoa(partition)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u, token string, body []byte) (int, *resultResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(tokenTypeHeader, tokenTypeValue)
	if c.cfg.APIMHeader != "" && c.cfg.APIMKey != "" {
		req.Header.Set(c.cfg.APIMHeader, c.cfg.APIMKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, query.NewError(query.ErrorTimeout, "snowflake", "request cancelled", err)
		}
		return 0, nil, query.NewError(query.ErrorProviderOutage, "snowflake", "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, query.NewError(query.ErrorProviderOutage, "snowflake", "read response", err)
	}

	res := &resultResponse{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, res); err != nil && resp.StatusCode < 300 {
			return 0, nil, query.NewError(query.ErrorBadData, "snowflake", "decode response", err)
		}
	}

	if resp.StatusCode >= 300 {
		return resp.StatusCode, nil, classify(resp.StatusCode, res)
	}
	return resp.StatusCode, res, nil
}

func classify(status int, res *resultResponse) error {
	msg := fmt.Sprintf("status %d", status)
	if res.Message != "" {
		msg += ": " + res.Message
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return query.NewError(query.ErrorAuthentication, "snowflake", msg, nil)
	case status == http.StatusNotFound || res.Code == objectMissingCode:
		return query.NewError(query.ErrorNotFound, "snowflake", msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return query.NewError(query.ErrorTimeout, "snowflake", msg, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return query.NewError(query.ErrorProviderOutage, "snowflake", msg, nil)
	default:
		return query.NewError(query.ErrorBadData, "snowflake", msg, nil)
	}
}

func isRunning(status int, res *resultResponse) bool {
	return status == http.StatusAccepted || strings.EqualFold(res.Status, statusRunning)
}

func toRows(data [][]*string) []query.RawRow {
	rows := make([]query.RawRow, len(data))
	for i, d := range data {
		rows[i] = d
	}
	return rows
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return query.NewError(query.ErrorTimeout, "snowflake", "cancelled while polling", ctx.Err())
	}
}
