package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRequestTimeout  = 15 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 5 * time.Second
)

// ErrAuth marks a credential rejection by the terminal. Auth failures
// are never retried within a cycle; they need remediation, not retries.
var ErrAuth = errors.New("terminal rejected credentials")

// AccountSummary is one row of GET /accounts/summary.
type AccountSummary struct {
	AccountID     string          `json:"accountId"`
	Equity        decimal.Decimal `json:"equity"`
	Balance       decimal.Decimal `json:"balance"`
	OpenPositions int             `json:"openPositions"`
}

// HistoryRecord is one row of GET /accounts/{id}/history. Both
// endpoints are safe to re-call with overlapping windows; dedup is the
// ingestion layer's job, not the terminal's.
type HistoryRecord struct {
	Ticket     int64           `json:"ticket"`
	Time       time.Time       `json:"time"`
	TypeCode   string          `json:"typeCode"`
	Volume     decimal.Decimal `json:"volume"`
	Price      decimal.Decimal `json:"price"`
	Delta      decimal.Decimal `json:"delta"`
	Annotation string          `json:"annotation"`
}

// TerminalClient is the authenticated REST client for one terminal.
// One client means one session; the poller serializes use per group.
type TerminalClient struct {
	apiKey    string
	apiSecret string
	http      *resty.Client
}

// isRetryableResp retries transport errors and transient HTTP codes.
// 401/403 are excluded on purpose: a credential rejection is never
// retried within a cycle.
func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// NewTerminalClient builds a client for a terminal endpoint.
func NewTerminalClient(apiKey, apiSecret, baseURL string) *TerminalClient {
	retryCount := defaultRetryAttempts - 1

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultRequestTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &TerminalClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpClient,
	}
}

func signRequest(path, query string, expiry int64, secret string) string {
	base := path
	if query != "" {
		base += query
	}
	base += fmt.Sprintf("%d", expiry)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *TerminalClient) doGet(ctx context.Context, path, query string, out interface{}) error {
	expiry := time.Now().Add(1 * time.Minute).Unix()
	sig := signRequest(path, query, expiry, c.apiSecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("x-terminal-access-token", c.apiKey).
		SetHeader("x-terminal-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-terminal-request-signature", sig)

	if query != "" {
		req = req.SetQueryString(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("terminal request %s failed: %w", path, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("terminal request %s: %w", path, ErrAuth)
	default:
		return fmt.Errorf("terminal request %s: HTTP %d: %s", path, resp.StatusCode(), resp.String())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("terminal response %s malformed: %w", path, err)
	}
	return nil
}

// Summary fetches the current snapshot of every account on the terminal.
func (c *TerminalClient) Summary(ctx context.Context) ([]AccountSummary, error) {
	var out []AccountSummary
	if err := c.doGet(ctx, "/accounts/summary", "", &out); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component": "TerminalClient",
		"op":        "Summary",
		"accounts":  len(out),
	}).Debug("Summary fetched")

	return out, nil
}

// History fetches the incremental transaction history for one account
// since the given cursor.
func (c *TerminalClient) History(ctx context.Context, accountID string, since time.Time) ([]HistoryRecord, error) {
	var out []HistoryRecord
	query := "since=" + since.UTC().Format(time.RFC3339)
	path := fmt.Sprintf("/accounts/%s/history", accountID)

	if err := c.doGet(ctx, path, query, &out); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component": "TerminalClient",
		"op":        "History",
		"account":   accountID,
		"records":   len(out),
	}).Debug("History fetched")

	return out, nil
}
