// Package telemetry is the HTTP client for the agent's viewer API:
// pairing, full and incremental state fetches, price quotes, and
// disconnect. Methods are stateless; every request carries a hard client
// deadline and every failure is classified as an *APIError.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lasersell/viewer/internal/model"
)

const maxBodyBytes = 4 << 20

// Client issues requests against one telemetry API origin.
type Client struct {
	// BaseURL is the fixed API origin, e.g. "http://127.0.0.1:48713".
	BaseURL string

	// HTTPClient defaults to http.DefaultClient. Per-request deadlines come
	// from contexts, not from HTTPClient.Timeout, so the stream buffer math
	// stays in one place.
	HTTPClient *http.Client

	// RequestTimeout is the hard deadline on non-stream requests.
	// Zero means model.DefaultRequestTimeout.
	RequestTimeout time.Duration

	// StreamBuffer is added to the requested server wait to form the stream
	// deadline. Zero means model.StreamTimeoutBuffer.
	StreamBuffer time.Duration
}

// New returns a client for the given API origin.
func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/")}
}

// PairResult is a successful pairing-code exchange.
type PairResult struct {
	AgentID     string
	ViewerToken string
	ExpiresAt   time.Time // zero = no expiry
}

type pairResponse struct {
	OK          bool   `json:"ok"`
	AgentID     string `json:"agent_id"`
	ViewerToken string `json:"viewer_token"`
	ExpiresAt   string `json:"expires_at"`
	ErrorCode   string `json:"error"`
}

// Pair exchanges a pairing code for a viewer credential. Failures come
// back as *APIError values carrying the server's error code (or a
// synthetic transport code) so the caller can render inline guidance.
func (c *Client) Pair(ctx context.Context, code string) (PairResult, error) {
	body, err := json.Marshal(map[string]string{"pairing_code": strings.TrimSpace(code)})
	if err != nil {
		return PairResult{}, &APIError{Code: CodeRequestFailed, cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/viewer/pair", bytes.NewReader(body))
	if err != nil {
		return PairResult{}, &APIError{Code: CodeRequestFailed, cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return PairResult{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return PairResult{}, transportError(ctx, err)
	}

	var parsed pairResponse
	if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil || !parsed.OK {
		if apiErr := classify(resp, data, time.Now()); apiErr != nil {
			return PairResult{}, apiErr
		}
		// 2xx with ok:false or an undecodable body.
		code := parsed.ErrorCode
		if code == "" {
			code = CodeBadResponse
		}
		return PairResult{}, &APIError{Status: resp.StatusCode, Code: code}
	}

	result := PairResult{AgentID: parsed.AgentID, ViewerToken: parsed.ViewerToken}
	if parsed.ExpiresAt != "" {
		if t, perr := time.Parse(time.RFC3339, parsed.ExpiresAt); perr == nil {
			result.ExpiresAt = t
		}
	}
	if result.AgentID == "" || result.ViewerToken == "" {
		return PairResult{}, &APIError{Status: resp.StatusCode, Code: CodeBadResponse}
	}
	return result, nil
}

// FetchState fetches the full current viewer state.
func (c *Client) FetchState(ctx context.Context, agentID, token string) (*model.ViewerState, error) {
	u := fmt.Sprintf("%s/api/viewer/state?agent_id=%s", c.BaseURL, url.QueryEscape(agentID))

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	state, _, err := c.getState(ctx, u, token)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, &APIError{Status: http.StatusOK, Code: CodeBadResponse}
	}
	return state, nil
}

// FetchStateStream performs one long-poll iteration: the server holds the
// request until state newer than since exists or wait elapses. A nil
// result with a nil error is a 204 no-change, a successful no-op. The
// client deadline is wait plus a fixed buffer so an empty long-poll is
// never misread as a timeout.
func (c *Client) FetchStateStream(ctx context.Context, agentID, token string, since *time.Time, wait time.Duration) (*model.ViewerState, error) {
	if wait <= 0 {
		wait = model.DefaultWaitBudget
	}

	q := url.Values{}
	q.Set("agent_id", agentID)
	q.Set("timeout_ms", strconv.FormatInt(wait.Milliseconds(), 10))
	if since != nil && !since.IsZero() {
		// Full nanosecond precision: a truncated cursor sorts before the
		// snapshot it came from, and the server would re-deliver that
		// snapshot instead of holding.
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	u := c.BaseURL + "/api/viewer/state/stream?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, wait+c.streamBuffer())
	defer cancel()

	state, noChange, err := c.getState(ctx, u, token)
	if err != nil {
		return nil, err
	}
	if noChange {
		return nil, nil
	}
	if state == nil {
		return nil, &APIError{Status: http.StatusOK, Code: CodeBadResponse}
	}
	return state, nil
}

// FetchPrice fetches a SOL price quote in the given fiat currency.
func (c *Client) FetchPrice(ctx context.Context, currency string) (model.PriceQuote, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = model.DefaultCurrency
	}
	u := c.BaseURL + "/api/prices/sol-usd"
	if currency != "usd" {
		u = c.BaseURL + "/api/prices/sol/" + url.PathEscape(currency)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PriceQuote{}, &APIError{Code: CodeRequestFailed, cause: err}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return model.PriceQuote{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.PriceQuote{}, transportError(ctx, err)
	}
	if apiErr := classify(resp, data, time.Now()); apiErr != nil {
		return model.PriceQuote{}, apiErr
	}

	var quote model.PriceQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return model.PriceQuote{}, &APIError{Status: resp.StatusCode, Code: CodeBadResponse, cause: err}
	}
	if quote.Currency == "" {
		quote.Currency = currency
	}
	return quote, nil
}

// Disconnect revokes the viewer token, best effort. All errors are
// swallowed: the caller is abandoning the credential either way.
func (c *Client) Disconnect(ctx context.Context, token string) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/viewer/disconnect", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}

// getState runs one authorized state GET. The second return is true for a
// 204 no-change response.
func (c *Client) getState(ctx context.Context, u, token string) (*model.ViewerState, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, &APIError{Code: CodeRequestFailed, cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, false, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, true, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, false, transportError(ctx, err)
	}
	if apiErr := classify(resp, data, time.Now()); apiErr != nil {
		return nil, false, apiErr
	}

	var state model.ViewerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, &APIError{Status: resp.StatusCode, Code: CodeBadResponse, cause: err}
	}
	return &state, false, nil
}

type errorBody struct {
	OK        bool   `json:"ok"`
	ErrorCode string `json:"error"`
}

// classify turns a non-2xx response into an *APIError, preferring the
// server's error code over the raw status. Returns nil for 2xx.
func classify(resp *http.Response, body []byte, now time.Time) *APIError {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{
		Status:     resp.StatusCode,
		Code:       CodeRequestFailed,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now),
	}
	if resp.StatusCode == http.StatusUnauthorized {
		apiErr.Code = CodeUnauthorized
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.ErrorCode != "" {
		apiErr.Code = parsed.ErrorCode
	}
	return apiErr
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return model.DefaultRequestTimeout
}

func (c *Client) streamBuffer() time.Duration {
	if c.StreamBuffer > 0 {
		return c.StreamBuffer
	}
	return model.StreamTimeoutBuffer
}
