// Package rest implements venue.Connector against the venue's HTTP API.
package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coinwave/tradecore/internal/domain"
	"github.com/coinwave/tradecore/internal/venue"
)

// defaultTimeout bounds each venue call when the config does not set one.
const defaultTimeout = 10 * time.Second

// Config holds venue API connection parameters.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client is the REST client for the external trading venue. It handles order
// placement, cancellation, and queries; it never touches local state.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  []byte
	httpClient *http.Client
}

// NewClient creates a venue REST client from the given config.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		apiSecret: []byte(cfg.APISecret),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateOrder submits a new order to the venue. A timed-out call is
// ambiguous (the venue may have accepted the order) and is surfaced as
// domain.ErrAmbiguousSubmission, never assumed failed.
func (c *Client) CreateOrder(ctx context.Context, req venue.CreateRequest) (venue.Order, error) {
	body := map[string]any{
		"symbol": req.Symbol,
		"type":   string(req.Type),
		"side":   string(req.Side),
		"amount": req.Amount.String(),
	}
	if req.Type == domain.OrderTypeLimit {
		body["price"] = req.Price.String()
	}

	respBody, err := c.doSignedRequest(ctx, http.MethodPost, "/api/v1/orders", nil, body)
	if err != nil {
		if isTimeout(err) {
			return venue.Order{}, fmt.Errorf("venue/rest: create order %s: %w", req.Symbol, domain.ErrAmbiguousSubmission)
		}
		return venue.Order{}, fmt.Errorf("venue/rest: create order %s: %w", req.Symbol, err)
	}

	var order apiOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return venue.Order{}, fmt.Errorf("venue/rest: decode create response: %w", err)
	}
	if order.OrderID == "" {
		return venue.Order{}, fmt.Errorf("venue/rest: create order %s: missing order id: %w", req.Symbol, domain.ErrOrderRejected)
	}

	return order.toVenueOrder(), nil
}

// FetchOrder retrieves a single order by its venue reference.
func (c *Client) FetchOrder(ctx context.Context, ref, symbol string) (venue.Order, error) {
	query := url.Values{"symbol": {symbol}}

	respBody, err := c.doSignedRequest(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(ref), query, nil)
	if err != nil {
		// Reads are idempotent: a timeout is plain unavailability, not an
		// ambiguous submission.
		if isTimeout(err) {
			err = fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
		}
		return venue.Order{}, fmt.Errorf("venue/rest: fetch order %s (%s): %w", ref, symbol, err)
	}

	var order apiOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return venue.Order{}, fmt.Errorf("venue/rest: decode order %s: %w", ref, err)
	}

	return order.toVenueOrder(), nil
}

// FetchOrders lists the venue's orders for a symbol. Used as a fallback when
// fetch-by-id is unsupported.
func (c *Client) FetchOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	query := url.Values{"symbol": {symbol}}

	respBody, err := c.doSignedRequest(ctx, http.MethodGet, "/api/v1/orders", query, nil)
	if err != nil {
		if isTimeout(err) {
			err = fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
		}
		return nil, fmt.Errorf("venue/rest: fetch orders %s: %w", symbol, err)
	}

	var apiOrders []apiOrder
	if err := json.Unmarshal(respBody, &apiOrders); err != nil {
		return nil, fmt.Errorf("venue/rest: decode orders %s: %w", symbol, err)
	}

	orders := make([]venue.Order, 0, len(apiOrders))
	for i := range apiOrders {
		orders = append(orders, apiOrders[i].toVenueOrder())
	}
	return orders, nil
}

// CancelOrder cancels a single order by its venue reference.
func (c *Client) CancelOrder(ctx context.Context, ref, symbol string) error {
	query := url.Values{"symbol": {symbol}}

	_, err := c.doSignedRequest(ctx, http.MethodDelete, "/api/v1/orders/"+url.PathEscape(ref), query, nil)
	if err != nil {
		// Cancels are safe to retry; surface timeouts as unavailability.
		if isTimeout(err) {
			err = fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
		}
		return fmt.Errorf("venue/rest: cancel order %s (%s): %w", ref, symbol, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest builds, signs (HMAC-SHA256), sends, and reads an HTTP
// request against the venue API. It returns the raw response body.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullPath := path
	if len(query) > 0 {
		fullPath += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+fullPath, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Sign: timestamp + method + path(+query) + body.
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, c.apiSecret)
	mac.Write([]byte(timestamp + method + fullPath + bodyStr))

	req.Header.Set("X-TC-APIKEY", c.apiKey)
	req.Header.Set("X-TC-TIMESTAMP", timestamp)
	req.Header.Set("X-TC-SIGNATURE", hex.EncodeToString(mac.Sum(nil)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, err
		}
		// Connectivity failures are retryable by the caller.
		return nil, fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiError
	msg := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrVenueUnavailable, statusCode, msg)
	default:
		// Remaining 4xx: the venue understood and declined the request.
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrOrderRejected, statusCode, msg)
	}
}

// isTimeout reports whether err represents a deadline or client timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Timeout()
	}
	return false
}

// Compile-time interface check.
var _ venue.Connector = (*Client)(nil)
