// README: Typed client for the external transportation provider (quote, book, poll, cancel).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"caretransit/internal/config"
	"caretransit/internal/types"
)

// ErrUnavailable marks network failures and 5xx responses from the gateway.
var ErrUnavailable = errors.New("provider unavailable")

const (
	bookRetries     = 2
	bookBackoffBase = time.Second
)

// Client talks to the provider's REST API. Safe for concurrent use; every
// call is bounded by the configured per-call timeout.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	backoff time.Duration
	http    *http.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.CallTimeout,
		backoff: bookBackoffBase,
		http:    &http.Client{},
	}
}

// Quote returns the provider's bookable offers for a trip. Offers come back
// in provider order; ranking is the caller's concern.
func (c *Client) Quote(ctx context.Context, pickup, dropoff types.Point) ([]Offer, error) {
	q := url.Values{}
	q.Set("pickup_lat", fmt.Sprintf("%f", pickup.Lat))
	q.Set("pickup_lng", fmt.Sprintf("%f", pickup.Lng))
	q.Set("dropoff_lat", fmt.Sprintf("%f", dropoff.Lat))
	q.Set("dropoff_lng", fmt.Sprintf("%f", dropoff.Lng))

	var offers []Offer
	if err := c.do(ctx, http.MethodGet, "/v1/quotes?"+q.Encode(), nil, &offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// Book places a booking. Transient failures are retried with exponential
// backoff (base 1s, factor 2) up to bookRetries times; the last provider
// error is returned when all attempts fail.
func (c *Client) Book(ctx context.Context, req BookRequest) (BookingResult, error) {
	var res BookingResult
	var lastErr error
	for attempt := 0; attempt <= bookRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return BookingResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = c.do(ctx, http.MethodPost, "/v1/bookings", req, &res)
		if lastErr == nil {
			return res, nil
		}
		if !errors.Is(lastErr, ErrUnavailable) {
			break
		}
	}
	return BookingResult{}, lastErr
}

// PollLocation fetches the latest fix for a provider booking. Never retried;
// polling self-heals on the next tick.
func (c *Client) PollLocation(ctx context.Context, providerBookingID string) (LocationFix, error) {
	var fix LocationFix
	err := c.do(ctx, http.MethodGet, "/v1/bookings/"+url.PathEscape(providerBookingID)+"/location", nil, &fix)
	return fix, err
}

// Cancel asks the provider to cancel a booking.
func (c *Client) Cancel(ctx context.Context, providerBookingID string) error {
	return c.do(ctx, http.MethodPost, "/v1/bookings/"+url.PathEscape(providerBookingID)+"/cancel", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("provider rejected %s %s: %s", method, path, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
