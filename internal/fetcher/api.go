package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// APIOptions parameterise the price feed client.
type APIOptions struct {
	Endpoint  string
	Quote     string
	Timeout   time.Duration
	UserAgent string
}

// API fetches quote prices from the upstream price feed.
type API struct {
	opts   APIOptions
	logger zerolog.Logger
	client *http.Client
}

// NewAPI constructs a price feed client.
func NewAPI(opts APIOptions, logger zerolog.Logger) *API {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Quote == "" {
		opts.Quote = "USD"
	}

	return &API{
		opts:   opts,
		logger: logger.With().Str("component", "price_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchPrice retrieves the current price of one subject in the configured
// quote currency. The raw response body is returned for provenance.
func (a *API) FetchPrice(ctx context.Context, subjectID string) (decimal.Decimal, json.RawMessage, error) {
	if a.opts.Endpoint == "" {
		return decimal.Decimal{}, nil, errors.New("feed endpoint not configured")
	}
	if subjectID == "" {
		return decimal.Decimal{}, nil, errors.New("subject id required")
	}

	reqPayload := priceRequest{}
	reqPayload.Data.Coin = subjectID
	reqPayload.Data.Quote = a.opts.Quote

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return decimal.Decimal{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "price-monitor/1.0")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, nil, parseHTTPError(resp.StatusCode, payloadBytes)
	}

	var priceRes priceResponse
	if err := json.Unmarshal(payloadBytes, &priceRes); err != nil {
		return decimal.Decimal{}, nil, err
	}

	if priceRes.Result == "" {
		return decimal.Decimal{}, nil, errors.New("feed returned empty result")
	}

	price, err := decimal.NewFromString(priceRes.Result.String())
	if err != nil {
		return decimal.Decimal{}, nil, fmt.Errorf("parse price: %w", err)
	}
	if price.Sign() <= 0 {
		return decimal.Decimal{}, nil, fmt.Errorf("feed returned non-positive price %s", price)
	}

	return price, json.RawMessage(payloadBytes), nil
}

type priceRequest struct {
	Data struct {
		Coin  string `json:"coin"`
		Quote string `json:"quote"`
	} `json:"data"`
}

type priceResponse struct {
	Result json.Number `json:"result"`
	Error  string      `json:"error"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Description != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ PriceFetcher = (*API)(nil)
