// Package price resolves historical fiat prices from a CryptoCompare-compatible API.
package price

import (
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

	"github.com/goodnatureofminers/incomed/internal/retry"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public CryptoCompare endpoint.
	DefaultBaseURL = "https://min-api.cryptocompare.com"
	// DefaultMinuteWindow is how far back minute buckets are requested.
	DefaultMinuteWindow = 600_000 * time.Second

	responseSuccess = "Success"
	maxBodySize     = 1 << 20
)

// Granularity selects the bucket size of a historical query.
type Granularity string

const (
	Minute Granularity = "histominute"
	Hour   Granularity = "histohour"
)

// Config configures a Resolver.
type Config struct {
	BaseURL      string
	APIKey       string
	Symbol       string
	MinuteWindow time.Duration
	Retry        retry.Policy
}

// Resolver looks up the close price of Symbol in a fiat currency at a point in time.
type Resolver struct {
	cfg     Config
	client  *http.Client
	limiter Limiter
	clock   clock.Clock
	metrics Metrics
	logger  *zap.Logger
}

type histoBucket struct {
	Time  int64           `json:"time"`
	Close decimal.Decimal `json:"close"`
}

type histoResponse struct {
	Response   string          `json:"Response"`
	Message    string          `json:"Message"`
	HasWarning bool            `json:"HasWarning"`
	RateLimit  json.RawMessage `json:"RateLimit"`
	Data       json.RawMessage `json:"Data"`
}

// NewResolver builds a Resolver.
func NewResolver(cfg Config, client *http.Client, limiter Limiter, clk clock.Clock, metrics Metrics, logger *zap.Logger) (*Resolver, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse price api url: %w", err)
	}
	if cfg.Symbol == "" {
		return nil, errors.New("price symbol is required")
	}
	if cfg.MinuteWindow <= 0 {
		cfg.MinuteWindow = DefaultMinuteWindow
	}
	if limiter == nil {
		return nil, errors.New("price limiter is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		clock:   clk,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Granularity returns the bucket size used for a price at ts.
func (r *Resolver) Granularity(ts time.Time) Granularity {
	if r.clock.Now().Sub(ts) < r.cfg.MinuteWindow {
		return Minute
	}
	return Hour
}

// Resolve returns the close price of the bucket ending at ts.
func (r *Resolver) Resolve(ctx context.Context, ts time.Time, currency string) (decimal.Decimal, error) {
	if ts.Unix() <= 0 {
		return decimal.Zero, &LookupError{Currency: currency, Timestamp: ts, Message: "timestamp before epoch", InvalidInput: true}
	}

	granularity := r.Granularity(ts)
	price, err := retry.Do(ctx, r.cfg.Retry, r.logger, "price_lookup", func(ctx context.Context) (decimal.Decimal, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return decimal.Zero, retry.Permanent(err)
		}
		return r.fetch(ctx, granularity, ts, currency)
	})
	if err != nil {
		return decimal.Zero, err
	}

	r.logger.Debug("resolved price",
		zap.String("currency", currency),
		zap.Time("timestamp", ts),
		zap.String("granularity", string(granularity)),
		zap.Stringer("price", price),
	)
	return price, nil
}

func (r *Resolver) fetch(ctx context.Context, granularity Granularity, ts time.Time, currency string) (price decimal.Decimal, err error) {
	started := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.Observe(string(granularity), err, started)
		}
	}()

	req, err := r.newRequest(ctx, granularity, ts, currency)
	if err != nil {
		return decimal.Zero, retry.Permanent(err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price api request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read price api response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return decimal.Zero, fmt.Errorf("price api status %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return decimal.Zero, retry.Permanent(&LookupError{
			Currency:     currency,
			Timestamp:    ts,
			Message:      fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			InvalidInput: true,
			Unauthorized: resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden,
		})
	}

	var payload histoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode price api response: %w", err)
	}
	if payload.Response != responseSuccess {
		lookupErr := &LookupError{Currency: currency, Timestamp: ts, Message: payload.Message}
		if isRateLimited(payload.Message) {
			return decimal.Zero, lookupErr
		}
		lookupErr.InvalidInput = true
		lookupErr.Unauthorized = isAuthFailure(payload.Message)
		return decimal.Zero, retry.Permanent(lookupErr)
	}
	if payload.HasWarning {
		r.logger.Warn("price api rate limit warning, increase the price limiter min time",
			zap.ByteString("rate_limit", payload.RateLimit),
		)
	}

	var buckets []histoBucket
	if err := json.Unmarshal(payload.Data, &buckets); err != nil {
		return decimal.Zero, fmt.Errorf("decode price buckets: %w", err)
	}
	if len(buckets) == 0 {
		return decimal.Zero, retry.Permanent(&LookupError{Currency: currency, Timestamp: ts, Message: "no price buckets returned", InvalidInput: true})
	}
	closePrice := buckets[len(buckets)-1].Close
	if !closePrice.IsPositive() {
		return decimal.Zero, retry.Permanent(&LookupError{
			Currency:     currency,
			Timestamp:    ts,
			Message:      fmt.Sprintf("non-positive close price %s", closePrice),
			InvalidInput: true,
		})
	}
	return closePrice, nil
}

func (r *Resolver) newRequest(ctx context.Context, granularity Granularity, ts time.Time, currency string) (*http.Request, error) {
	endpoint, err := url.JoinPath(r.cfg.BaseURL, "data", string(granularity))
	if err != nil {
		return nil, fmt.Errorf("build price api url: %w", err)
	}
	query := url.Values{}
	query.Set("fsym", r.cfg.Symbol)
	query.Set("tsym", currency)
	query.Set("limit", "1")
	query.Set("toTs", strconv.FormatInt(ts.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build price api request: %w", err)
	}
	req.Header.Set("Authorization", "Apikey "+r.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func isRateLimited(message string) bool {
	return strings.Contains(strings.ToLower(message), "rate limit")
}

func isAuthFailure(message string) bool {
	message = strings.ToLower(message)
	return strings.Contains(message, "api key") || strings.Contains(message, "api_key")
}
