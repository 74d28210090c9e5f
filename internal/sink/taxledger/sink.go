// Package taxledger submits income records to a bitcoin.tax compatible service.
package taxledger

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
	"time"

	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/goodnatureofminers/incomed/internal/retry"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public bitcoin.tax API.
	DefaultBaseURL = "https://api.bitcoin.tax"

	actionIncome  = "INCOME"
	statusSuccess = "success"
	dateLayout    = "2006-01-02T15:04:05.000Z"
	maxBodySize   = 1 << 20
)

// ErrUnauthorized is returned when the service rejects the API credentials.
var ErrUnauthorized = errors.New("invalid bitcoin.tax credentials")

// Config configures a Sink.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Symbol    string
	Retry     retry.Policy
}

// Sink posts one INCOME transaction per commit record.
type Sink struct {
	cfg      Config
	endpoint string
	client   *http.Client
	limiter  Limiter
	metrics  Metrics
	logger   *zap.Logger
}

type transaction struct {
	Date      string      `json:"date"`
	Action    string      `json:"action"`
	Symbol    string      `json:"symbol"`
	Currency  string      `json:"currency"`
	Volume    json.Number `json:"volume"`
	Price     json.Number `json:"price"`
	Memo      string      `json:"memo"`
	TxHash    string      `json:"txhash"`
	Recipient string      `json:"recipient"`
}

type response struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// NewSink builds a Sink.
func NewSink(cfg Config, client *http.Client, limiter Limiter, metrics Metrics, logger *zap.Logger) (*Sink, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("tax ledger credentials are required")
	}
	if cfg.Symbol == "" {
		return nil, errors.New("tax ledger symbol is required")
	}
	if limiter == nil {
		return nil, errors.New("tax ledger limiter is required")
	}
	endpoint, err := url.JoinPath(cfg.BaseURL, "v1", "transactions")
	if err != nil {
		return nil, fmt.Errorf("build tax ledger url: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Sink{
		cfg:      cfg,
		endpoint: endpoint,
		client:   client,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Commit submits record. A priced record is required.
func (s *Sink) Commit(ctx context.Context, record model.CommitRecord) error {
	if !record.Price.Valid {
		return fmt.Errorf("commit %s: record has no price", record.Key())
	}
	body, err := json.Marshal(transaction{
		Date:      record.Timestamp.UTC().Format(dateLayout),
		Action:    actionIncome,
		Symbol:    s.cfg.Symbol,
		Currency:  record.Currency,
		Volume:    json.Number(record.Received.StringFixed(model.AmountPlaces)),
		Price:     json.Number(record.Price.Decimal.String()),
		Memo:      record.TxID,
		TxHash:    record.TxID,
		Recipient: record.Address,
	})
	if err != nil {
		return fmt.Errorf("encode tax ledger transaction: %w", err)
	}

	_, err = retry.Do(ctx, s.cfg.Retry, s.logger, "tax_commit", func(ctx context.Context) (struct{}, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return struct{}{}, retry.Permanent(err)
		}
		return struct{}{}, s.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("commit %s to tax ledger: %w", record.Key(), err)
	}

	s.logger.Info("committed to tax ledger",
		zap.String("txid", record.TxID),
		zap.String("address", record.Address),
		zap.String("currency", record.Currency),
	)
	return nil
}

func (s *Sink) post(ctx context.Context, body []byte) (err error) {
	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.Observe("add_transaction", err, started)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build tax ledger request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-APIKEY", s.cfg.APIKey)
	req.Header.Set("X-APISECRET", s.cfg.APISecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("tax ledger request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read tax ledger response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return retry.Permanent(ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("tax ledger status %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return retry.Permanent(fmt.Errorf("tax ledger status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var payload response
	if err := json.Unmarshal(raw, &payload); err != nil {
		return retry.Permanent(fmt.Errorf("decode tax ledger response: %w", err))
	}
	if payload.Status != statusSuccess {
		return retry.Permanent(fmt.Errorf("tax ledger rejected transaction: status %q: %s", payload.Status, payload.Error))
	}
	return nil
}
