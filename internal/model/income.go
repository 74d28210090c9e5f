// Package model holds the domain types shared across the income pipeline.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places of a received amount.
const AmountPlaces = 8

// AddressRule selects which transactions paying an address are recorded.
type AddressRule struct {
	Address           string `yaml:"address"`
	Name              string `yaml:"name"`
	RecordCoinbase    bool   `yaml:"coinbase"`
	RecordNonCoinbase bool   `yaml:"nonCoinbase"`
	Currency          string `yaml:"currency"`
}

// RecordKey identifies a commit record.
type RecordKey struct {
	TxID     string
	Address  string
	Currency string
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TxID, k.Address, k.Currency)
}

// MatchedTransaction is a chain transaction that paid a tracked address.
type MatchedTransaction struct {
	TxID      string
	Height    uint64
	Timestamp time.Time
	Address   string
	Name      string
	Currency  string
	Received  decimal.Decimal
	Price     decimal.NullDecimal
}

// Key returns the primary key of the matched transaction.
func (m MatchedTransaction) Key() RecordKey {
	return RecordKey{TxID: m.TxID, Address: m.Address, Currency: m.Currency}
}

// Sink names an external destination a record is committed to.
type Sink string

const (
	SinkTax Sink = "tax"
	SinkCSV Sink = "csv"
)

// CommitRecord is the durable form of a MatchedTransaction with its completion flags.
type CommitRecord struct {
	MatchedTransaction
	Priced       bool
	TaxCommitted bool
	CSVWritten   bool
}

// Complete reports whether every enabled sink has accepted the record.
func (r CommitRecord) Complete(requireTax bool) bool {
	if !r.Priced || !r.CSVWritten {
		return false
	}
	return r.TaxCommitted || !requireTax
}

// Total is price times received, rounded to cents.
func (r CommitRecord) Total() decimal.Decimal {
	if !r.Price.Valid {
		return decimal.Zero
	}
	return r.Price.Decimal.Mul(r.Received).Round(2)
}
