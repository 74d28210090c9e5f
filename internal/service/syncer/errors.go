package syncer

import (
	"fmt"

	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/goodnatureofminers/incomed/internal/price"
)

// Stage names the step of the commit sequence that failed.
type Stage string

const (
	// StagePrice is a price lookup that cannot succeed for this record.
	StagePrice Stage = "price"
	// StageSink is a sink that did not confirm the record.
	StageSink Stage = "sink"
	// StageRecord is a ledger flag that could not be stored after a sink accepted the record.
	StageRecord Stage = "record"
	// StageProgress is a progress file that could not be read or written.
	StageProgress Stage = "progress"
)

// FatalError stops the daemon. Restarting without the remediation may duplicate or lose records.
type FatalError struct {
	Stage   Stage
	TxID    string
	Address string
	Sink    model.Sink
	Err     error
}

func (e *FatalError) Error() string {
	switch e.Stage {
	case StagePrice:
		return fmt.Sprintf("price of transaction %s to %s: %v", e.TxID, e.Address, e.Err)
	case StageSink, StageRecord:
		return fmt.Sprintf("%s of transaction %s to %s in %s sink: %v", e.Stage, e.TxID, e.Address, e.Sink, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Remediation tells the operator what to fix before restarting.
func (e *FatalError) Remediation() string {
	switch e.Stage {
	case StagePrice:
		if price.IsUnauthorized(e.Err) {
			return "The price API rejected the configured key. Check --price-api-key before restarting."
		}
		return fmt.Sprintf("No price exists for transaction %s. Check the currency configured for %s before restarting.", e.TxID, e.Address)
	case StageSink:
		return fmt.Sprintf("IMPORTANT! Check whether transaction %s reached the %s sink and remove it before restarting.", e.TxID, e.Sink)
	case StageRecord:
		return fmt.Sprintf("IMPORTANT! Remove transaction %s from the %s sink before restarting.", e.TxID, e.Sink)
	default:
		return "Check the data directory before restarting. Records already committed are skipped."
	}
}
