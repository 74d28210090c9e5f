package ledger

import "time"

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Metrics records outcomes of ledger operations.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)
