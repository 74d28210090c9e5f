package taxledger

import (
	"context"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Limiter admits one tax ledger request at a time.
	Limiter interface {
		Wait(ctx context.Context) error
	}
	// Metrics records outcomes of tax ledger API calls.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)
