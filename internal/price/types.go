package price

import (
	"context"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Limiter admits one price request at a time.
	Limiter interface {
		Wait(ctx context.Context) error
	}
	// Metrics records outcomes of price API calls.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)
