package chain

import "context"

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Source provides blocks by height.
	Source interface {
		LatestHeight(ctx context.Context) (uint64, error)
		FetchBlock(ctx context.Context, height uint64) (*Block, error)
	}
	// Limiter admits one caller at a time.
	Limiter interface {
		Wait(ctx context.Context) error
	}
)
