package syncer

import (
	"context"
	"time"

	"github.com/goodnatureofminers/incomed/internal/chain"
	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	BlockSource interface {
		LatestHeight(ctx context.Context) (uint64, error)
		FetchBlock(ctx context.Context, height uint64) (*chain.Block, error)
	}
	PriceResolver interface {
		Resolve(ctx context.Context, ts time.Time, currency string) (decimal.Decimal, error)
	}
	Sink interface {
		Commit(ctx context.Context, record model.CommitRecord) error
	}
	Ledger interface {
		Insert(ctx context.Context, tx model.MatchedTransaction) (model.CommitRecord, error)
		SetPrice(ctx context.Context, key model.RecordKey, price decimal.Decimal) error
		MarkCommitted(ctx context.Context, key model.RecordKey, sink model.Sink) error
		MaxCommittedHeight(ctx context.Context, requireTax bool) (uint64, bool, error)
		Pending(ctx context.Context, requireTax bool) ([]model.CommitRecord, error)
	}
	ProgressStore interface {
		Load() (uint64, bool, error)
		Save(height uint64) error
	}
	Coordinator interface {
		Acquire() error
		Release()
		Quitting() <-chan struct{}
	}
	Metrics interface {
		ObserveBlock(state string, err error, started time.Time)
		ObserveMatched(n int)
		ObserveCommit(sink string, err error)
		SetProgress(height uint64)
		SetChainTip(height uint64)
		SetState(state string, all []string)
	}
)
