package chain

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/incomed/internal/retry"
	"go.uber.org/zap"
)

// LimitedSource spaces out node calls and retries transient failures.
type LimitedSource struct {
	source  Source
	limiter Limiter
	policy  retry.Policy
	logger  *zap.Logger
}

// NewLimitedSource wraps source with the block limiter and retry policy.
func NewLimitedSource(source Source, limiter Limiter, policy retry.Policy, logger *zap.Logger) *LimitedSource {
	return &LimitedSource{
		source:  source,
		limiter: limiter,
		policy:  policy,
		logger:  logger,
	}
}

// LatestHeight returns the chain tip.
func (s *LimitedSource) LatestHeight(ctx context.Context) (uint64, error) {
	height, err := retry.Do(ctx, s.policy, s.logger, "latest_height", func(ctx context.Context) (uint64, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, retry.Permanent(err)
		}
		return s.source.LatestHeight(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("latest height: %w", err)
	}
	return height, nil
}

// FetchBlock returns the block at height.
func (s *LimitedSource) FetchBlock(ctx context.Context, height uint64) (*Block, error) {
	block, err := retry.Do(ctx, s.policy, s.logger, "fetch_block", func(ctx context.Context) (*Block, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(err)
		}
		return s.source.FetchBlock(ctx, height)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch block %d: %w", height, err)
	}
	return block, nil
}
