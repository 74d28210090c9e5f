package syncer

import (
	"github.com/goodnatureofminers/incomed/internal/chain"
	"github.com/goodnatureofminers/incomed/internal/matcher"
	"github.com/goodnatureofminers/incomed/internal/model"
)

func (e *Engine) match(block *chain.Block) []model.MatchedTransaction {
	matches := matcher.MatchBlock(block, e.rules)
	e.metrics.ObserveMatched(len(matches))
	return matches
}
