// Package matcher decides which chain transactions pay a tracked address.
package matcher

import (
	"math/big"

	"github.com/goodnatureofminers/incomed/internal/chain"
	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
)

// Match returns the transaction as seen by rule, or None when the rule does
// not record this kind of transaction or nothing was paid to its address.
func Match(tx chain.Transaction, rule model.AddressRule) fn.Option[model.MatchedTransaction] {
	coinbase := tx.IsCoinbase()
	if coinbase && !rule.RecordCoinbase || !coinbase && !rule.RecordNonCoinbase {
		return fn.None[model.MatchedTransaction]()
	}

	var received uint64
	for _, out := range tx.Outputs {
		if out.Address == rule.Address {
			received += out.Amount
		}
	}
	if received == 0 {
		return fn.None[model.MatchedTransaction]()
	}

	return fn.Some(model.MatchedTransaction{
		TxID:      tx.ID,
		Height:    tx.Height,
		Timestamp: tx.Timestamp,
		Address:   rule.Address,
		Name:      rule.Name,
		Currency:  rule.Currency,
		Received:  decimal.NewFromBigInt(new(big.Int).SetUint64(received), -model.AmountPlaces),
	})
}

// MatchBlock applies every rule to every transaction of block, in block order.
func MatchBlock(block *chain.Block, rules []model.AddressRule) []model.MatchedTransaction {
	var matched []model.MatchedTransaction
	for _, tx := range block.Transactions {
		for _, rule := range rules {
			Match(tx, rule).WhenSome(func(m model.MatchedTransaction) {
				matched = append(matched, m)
			})
		}
	}
	return matched
}
