package bitcoin

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/goodnatureofminers/incomed/internal/chain"
	"github.com/goodnatureofminers/incomed/pkg/safe"
	"go.uber.org/zap"
)

// BlockSource implements chain.Source for Bitcoin.
type BlockSource struct {
	rpc     NodeClient
	decoder ScriptDecoder
	logger  *zap.Logger
}

// NewBlockSource creates a BlockSource for Bitcoin.
func NewBlockSource(rpc NodeClient, decoder ScriptDecoder, logger *zap.Logger) *BlockSource {
	return &BlockSource{
		rpc:     rpc,
		decoder: decoder,
		logger:  logger,
	}
}

// LatestHeight returns the latest block height from the node.
func (s *BlockSource) LatestHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := s.rpc.GetBlockCount()
	if err != nil {
		return 0, err
	}
	height, err := safe.Uint64(count)
	if err != nil {
		return 0, fmt.Errorf("block count overflow: %w", err)
	}
	return height, nil
}

// FetchBlock retrieves the block at height with every transaction's outputs.
func (s *BlockSource) FetchBlock(ctx context.Context, height uint64) (*chain.Block, error) {
	rpcHeight, err := safe.Int64(height)
	if err != nil {
		return nil, fmt.Errorf("block height %d exceeds rpc limit: %w", height, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := s.rpc.GetBlockHash(rpcHeight)
	if err != nil {
		return nil, fmt.Errorf("get block hash at height %d: %w", height, err)
	}
	src, err := s.rpc.GetBlockVerboseTx(hash)
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", hash, err)
	}
	if src.Height != rpcHeight {
		return nil, fmt.Errorf("node returned block %d for height %d", src.Height, height)
	}

	timestamp := time.Unix(src.Time, 0).UTC()
	txs := make([]chain.Transaction, 0, len(src.Tx))
	for _, tx := range src.Tx {
		converted, err := s.convertTransaction(tx, height, timestamp)
		if err != nil {
			return nil, err
		}
		txs = append(txs, converted)
	}

	return &chain.Block{
		Height:       height,
		Hash:         src.Hash,
		Timestamp:    timestamp,
		Transactions: txs,
	}, nil
}

func (s *BlockSource) convertTransaction(tx btcjson.TxRawResult, height uint64, timestamp time.Time) (chain.Transaction, error) {
	inputs := 0
	for _, vin := range tx.Vin {
		if vin.IsCoinBase() {
			continue
		}
		inputs++
	}

	outputs := make([]chain.Output, 0, len(tx.Vout))
	for idx, vout := range tx.Vout {
		value, err := BtcToSatoshis(vout.Value)
		if err != nil {
			return chain.Transaction{}, fmt.Errorf("tx %s output %d value: %w", tx.Txid, idx, err)
		}
		address, ok, err := s.decoder.payee(vout)
		if err != nil {
			return chain.Transaction{}, fmt.Errorf("decode payee for tx %s output %d: %w", tx.Txid, idx, err)
		}
		if !ok {
			s.logger.Debug("skip output without a single payee",
				zap.String("txid", tx.Txid),
				zap.Int("index", idx),
				zap.String("type", vout.ScriptPubKey.Type),
			)
			continue
		}
		outputs = append(outputs, chain.Output{Address: address, Amount: value})
	}

	return chain.Transaction{
		ID:         tx.Txid,
		Timestamp:  timestamp,
		Height:     height,
		InputCount: inputs,
		Outputs:    outputs,
	}, nil
}
