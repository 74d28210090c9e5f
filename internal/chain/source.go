// Package chain defines the block data the income pipeline reads from a node.
package chain

import "time"

// Output pays Amount base units to a single address.
type Output struct {
	Address string
	Amount  uint64
}

// Transaction is a read-only view of a chain transaction.
type Transaction struct {
	ID         string
	Timestamp  time.Time
	Height     uint64
	InputCount int
	Outputs    []Output
}

// IsCoinbase reports whether the transaction spends no inputs.
func (t Transaction) IsCoinbase() bool {
	return t.InputCount == 0
}

// Block wraps the transactions mined at one height.
type Block struct {
	Height       uint64
	Hash         string
	Timestamp    time.Time
	Transactions []Transaction
}
