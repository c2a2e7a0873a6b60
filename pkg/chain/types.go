// Package chain provides the Chain Gateway: a thin, typed layer over
// go-ethereum's ethclient for reading and writing EVM contract state,
// grounded on the calling convention of a contract-client/tx-listener pair
// (ABI-driven Call/Send plus polling receipt confirmation).
package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GasMode selects how a transaction's gas price is derived.
type GasMode int

const (
	// Standard estimates gas price from the network's suggested price.
	Standard GasMode = iota
	// Fast pads the suggested gas price to prioritize inclusion.
	Fast
)

// TxReceipt is the Gateway's receipt shape: the fields callers actually need,
// decoupled from go-ethereum's wire representation.
type TxReceipt struct {
	TxHash            common.Hash
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Status            uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r TxReceipt) Succeeded() bool {
	return r.Status == 1
}

// GasCost returns GasUsed * EffectiveGasPrice in wei.
func (r TxReceipt) GasCost() *big.Int {
	if r.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
