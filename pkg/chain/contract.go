package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractBackend is the subset of ethclient.Client a Contract and Gateway
// need, so tests can supply a fake in place of a live node.
type ContractBackend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Contract binds one deployed contract's ABI to an address, and exposes
// read (Call) and write (Send) access without requiring generated bindings.
type Contract struct {
	client  ContractBackend
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
}

// NewContract wraps client for calls against address using abi.
func NewContract(client ContractBackend, address common.Address, contractABI abi.ABI) *Contract {
	return &Contract{
		client:  client,
		address: address,
		abi:     contractABI,
		bound:   bind.NewBoundContract(address, contractABI, client, client, client),
	}
}

// Address returns the contract's on-chain address.
func (c *Contract) Address() common.Address {
	return c.address
}

// ABI returns the contract's parsed ABI.
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// Call invokes a read-only method and returns its unpacked outputs.
func (c *Contract) Call(ctx context.Context, from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	var raw []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if from != nil {
		opts.From = *from
	}
	if err := c.bound.Call(opts, &raw, method, args...); err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	return raw, nil
}

// Send signs and broadcasts a state-mutating method call, returning the
// resulting transaction hash.
func (c *Contract) Send(
	ctx context.Context,
	gasMode GasMode,
	gasLimit *uint64,
	from *common.Address,
	key *ecdsa.PrivateKey,
	value *big.Int,
	method string,
	args ...interface{},
) (common.Hash, error) {
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: fetching chain id: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: building transactor: %w", err)
	}
	auth.Context = ctx
	if from != nil {
		auth.From = *from
	}
	if value != nil {
		auth.Value = value
	}
	if gasLimit != nil {
		auth.GasLimit = *gasLimit
	}
	if gasMode == Fast {
		suggested, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("chain: suggesting gas price: %w", err)
		}
		auth.GasPrice = new(big.Int).Div(new(big.Int).Mul(suggested, big.NewInt(12)), big.NewInt(10))
	}

	tx, err := c.bound.Transact(auth, method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: %w", method, err)
	}

	return tx.Hash(), nil
}
