package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Backend is the subset of the ethclient surface the client depends on.
// *ethclient.Client satisfies it; tests plug in a mock.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Dial connects to the RPC node.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	return client, nil
}

// Throttle wraps a backend with a shared rate limiter so a fleet of agents
// on one node stays under the provider's request budget.
func Throttle(b Backend, requestsPerSec float64) Backend {
	return &throttledBackend{
		inner:   b,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), int(requestsPerSec)+1),
	}
}

type throttledBackend struct {
	inner   Backend
	limiter *rate.Limiter
}

func (t *throttledBackend) wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

func (t *throttledBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	return t.inner.BlockNumber(ctx)
}

func (t *throttledBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.HeaderByNumber(ctx, number)
}

func (t *throttledBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.SuggestGasPrice(ctx)
}

func (t *throttledBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	return t.inner.PendingNonceAt(ctx, account)
}

func (t *throttledBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	return t.inner.EstimateGas(ctx, msg)
}

func (t *throttledBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.CallContract(ctx, msg, blockNumber)
}

func (t *throttledBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.inner.SendTransaction(ctx, tx)
}

func (t *throttledBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.TransactionReceipt(ctx, txHash)
}

func (t *throttledBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.FilterLogs(ctx, q)
}

func (t *throttledBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.BalanceAt(ctx, account, blockNumber)
}
