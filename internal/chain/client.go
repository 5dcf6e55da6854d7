// Package chain talks to the EVM node: registry reads and writes, gas and
// balance queries, swap quotes, and transfer-log scanning. All amounts stay
// *big.Int inside the package; conversion to floats happens only at the
// boundary helpers in units.go.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/metrics"
)

const (
	fallbackGasLimit    = 500_000
	receiptPollInterval = 1 * time.Second
)

// AgentInfo is the decoded registry record for one wallet address.
type AgentInfo struct {
	Name               string
	TotalSignals       uint64
	TotalPredictions   uint64
	CorrectPredictions uint64
	LastActive         int64
	IsRegistered       bool
}

// Receipt is the subset of a transaction receipt callers act on.
type Receipt struct {
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// Client drives the registry contract and general node reads for one
// wallet. Without a wallet the client is read-only and every write returns
// ErrNoWallet.
type Client struct {
	backend        Backend
	wallet         *Wallet
	chainID        *big.Int
	registry       common.Address
	receiptTimeout time.Duration
	log            zerolog.Logger
}

// NewClient builds a Client from chain configuration. An empty private key
// yields a read-only client.
func NewClient(cfg *config.ChainConfig, backend Backend) (*Client, error) {
	c := &Client{
		backend:        backend,
		chainID:        big.NewInt(cfg.ChainID),
		registry:       common.HexToAddress(cfg.RegistryAddress),
		receiptTimeout: cfg.ReceiptTimeout(),
		log:            config.NewLogger("chain"),
	}
	if !cfg.ReadOnly() {
		wallet, err := NewWallet(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load wallet: %w", err)
		}
		c.wallet = wallet
	}
	return c, nil
}

// ReadOnly reports whether the client has no wallet.
func (c *Client) ReadOnly() bool {
	return c.wallet == nil
}

// Address returns the wallet address, or the zero address in read-only mode.
func (c *Client) Address() common.Address {
	if c.wallet == nil {
		return common.Address{}
	}
	return c.wallet.Address()
}

// BlockNumber returns the current head block.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// GasPrice returns the suggested gas price in wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// GetBalance returns the native balance of an address in wei.
func (c *Client) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

// AgentInfo reads the registry record for an address.
func (c *Client) AgentInfo(ctx context.Context, addr common.Address) (*AgentInfo, error) {
	out, err := c.callRegistry(ctx, "agents", addr)
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, fmt.Errorf("chain: agents returned %d fields, want 6", len(out))
	}
	info := &AgentInfo{
		Name:               out[0].(string),
		TotalSignals:       out[1].(*big.Int).Uint64(),
		TotalPredictions:   out[2].(*big.Int).Uint64(),
		CorrectPredictions: out[3].(*big.Int).Uint64(),
		LastActive:         out[4].(*big.Int).Int64(),
		IsRegistered:       out[5].(bool),
	}
	return info, nil
}

// PredictionCount returns how many predictions this wallet has recorded
// in the registry. The prediction list is append-only, so the count is
// also the index the next prediction will occupy.
func (c *Client) PredictionCount(ctx context.Context) (uint64, error) {
	if c.wallet == nil {
		return 0, ErrNoWallet
	}
	info, err := c.AgentInfo(ctx, c.wallet.Address())
	if err != nil {
		return 0, fmt.Errorf("failed to read prediction count: %w", err)
	}
	return info.TotalPredictions, nil
}

// AgentAccuracy reads the registry's prediction accuracy percentage for an
// address.
func (c *Client) AgentAccuracy(ctx context.Context, addr common.Address) (uint64, error) {
	out, err := c.callRegistry(ctx, "getAgentAccuracy", addr)
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// RegisterAgent registers the wallet under name unless the registry
// already knows it. Calling it twice results in exactly one write.
func (c *Client) RegisterAgent(ctx context.Context, name string) error {
	if c.wallet == nil {
		return ErrNoWallet
	}

	info, err := c.AgentInfo(ctx, c.wallet.Address())
	if err != nil {
		return &TxError{Op: "registerAgent", Err: err}
	}
	if info.IsRegistered {
		c.log.Debug().Str("name", info.Name).Msg("agent already registered")
		return nil
	}

	hash, err := c.send(ctx, "registerAgent", name)
	if err != nil {
		return err
	}
	receipt, err := c.WaitForReceipt(ctx, hash, c.receiptTimeout)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &TxError{Op: "registerAgent", Err: fmt.Errorf("tx %s reverted", hash.Hex())}
	}
	c.log.Info().Str("name", name).Str("tx", hash.Hex()).Msg("agent registered")
	return nil
}

// PostSignal submits a trading signal. Confidence outside [0,100] fails
// before anything is sent; the contract enforces the same bound.
func (c *Client) PostSignal(ctx context.Context, signalType string, confidence int, price float64, reason string) (common.Hash, error) {
	if confidence < 0 || confidence > 100 {
		return common.Hash{}, &TxError{Op: "postSignal", Err: fmt.Errorf("confidence %d out of [0,100]", confidence)}
	}
	return c.send(ctx, "postSignal", signalType, big.NewInt(int64(confidence)), ScaleToWei(price), reason)
}

// PostPrediction submits a price prediction. The contract rejects target
// times at or before the current block timestamp, so the client asserts
// the same to avoid a guaranteed revert.
func (c *Client) PostPrediction(ctx context.Context, direction string, confidence int, referencePrice float64, targetUnixSec int64) (common.Hash, error) {
	if confidence < 0 || confidence > 100 {
		return common.Hash{}, &TxError{Op: "postPrediction", Err: fmt.Errorf("confidence %d out of [0,100]", confidence)}
	}
	if targetUnixSec <= time.Now().Unix() {
		return common.Hash{}, &TxError{Op: "postPrediction", Err: fmt.Errorf("target time %d not in the future", targetUnixSec)}
	}
	return c.send(ctx, "postPrediction", direction, big.NewInt(int64(confidence)), ScaleToWei(referencePrice), big.NewInt(targetUnixSec))
}

// VerifyPrediction settles a matured prediction against the realized price.
func (c *Client) VerifyPrediction(ctx context.Context, index uint64, actualPrice float64) (common.Hash, error) {
	return c.send(ctx, "verifyPrediction", new(big.Int).SetUint64(index), ScaleToWei(actualPrice))
}

// WaitForReceipt polls until the transaction is mined or the timeout
// elapses. Timed-out writes are not retried here.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return &Receipt{
				Status:            receipt.Status,
				GasUsed:           receipt.GasUsed,
				EffectiveGasPrice: receipt.EffectiveGasPrice,
			}, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debug().Err(err).Str("tx", txHash.Hex()).Msg("receipt poll failed")
		}

		select {
		case <-ctx.Done():
			return nil, &TxError{Op: "waitForReceipt", Err: fmt.Errorf("tx %s: %w", txHash.Hex(), ctx.Err())}
		case <-ticker.C:
		}
	}
}

// QuoteAmountOut asks a quoter contract how much tokenOut one gets for
// amountIn of tokenIn. Used as the on-chain price fallback.
func (c *Client) QuoteAmountOut(ctx context.Context, quoter common.Address, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error) {
	data, err := quoterABI.Pack("getAmountOut", amountIn, tokenIn, tokenOut)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountOut: %w", err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &quoter, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAmountOut call failed: %w", err)
	}
	out, err := quoterABI.Unpack("getAmountOut", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getAmountOut: %w", err)
	}
	return out[0].(*big.Int), nil
}

// CurveProgress reads a token's bonding-curve progress as a 0..100 value.
func (c *Client) CurveProgress(ctx context.Context, curve, token common.Address) (uint64, error) {
	data, err := curveABI.Pack("getProgress", token)
	if err != nil {
		return 0, fmt.Errorf("failed to pack getProgress: %w", err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &curve, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("getProgress call failed: %w", err)
	}
	out, err := curveABI.Unpack("getProgress", raw)
	if err != nil {
		return 0, fmt.Errorf("failed to decode getProgress: %w", err)
	}
	return out[0].(*big.Int).Uint64(), nil
}

// CurveGraduated reads whether a token has graduated off its bonding curve.
func (c *Client) CurveGraduated(ctx context.Context, curve, token common.Address) (bool, error) {
	data, err := curveABI.Pack("isGraduated", token)
	if err != nil {
		return false, fmt.Errorf("failed to pack isGraduated: %w", err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &curve, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("isGraduated call failed: %w", err)
	}
	out, err := curveABI.Unpack("isGraduated", raw)
	if err != nil {
		return false, fmt.Errorf("failed to decode isGraduated: %w", err)
	}
	return out[0].(bool), nil
}

// TokenTotalSupply reads an ERC-20 total supply in wei.
func (c *Client) TokenTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("totalSupply")
	if err != nil {
		return nil, fmt.Errorf("failed to pack totalSupply: %w", err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("totalSupply call failed: %w", err)
	}
	out, err := erc20ABI.Unpack("totalSupply", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode totalSupply: %w", err)
	}
	return out[0].(*big.Int), nil
}

// TokenBalanceOf reads an ERC-20 balance in wei.
func (c *Client) TokenBalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	out, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balanceOf: %w", err)
	}
	return out[0].(*big.Int), nil
}

func (c *Client) callRegistry(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := registryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.registry, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	out, err := registryABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	return out, nil
}

// send packs, signs, and submits one registry write. No retries.
func (c *Client) send(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	if c.wallet == nil {
		return common.Hash{}, ErrNoWallet
	}

	data, err := registryABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, &TxError{Op: method, Err: fmt.Errorf("failed to pack args: %w", err)}
	}

	from := c.wallet.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, &TxError{Op: method, Err: fmt.Errorf("failed to get nonce: %w", err)}
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, &TxError{Op: method, Err: fmt.Errorf("failed to get gas price: %w", err)}
	}

	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.registry, Data: data})
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Msg("gas estimate failed, using fallback limit")
		gasLimit = fallbackGasLimit
	}

	tx := types.NewTransaction(nonce, c.registry, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := c.wallet.SignTx(tx, c.chainID)
	if err != nil {
		return common.Hash{}, &TxError{Op: method, Err: err}
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		metrics.ChainWrites.WithLabelValues(method, "error").Inc()
		return common.Hash{}, &TxError{Op: method, Err: err}
	}

	metrics.ChainWrites.WithLabelValues(method, "sent").Inc()
	c.log.Debug().Str("method", method).Str("tx", signed.Hash().Hex()).Msg("transaction sent")
	return signed.Hash(), nil
}
