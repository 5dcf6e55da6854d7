package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
)

// initialLookback is how far behind head the first scan starts.
const initialLookback = 500

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Transfer is one decoded ERC-20 transfer event.
type Transfer struct {
	From   common.Address
	To     common.Address
	Value  *big.Int
	Block  uint64
	TxHash common.Hash
}

// LogScanner walks a token's Transfer logs with a monotone block cursor.
// No block is scanned twice by the same instance; the cursor only moves
// forward.
type LogScanner struct {
	backend Backend
	token   common.Address
	cursor  uint64
	started bool
	log     zerolog.Logger
}

// NewTokenScanner builds a scanner for one token contract over the
// client's backend.
func (c *Client) NewTokenScanner(token common.Address) *LogScanner {
	return NewLogScanner(c.backend, token)
}

// NewLogScanner builds a scanner for one token contract.
func NewLogScanner(backend Backend, token common.Address) *LogScanner {
	return &LogScanner{
		backend: backend,
		token:   token,
		log:     config.NewLogger("scanner"),
	}
}

// Cursor returns the last scanned block, or 0 before the first scan.
func (s *LogScanner) Cursor() uint64 {
	return s.cursor
}

// Scan fetches Transfer logs from the block after the cursor up to head
// and advances the cursor to head. The first scan starts at head minus
// the initial lookback.
func (s *LogScanner) Scan(ctx context.Context) ([]Transfer, error) {
	head, err := s.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get head block: %w", err)
	}

	var from uint64
	if !s.started {
		if head > initialLookback {
			from = head - initialLookback
		}
	} else {
		if head <= s.cursor {
			return nil, nil
		}
		from = s.cursor + 1
	}

	logs, err := s.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{s.token},
		Topics:    [][]common.Hash{{transferTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs [%d,%d]: %w", from, head, err)
	}

	transfers := make([]Transfer, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			continue
		}
		transfers = append(transfers, Transfer{
			From:   common.BytesToAddress(lg.Topics[1].Bytes()),
			To:     common.BytesToAddress(lg.Topics[2].Bytes()),
			Value:  new(big.Int).SetBytes(lg.Data),
			Block:  lg.BlockNumber,
			TxHash: lg.TxHash,
		})
	}

	s.cursor = head
	s.started = true
	s.log.Debug().
		Uint64("from", from).
		Uint64("to", head).
		Int("transfers", len(transfers)).
		Msg("scanned transfer logs")
	return transfers, nil
}
