package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoWallet is returned by write operations when the process runs
	// without a private key.
	ErrNoWallet = errors.New("chain: no wallet configured")

	// ErrNotRegistered is returned when a write requires prior agent
	// registration and the wallet address is not registered.
	ErrNotRegistered = errors.New("chain: agent not registered")
)

// TxError wraps a failure on the write path with the operation that
// produced it. Writes are never retried by the client; the caller decides
// whether to try again on its next cycle.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("chain: %s: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}
