package chain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// GasEstimationError means the node simulation of the transaction failed,
// which almost always means the route itself would revert.
type GasEstimationError struct {
	Err error
}

func (e *GasEstimationError) Error() string {
	return "gas estimation failed: " + revertReason(e.Err)
}

func (e *GasEstimationError) Unwrap() error { return e.Err }

// UnderpricedFeeError is a broadcast rejected because maxFeePerGas was too low.
type UnderpricedFeeError struct {
	MaxFeePerGas *big.Int
	Err          error
}

func (e *UnderpricedFeeError) Error() string {
	return fmt.Sprintf("fee underpriced (maxFeePerGas=%s gwei): %v", FmtGwei(e.MaxFeePerGas), e.Err)
}

func (e *UnderpricedFeeError) Unwrap() error { return e.Err }

// ReceiptTimeoutError means no receipt appeared before the wait expired.
// The transaction may still be mined later.
type ReceiptTimeoutError struct {
	Hash    common.Hash
	Timeout time.Duration
	Err     error
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("timeout: no receipt for %s after %s", e.Hash.Hex(), e.Timeout)
}

func (e *ReceiptTimeoutError) Unwrap() error { return e.Err }

// ReceiptFailedError is a mined transaction with status 0.
type ReceiptFailedError struct {
	Hash  common.Hash
	Block *big.Int
}

func (e *ReceiptFailedError) Error() string {
	return fmt.Sprintf("transaction %s reverted in block %v", e.Hash.Hex(), e.Block)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005")
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

// isUnderpriced matches the node messages for a fee cap below what the pool accepts.
func isUnderpriced(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "underpriced"):
		return true
	case strings.Contains(s, "max fee per gas") && (strings.Contains(s, "less than") || strings.Contains(s, "too low")):
		return true
	case strings.Contains(s, "fee too low"), strings.Contains(s, "feecap too low"):
		return true
	}
	return false
}

func revertReason(e error) string {
	if e == nil {
		return ""
	}
	s := e.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return s
}
