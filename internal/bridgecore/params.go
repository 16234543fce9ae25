package bridgecore

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/lifi"
	"github.com/ligun0805/bridge-runner/internal/networks"
)

// State is the step a swap attempt is in.
type State int

const (
	StateQuoting State = iota
	StatePatching
	StateApproving
	StateGasGating
	StateBuilding
	StateSubmitting
	StateConfirming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQuoting:
		return "QUOTING"
	case StatePatching:
		return "PATCHING"
	case StateApproving:
		return "APPROVING"
	case StateGasGating:
		return "GAS_GATING"
	case StateBuilding:
		return "BUILDING"
	case StateSubmitting:
		return "SUBMITTING"
	case StateConfirming:
		return "CONFIRMING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Wallet is one funded account from the accounts file.
type Wallet struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// SwapRequest is one source-to-destination transfer for a single account.
type SwapRequest struct {
	Account   *chain.Account
	Dest      networks.Network
	FromToken networks.Token
	ToToken   networks.Token
	Amount    networks.TokenAmount

	AllowanceFactor float64
	ApproveDelayMin time.Duration
	ApproveDelayMax time.Duration
}

// Outcome is what a confirmed swap produced.
type Outcome struct {
	TxHash   common.Hash
	TxURL    string
	Mode     lifi.RouteMode
	Amount   networks.TokenAmount
	Output   decimal.Decimal
	Approved bool
}

// SwapError carries the state a swap attempt failed in.
type SwapError struct {
	State State
	Mode  string
	Err   error
}

func (e *SwapError) Error() string { return fmt.Sprintf("%s: %v", e.State, e.Err) }
func (e *SwapError) Unwrap() error { return e.Err }

// InsufficientFundsError means the planned amount cannot be funded.
type InsufficientFundsError struct {
	Token  string
	Have   *big.Int
	Need   *big.Int
	Reason string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds (%s): %s have=%s need=%s", e.Reason, e.Token, e.Have, e.Need)
}

// Status of a Record.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Record is the result of exactly one swap attempt.
type Record struct {
	Wallet        common.Address
	TxIndex       int
	TxCount       int
	SourceNetwork string
	DestNetwork   string
	FromToken     string
	ToToken       string
	Amount        decimal.Decimal
	USDVolume     decimal.Decimal
	Output        decimal.Decimal
	Mode          string
	Status        Status
	TxHash        common.Hash
	TxURL         string
	Error         string
	Duration      time.Duration
}
