package bridgecore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/metrics"
	"github.com/ligun0805/bridge-runner/internal/networks"
)

// AllowanceGuard makes sure the bridge router may pull the transfer amount.
type AllowanceGuard struct {
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
	Metrics        metrics.Recorder
	Log            logrus.FieldLogger
}

// RequiredAllowance is floor(units * factor).
func RequiredAllowance(units *big.Int, factor float64) *big.Int {
	return decimal.NewFromBigInt(units, 0).Mul(decimal.NewFromFloat(factor)).Floor().BigInt()
}

// Ensure approves exactly RequiredAllowance when the current allowance is
// short and waits for the approval receipt. Native transfers need nothing.
// It reports whether an approval was sent.
func (g *AllowanceGuard) Ensure(ctx context.Context, acct *chain.Account, amount networks.TokenAmount, factor float64, spender common.Address) (bool, error) {
	if g == nil {
		g = &AllowanceGuard{}
	}
	if amount.Token.Native {
		return false, nil
	}
	if spender == (common.Address{}) {
		return false, errors.New("allowance: quote has no approval address")
	}
	current, err := acct.Allowance(ctx, amount.Token.Address, spender)
	if err != nil {
		return false, fmt.Errorf("allowance: read: %w", err)
	}
	required := RequiredAllowance(amount.Units, factor)
	log := g.logger().WithFields(logrus.Fields{"token": amount.Token.Symbol, "spender": spender.Hex()})
	if current.Cmp(required) >= 0 {
		log.Debugf("[allowance] %s covers %s", current, required)
		return false, nil
	}

	log.Infof("[allowance] approving %s (have %s)", required, current)
	hash, err := acct.Approve(ctx, amount.Token.Address, spender, required)
	if err != nil {
		return false, fmt.Errorf("allowance: approve: %w", err)
	}
	g.recorder().Approved(acct.Client().Network.Slug)
	if _, err := acct.Client().WaitForReceipt(ctx, hash, g.ReceiptTimeout, g.ReceiptPoll); err != nil {
		return true, fmt.Errorf("allowance: approve %s: %w", hash.Hex(), err)
	}
	log.Infof("[allowance] approved: %s", acct.Client().Network.TxURL(hash))
	return true, nil
}

func (g *AllowanceGuard) logger() logrus.FieldLogger {
	if g.Log == nil {
		return logrus.StandardLogger()
	}
	return g.Log
}

func (g *AllowanceGuard) recorder() metrics.Recorder {
	if g.Metrics == nil {
		return metrics.Nop{}
	}
	return g.Metrics
}
