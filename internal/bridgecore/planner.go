package bridgecore

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/networks"
)

// Planner turns a balance percentage into a fundable transfer amount while
// keeping enough native currency for the bridge transaction's gas.
type Planner struct {
	ReserveGasLimit uint64
	ReserveMul      float64
	Log             logrus.FieldLogger
}

// GasReserve is gasPrice * ReserveGasLimit * ReserveMul, rounded up.
func (p *Planner) GasReserve(gasPrice *big.Int) *big.Int {
	limit, mul := p.ReserveGasLimit, p.ReserveMul
	if limit == 0 {
		limit = 100_000
	}
	if mul <= 0 {
		mul = 1.2
	}
	return decimal.NewFromBigInt(gasPrice, 0).
		Mul(decimal.NewFromInt(int64(limit))).
		Mul(decimal.NewFromFloat(mul)).
		Ceil().BigInt()
}

// Plan returns pct percent of the account's token balance, adjusted so the
// account can still pay for gas. No transaction is created on failure.
func (p *Planner) Plan(ctx context.Context, acct *chain.Account, token, nativeToken networks.Token, pct float64) (networks.TokenAmount, error) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"network": acct.Client().Network.Slug, "token": token.Symbol})

	bal, err := acct.Balance(ctx, token)
	if err != nil {
		return networks.TokenAmount{}, fmt.Errorf("plan: balance: %w", err)
	}
	if bal.Sign() <= 0 {
		return networks.TokenAmount{}, &InsufficientFundsError{Token: token.Symbol, Have: bal, Need: big.NewInt(1), Reason: "zero balance"}
	}

	gasPrice, err := acct.Client().GasPrice(ctx)
	if err != nil {
		return networks.TokenAmount{}, fmt.Errorf("plan: gas price: %w", err)
	}
	reserve := p.GasReserve(gasPrice)

	amount := decimal.NewFromBigInt(bal, 0).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Floor().BigInt()

	if token.Native {
		if new(big.Int).Add(amount, reserve).Cmp(bal) > 0 {
			amount = new(big.Int).Sub(bal, reserve)
			log.Infof("[pre-check] amount reduced to %s to keep %s for gas", networks.FromSmallestUnit(amount, token.Decimals), chain.FmtETH(reserve))
		}
		if amount.Sign() <= 0 {
			return networks.TokenAmount{}, &InsufficientFundsError{Token: token.Symbol, Have: bal, Need: reserve, Reason: "balance below gas reserve"}
		}
		return networks.AmountFromUnits(token, amount), nil
	}

	if amount.Cmp(bal) > 0 {
		amount = decimal.NewFromBigInt(bal, 0).Mul(decimal.NewFromFloat(0.95)).Floor().BigInt()
		log.Infof("[pre-check] amount above balance, using 95%%: %s", networks.FromSmallestUnit(amount, token.Decimals))
	}
	nativeBal, err := acct.Balance(ctx, nativeToken)
	if err != nil {
		return networks.TokenAmount{}, fmt.Errorf("plan: native balance: %w", err)
	}
	if nativeBal.Cmp(reserve) < 0 {
		return networks.TokenAmount{}, &InsufficientFundsError{Token: nativeToken.Symbol, Have: nativeBal, Need: reserve, Reason: "insufficient gas"}
	}
	if amount.Sign() <= 0 {
		return networks.TokenAmount{}, &InsufficientFundsError{Token: token.Symbol, Have: bal, Need: big.NewInt(1), Reason: "amount rounds to zero"}
	}
	return networks.AmountFromUnits(token, amount), nil
}
