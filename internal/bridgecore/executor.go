package bridgecore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/lifi"
	"github.com/ligun0805/bridge-runner/internal/metrics"
)

const (
	// gasLimitNum/gasLimitDen scale the aggregator's gas hint.
	gasLimitNum = 12
	gasLimitDen = 10
	// One resubmission at +10% maxFeePerGas after an underpriced rejection.
	maxFeeBumps = 1
	feeBumpNum  = 11
	feeBumpDen  = 10
)

// Quoter fetches a route quote; *lifi.Client implements it.
type Quoter interface {
	GetQuote(ctx context.Context, req lifi.QuoteRequest) (*lifi.Quote, error)
}

var _ Quoter = (*lifi.Client)(nil)

// Executor drives one swap through
// QUOTING, PATCHING, APPROVING, GAS_GATING, BUILDING, SUBMITTING, CONFIRMING.
type Executor struct {
	Quoter    Quoter
	Patcher   *lifi.Patcher
	Allowance *AllowanceGuard
	Gate      *GasGate
	Metrics   metrics.Recorder
	Log       logrus.FieldLogger

	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration

	rng *randSource
}

func (e *Executor) logger() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

func (e *Executor) recorder() metrics.Recorder {
	if e.Metrics == nil {
		return metrics.Nop{}
	}
	return e.Metrics
}

func (e *Executor) random() *randSource {
	if e.rng == nil {
		e.rng = newRandSource(0)
	}
	return e.rng
}

// Execute runs one swap attempt to a confirmed receipt.
// Errors are *SwapError carrying the failing state.
func (e *Executor) Execute(ctx context.Context, req SwapRequest) (*Outcome, error) {
	acct := req.Account
	client := acct.Client()
	src := client.Network
	start := time.Now()
	log := e.logger().WithFields(logrus.Fields{
		"wallet": acct.Address.Hex(),
		"from":   src.Slug + "/" + req.FromToken.Symbol,
		"to":     req.Dest.Slug + "/" + req.ToToken.Symbol,
	})

	state := StateQuoting
	mode := "unknown"
	fail := func(err error) (*Outcome, error) {
		e.recorder().SwapFinished(src.Slug, mode, false, state.String(), time.Since(start))
		log.WithError(err).Errorf("[abort] %s failed", strings.ToLower(state.String()))
		return nil, &SwapError{State: state, Mode: mode, Err: err}
	}

	if req.Amount.Units == nil || req.Amount.Units.Sign() <= 0 {
		return fail(errors.New("amount must be > 0"))
	}
	amount := req.Amount

	log.Infof("[quote] %s %s", amount, req.FromToken.Symbol)
	q, err := e.Quoter.GetQuote(ctx, lifi.QuoteRequest{
		FromChain:   src.ChainID,
		ToChain:     req.Dest.ChainID,
		FromToken:   req.FromToken.Address,
		ToToken:     req.ToToken.Address,
		FromAddress: acct.Address,
		FromAmount:  amount.Units,
	})
	if err != nil {
		return fail(err)
	}
	mode = q.Mode.String()
	if q.FromAmount != nil && q.FromAmount.Cmp(amount.Units) != 0 {
		log.Infof("[quote] aggregator amount %s differs from requested %s, adopting it", q.FromAmount, amount.Units)
		amount.SetUnits(q.FromAmount)
	}

	state = StatePatching
	data, err := e.Patcher.Patch(q.Mode, q.Tx.Data, amount.Units)
	if err != nil {
		return fail(err)
	}

	approved := false
	if !req.FromToken.Native {
		state = StateApproving
		approved, err = e.Allowance.Ensure(ctx, acct, amount, req.AllowanceFactor, q.ApprovalAddress)
		if err != nil {
			return fail(err)
		}
		if err := sleepCtx(ctx, e.random().Between(req.ApproveDelayMin, req.ApproveDelayMax)); err != nil {
			return fail(err)
		}
	}

	state = StateGasGating
	if _, err := e.Gate.Wait(ctx, client); err != nil {
		return fail(err)
	}

	state = StateBuilding
	gas := q.Tx.GasLimit * gasLimitNum / gasLimitDen
	txReq, err := acct.NewTx().
		AddTo(q.Tx.To).
		AddValue(q.Tx.Value).
		AddData(data).
		AddGas(gas).
		Prepare(ctx)
	if err != nil {
		return fail(err)
	}

	state = StateSubmitting
	hash, err := e.submit(ctx, acct, txReq, 0, log)
	if err != nil {
		return fail(err)
	}
	log.Infof("[submit] %s mode=%s: %s", hash.Hex(), mode, src.TxURL(hash))

	state = StateConfirming
	if _, err := client.WaitForReceipt(ctx, hash, e.ReceiptTimeout, e.ReceiptPoll); err != nil {
		return fail(err)
	}

	out := &Outcome{
		TxHash:   hash,
		TxURL:    src.TxURL(hash),
		Mode:     q.Mode,
		Amount:   amount,
		Output:   q.Output(req.ToToken.Decimals),
		Approved: approved,
	}
	e.recorder().SwapFinished(src.Slug, mode, true, StateDone.String(), time.Since(start))
	log.Infof("[done] %s %s -> %s %s", amount, req.FromToken.Symbol, out.Output, req.ToToken.Symbol)
	return out, nil
}

// submit signs and broadcasts req. On the first underpriced rejection it bumps
// maxFeePerGas by 10% and tries once more; a second rejection is returned.
func (e *Executor) submit(ctx context.Context, acct *chain.Account, req *chain.TxRequest, attempt int, log logrus.FieldLogger) (common.Hash, error) {
	hash, err := acct.Commit(ctx, req)
	if err == nil {
		return hash, nil
	}
	var under *chain.UnderpricedFeeError
	if !errors.As(err, &under) || attempt >= maxFeeBumps {
		return common.Hash{}, err
	}
	old := req.GasFeeCap
	req.BumpFee(feeBumpNum, feeBumpDen)
	log.Warnf("[submit] fee rejected, maxFeePerGas %s -> %s gwei (attempt %d)", chain.FmtGwei(old), chain.FmtGwei(req.GasFeeCap), attempt+1)
	e.recorder().FeeBumped(acct.Client().Network.Slug)
	hash, err = e.submit(ctx, acct, req, attempt+1, log)
	if err != nil {
		return common.Hash{}, fmt.Errorf("after fee bump: %w", err)
	}
	return hash, nil
}
