package bridgecore

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/networks"
)

func TestRequiredAllowance(t *testing.T) {
	tests := []struct {
		units  int64
		factor float64
		want   string
	}{
		{5_000_000, 1.1, "5500000"},
		{5_000_000, 1.0, "5000000"},
		{333, 1.1, "366"},
		{7, 1.05, "7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RequiredAllowance(big.NewInt(tt.units), tt.factor).String())
	}
}

func TestAllowanceGuard(t *testing.T) {
	reg := networks.NewRegistry(nil)
	usdc, _ := reg.Token("arbitrum_one", "USDC")
	eth, _ := reg.NativeToken("arbitrum_one")
	amount := networks.AmountFromUnits(usdc, big.NewInt(5_000_000))
	g := &AllowanceGuard{ReceiptTimeout: time.Second, ReceiptPoll: time.Millisecond, Log: quietLogger()}

	t.Run("covered", func(t *testing.T) {
		c, fb := testChain(t, reg, "arbitrum_one")
		acct := chain.NewAccount(c, testWallet(t).Key)
		fb.SetAllowance(usdc.Address, acct.Address, router, big.NewInt(5_500_000))

		approved, err := g.Ensure(context.Background(), acct, amount, 1.1, router)
		require.NoError(t, err)
		assert.False(t, approved)
		assert.Empty(t, fb.SentTxs())
	})

	t.Run("short approves exact requirement", func(t *testing.T) {
		c, fb := testChain(t, reg, "arbitrum_one")
		acct := chain.NewAccount(c, testWallet(t).Key)
		fb.SetAllowance(usdc.Address, acct.Address, router, big.NewInt(5_499_999))

		approved, err := g.Ensure(context.Background(), acct, amount, 1.1, router)
		require.NoError(t, err)
		assert.True(t, approved)

		sent := fb.SentTxs()
		require.Len(t, sent, 1)
		assert.Equal(t, usdc.Address, *sent[0].To())
		assert.Equal(t, "5500000", new(big.Int).SetBytes(sent[0].Data()[36:68]).String())

		got, err := acct.Allowance(context.Background(), usdc.Address, router)
		require.NoError(t, err)
		assert.Equal(t, "5500000", got.String())
	})

	t.Run("native skips", func(t *testing.T) {
		c, fb := testChain(t, reg, "arbitrum_one")
		acct := chain.NewAccount(c, testWallet(t).Key)
		approved, err := g.Ensure(context.Background(), acct, networks.AmountFromUnits(eth, big.NewInt(1)), 1.1, router)
		require.NoError(t, err)
		assert.False(t, approved)
		assert.Empty(t, fb.SentTxs())
	})

	t.Run("failed approval", func(t *testing.T) {
		c, fb := testChain(t, reg, "arbitrum_one")
		fb.ReceiptFails = true
		acct := chain.NewAccount(c, testWallet(t).Key)
		_, err := g.Ensure(context.Background(), acct, amount, 1.1, router)
		var rf *chain.ReceiptFailedError
		require.ErrorAs(t, err, &rf)
	})
}

func TestGasGateStopsAtFirstPriceWithinCeiling(t *testing.T) {
	reg := networks.NewRegistry(nil)
	c, fb := testChain(t, reg, "ethereum")
	fb.GasPrices = []*big.Int{gwei(15), gwei(12), gwei(9), gwei(8)}

	g := &GasGate{Ceilings: map[string]float64{"ethereum": 10}, Interval: time.Millisecond, Log: quietLogger()}
	polls, err := g.Wait(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 3, fb.GasPriceCalls)
}

func TestGasGateWithoutCeiling(t *testing.T) {
	reg := networks.NewRegistry(nil)
	c, fb := testChain(t, reg, "base")
	fb.GasPrices = []*big.Int{gwei(500)}

	g := &GasGate{Ceilings: map[string]float64{"ethereum": 10}, Interval: time.Millisecond}
	polls, err := g.Wait(context.Background(), c)
	require.NoError(t, err)
	assert.Zero(t, polls)
	assert.Zero(t, fb.GasPriceCalls)

	var nilGate *GasGate
	polls, err = nilGate.Wait(context.Background(), c)
	require.NoError(t, err)
	assert.Zero(t, polls)
}

func TestGasGateHonorsContext(t *testing.T) {
	reg := networks.NewRegistry(nil)
	c, fb := testChain(t, reg, "ethereum")
	fb.GasPrices = []*big.Int{gwei(50)}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	g := &GasGate{Ceilings: map[string]float64{"ethereum": 10}, Interval: 5 * time.Millisecond, Log: quietLogger()}
	_, err := g.Wait(ctx, c)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlan(t *testing.T) {
	reg := networks.NewRegistry(nil)
	usdc, _ := reg.Token("arbitrum_one", "USDC")
	eth, _ := reg.NativeToken("arbitrum_one")
	p := &Planner{ReserveGasLimit: 100_000, ReserveMul: 1.2, Log: quietLogger()}
	ctx := context.Background()
	// reserve at 1 gwei: 1e9 * 1e5 * 1.2 = 1.2e14 wei
	assert.Equal(t, "120000000000000", p.GasReserve(gwei(1)).String())

	t.Run("erc20 percentage", func(t *testing.T) {
		c, fb := testChain(t, reg, "arbitrum_one")
		acct := chain.NewAccount(c, testWallet(t).Key)
		fb.SetTokenBalance(usdc.Address, acct.Address, big.NewInt(10_000_000))
		fb.Native[acct.Address] = big.NewInt(1e18)

		a, err := p.Plan(ctx, acct, usdc, eth, 50)
		require.NoError(t, err)
		assert.Equal(t, "5000000", a.Units.String())
		assert.Equal(t, "5", a.Amount.String())
	})

	t.Run("erc20 without gas", func(t *testing.T) {
		c, fb := testChain(t, reg, "arbitrum_one")
		acct := chain.NewAccount(c, testWallet(t).Key)
		fb.SetTokenBalance(usdc.Address, acct.Address, big.NewInt(10_000_000))
		fb.Native[acct.Address] = big.NewInt(1e13)

		_, err := p.Plan(ctx, acct, usdc, eth, 50)
		var ife *InsufficientFundsError
		require.ErrorAs(t, err, &ife)
		assert.Equal(t, "insufficient gas", ife.Reason)
		assert.Empty(t, fb.SentTxs())
	})

	t.Run("zero balance", func(t *testing.T) {
		c, _ := testChain(t, reg, "arbitrum_one")
		acct := chain.NewAccount(c, testWallet(t).Key)
		_, err := p.Plan(ctx, acct, usdc, eth, 50)
		var ife *InsufficientFundsError
		require.ErrorAs(t, err, &ife)
		assert.Equal(t, "zero balance", ife.Reason)
	})

	t.Run("native clamped to balance minus reserve", func(t *testing.T) {
		c, fb := testChain(t, reg, "arbitrum_one")
		acct := chain.NewAccount(c, testWallet(t).Key)
		fb.Native[acct.Address] = big.NewInt(1e15)

		a, err := p.Plan(ctx, acct, eth, eth, 100)
		require.NoError(t, err)
		assert.Equal(t, "880000000000000", a.Units.String())
	})

	t.Run("native below reserve", func(t *testing.T) {
		c, fb := testChain(t, reg, "arbitrum_one")
		acct := chain.NewAccount(c, testWallet(t).Key)
		fb.Native[acct.Address] = big.NewInt(1e14)

		_, err := p.Plan(ctx, acct, eth, eth, 100)
		var ife *InsufficientFundsError
		require.ErrorAs(t, err, &ife)
		assert.Equal(t, "120000000000000", ife.Need.String())
		assert.Zero(t, fb.SendCalls)
	})
}
