package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bridge-runner/internal/chain/chaintest"
	"github.com/ligun0805/bridge-runner/internal/networks"
)

func newTestAccount(t *testing.T, latestOnly bool) (*Account, *chaintest.Backend) {
	t.Helper()
	fb := chaintest.New(8453)
	n := networks.Network{Slug: "base", ChainID: big.NewInt(8453), LatestOnly: latestOnly}
	c := NewClient(n, fb, Options{RetryBackoff: time.Millisecond})
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	return NewAccount(c, key), fb
}

func TestPrepareFees(t *testing.T) {
	acct, fb := newTestAccount(t, false)
	fb.BaseFee = big.NewInt(2_000_000_000)
	fb.Tip = big.NewInt(150_000_000)
	fb.NonceValue = 7
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")

	req, err := acct.NewTx().AddTo(to).AddValue(big.NewInt(5)).AddData([]byte{1, 2}).AddGas(240_000).Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(7), req.Nonce)
	assert.Equal(t, uint64(240_000), req.Gas)
	assert.Equal(t, "150000000", req.GasTipCap.String())
	assert.Equal(t, "2150000000", req.GasFeeCap.String())
	assert.Equal(t, 1, fb.PendingNonceCalls)
	require.Len(t, fb.HeaderRequests, 1)
	assert.Equal(t, int64(rpc.PendingBlockNumber), fb.HeaderRequests[0].Int64())

	tx := req.Tx()
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, to, *tx.To())
}

func TestPrepareUsesEstimateWithoutExplicitGas(t *testing.T) {
	acct, fb := newTestAccount(t, false)
	fb.GasEstimate = 55_000

	req, err := acct.NewTx().AddTo(common.Address{1}).Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(55_000), req.Gas)
}

func TestPrepareLatestOnly(t *testing.T) {
	acct, fb := newTestAccount(t, true)

	_, err := acct.NewTx().AddTo(common.Address{1}).Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fb.PendingNonceCalls)
	assert.Equal(t, 1, fb.LatestNonceCalls)
	require.Len(t, fb.HeaderRequests, 1)
	assert.Nil(t, fb.HeaderRequests[0])
}

func TestPrepareRequiresFrom(t *testing.T) {
	_, fb := newTestAccount(t, false)
	c := NewClient(networks.Network{Slug: "base", ChainID: big.NewInt(8453)}, fb, Options{})
	_, err := c.NewTx().AddTo(common.Address{1}).Prepare(context.Background())
	require.Error(t, err)
}

func TestPrepareGasEstimationError(t *testing.T) {
	acct, fb := newTestAccount(t, false)
	fb.EstimateErr = errors.New("execution reverted: amount mismatch")

	_, err := acct.NewTx().AddTo(common.Address{1}).AddGas(100_000).Prepare(context.Background())
	var gasErr *GasEstimationError
	require.ErrorAs(t, err, &gasErr)
	assert.Contains(t, gasErr.Error(), "amount mismatch")
}

func TestCommitSignsAndBroadcasts(t *testing.T) {
	acct, fb := newTestAccount(t, false)
	req, err := acct.NewTx().AddTo(common.Address{1}).Prepare(context.Background())
	require.NoError(t, err)
	fb.NonceValue = 3

	hash, err := acct.Commit(context.Background(), req)
	require.NoError(t, err)

	sent := fb.SentTxs()
	require.Len(t, sent, 1)
	assert.Equal(t, hash, sent[0].Hash())
	assert.Equal(t, uint64(3), sent[0].Nonce())
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), sent[0])
	require.NoError(t, err)
	assert.Equal(t, acct.Address, from)
}

func TestBroadcastUnderpriced(t *testing.T) {
	acct, fb := newTestAccount(t, false)
	fb.SendErrs = []error{errors.New("max fee per gas less than block base fee: address 0xabc, maxFeePerGas: 1 baseFee: 2")}
	req, err := acct.NewTx().AddTo(common.Address{1}).Prepare(context.Background())
	require.NoError(t, err)

	_, err = acct.Commit(context.Background(), req)
	var up *UnderpricedFeeError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, req.GasFeeCap.String(), up.MaxFeePerGas.String())
	assert.Empty(t, fb.SentTxs())
}

func TestApproveAndAllowance(t *testing.T) {
	acct, _ := newTestAccount(t, false)
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	spender := common.HexToAddress("0x3333333333333333333333333333333333333333")
	ctx := context.Background()

	cur, err := acct.Allowance(ctx, token, spender)
	require.NoError(t, err)
	assert.Zero(t, cur.Sign())

	_, err = acct.Approve(ctx, token, spender, big.NewInt(5_500_000))
	require.NoError(t, err)

	cur, err = acct.Allowance(ctx, token, spender)
	require.NoError(t, err)
	assert.Equal(t, "5500000", cur.String())
}

func TestBalance(t *testing.T) {
	acct, fb := newTestAccount(t, false)
	token := networks.Token{Symbol: "USDC", Address: common.HexToAddress("0x2222222222222222222222222222222222222222"), Decimals: 6}
	fb.SetTokenBalance(token.Address, acct.Address, big.NewInt(10_000_000))
	fb.Native[acct.Address] = big.NewInt(42)

	bal, err := acct.Balance(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "10000000", bal.String())

	bal, err = acct.Balance(context.Background(), networks.Token{Symbol: "ETH", Native: true, Decimals: 18})
	require.NoError(t, err)
	assert.Equal(t, "42", bal.String())
}

func TestWaitForReceipt(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		acct, _ := newTestAccount(t, false)
		req, err := acct.NewTx().AddTo(common.Address{1}).Prepare(ctx)
		require.NoError(t, err)
		hash, err := acct.Commit(ctx, req)
		require.NoError(t, err)

		rcpt, err := acct.Client().WaitForReceipt(ctx, hash, time.Second, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusSuccessful, rcpt.Status)
	})

	t.Run("timeout", func(t *testing.T) {
		acct, fb := newTestAccount(t, false)
		fb.Pending = true
		_, err := acct.Client().WaitForReceipt(ctx, common.Hash{9}, 20*time.Millisecond, 5*time.Millisecond)
		var te *ReceiptTimeoutError
		require.ErrorAs(t, err, &te)
		assert.Contains(t, te.Error(), "timeout")
	})

	t.Run("reverted", func(t *testing.T) {
		acct, fb := newTestAccount(t, false)
		fb.ReceiptFails = true
		req, err := acct.NewTx().AddTo(common.Address{1}).Prepare(ctx)
		require.NoError(t, err)
		hash, err := acct.Commit(ctx, req)
		require.NoError(t, err)

		_, err = acct.Client().WaitForReceipt(ctx, hash, time.Second, time.Millisecond)
		var fe *ReceiptFailedError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, hash, fe.Hash)
	})
}

func TestBumpFee(t *testing.T) {
	r := &TxRequest{GasTipCap: big.NewInt(100), GasFeeCap: big.NewInt(2_000_000_001)}
	r.BumpFee(11, 10)
	assert.Equal(t, "2200000001", r.GasFeeCap.String())
	assert.Equal(t, "100", r.GasTipCap.String())
}

func TestIsUnderpriced(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"replacement transaction underpriced", true},
		{"transaction underpriced", true},
		{"max fee per gas less than block base fee", true},
		{"max fee per gas too low", true},
		{"fee too low", true},
		{"nonce too low", false},
		{"insufficient funds for gas * price + value", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, isUnderpriced(errors.New(tt.msg)))
		})
	}
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "500000000", GweiToWei(0.5).String())
	assert.Equal(t, "12000000000", GweiToWei(12).String())
	assert.Equal(t, "1.50", FmtGwei(big.NewInt(1_500_000_000)))

	_, addr, err := ParseKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", addr.Hex())

	_, _, err = ParseKey("  ")
	require.Error(t, err)
}
