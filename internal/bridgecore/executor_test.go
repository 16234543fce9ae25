package bridgecore

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/chain/chaintest"
	"github.com/ligun0805/bridge-runner/internal/lifi"
	"github.com/ligun0805/bridge-runner/internal/networks"
)

func stargateCall(amount int64) *lifi.RouteCall {
	return &lifi.RouteCall{
		Selector: [4]byte{0x2c, 0x57, 0xe8, 0x84},
		Bridge: lifi.BridgeData{
			TransactionID:      [32]byte{0x01},
			Bridge:             "stargateV2",
			Integrator:         lifi.DefaultIntegrator,
			SendingAssetID:     common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
			Receiver:           common.HexToAddress("0x00000000000000000000000000000000000000b0"),
			MinAmount:          big.NewInt(amount),
			DestinationChainID: big.NewInt(10),
		},
		Stargate: lifi.StargateData{
			AssetID: 1,
			SendParams: lifi.SendParams{
				DstEid:       30111,
				AmountLD:     big.NewInt(amount),
				MinAmountLD:  big.NewInt(amount),
				ExtraOptions: []byte{},
				ComposeMsg:   []byte{},
				OftCmd:       []byte{},
			},
			Fee: lifi.MessagingFee{NativeFee: big.NewInt(1000), LzTokenFee: big.NewInt(0)},
		},
	}
}

// fastQuoteServer answers /quote with a Stargate taxi route for fromAmount.
func fastQuoteServer(t *testing.T, seen *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		*seen = append(*seen, q.Get("allowBridges"))
		amount, ok := new(big.Int).SetString(q.Get("fromAmount"), 10)
		if !ok {
			http.Error(w, "bad amount", http.StatusBadRequest)
			return
		}
		data, err := stargateCall(amount.Int64()).Encode()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"action": map[string]any{"fromAmount": amount.String()},
			"estimate": map[string]any{
				"toAmount":        "2500000",
				"approvalAddress": router.Hex(),
			},
			"transactionRequest": map[string]any{
				"to":       router.Hex(),
				"data":     hexutil.Encode(data),
				"value":    "0x3e8",
				"gasLimit": "0x30d40",
			},
		})
	}))
}

func TestExecuteFastRouteEndToEnd(t *testing.T) {
	reg := networks.NewRegistry(nil)
	usdcArb, _ := reg.Token("arbitrum_one", "USDC")
	usdcOp, _ := reg.Token("optimism", "USDC")
	eth, _ := reg.NativeToken("arbitrum_one")
	dest, _ := reg.Network("optimism")

	c, fb := testChain(t, reg, "arbitrum_one")
	fb.GasPrices = []*big.Int{gwei(1)}
	acct := chain.NewAccount(c, testWallet(t).Key)
	fb.SetTokenBalance(usdcArb.Address, acct.Address, big.NewInt(10_000_000))
	fb.Native[acct.Address] = big.NewInt(1e18)

	var seen []string
	srv := fastQuoteServer(t, &seen)
	defer srv.Close()
	quoter := lifi.NewClient(lifi.Config{
		BaseURL:       srv.URL,
		FastThreshold: 100,
		Rand:          rand.New(rand.NewSource(1)),
		Logger:        quietLogger(),
	})

	ctx := context.Background()
	amount, err := (&Planner{Log: quietLogger()}).Plan(ctx, acct, usdcArb, eth, 50)
	require.NoError(t, err)

	gate := &GasGate{Ceilings: map[string]float64{"arbitrum_one": 10}, Log: quietLogger()}
	out, err := testExecutor(quoter, gate).Execute(ctx, SwapRequest{
		Account:         acct,
		Dest:            dest,
		FromToken:       usdcArb,
		ToToken:         usdcOp,
		Amount:          amount,
		AllowanceFactor: 1.1,
	})
	require.NoError(t, err)

	assert.Equal(t, lifi.RouteFast, out.Mode)
	assert.Equal(t, "2.5", out.Output.String())
	assert.True(t, out.Approved)
	assert.Equal(t, []string{"stargateV2"}, seen)

	sent := fb.SentTxs()
	require.Len(t, sent, 2)
	assert.Equal(t, usdcArb.Address, *sent[0].To())
	assert.Equal(t, "5500000", new(big.Int).SetBytes(sent[0].Data()[36:68]).String())

	bridge := sent[1]
	assert.Equal(t, out.TxHash, bridge.Hash())
	assert.Equal(t, router, *bridge.To())
	assert.Equal(t, uint64(240_000), bridge.Gas())
	assert.Equal(t, "1000", bridge.Value().String())
	rc, err := lifi.Decode(bridge.Data())
	require.NoError(t, err)
	assert.Equal(t, lifi.OwnIntegrator, rc.Bridge.Integrator)
	assert.Equal(t, "5000000", rc.Bridge.MinAmount.String())
	assert.Equal(t, "5000000", rc.Stargate.SendParams.AmountLD.String())
	assert.Equal(t, []byte{0}, rc.Stargate.SendParams.OftCmd)
}

func nativeSwap(t *testing.T) (SwapRequest, *stubQuoter, *chaintest.Backend) {
	t.Helper()
	reg := networks.NewRegistry(nil)
	eth, _ := reg.NativeToken("base")
	ethArb, _ := reg.NativeToken("arbitrum_one")
	dest, _ := reg.Network("arbitrum_one")
	c, fb := testChain(t, reg, "base")
	acct := chain.NewAccount(c, testWallet(t).Key)
	fb.Native[acct.Address] = big.NewInt(1e18)
	req := SwapRequest{
		Account:   acct,
		Dest:      dest,
		FromToken: eth,
		ToToken:   ethArb,
		Amount:    networks.AmountFromUnits(eth, big.NewInt(1e17)),
	}
	return req, &stubQuoter{}, fb
}

func TestExecuteFeeBumpOnce(t *testing.T) {
	req, q, fb := nativeSwap(t)
	fb.SendErrs = []error{errors.New("max fee per gas less than block base fee"), nil}

	out, err := testExecutor(q, nil).Execute(context.Background(), req)
	require.NoError(t, err)

	sent := fb.SentTxs()
	require.Len(t, sent, 1)
	// base 1 gwei + tip 0.1 gwei = 1.1 gwei, bumped by 10%
	assert.Equal(t, "1210000000", sent[0].GasFeeCap().String())
	assert.Equal(t, 2, fb.SendCalls)
	assert.Equal(t, sent[0].Hash(), out.TxHash)
}

func TestExecuteSecondUnderpricedIsFatal(t *testing.T) {
	req, q, fb := nativeSwap(t)
	fb.SendErrs = []error{
		errors.New("transaction underpriced"),
		errors.New("transaction underpriced"),
		nil,
	}

	_, err := testExecutor(q, nil).Execute(context.Background(), req)
	var se *SwapError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StateSubmitting, se.State)
	var up *chain.UnderpricedFeeError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, 2, fb.SendCalls)
	assert.Empty(t, fb.SentTxs())
}

func TestExecuteFailureStates(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*stubQuoter, *chaintest.Backend)
		state State
	}{
		{"quote", func(q *stubQuoter, _ *chaintest.Backend) { q.err = &lifi.QuoteError{StatusCode: 404} }, StateQuoting},
		{"estimate", func(_ *stubQuoter, fb *chaintest.Backend) { fb.EstimateErr = errors.New("execution reverted") }, StateBuilding},
		{"broadcast", func(_ *stubQuoter, fb *chaintest.Backend) { fb.SendErrs = []error{errors.New("nonce too low")} }, StateSubmitting},
		{"receipt reverted", func(_ *stubQuoter, fb *chaintest.Backend) { fb.ReceiptFails = true }, StateConfirming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, q, fb := nativeSwap(t)
			tt.setup(q, fb)

			_, err := testExecutor(q, nil).Execute(context.Background(), req)
			var se *SwapError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.state, se.State)
		})
	}
}

func TestExecuteAdoptsAggregatorAmount(t *testing.T) {
	req, q, _ := nativeSwap(t)
	q.override = big.NewInt(99_000_000_000_000_000)

	out, err := testExecutor(q, nil).Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "99000000000000000", out.Amount.Units.String())
	assert.Equal(t, "0.099", out.Amount.Amount.String())
	assert.Equal(t, "100000000000000000", q.last.FromAmount.String())
}
