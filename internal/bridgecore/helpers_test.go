package bridgecore

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/chain/chaintest"
	"github.com/ligun0805/bridge-runner/internal/lifi"
	"github.com/ligun0805/bridge-runner/internal/networks"
)

var router = common.HexToAddress("0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE")

func gwei(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000)) }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testChain is one fake network bound to the default registry entry for slug.
func testChain(t *testing.T, reg *networks.Registry, slug string) (*chain.Client, *chaintest.Backend) {
	t.Helper()
	n, ok := reg.Network(slug)
	require.True(t, ok, slug)
	fb := chaintest.New(n.ChainID.Int64())
	return chain.NewClient(n, fb, chain.Options{RetryBackoff: time.Millisecond, Logger: quietLogger()}), fb
}

func testWallet(t *testing.T) Wallet {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	return Wallet{Address: gethcrypto.PubkeyToAddress(key.PublicKey), Key: key}
}

// stubQuoter answers every request with a random-mode quote echoing the amount.
type stubQuoter struct {
	mu       sync.Mutex
	calls    int
	last     lifi.QuoteRequest
	err      error
	override *big.Int
}

func (s *stubQuoter) GetQuote(_ context.Context, req lifi.QuoteRequest) (*lifi.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	from := new(big.Int).Set(req.FromAmount)
	if s.override != nil {
		from = new(big.Int).Set(s.override)
	}
	return &lifi.Quote{
		Mode:            lifi.RouteRandom,
		FromAmount:      from,
		ToAmount:        decimal.NewFromInt(2_500_000),
		ApprovalAddress: router,
		Tx: lifi.RouteTx{
			To:       router,
			Data:     []byte{0xde, 0xad, 0xbe, 0xef},
			Value:    new(big.Int),
			GasLimit: 200_000,
		},
	}, nil
}

func (s *stubQuoter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testExecutor(q Quoter, gate *GasGate) *Executor {
	return &Executor{
		Quoter:         q,
		Patcher:        lifi.NewPatcher(),
		Allowance:      &AllowanceGuard{ReceiptTimeout: time.Second, ReceiptPoll: time.Millisecond, Log: quietLogger()},
		Gate:           gate,
		Log:            quietLogger(),
		ReceiptTimeout: time.Second,
		ReceiptPoll:    time.Millisecond,
	}
}
