package bridgecore

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ligun0805/bridge-runner/internal/networks"
)

// Balance is one (wallet, network, token) reading.
type Balance struct {
	Wallet  common.Address
	Network string
	Token   string
	Amount  decimal.Decimal
	Err     error
}

// Balances reads every source (network, token) balance of every wallet.
// Rows are sorted by wallet, network and token.
func (r *Runner) Balances(ctx context.Context, wallets []Wallet) []Balance {
	threads := r.Settings.Threads
	if threads < 1 {
		threads = 1
	}
	pairs := r.routes(r.Settings.SourceNetworks, r.Settings.FromTokens)

	var g errgroup.Group
	g.SetLimit(threads)
	results := make([][]Balance, len(wallets))
	for i, w := range wallets {
		i, w := i, w
		g.Go(func() error {
			rows := make([]Balance, 0, len(pairs))
			for _, p := range pairs {
				rows = append(rows, r.readBalance(ctx, w, p))
			}
			results[i] = rows
			return nil
		})
	}
	_ = g.Wait()

	var out []Balance
	for _, rows := range results {
		out = append(out, rows...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Wallet != b.Wallet {
			return a.Wallet.Hex() < b.Wallet.Hex()
		}
		if a.Network != b.Network {
			return a.Network < b.Network
		}
		return a.Token < b.Token
	})
	return out
}

func (r *Runner) readBalance(ctx context.Context, w Wallet, p route) Balance {
	row := Balance{Wallet: w.Address, Network: p.network, Token: p.token.Symbol}
	c, err := r.Clients.Get(ctx, p.network)
	if err != nil {
		row.Err = err
		return row
	}
	units, err := c.Balance(ctx, w.Address, p.token)
	if err != nil {
		row.Err = err
		return row
	}
	row.Amount = networks.FromSmallestUnit(units, p.token.Decimals)
	r.logger().WithFields(logrus.Fields{"wallet": w.Address.Hex(), "network": p.network}).
		Infof("[balance] %s %s", row.Amount.StringFixed(6), p.token.Symbol)
	return row
}
