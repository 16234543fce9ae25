package bridgecore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/config"
	"github.com/ligun0805/bridge-runner/internal/networks"
)

// PriceSource quotes a token symbol in USD; *pricing.Client implements it.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Runner processes accounts concurrently, each account's swaps serially.
type Runner struct {
	Settings config.Settings
	Registry *networks.Registry
	Clients  *chain.Pool
	Planner  *Planner
	Executor *Executor
	Prices   PriceSource
	Log      logrus.FieldLogger
	// Seed fixes the random draws; zero seeds from the clock.
	Seed int64

	rng *randSource
}

type route struct {
	network string
	token   networks.Token
}

func (r *Runner) random() *randSource {
	if r.rng == nil {
		r.rng = newRandSource(r.Seed)
	}
	return r.rng
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

// Run processes every wallet and returns one Record per swap attempt.
// Wallets are processed in shuffled order; records of one wallet stay together
// and in attempt order.
func (r *Runner) Run(ctx context.Context, wallets []Wallet) []Record {
	if r.rng == nil {
		r.rng = newRandSource(r.Seed)
	}
	if r.Executor != nil && r.Executor.rng == nil {
		r.Executor.rng = r.rng
	}
	threads := r.Settings.Threads
	if threads < 1 {
		threads = 1
	}

	wallets = append([]Wallet(nil), wallets...)
	r.random().Shuffle(len(wallets), func(i, j int) { wallets[i], wallets[j] = wallets[j], wallets[i] })

	var g errgroup.Group
	g.SetLimit(threads)
	results := make([][]Record, len(wallets))
	for i, w := range wallets {
		i, w := i, w
		g.Go(func() error {
			if r.Settings.RunMode == config.ModeCircular {
				results[i] = r.runCircular(ctx, w)
			} else {
				results[i] = r.runWallet(ctx, w)
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []Record
	for _, rs := range results {
		out = append(out, rs...)
	}
	return out
}

func (r *Runner) runWallet(ctx context.Context, w Wallet) []Record {
	st := r.Settings
	log := r.logger().WithField("wallet", w.Address.Hex())
	if err := r.accountDelay(ctx, log); err != nil {
		return nil
	}

	sources := r.routes(st.SourceNetworks, st.FromTokens)
	if len(sources) == 0 {
		log.Errorf("[abort] no source network/token pair is known")
		return nil
	}
	n := r.random().IntBetween(st.TxCountMin, st.TxCountMax)
	log.Infof("[account] %d transactions planned", n)

	records := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		if ctx.Err() != nil {
			break
		}
		src := sources[r.random().Intn(len(sources))]
		var dests []route
		for _, d := range r.routes(st.DestinationNetworks, st.ToTokens) {
			if d.network != src.network {
				dests = append(dests, d)
			}
		}
		rec := Record{
			Wallet:        w.Address,
			TxIndex:       i,
			TxCount:       n,
			SourceNetwork: src.network,
			FromToken:     src.token.Symbol,
		}
		if len(dests) == 0 {
			rec.Status = StatusFailed
			rec.Error = fmt.Sprintf("no destination differs from %s", src.network)
			records = append(records, rec)
			continue
		}
		dst := dests[r.random().Intn(len(dests))]
		pct := r.random().Uniform(st.PercentMin, st.PercentMax)
		records = append(records, r.attempt(ctx, w, rec, src, dst, pct))

		if i < n {
			d := r.random().Between(st.TxDelayMin, st.TxDelayMax)
			log.Infof("[account] next transaction in %s", d.Round(time.Second))
			if err := sleepCtx(ctx, d); err != nil {
				break
			}
		}
	}
	return records
}

// attempt runs one swap bounded by SWAP_TIMEOUT and always returns a record.
func (r *Runner) attempt(ctx context.Context, w Wallet, rec Record, src, dst route, pct float64) Record {
	start := time.Now()
	rec.DestNetwork = dst.network
	rec.ToToken = dst.token.Symbol
	rec.Status = StatusFailed

	timeout := r.Settings.SwapTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	failed := func(err error) Record {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timeout after %s: %w", timeout, err)
		}
		rec.Error = err.Error()
		rec.Duration = time.Since(start)
		return rec
	}

	client, err := r.Clients.Get(actx, src.network)
	if err != nil {
		return failed(err)
	}
	dest, ok := r.Registry.Network(dst.network)
	if !ok {
		return failed(fmt.Errorf("unknown network %q", dst.network))
	}
	nativeTok, ok := r.Registry.NativeToken(src.network)
	if !ok {
		return failed(fmt.Errorf("no native token on %q", src.network))
	}
	acct := chain.NewAccount(client, w.Key)

	amount, err := r.Planner.Plan(actx, acct, src.token, nativeTok, pct)
	if err != nil {
		return failed(err)
	}
	rec.Amount = amount.Amount

	out, err := r.Executor.Execute(actx, SwapRequest{
		Account:         acct,
		Dest:            dest,
		FromToken:       src.token,
		ToToken:         dst.token,
		Amount:          amount,
		AllowanceFactor: r.Settings.AllowanceFactor,
		ApproveDelayMin: r.Settings.ApproveDelayMin,
		ApproveDelayMax: r.Settings.ApproveDelayMax,
	})
	var se *SwapError
	if errors.As(err, &se) {
		rec.Mode = se.Mode
	}
	if err != nil {
		return failed(err)
	}

	rec.Status = StatusSuccess
	rec.Amount = out.Amount.Amount
	rec.Output = out.Output
	rec.Mode = out.Mode.String()
	rec.TxHash = out.TxHash
	rec.TxURL = out.TxURL
	rec.USDVolume = r.usdVolume(ctx, out.Amount)
	rec.Duration = time.Since(start)
	return rec
}

// usdVolume is amount × price; a failed lookup counts as zero.
func (r *Runner) usdVolume(ctx context.Context, a networks.TokenAmount) decimal.Decimal {
	if r.Prices == nil {
		return decimal.Zero
	}
	p, err := r.Prices.Price(ctx, a.Token.Symbol)
	if err != nil {
		r.logger().WithError(err).Warnf("[price] %s unavailable, volume counted as 0", a.Token.Symbol)
		return decimal.Zero
	}
	return a.Amount.Mul(p)
}

func (r *Runner) accountDelay(ctx context.Context, log logrus.FieldLogger) error {
	d := r.random().Between(r.Settings.AccountDelayMin, r.Settings.AccountDelayMax)
	if d <= 0 {
		return ctx.Err()
	}
	log.Infof("[account] starting in %s", d.Round(time.Second))
	return sleepCtx(ctx, d)
}

// routes lists the (network, token) pairs the registry knows, in config order.
func (r *Runner) routes(slugs, symbols []string) []route {
	var out []route
	for _, slug := range slugs {
		for _, sym := range symbols {
			if t, ok := r.Registry.Token(slug, sym); ok {
				out = append(out, route{network: slug, token: t})
			}
		}
	}
	return out
}
