package bridgecore

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// runCircular moves CIRCULAR_TOKEN around the source networks: it starts on the
// network holding the largest balance, visits the others in random order and
// ends on CIRCULAR_END_NETWORK, CIRCULAR_ROUNDS times. Legs whose source
// balance is zero are skipped without a record.
func (r *Runner) runCircular(ctx context.Context, w Wallet) []Record {
	st := r.Settings
	log := r.logger().WithFields(logrus.Fields{"wallet": w.Address.Hex(), "mode": "circular"})
	if err := r.accountDelay(ctx, log); err != nil {
		return nil
	}

	order := r.circularOrder(ctx, w, log)
	if len(order) < 2 {
		log.Errorf("[abort] circular route needs at least two networks, got %v", order)
		return nil
	}
	rounds := st.CircularRounds
	if rounds < 1 {
		rounds = 1
	}
	total := rounds * (len(order) - 1)
	log.Infof("[circular] order %s, %d transactions", strings.Join(order, " -> "), total)

	var records []Record
	idx := 1
	for round := 1; round <= rounds; round++ {
		for i := 0; i+1 < len(order); i++ {
			if ctx.Err() != nil {
				return records
			}
			src, dst := order[i], order[i+1]
			srcTok, ok1 := r.Registry.Token(src, st.CircularToken)
			dstTok, ok2 := r.Registry.Token(dst, st.CircularToken)
			if !ok1 || !ok2 {
				log.Errorf("[circular] %s missing on %s or %s", st.CircularToken, src, dst)
				continue
			}
			bal := r.balanceOf(ctx, w, src, srcTok.Symbol)
			if bal == nil || bal.Sign() <= 0 {
				log.Infof("[circular] no %s on %s, skipping leg", st.CircularToken, src)
				continue
			}
			rec := Record{Wallet: w.Address, TxIndex: idx, TxCount: total, SourceNetwork: src, FromToken: srcTok.Symbol}
			log.Infof("[circular] round %d/%d tx %d/%d %s -> %s", round, rounds, idx, total, src, dst)
			pct := r.random().Uniform(st.PercentMin, st.PercentMax)
			records = append(records, r.attempt(ctx, w, rec, route{src, srcTok}, route{dst, dstTok}, pct))
			idx++

			d := r.random().Between(st.TxDelayMin, st.TxDelayMax)
			log.Infof("[account] next transaction in %s", d.Round(time.Second))
			if err := sleepCtx(ctx, d); err != nil {
				return records
			}
		}
	}
	return records
}

// circularOrder is [start] + shuffled(others) + [end].
func (r *Runner) circularOrder(ctx context.Context, w Wallet, log logrus.FieldLogger) []string {
	st := r.Settings
	end := st.CircularEndNetwork
	start := ""
	var best *big.Int
	for _, slug := range st.SourceNetworks {
		bal := r.balanceOf(ctx, w, slug, st.CircularToken)
		if bal == nil {
			continue
		}
		log.Debugf("[circular] %s balance on %s: %s", st.CircularToken, slug, bal)
		if best == nil || bal.Cmp(best) > 0 {
			start, best = slug, bal
		}
	}
	if start == "" {
		start = end
	}

	var others []string
	for _, slug := range st.SourceNetworks {
		if slug != start && slug != end {
			others = append(others, slug)
		}
	}
	r.random().Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })

	order := append([]string{start}, others...)
	return append(order, end)
}

// balanceOf reads the wallet's balance of symbol on slug; nil when unknown or unreadable.
func (r *Runner) balanceOf(ctx context.Context, w Wallet, slug, symbol string) *big.Int {
	tok, ok := r.Registry.Token(slug, symbol)
	if !ok {
		return nil
	}
	c, err := r.Clients.Get(ctx, slug)
	if err != nil {
		r.logger().WithError(err).Warnf("[balance] %s unavailable", slug)
		return nil
	}
	bal, err := c.Balance(ctx, w.Address, tok)
	if err != nil {
		r.logger().WithError(err).Warnf("[balance] %s %s on %s", w.Address.Hex(), symbol, slug)
		return nil
	}
	return bal
}
