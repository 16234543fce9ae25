package bridgecore

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/metrics"
)

// GasGate holds submissions while a network's gas price is above its ceiling.
// Networks without a ceiling pass immediately. Waiting is bounded only by ctx.
type GasGate struct {
	// Ceilings in gwei, keyed by network slug.
	Ceilings map[string]float64
	Interval time.Duration
	Metrics  metrics.Recorder
	Log      logrus.FieldLogger
}

// Wait polls the gas price until it is at or below the ceiling and returns the
// number of polls made.
func (g *GasGate) Wait(ctx context.Context, c *chain.Client) (int, error) {
	if g == nil {
		return 0, nil
	}
	slug := c.Network.Slug
	ceilingGwei, ok := g.Ceilings[slug]
	if !ok || ceilingGwei <= 0 {
		return 0, nil
	}
	ceiling := chain.GweiToWei(ceilingGwei)
	interval := g.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	log := g.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	start := time.Now()
	for polls := 1; ; polls++ {
		price, err := c.GasPrice(ctx)
		if err != nil {
			return polls, fmt.Errorf("gas gate: %w", err)
		}
		if price.Cmp(ceiling) <= 0 {
			if polls > 1 {
				log.WithField("network", slug).Infof("[gas-gate] %s gwei within %s, waited %s",
					chain.FmtGwei(price), chain.FmtGwei(ceiling), time.Since(start).Round(time.Second))
			}
			if g.Metrics != nil {
				g.Metrics.GasGateWaited(slug, time.Since(start))
			}
			return polls, nil
		}
		log.WithField("network", slug).Infof("[gas-gate] %s gwei above %s, next check in %s",
			chain.FmtGwei(price), chain.FmtGwei(ceiling), interval)
		if err := sleepCtx(ctx, interval); err != nil {
			return polls, fmt.Errorf("gas gate: %w", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
