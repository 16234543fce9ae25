package report

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/bridge-runner/internal/bridgecore"
)

// Pair is a source (network, token).
type Pair struct {
	Network string
	Token   string
}

// WalletStats aggregates one wallet's attempts.
type WalletStats struct {
	Wallet    common.Address
	Succeeded int
	Failed    int
	// USD volume of successful swaps per source pair.
	Volume map[Pair]decimal.Decimal
}

func (w WalletStats) TotalUSD() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range w.Volume {
		sum = sum.Add(v)
	}
	return sum
}

type Summary struct {
	Wallets   []WalletStats
	Succeeded int
	Failed    int
	TotalUSD  decimal.Decimal
	Failures  []bridgecore.Record
}

// Summarize merges the records of a run. Wallets are sorted by address.
func Summarize(records []bridgecore.Record) Summary {
	byWallet := map[common.Address]*WalletStats{}
	s := Summary{TotalUSD: decimal.Zero}
	for _, r := range records {
		ws, ok := byWallet[r.Wallet]
		if !ok {
			ws = &WalletStats{Wallet: r.Wallet, Volume: map[Pair]decimal.Decimal{}}
			byWallet[r.Wallet] = ws
		}
		if r.Status != bridgecore.StatusSuccess {
			ws.Failed++
			s.Failed++
			s.Failures = append(s.Failures, r)
			continue
		}
		ws.Succeeded++
		s.Succeeded++
		k := Pair{Network: r.SourceNetwork, Token: r.FromToken}
		ws.Volume[k] = ws.Volume[k].Add(r.USDVolume)
		s.TotalUSD = s.TotalUSD.Add(r.USDVolume)
	}
	for _, ws := range byWallet {
		s.Wallets = append(s.Wallets, *ws)
	}
	sort.Slice(s.Wallets, func(i, j int) bool {
		return strings.ToLower(s.Wallets[i].Wallet.Hex()) < strings.ToLower(s.Wallets[j].Wallet.Hex())
	})
	return s
}

// Log writes the summary, one line per wallet and per failure.
func Log(log logrus.FieldLogger, s Summary) {
	for _, w := range s.Wallets {
		pairs := make([]Pair, 0, len(w.Volume))
		for p := range w.Volume {
			pairs = append(pairs, p)
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].Network != pairs[j].Network {
				return pairs[i].Network < pairs[j].Network
			}
			return pairs[i].Token < pairs[j].Token
		})
		parts := make([]string, 0, len(pairs))
		for _, p := range pairs {
			parts = append(parts, p.Network+"/"+p.Token+"=$"+w.Volume[p].StringFixed(2))
		}
		log.WithField("wallet", w.Wallet.Hex()).Infof("[summary] ok=%d failed=%d volume=$%s %s",
			w.Succeeded, w.Failed, w.TotalUSD().StringFixed(2), strings.Join(parts, " "))
	}
	for _, r := range s.Failures {
		log.WithField("wallet", r.Wallet.Hex()).Warnf("[failed] #%d/%d %s/%s -> %s/%s: %s",
			r.TxIndex, r.TxCount, r.SourceNetwork, r.FromToken, r.DestNetwork, r.ToToken, r.Error)
	}
	log.Infof("[summary] %d succeeded, %d failed, volume $%s", s.Succeeded, s.Failed, s.TotalUSD.StringFixed(2))
}
