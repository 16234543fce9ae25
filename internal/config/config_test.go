package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	st, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://li.quest/v1", st.AggregatorURL)
	assert.Equal(t, 1.1, st.AllowanceFactor)
	assert.Equal(t, 70.0, st.FastThreshold)
	assert.Equal(t, 300*time.Second, st.SwapTimeout)
	assert.Equal(t, 5*time.Second, st.ReceiptPoll)
	assert.Equal(t, 60*time.Second, st.GasGatePoll)
	assert.Equal(t, []string{"USDC"}, st.FromTokens)
	require.NoError(t, st.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SOURCE_NETWORKS", " Base, arbitrum_one ")
	t.Setenv("DESTINATION_NETWORKS", "optimism")
	t.Setenv("GAS_PRICE_LIMITS", "Base:0.5,ethereum:12")
	t.Setenv("RPC_URLS", "base=https://base.example, linea = https://linea.example")
	t.Setenv("THREADS", "4")
	t.Setenv("TX_DELAY_MIN", "2s")
	t.Setenv("TX_DELAY_MAX", "9s")

	st, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"base", "arbitrum_one"}, st.SourceNetworks)
	assert.Equal(t, []string{"optimism"}, st.DestinationNetworks)
	assert.Equal(t, map[string]float64{"base": 0.5, "ethereum": 12}, st.GasPriceLimits)
	assert.Equal(t, "https://base.example", st.RPCURLs["base"])
	assert.Equal(t, "https://linea.example", st.RPCURLs["linea"])
	assert.Equal(t, 4, st.Threads)
	assert.Equal(t, 9*time.Second, st.TxDelayMax)
	require.NoError(t, st.Validate())
}

func TestValidate(t *testing.T) {
	base := func() Settings {
		st, err := Load()
		require.NoError(t, err)
		return st
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"same single network", func(s *Settings) {
			s.SourceNetworks = []string{"base"}
			s.DestinationNetworks = []string{"base", "base"}
		}},
		{"empty destination", func(s *Settings) { s.DestinationNetworks = nil }},
		{"inverted percent", func(s *Settings) { s.PercentMin, s.PercentMax = 60, 40 }},
		{"percent above 100", func(s *Settings) { s.PercentMax = 120 }},
		{"allowance below one", func(s *Settings) { s.AllowanceFactor = 0.9 }},
		{"zero threads", func(s *Settings) { s.Threads = 0 }},
		{"inverted approve delay", func(s *Settings) { s.ApproveDelayMin, s.ApproveDelayMax = 5 * time.Second, time.Second }},
		{"negative ceiling", func(s *Settings) { s.GasPriceLimits = map[string]float64{"base": -1} }},
		{"fast threshold out of range", func(s *Settings) { s.FastThreshold = 101 }},
		{"unknown run mode", func(s *Settings) { s.RunMode = "withdraw" }},
		{"circular end outside sources", func(s *Settings) {
			s.RunMode, s.CircularToken, s.CircularEndNetwork = ModeCircular, "USDC", "linea"
		}},
		{"circular token not a to-token", func(s *Settings) {
			s.RunMode, s.CircularToken, s.CircularEndNetwork = ModeCircular, "DAI", "base"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := base()
			tt.mutate(&st)
			assert.Error(t, st.Validate())
		})
	}
}

func TestCircularMode(t *testing.T) {
	t.Setenv("RUN_MODE", " Circular ")
	t.Setenv("CIRCULAR_ROUNDS", "2")
	t.Setenv("CIRCULAR_END_NETWORK", "Base")
	t.Setenv("CIRCULAR_TOKEN", "USDC")

	st, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeCircular, st.RunMode)
	assert.Equal(t, "base", st.CircularEndNetwork)
	assert.Equal(t, 2, st.CircularRounds)
	require.NoError(t, st.Validate())
}
