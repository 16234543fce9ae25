package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Run modes.
const (
	ModeBridge   = "bridge"
	ModeCircular = "circular"
	ModeBalances = "balances"
)

// Settings keeps all configuration options.
// Env keys are listed in the struct tags; maps use "key:value,key:value".
type Settings struct {
	RunMode string `envconfig:"RUN_MODE" default:"bridge"`

	AggregatorURL    string        `envconfig:"AGGREGATOR_URL" default:"https://li.quest/v1"`
	AggregatorAPIKey string        `envconfig:"AGGREGATOR_API_KEY"`
	AggregatorRPS    float64       `envconfig:"AGGREGATOR_RPS" default:"2"`
	QuoteTimeout     time.Duration `envconfig:"QUOTE_TIMEOUT" default:"30s"`
	PriceURL         string        `envconfig:"PRICE_URL" default:"https://api.binance.com/api/v3"`

	// RPC_URLS entries are "slug=url"; URLs carry ':' so the map form cannot be used.
	RPCOverrides []string          `envconfig:"RPC_URLS"`
	RPCURLs      map[string]string `ignored:"true"`
	RPCRPS       float64           `envconfig:"RPC_RPS" default:"10"`

	SourceNetworks      []string `envconfig:"SOURCE_NETWORKS" default:"arbitrum_one,optimism,base"`
	DestinationNetworks []string `envconfig:"DESTINATION_NETWORKS" default:"arbitrum_one,optimism,base"`
	FromTokens          []string `envconfig:"FROM_TOKENS" default:"USDC"`
	ToTokens            []string `envconfig:"TO_TOKENS" default:"USDC"`

	PercentMin float64 `envconfig:"PERCENT_MIN" default:"100"`
	PercentMax float64 `envconfig:"PERCENT_MAX" default:"100"`

	TxCountMin      int           `envconfig:"TX_COUNT_MIN" default:"1"`
	TxCountMax      int           `envconfig:"TX_COUNT_MAX" default:"1"`
	TxDelayMin      time.Duration `envconfig:"TX_DELAY_MIN" default:"5s"`
	TxDelayMax      time.Duration `envconfig:"TX_DELAY_MAX" default:"5s"`
	AccountDelayMin time.Duration `envconfig:"ACCOUNT_DELAY_MIN" default:"10s"`
	AccountDelayMax time.Duration `envconfig:"ACCOUNT_DELAY_MAX" default:"10s"`
	ApproveDelayMin time.Duration `envconfig:"APPROVE_DELAY_MIN" default:"1s"`
	ApproveDelayMax time.Duration `envconfig:"APPROVE_DELAY_MAX" default:"3s"`
	Threads         int           `envconfig:"THREADS" default:"1"`

	CircularRounds     int    `envconfig:"CIRCULAR_ROUNDS" default:"1"`
	CircularEndNetwork string `envconfig:"CIRCULAR_END_NETWORK"`
	CircularToken      string `envconfig:"CIRCULAR_TOKEN"`

	AllowanceFactor    float64            `envconfig:"ALLOWANCE_FACTOR" default:"1.1"`
	GasPriceLimits     map[string]float64 `envconfig:"GAS_PRICE_LIMITS"`
	RandomBridgeChance float64            `envconfig:"RANDOM_BRIDGE_CHANCE" default:"0"`
	FastThreshold      float64            `envconfig:"FAST_THRESHOLD" default:"70"`

	SwapTimeout    time.Duration `envconfig:"SWAP_TIMEOUT" default:"300s"`
	ReceiptTimeout time.Duration `envconfig:"RECEIPT_TIMEOUT" default:"300s"`
	ReceiptPoll    time.Duration `envconfig:"RECEIPT_POLL" default:"5s"`
	GasGatePoll    time.Duration `envconfig:"GAS_GATE_POLL" default:"60s"`

	GasReserveLimit uint64  `envconfig:"GAS_RESERVE_LIMIT" default:"100000"`
	GasReserveMul   float64 `envconfig:"GAS_RESERVE_MUL" default:"1.2"`

	UseProxy     bool   `envconfig:"USE_PROXY" default:"false"`
	ProxiesFile  string `envconfig:"PROXIES_FILE" default:"data/proxies.txt"`
	AccountsFile string `envconfig:"ACCOUNTS_FILE" default:"data/accounts.txt"`
	CheckRPC     bool   `envconfig:"CHECK_RPC" default:"true"`

	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads settings from the process environment.
func Load() (Settings, error) {
	var st Settings
	if err := envconfig.Process("", &st); err != nil {
		return Settings{}, fmt.Errorf("failed to process env var: %w", err)
	}
	st.normalize()
	return st, nil
}

func (s *Settings) normalize() {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, v := range in {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	trim := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, v := range in {
			v = strings.TrimSpace(v)
			if v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	s.RunMode = strings.ToLower(strings.TrimSpace(s.RunMode))
	s.CircularEndNetwork = strings.ToLower(strings.TrimSpace(s.CircularEndNetwork))
	s.CircularToken = strings.TrimSpace(s.CircularToken)
	s.SourceNetworks = lower(s.SourceNetworks)
	s.DestinationNetworks = lower(s.DestinationNetworks)
	s.FromTokens = trim(s.FromTokens)
	s.ToTokens = trim(s.ToTokens)

	s.RPCURLs = make(map[string]string, len(s.RPCOverrides))
	for _, kv := range s.RPCOverrides {
		slug, u, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		slug = strings.ToLower(strings.TrimSpace(slug))
		if u = strings.TrimSpace(u); slug != "" && u != "" {
			s.RPCURLs[slug] = u
		}
	}
	if len(s.GasPriceLimits) > 0 {
		m := make(map[string]float64, len(s.GasPriceLimits))
		for k, v := range s.GasPriceLimits {
			m[strings.ToLower(strings.TrimSpace(k))] = v
		}
		s.GasPriceLimits = m
	}
}

// Validate reports the first inconsistent option.
func (s Settings) Validate() error {
	switch s.RunMode {
	case ModeBridge, ModeBalances:
	case ModeCircular:
		if s.CircularRounds < 1 {
			return fmt.Errorf("circular rounds must be >= 1, got %d", s.CircularRounds)
		}
		if !contains(s.SourceNetworks, s.CircularEndNetwork) {
			return fmt.Errorf("circular end network %q is not a source network", s.CircularEndNetwork)
		}
		if !contains(s.ToTokens, s.CircularToken) {
			return fmt.Errorf("circular token %q is not a to-token", s.CircularToken)
		}
	default:
		return fmt.Errorf("unknown run mode %q", s.RunMode)
	}
	if len(s.SourceNetworks) == 0 || len(s.DestinationNetworks) == 0 {
		return errors.New("source and destination networks are required")
	}
	if len(s.FromTokens) == 0 || len(s.ToTokens) == 0 {
		return errors.New("from and to tokens are required")
	}
	if sameSingle(s.SourceNetworks, s.DestinationNetworks) {
		return fmt.Errorf("source and destination network are the same (%s)", s.SourceNetworks[0])
	}
	if s.PercentMin <= 0 || s.PercentMax > 100 || s.PercentMin > s.PercentMax {
		return fmt.Errorf("bad percent range [%v, %v]", s.PercentMin, s.PercentMax)
	}
	if s.TxCountMin < 1 || s.TxCountMin > s.TxCountMax {
		return fmt.Errorf("bad tx count range [%d, %d]", s.TxCountMin, s.TxCountMax)
	}
	for name, r := range map[string][2]time.Duration{
		"tx delay":      {s.TxDelayMin, s.TxDelayMax},
		"account delay": {s.AccountDelayMin, s.AccountDelayMax},
		"approve delay": {s.ApproveDelayMin, s.ApproveDelayMax},
	} {
		if r[0] < 0 || r[0] > r[1] {
			return fmt.Errorf("bad %s range [%s, %s]", name, r[0], r[1])
		}
	}
	if s.Threads < 1 {
		return errors.New("threads must be >= 1")
	}
	if s.AllowanceFactor < 1.0 {
		return fmt.Errorf("allowance factor must be >= 1.0, got %v", s.AllowanceFactor)
	}
	if s.RandomBridgeChance < 0 || s.RandomBridgeChance > 100 {
		return fmt.Errorf("random bridge chance out of range: %v", s.RandomBridgeChance)
	}
	if s.FastThreshold < 0 || s.FastThreshold > 100 {
		return fmt.Errorf("fast threshold out of range: %v", s.FastThreshold)
	}
	for slug, g := range s.GasPriceLimits {
		if g <= 0 {
			return fmt.Errorf("gas price limit for %s must be > 0", slug)
		}
	}
	if s.SwapTimeout <= 0 || s.ReceiptTimeout <= 0 || s.ReceiptPoll <= 0 || s.GasGatePoll <= 0 {
		return errors.New("timeouts and poll intervals must be > 0")
	}
	if s.GasReserveMul < 1.0 {
		return fmt.Errorf("gas reserve multiplier must be >= 1.0, got %v", s.GasReserveMul)
	}
	return nil
}

func sameSingle(a, b []string) bool {
	uniq := func(in []string) map[string]struct{} {
		m := make(map[string]struct{}, len(in))
		for _, v := range in {
			m[v] = struct{}{}
		}
		return m
	}
	ua, ub := uniq(a), uniq(b)
	if len(ua) != 1 || len(ub) != 1 {
		return false
	}
	return a[0] == b[0]
}

func contains(in []string, v string) bool {
	for _, s := range in {
		if s == v {
			return true
		}
	}
	return false
}
