package networks

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Network describes one EVM chain taking part in a run. Immutable once built.
type Network struct {
	Slug          string
	ChainID       *big.Int
	RPCURL        string
	ExplorerTxURL string
	// LatestOnly marks nodes that reject the "pending" block selector.
	LatestOnly bool
}

// TxURL returns the explorer link for a transaction hash.
func (n Network) TxURL(hash common.Hash) string {
	if n.ExplorerTxURL == "" {
		return hash.Hex()
	}
	return n.ExplorerTxURL + hash.Hex()
}

// BlockSelector is the selector used for nonce and base fee reads.
func (n Network) BlockSelector() string {
	if n.LatestOnly {
		return "latest"
	}
	return "pending"
}

// Token is a static registry entry; Address is the zero address for native assets.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int32
	Native   bool
}

type netDef struct {
	chainID    int64
	rpc        string
	explorer   string
	latestOnly bool
}

var defaultNetworks = map[string]netDef{
	"ethereum":     {1, "https://eth.llamarpc.com", "https://etherscan.io/tx/", false},
	"arbitrum_one": {42161, "https://arb1.arbitrum.io/rpc", "https://arbiscan.io/tx/", false},
	"optimism":     {10, "https://mainnet.optimism.io", "https://optimistic.etherscan.io/tx/", false},
	"base":         {8453, "https://mainnet.base.org", "https://basescan.org/tx/", false},
	"linea":        {59144, "https://rpc.linea.build", "https://lineascan.build/tx/", false},
	"bsc":          {56, "https://bsc-dataseed.binance.org", "https://bscscan.com/tx/", false},
	"avalanche":    {43114, "https://api.avax.network/ext/bc/C/rpc", "https://snowtrace.io/tx/", false},
	"polygon":      {137, "https://polygon-rpc.com", "https://polygonscan.com/tx/", false},
	"zksync_era":   {324, "https://mainnet.era.zksync.io", "https://explorer.zksync.io/tx/", false},
	"scroll":       {534353, "https://rpc.scroll.io", "https://scrollscan.com/tx/", false},
	"unichain":     {130, "https://mainnet.unichain.org", "https://uniscan.xyz/tx/", false},
	"abstract":     {2741, "https://api.mainnet.abs.xyz", "https://abscan.org/tx/", true},
}

func tok(symbol, addr string, decimals int32) Token {
	return Token{Symbol: symbol, Address: common.HexToAddress(addr), Decimals: decimals}
}

func native(symbol string) Token {
	return Token{Symbol: symbol, Decimals: 18, Native: true}
}

var defaultTokens = map[string][]Token{
	"ethereum": {
		native("ETH"),
		tok("USDC", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6),
		tok("USDT", "0xdAC17F958D2ee523a2206206994597C13D831ec7", 6),
	},
	"arbitrum_one": {
		native("ETH"),
		tok("USDC", "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", 6),
		tok("USDT", "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", 6),
	},
	"optimism": {
		native("ETH"),
		tok("USDC", "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", 6),
		tok("USDT", "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", 6),
	},
	"base": {
		native("ETH"),
		tok("USDC", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 6),
	},
	"linea": {
		native("ETH"),
		tok("USDC", "0x176211869cA2b568f2A7D4EE941E073a821EE1ff", 6),
	},
	"bsc": {
		native("BNB"),
		tok("USDC", "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", 18),
		tok("USDT", "0x55d398326f99059fF775485246999027B3197955", 18),
	},
	"avalanche": {
		native("AVAX"),
		tok("USDC", "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", 6),
		tok("USDT", "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", 6),
	},
	"polygon": {
		native("POL"),
		tok("USDC", "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", 6),
		tok("USDT", "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", 6),
	},
	"zksync_era": {
		native("ETH"),
		tok("USDC.e", "0x3355df6D4c9C3035724Fd0e3914dE96A5a83aaf4", 6),
	},
	"scroll": {
		native("ETH"),
		tok("USDC", "0x06eFdBFf2a14a7c8E15944D1F4A48F9F95F663A4", 6),
	},
	"unichain": {
		native("ETH"),
		tok("USDC", "0x078D782b760474a361dDA0AF3839290b0EF57AD6", 6),
	},
	"abstract": {
		native("ETH"),
		tok("USDC.e", "0x84A71ccD554Cc1b02749b35d22F684CC8ec987e1", 6),
	},
}

// Registry is the read-only network and token table shared by all account tasks.
type Registry struct {
	nets   map[string]Network
	tokens map[string]map[string]Token
}

// NewRegistry builds the default registry; rpcOverrides maps slug to RPC URL.
func NewRegistry(rpcOverrides map[string]string) *Registry {
	r := &Registry{
		nets:   make(map[string]Network, len(defaultNetworks)),
		tokens: make(map[string]map[string]Token, len(defaultTokens)),
	}
	for slug, d := range defaultNetworks {
		rpc := d.rpc
		if u, ok := rpcOverrides[slug]; ok && u != "" {
			rpc = u
		}
		r.nets[slug] = Network{
			Slug:          slug,
			ChainID:       big.NewInt(d.chainID),
			RPCURL:        rpc,
			ExplorerTxURL: d.explorer,
			LatestOnly:    d.latestOnly,
		}
	}
	for slug, list := range defaultTokens {
		m := make(map[string]Token, len(list))
		for _, t := range list {
			m[strings.ToUpper(t.Symbol)] = t
		}
		r.tokens[slug] = m
	}
	return r
}

// AddNetwork registers or replaces a network; used for custom chains and tests.
func (r *Registry) AddNetwork(n Network, tokens ...Token) {
	r.nets[n.Slug] = n
	m, ok := r.tokens[n.Slug]
	if !ok {
		m = make(map[string]Token, len(tokens))
		r.tokens[n.Slug] = m
	}
	for _, t := range tokens {
		m[strings.ToUpper(t.Symbol)] = t
	}
}

func (r *Registry) Network(slug string) (Network, bool) {
	n, ok := r.nets[strings.ToLower(slug)]
	return n, ok
}

func (r *Registry) Token(slug, symbol string) (Token, bool) {
	m, ok := r.tokens[strings.ToLower(slug)]
	if !ok {
		return Token{}, false
	}
	t, ok := m[strings.ToUpper(symbol)]
	return t, ok
}

// NativeToken returns the gas asset of a network.
func (r *Registry) NativeToken(slug string) (Token, bool) {
	for _, t := range r.tokens[strings.ToLower(slug)] {
		if t.Native {
			return t, true
		}
	}
	return Token{}, false
}

// Slugs lists known networks in stable order.
func (r *Registry) Slugs() []string {
	out := make([]string, 0, len(r.nets))
	for s := range r.nets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
