package chain

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// NativeAddress marks the native coin in balance lists.
const NativeAddress = "native"

// Token is an ERC-20 contract known to the registry.
type Token struct {
	Address string `json:"address" yaml:"address"`
	Symbol  string `json:"symbol" yaml:"symbol"`
	Name    string `json:"name" yaml:"name"`
}

// Network describes one EVM chain.
type Network struct {
	ChainID int64  `json:"chain_id"`
	Name    string `json:"name"`
	// Slug is the blockchain id sent to the strategy service.
	Slug         string  `json:"slug"`
	NativeSymbol string  `json:"native_symbol"`
	NativeName   string  `json:"native_name"`
	RPCURL       string  `json:"-"`
	Explorer     string  `json:"explorer"`
	Tokens       []Token `json:"tokens,omitempty"`
}

// HexChainID returns the 0x-prefixed chain id used by wallet providers.
func (n Network) HexChainID() string {
	return fmt.Sprintf("0x%x", n.ChainID)
}

var builtinNetworks = []Network{
	{
		ChainID: 1, Name: "Ethereum", Slug: "ethereum",
		NativeSymbol: "ETH", NativeName: "Ethereum",
		RPCURL:   "https://mainnet.infura.io/v3/${INFURA_ID}",
		Explorer: "https://etherscan.io",
		Tokens: []Token{
			{"0xdAC17F958D2ee523a2206206994597C13D831ec7", "USDT", "Tether USD"},
			{"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", "USD Coin"},
			{"0x6B175474E89094C44Da98b954EedeAC495271d0F", "DAI", "Dai Stablecoin"},
			{"0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", "WBTC", "Wrapped BTC"},
			{"0x514910771AF9Ca656af840dff83E8264EcF986CA", "LINK", "ChainLink Token"},
			{"0x7D1AfA7B718fb893dB30A3aBc0Cfc608AaCfeBB0", "MATIC", "Polygon"},
			{"0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", "UNI", "Uniswap"},
			{"0x95aD61b0a150d79219dCF64E1E6Cc01f0B64C4cE", "SHIB", "SHIBA INU"},
		},
	},
	{
		ChainID: 137, Name: "Polygon", Slug: "polygon",
		NativeSymbol: "MATIC", NativeName: "Polygon",
		RPCURL:   "https://polygon-rpc.com",
		Explorer: "https://polygonscan.com",
		Tokens: []Token{
			{"0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", "USDC", "USD Coin (PoS)"},
			{"0xc2132D05D31c914a87C6611C10748AEb04B58e8F", "USDT", "Tether USD (PoS)"},
			{"0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", "DAI", "Dai Stablecoin (PoS)"},
			{"0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", "WETH", "Wrapped Ether"},
			{"0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", "WMATIC", "Wrapped Matic"},
		},
	},
	{
		ChainID: 42161, Name: "Arbitrum One", Slug: "arbitrum",
		NativeSymbol: "ETH", NativeName: "Ethereum",
		RPCURL:   "https://arb1.arbitrum.io/rpc",
		Explorer: "https://arbiscan.io",
		Tokens: []Token{
			{"0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8", "USDC", "USD Coin (Arb1)"},
			{"0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", "USDT", "Tether USD (Arb1)"},
			{"0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", "DAI", "Dai Stablecoin"},
			{"0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", "WETH", "Wrapped Ether"},
		},
	},
	{
		ChainID: 10, Name: "Optimism", Slug: "optimism",
		NativeSymbol: "ETH", NativeName: "Ethereum",
		RPCURL:   "https://mainnet.optimism.io",
		Explorer: "https://optimistic.etherscan.io",
		Tokens: []Token{
			{"0x7F5c764cBc14f9669B88837ca1490cCa17c31607", "USDC", "USD Coin"},
			{"0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", "USDT", "Tether USD"},
			{"0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", "DAI", "Dai Stablecoin"},
			{"0x4200000000000000000000000000000000000006", "WETH", "Wrapped Ether"},
		},
	},
	{
		ChainID: 56, Name: "BNB Chain", Slug: "bsc",
		NativeSymbol: "BNB", NativeName: "BNB Chain",
		RPCURL:   "https://bsc-dataseed.binance.org",
		Explorer: "https://bscscan.com",
		Tokens: []Token{
			{"0x55d398326f99059fF775485246999027B3197955", "USDT", "Tether USD (BSC)"},
			{"0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", "USDC", "USD Coin (BSC)"},
			{"0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3", "DAI", "Dai Stablecoin (BSC)"},
			{"0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", "WBNB", "Wrapped BNB"},
		},
	},
	{
		ChainID: 43114, Name: "Avalanche", Slug: "avalanche",
		NativeSymbol: "AVAX", NativeName: "Avalanche",
		RPCURL:   "https://api.avax.network/ext/bc/C/rpc",
		Explorer: "https://snowtrace.io",
	},
	{
		ChainID: 250, Name: "Fantom", Slug: "fantom",
		NativeSymbol: "FTM", NativeName: "Fantom",
		RPCURL:   "https://rpc.ftm.tools",
		Explorer: "https://ftmscan.com",
	},
}

// Registry holds the networks a deployment can read from.
// A Registry is immutable after construction.
type Registry struct {
	byID map[int64]Network
	ids  []int64
}

// NewRegistry returns the built-in networks merged with overrides.
//
// An override for a known chain replaces only its non-empty fields; an
// override for an unknown chain adds it. RPC URLs are expanded against the
// environment (for ${INFURA_ID}).
func NewRegistry(overrides ...Network) *Registry {
	r := &Registry{byID: make(map[int64]Network, len(builtinNetworks)+len(overrides))}
	for _, n := range builtinNetworks {
		r.add(n)
	}
	for _, o := range overrides {
		if current, ok := r.byID[o.ChainID]; ok {
			r.byID[o.ChainID] = merge(current, o)
			continue
		}
		r.add(o)
	}
	for id, n := range r.byID {
		n.RPCURL = os.ExpandEnv(n.RPCURL)
		if n.NativeSymbol == "" {
			n.NativeSymbol, n.NativeName = NativeCurrency(n.ChainID)
		}
		if n.Slug == "" {
			n.Slug = strings.ToLower(strings.ReplaceAll(n.Name, " ", "-"))
		}
		r.byID[id] = n
	}
	return r
}

func (r *Registry) add(n Network) {
	n.Tokens = slices.Clone(n.Tokens)
	r.byID[n.ChainID] = n
	r.ids = append(r.ids, n.ChainID)
}

func merge(base, o Network) Network {
	if o.Name != "" {
		base.Name = o.Name
	}
	if o.Slug != "" {
		base.Slug = o.Slug
	}
	if o.NativeSymbol != "" {
		base.NativeSymbol = o.NativeSymbol
	}
	if o.NativeName != "" {
		base.NativeName = o.NativeName
	}
	if o.RPCURL != "" {
		base.RPCURL = o.RPCURL
	}
	if o.Explorer != "" {
		base.Explorer = o.Explorer
	}
	if len(o.Tokens) > 0 {
		base.Tokens = slices.Clone(o.Tokens)
	}
	return base
}

// Lookup returns the network for chainID.
func (r *Registry) Lookup(chainID int64) (Network, bool) {
	n, ok := r.byID[chainID]
	if ok {
		n.Tokens = slices.Clone(n.Tokens)
	}
	return n, ok
}

// All returns every network in registration order.
func (r *Registry) All() []Network {
	out := make([]Network, 0, len(r.ids))
	for _, id := range r.ids {
		n, _ := r.Lookup(id)
		out = append(out, n)
	}
	return out
}

// NativeCurrency returns the native coin of chainID, defaulting to ETH.
func NativeCurrency(chainID int64) (symbol, name string) {
	for _, n := range builtinNetworks {
		if n.ChainID == chainID {
			return n.NativeSymbol, n.NativeName
		}
	}
	return "ETH", "Ethereum"
}
