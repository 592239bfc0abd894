package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/caarlos0/env/v11"
)

// NativeCurrency describes the chain's base asset used for the activation fee
// and for denominating earnings.
type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals int
}

// Config holds the deployment-environment inputs for the service. All values
// are read once at startup and never mutated at runtime.
type Config struct {
	Port          string `env:"PORT" envDefault:"8000"`
	PublicOrigin  string `env:"PUBLIC_ORIGIN" envDefault:"http://localhost:8000"`
	CORSOrigins   string `env:"CORS_ALLOWED_ORIGINS"`
	KeystoreDir   string `env:"KEYSTORE_DIR" envDefault:".keystore"`
	KeystorePass  string `env:"KEYSTORE_PASSPHRASE"`
	StorePath     string `env:"STORE_PATH" envDefault:"refgraph.db"`
	ContractAddr  string `env:"CONTRACT_ADDRESS" envDefault:"0x0000000000000000000000000000000000000000"`
	ChainID       uint64 `env:"CHAIN_ID" envDefault:"56"`
	ChainName     string `env:"CHAIN_NAME" envDefault:"Binance Smart Chain"`
	RPCOverride   string `env:"RPC_URL"`
	ActivationFee string `env:"ACTIVATION_FEE" envDefault:"0.1"`
}

// Per-chain endpoints for the chains the contract is deployed on.
var rpcURLs = map[uint64]string{
	56: "https://bsc-dataseed.binance.org",
	97: "https://data-seed-prebsc-1-s1.binance.org:8545", // Testnet
}

var blockExplorers = map[uint64]string{
	56: "https://bscscan.com",
	97: "https://testnet.bscscan.com",
}

// BNB is the native currency on both supported chains.
var nativeCurrency = NativeCurrency{
	Name:     "BNB",
	Symbol:   "BNB",
	Decimals: 18,
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if _, err := cfg.FeeBaseUnits(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RPCURL returns the RPC endpoint for the configured chain. An explicit
// RPC_URL overrides the built-in per-chain map.
func (c *Config) RPCURL() (string, error) {
	if c.RPCOverride != "" {
		return c.RPCOverride, nil
	}
	url, ok := rpcURLs[c.ChainID]
	if !ok {
		return "", fmt.Errorf("no RPC endpoint for chain %d", c.ChainID)
	}
	return url, nil
}

// NativeCurrency returns the display metadata for the chain's base asset.
func (c *Config) NativeCurrency() NativeCurrency {
	return nativeCurrency
}

// FeeBaseUnits converts the configured activation fee from its decimal form
// into integer base units of the native currency.
func (c *Config) FeeBaseUnits() (*big.Int, error) {
	wei, err := ParseDecimal(c.ActivationFee, nativeCurrency.Decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid activation fee %q: %w", c.ActivationFee, err)
	}
	return wei, nil
}

// ExplorerTxURL returns the block-explorer page for a transaction hash, or ""
// when the chain has no known explorer.
func (c *Config) ExplorerTxURL(txHash string) string {
	base, ok := blockExplorers[c.ChainID]
	if !ok {
		return ""
	}
	return base + "/tx/" + txHash
}

// ExplorerAddressURL returns the block-explorer page for an address.
func (c *Config) ExplorerAddressURL(addr string) string {
	base, ok := blockExplorers[c.ChainID]
	if !ok {
		return ""
	}
	return base + "/address/" + addr
}

// CORSAllowedOrigins splits the configured origin list, defaulting to the
// local frontend when unset.
func (c *Config) CORSAllowedOrigins() []string {
	if c.CORSOrigins == "" {
		return []string{"http://localhost:3000"}
	}
	origins := strings.Split(c.CORSOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	return origins
}

// ReferralLink builds the shareable referral URL for an account address.
func (c *Config) ReferralLink(account string) string {
	return strings.TrimRight(c.PublicOrigin, "/") + "/ref/" + account
}
