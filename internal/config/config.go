package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Proxy    ProxyConfig
	Chain    ChainConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ProxyConfig holds the conversion engine's fixed parameters.
type ProxyConfig struct {
	Account          string // engine account funds transit through
	Owner            string // pause/ownership admin
	Stablecoin       string // stablecoin token address
	AssetTypeHex     string // bridge asset-type identifier, hex
	BridgeAccount    string // account the bridge spends from
	TrustedForwarder string // optional meta-tx forwarder
	RegistrarKey     string // secp256k1 key authorizing L2 registrations
	ExchangeAccount  string // sandbox exchange desk inventory account
	ExchangeFeeBps   int    // sandbox exchange fee in basis points

	// ExchangeInventory is the stablecoin float minted to the desk at
	// startup, in base units.
	ExchangeInventory string

	// SupportedTokens lists the tokens the desk quotes, as
	// "address=numerator/denominator" pairs separated by commas. The
	// native asset uses the token address 0xEee...EEeE.
	SupportedTokens string
}

// TokenRate is one desk quote parsed from SupportedTokens.
type TokenRate struct {
	Token       common.Address
	Numerator   *big.Int
	Denominator *big.Int
}

// TokenRates parses the SupportedTokens list.
func (p *ProxyConfig) TokenRates() ([]TokenRate, error) {
	if p.SupportedTokens == "" {
		return nil, nil
	}

	var rates []TokenRate
	for _, entry := range strings.Split(p.SupportedTokens, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		addrPart, ratePart, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("invalid token rate entry %q", entry)
		}
		if !common.IsHexAddress(addrPart) {
			return nil, fmt.Errorf("invalid token address %q", addrPart)
		}
		numPart, denPart, found := strings.Cut(ratePart, "/")
		if !found {
			return nil, fmt.Errorf("invalid rate %q, want numerator/denominator", ratePart)
		}
		num, ok := new(big.Int).SetString(numPart, 10)
		if !ok || num.Sign() <= 0 {
			return nil, fmt.Errorf("invalid rate numerator %q", numPart)
		}
		den, ok := new(big.Int).SetString(denPart, 10)
		if !ok || den.Sign() <= 0 {
			return nil, fmt.Errorf("invalid rate denominator %q", denPart)
		}
		rates = append(rates, TokenRate{
			Token:       common.HexToAddress(addrPart),
			Numerator:   num,
			Denominator: den,
		})
	}
	return rates, nil
}

// ChainConfig holds the optional on-chain deployment a depositor CLI or
// operator tooling talks to. Empty RPCEndpoint disables on-chain mode.
type ChainConfig struct {
	RPCEndpoint   string
	ProxyContract string // deployed conversion proxy contract
	USDCAddress   string
	OperatorKey   string // hex private key for signing transactions
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "conversion_proxy"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Proxy: ProxyConfig{
			Account:           getEnv("PROXY_ACCOUNT", "0x0000000000000000000000000000000000000101"),
			Owner:             getEnv("PROXY_OWNER", ""),
			Stablecoin:        getEnv("STABLECOIN_ADDRESS", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			AssetTypeHex:      getEnv("STABLECOIN_ASSET_TYPE", "0x02c6"),
			BridgeAccount:     getEnv("BRIDGE_ACCOUNT", "0x0000000000000000000000000000000000000102"),
			TrustedForwarder:  getEnv("TRUSTED_FORWARDER", ""),
			RegistrarKey:      getEnv("REGISTRAR_PRIVATE_KEY", ""),
			ExchangeAccount:   getEnv("EXCHANGE_ACCOUNT", "0x0000000000000000000000000000000000000103"),
			ExchangeFeeBps:    getEnvInt("EXCHANGE_FEE_BPS", 0),
			ExchangeInventory: getEnv("EXCHANGE_INVENTORY", "1000000000000"),
			SupportedTokens:   getEnv("SUPPORTED_TOKENS", ""),
		},
		Chain: ChainConfig{
			RPCEndpoint:   getEnv("ETH_RPC_ENDPOINT", ""),
			ProxyContract: getEnv("PROXY_CONTRACT_ADDRESS", ""),
			USDCAddress:   getEnv("ETH_USDC_ADDRESS", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			OperatorKey:   getEnv("OPERATOR_EVM_PRIVATE_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// AssetType parses the configured asset-type identifier.
func (p *ProxyConfig) AssetType() (*big.Int, error) {
	assetType, ok := new(big.Int).SetString(trimHexPrefix(p.AssetTypeHex), 16)
	if !ok {
		return nil, fmt.Errorf("invalid asset type %q", p.AssetTypeHex)
	}
	return assetType, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Proxy.Owner == "" {
		return fmt.Errorf("PROXY_OWNER is required")
	}
	if !common.IsHexAddress(c.Proxy.Owner) {
		return fmt.Errorf("invalid owner address %q", c.Proxy.Owner)
	}
	if !common.IsHexAddress(c.Proxy.Stablecoin) {
		return fmt.Errorf("invalid stablecoin address %q", c.Proxy.Stablecoin)
	}
	if c.Proxy.TrustedForwarder != "" && !common.IsHexAddress(c.Proxy.TrustedForwarder) {
		return fmt.Errorf("invalid trusted forwarder address %q", c.Proxy.TrustedForwarder)
	}
	if _, err := c.Proxy.AssetType(); err != nil {
		return err
	}

	if c.Proxy.RegistrarKey == "" {
		return fmt.Errorf("REGISTRAR_PRIVATE_KEY is required")
	}

	if _, ok := new(big.Int).SetString(c.Proxy.ExchangeInventory, 10); !ok {
		return fmt.Errorf("invalid exchange inventory %q", c.Proxy.ExchangeInventory)
	}
	if _, err := c.Proxy.TokenRates(); err != nil {
		return err
	}

	if c.Chain.RPCEndpoint != "" {
		if c.Chain.ProxyContract == "" {
			return fmt.Errorf("PROXY_CONTRACT_ADDRESS is required in on-chain mode")
		}
		if c.Chain.OperatorKey == "" {
			return fmt.Errorf("OPERATOR_EVM_PRIVATE_KEY is required in on-chain mode")
		}
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
