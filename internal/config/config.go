// Package config loads the broker's runtime configuration from environment
// variables, all under the BROKER_ prefix, following the teacher's
// plain-struct-plus-constructor idiom rather than a reflection-based loader.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourusername/broker/internal/tokenregistry"
)

// defaultSaltHex is the Orion Exchange protocol's fixed EIP-712 domain
// salt, the same for every broker regardless of deployment.
const defaultSaltHex = "0xf2d857f4a3edcb9b78b4d503bfe733db1e3f6cdc2b7971ee739626c97e86a557"

// ExchangeConfig configures one venue adapter.
type ExchangeConfig struct {
	Name     string
	Kind     string // "paper" or "http"
	Endpoint string // base URL(s), comma-separated, for Kind == "http"
}

// Config is the broker's full runtime configuration.
type Config struct {
	// HubURL is the websocket endpoint of the hub.
	HubURL string

	// OperatorPrivateKey is the hex-encoded secp256k1 key controlling the
	// broker's on-chain wallet and hub identity.
	OperatorPrivateKey string

	// Salt is the EIP-712 domain separator's salt component. It is the
	// Orion Exchange protocol's fixed domain salt, the same for every
	// deployment; BROKER_SALT may override it but ordinarily shouldn't.
	Salt [32]byte

	// Production selects chain ID 1 over the test network's 3.
	Production bool

	// ChainGatewayEndpoints are the REST base URLs of the settlement
	// contract gateway, tried in round-robin with failover.
	ChainGatewayEndpoints []string

	// GasFeedEndpoint is the REST base URL of the gas price feed.
	GasFeedEndpoint string

	// MatcherAddress and SettlementContract are on-chain addresses the
	// signed orders and contract writes reference.
	MatcherAddress     common.Address
	SettlementContract common.Address

	// FeeAssetAddress is ORN's on-chain address, network-dependent.
	FeeAssetAddress common.Address

	// Tokens are the EVM assets the broker recognizes beyond ORN.
	Tokens []tokenregistry.Token

	// Exchanges configures every venue adapter to construct.
	Exchanges []ExchangeConfig

	// StorePath is where the file-backed store snapshots full state. Empty
	// disables persistence (in-memory only).
	StorePath string

	// SnapshotInterval is how often the store is flushed to StorePath.
	SnapshotInterval time.Duration

	// LiabilityDuePeriod is how long a liability may sit outstanding before
	// the reconciler acts on it.
	LiabilityDuePeriod time.Duration

	// Name and Version identify this broker instance to the hub.
	Name    string
	Version string
}

// Load reads Config from the environment, applying defaults where the spec
// allows one.
func Load() (*Config, error) {
	cfg := &Config{
		HubURL:             getEnv("BROKER_HUB_URL", "wss://orionprotocol.io/v1/broker"),
		OperatorPrivateKey: os.Getenv("BROKER_OPERATOR_KEY"),
		Production:         getBoolEnv("BROKER_PRODUCTION", false),
		GasFeedEndpoint:    getEnv("BROKER_GAS_FEED_URL", ""),
		StorePath:          getEnv("BROKER_STORE_PATH", ""),
		Name:               getEnv("BROKER_NAME", "broker"),
		Version:            getEnv("BROKER_VERSION", "0.1.0"),
	}

	if cfg.OperatorPrivateKey == "" {
		return nil, fmt.Errorf("BROKER_OPERATOR_KEY is required")
	}

	endpoints := getEnv("BROKER_CHAIN_GATEWAY_URLS", "")
	if endpoints == "" {
		return nil, fmt.Errorf("BROKER_CHAIN_GATEWAY_URLS is required")
	}
	cfg.ChainGatewayEndpoints = splitCSV(endpoints)

	matcher := os.Getenv("BROKER_MATCHER_ADDRESS")
	if matcher == "" {
		return nil, fmt.Errorf("BROKER_MATCHER_ADDRESS is required")
	}
	cfg.MatcherAddress = common.HexToAddress(matcher)

	settlement := os.Getenv("BROKER_SETTLEMENT_CONTRACT")
	if settlement == "" {
		return nil, fmt.Errorf("BROKER_SETTLEMENT_CONTRACT is required")
	}
	cfg.SettlementContract = common.HexToAddress(settlement)

	feeAsset := os.Getenv("BROKER_FEE_ASSET_ADDRESS")
	if feeAsset == "" {
		return nil, fmt.Errorf("BROKER_FEE_ASSET_ADDRESS is required")
	}
	cfg.FeeAssetAddress = common.HexToAddress(feeAsset)

	tokens, err := parseTokens(os.Getenv("BROKER_TOKENS"))
	if err != nil {
		return nil, err
	}
	cfg.Tokens = tokens

	exchanges, err := parseExchanges(os.Getenv("BROKER_EXCHANGES"))
	if err != nil {
		return nil, err
	}
	cfg.Exchanges = exchanges

	cfg.SnapshotInterval = getDurationEnv("BROKER_SNAPSHOT_INTERVAL", time.Minute)
	cfg.LiabilityDuePeriod = getDurationEnv("BROKER_LIABILITY_DUE_PERIOD", time.Hour)

	saltHex := getEnv("BROKER_SALT", defaultSaltHex)
	salt, err := parseSalt(saltHex)
	if err != nil {
		return nil, err
	}
	cfg.Salt = salt

	return cfg, nil
}

// parseSalt decodes a 32-byte hex-encoded salt, with or without a 0x prefix.
func parseSalt(raw string) ([32]byte, error) {
	var salt [32]byte
	trimmed := strings.TrimPrefix(raw, "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return salt, fmt.Errorf("invalid BROKER_SALT: %w", err)
	}
	if len(decoded) != 32 {
		return salt, fmt.Errorf("invalid BROKER_SALT: want 32 bytes, got %d", len(decoded))
	}
	copy(salt[:], decoded)
	return salt, nil
}

// parseTokens parses "SYMBOL:address:decimals,..." into tokenregistry.Token
// entries. The native asset is expressed as "ETH::18" (empty address).
func parseTokens(raw string) ([]tokenregistry.Token, error) {
	if raw == "" {
		return nil, nil
	}
	var tokens []tokenregistry.Token
	for _, entry := range splitCSV(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid BROKER_TOKENS entry %q: want SYMBOL:address:decimals", entry)
		}
		decimals, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid decimals in BROKER_TOKENS entry %q: %w", entry, err)
		}
		tokens = append(tokens, tokenregistry.Token{
			Symbol:   strings.ToUpper(parts[0]),
			Address:  common.HexToAddress(parts[1]),
			Decimals: uint8(decimals),
			Native:   parts[1] == "",
		})
	}
	return tokens, nil
}

// parseExchanges parses "name:kind:endpoint,..." into ExchangeConfig
// entries. endpoint is omitted (two-field form) for kind=paper.
func parseExchanges(raw string) ([]ExchangeConfig, error) {
	if raw == "" {
		return nil, fmt.Errorf("BROKER_EXCHANGES is required")
	}
	var exchanges []ExchangeConfig
	for _, entry := range splitCSV(raw) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid BROKER_EXCHANGES entry %q: want name:kind[:endpoint]", entry)
		}
		ec := ExchangeConfig{Name: parts[0], Kind: parts[1]}
		if len(parts) == 3 {
			ec.Endpoint = parts[2]
		}
		exchanges = append(exchanges, ec)
	}
	return exchanges, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
