package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// URBIT_PUBLISH_RPC_URL or URBIT_PUBLISH_GENESIS_STARS.
const EnvPrefix = "URBIT_PUBLISH"

type GenesisConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Galaxy              uint8  `mapstructure:"galaxy"`
	Stars               int    `mapstructure:"stars"`
	PlanetsPerStar      int    `mapstructure:"planets_per_star"`
	ScanLimit           int    `mapstructure:"scan_limit"`
	ClaimAttempts       int    `mapstructure:"claim_attempts"`
	KeysFile            string `mapstructure:"keys_file"`
	ConfigurePlanetKeys bool   `mapstructure:"configure_planet_keys"`
}

type TokensConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ApproveAmount string `mapstructure:"approve_amount"`
}

type PollsConfig struct {
	Duration uint64 `mapstructure:"duration"`
	Cooldown uint64 `mapstructure:"cooldown"`
}

type VerifyConfig struct {
	Provider        string        `mapstructure:"provider"`
	Confirmations   uint64        `mapstructure:"confirmations"`
	StatusTimeout   time.Duration `mapstructure:"status_timeout"`
	Concurrency     int           `mapstructure:"concurrency"`
	EtherscanURL    string        `mapstructure:"etherscan_url"`
	EtherscanAPIKey string        `mapstructure:"etherscan_api_key"`
	SourcifyURL     string        `mapstructure:"sourcify_url"`
}

// Config holds all runtime configuration. Values come from
// .urbit-publish.yaml, URBIT_PUBLISH_* env vars and CLI flags.
type Config struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	PrivateKey     string        `mapstructure:"private_key"`
	PublicAddress  string        `mapstructure:"public_address"`
	GasFeeCap      int64         `mapstructure:"gas_fee_cap"`
	GasTipCap      int64         `mapstructure:"gas_tip_cap"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Confirmations  uint64        `mapstructure:"confirmations"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	SettleTimeout  time.Duration `mapstructure:"settle_timeout"`
	ArtifactsDir   string        `mapstructure:"artifacts_dir"`
	ManifestPath   string        `mapstructure:"manifest_path"`
	LogFormat      string        `mapstructure:"log_format"`
	Verbose        bool          `mapstructure:"verbose"`
	Polls          PollsConfig   `mapstructure:"polls"`
	Genesis        GenesisConfig `mapstructure:"genesis"`
	Tokens         TokensConfig  `mapstructure:"tokens"`
	Verify         VerifyConfig  `mapstructure:"verify"`
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("chain_id", 0)
	v.SetDefault("private_key", "")
	v.SetDefault("public_address", "")
	v.SetDefault("gas_fee_cap", 2_000_000_000)
	v.SetDefault("gas_tip_cap", 1_000_000_000)
	v.SetDefault("timeout", 30*time.Minute)
	v.SetDefault("poll_interval", 2*time.Second)
	v.SetDefault("confirmations", 1)
	v.SetDefault("confirm_timeout", 5*time.Minute)
	v.SetDefault("settle_timeout", time.Minute)
	v.SetDefault("artifacts_dir", "artifacts")
	v.SetDefault("manifest_path", "ui/src/contracts.json")
	v.SetDefault("log_format", "text")
	v.SetDefault("verbose", false)

	v.SetDefault("polls.duration", 2_592_000)
	v.SetDefault("polls.cooldown", 2_592_000)

	v.SetDefault("genesis.enabled", true)
	v.SetDefault("genesis.galaxy", 0)
	v.SetDefault("genesis.stars", 1)
	v.SetDefault("genesis.planets_per_star", 3)
	v.SetDefault("genesis.scan_limit", 100)
	v.SetDefault("genesis.claim_attempts", 3)
	v.SetDefault("genesis.keys_file", "")
	v.SetDefault("genesis.configure_planet_keys", false)

	v.SetDefault("tokens.enabled", true)
	v.SetDefault("tokens.approve_amount", "max")

	v.SetDefault("verify.provider", "")
	v.SetDefault("verify.confirmations", 5)
	v.SetDefault("verify.status_timeout", 3*time.Minute)
	v.SetDefault("verify.concurrency", 2)
	v.SetDefault("verify.etherscan_url", "https://api.etherscan.io/v2/api")
	v.SetDefault("verify.etherscan_api_key", "")
	v.SetDefault("verify.sourcify_url", "https://sourcify.dev/server")
}

// Load reads configuration from the global viper instance.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom applies defaults and environment bindings to v and unmarshals it.
func LoadFrom(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RPCURL) == "" {
		errs = append(errs, errors.New("rpc_url is required"))
	}
	if c.Confirmations == 0 {
		errs = append(errs, errors.New("confirmations must be at least 1"))
	}
	if c.Genesis.ScanLimit <= 0 {
		errs = append(errs, errors.New("genesis.scan_limit must be positive"))
	}
	if c.Genesis.ClaimAttempts <= 0 {
		errs = append(errs, errors.New("genesis.claim_attempts must be positive"))
	}
	if c.Genesis.Stars < 0 || c.Genesis.PlanetsPerStar < 0 {
		errs = append(errs, errors.New("genesis.stars and genesis.planets_per_star cannot be negative"))
	}
	switch strings.ToLower(c.Verify.Provider) {
	case "", "etherscan", "sourcify":
	default:
		errs = append(errs, fmt.Errorf("verify.provider must be etherscan or sourcify, got %q", c.Verify.Provider))
	}
	if strings.EqualFold(c.Verify.Provider, "etherscan") && c.Verify.EtherscanAPIKey == "" {
		errs = append(errs, errors.New("verify.etherscan_api_key is required for etherscan verification"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ValidateSigner additionally requires a private key, for commands that send
// transactions.
func (c Config) ValidateSigner() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		return errors.New("private_key is required")
	}
	return nil
}
