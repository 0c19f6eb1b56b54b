package config

import (
	"math/big"
	"os"
	"strings"
	"time"

	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. APPROVAL_SPENDER_API_URL.
const EnvPrefix = "APPROVAL"

// Config is the configuration of the approval tooling.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Chains    []ChainConfig   `mapstructure:"chains"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Spender   SpenderConfig   `mapstructure:"spender"`
	Allowance AllowanceConfig `mapstructure:"allowance"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Risk      RiskConfig      `mapstructure:"risk"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ChainConfig struct {
	Name        string `mapstructure:"name"`
	Type        string `mapstructure:"type"`
	ChainID     uint64 `mapstructure:"chain_id"`
	RpcURL      string `mapstructure:"rpc_url"`
	TxType      uint64 `mapstructure:"tx_type"`
	WaitNBlocks uint64 `mapstructure:"wait_n_blocks"`
	PrivateKey  string `mapstructure:"private_key"`
}

// DatabaseConfig points at the Postgres database holding chains, RPCs and
// spender risk factors. An empty DSN disables it.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SpenderConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	TTL     time.Duration `mapstructure:"ttl"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AllowanceConfig struct {
	StaleTime time.Duration `mapstructure:"stale_time"`
}

// ApprovalConfig holds defaults for the approve command.
type ApprovalConfig struct {
	Token           string `mapstructure:"token"`
	Spender         string `mapstructure:"spender"`
	Amount          string `mapstructure:"amount"`
	RequiredChainID uint64 `mapstructure:"required_chain_id"`
}

type RiskConfig struct {
	Listen       string        `mapstructure:"listen"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	Burst        int           `mapstructure:"burst"`
	ClientIdle   time.Duration `mapstructure:"client_idle"`
	SessionToken string        `mapstructure:"session_token"`
}

// DefaultConfig returns the configuration used for every unset key.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Spender: SpenderConfig{
			TTL:     5 * time.Minute,
			Timeout: 10 * time.Second,
		},
		Allowance: AllowanceConfig{
			StaleTime: 5 * time.Second,
		},
		Approval: ApprovalConfig{
			Amount: "max",
		},
		Risk: RiskConfig{
			Listen:     ":8080",
			RateLimit:  5,
			Burst:      10,
			ClientIdle: 10 * time.Minute,
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("spender.api_url", cfg.Spender.APIURL)
	v.SetDefault("spender.ttl", cfg.Spender.TTL)
	v.SetDefault("spender.timeout", cfg.Spender.Timeout)
	v.SetDefault("allowance.stale_time", cfg.Allowance.StaleTime)
	v.SetDefault("approval.token", cfg.Approval.Token)
	v.SetDefault("approval.spender", cfg.Approval.Spender)
	v.SetDefault("approval.amount", cfg.Approval.Amount)
	v.SetDefault("approval.required_chain_id", cfg.Approval.RequiredChainID)
	v.SetDefault("risk.listen", cfg.Risk.Listen)
	v.SetDefault("risk.rate_limit", cfg.Risk.RateLimit)
	v.SetDefault("risk.burst", cfg.Risk.Burst)
	v.SetDefault("risk.client_idle", cfg.Risk.ClientIdle)
	v.SetDefault("risk.session_token", cfg.Risk.SessionToken)
}

// Load reads the configuration from path, the environment and a .env file in
// the working directory, in increasing order of precedence for the environment.
// An empty path looks for approval.{yaml,json,toml} in the working directory
// and tolerates its absence.
//
// Parameters:
// - path: the configuration file, or empty.
//
// Returns:
// - *Config: the validated configuration.
// - error: an error if reading, decoding or validation fails.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("approval")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "log.format must be text or json, got %q", c.Log.Format)
	}

	seen := make(map[uint64]bool, len(c.Chains))
	for i, chain := range c.Chains {
		if chain.ChainID == 0 {
			return errors.Wrapf(commonerrors.ErrInvalidChainID, "chains[%d]", i)
		}
		if seen[chain.ChainID] {
			return errors.Wrapf(commonerrors.ErrChainExists, "chains[%d]: chain %d", i, chain.ChainID)
		}
		seen[chain.ChainID] = true

		if types.ParseChainType(chain.Type) == types.UNKNOWN {
			return errors.Wrapf(commonerrors.ErrInvalidChainType, "chains[%d]: %q", i, chain.Type)
		}
		if chain.RpcURL == "" {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chains[%d]: rpc_url is required", i)
		}
	}

	if c.Spender.TTL <= 0 || c.Spender.Timeout <= 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "spender.ttl and spender.timeout must be positive")
	}
	if c.Allowance.StaleTime < 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "allowance.stale_time must not be negative")
	}
	if _, err := ParseAmount(c.Approval.Amount); err != nil {
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "approval.amount: %v", err)
	}
	if c.Risk.RateLimit <= 0 || c.Risk.Burst <= 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "risk.rate_limit and risk.burst must be positive")
	}

	return nil
}

// ChainConfigs converts the configured chains.
func (c *Config) ChainConfigs() []*types.ChainConfig {
	configs := make([]*types.ChainConfig, 0, len(c.Chains))
	for _, chain := range c.Chains {
		configs = append(configs, &types.ChainConfig{
			Name:        chain.Name,
			ChainType:   types.ParseChainType(chain.Type),
			ChainID:     chain.ChainID,
			RpcUrl:      chain.RpcURL,
			TxType:      chain.TxType,
			WaitNBlocks: chain.WaitNBlocks,
			PrivateKey:  chain.PrivateKey,
		})
	}
	return configs
}

// PrivateKeys returns the configured owner keys by chain id.
func (c *Config) PrivateKeys() map[uint64]string {
	keys := make(map[uint64]string, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.PrivateKey != "" {
			keys[chain.ChainID] = chain.PrivateKey
		}
	}
	return keys
}

// ParseAmount parses an approval amount in token base units. Empty and "max"
// mean the infinite approval and return nil. Decimal and 0x-prefixed hex are accepted.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "max") {
		return nil, nil
	}

	amount, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, errors.Errorf("invalid amount %q", s)
	}

	request := types.ApprovalRequest{Amount: amount}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return amount, nil
}

// NewLogger builds the logger described by c.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
