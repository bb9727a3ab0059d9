// Package config loads process configuration from flags, AMMLAB_* environment
// variables and an optional YAML file.
//
// Precedence is flags > environment > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "AMMLAB"

// Default values.
const (
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultPollInterval   = time.Second
	DefaultTokenASupply   = "100000e18"
	DefaultTokenBSupply   = "10000e18"
	DefaultLiquidityA     = "50000e18"
	DefaultLiquidityB     = "500e18"
	DefaultSwapAmount     = "100e18"
	DefaultSwapCount      = 10
	DefaultSwapInterval   = 2 * time.Second
	DefaultSwapPolicy     = "fail-fast"
	DefaultReportDir      = "output"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// Config is the full process configuration.
type Config struct {
	RPCURL     string `mapstructure:"rpc_url" validate:"omitempty,url"`
	WSURL      string `mapstructure:"ws_url" validate:"omitempty,url"`
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int64  `mapstructure:"chain_id" validate:"gte=0"` // 0 = ask the node

	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout" validate:"gt=0"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	GasLimit       uint64        `mapstructure:"gas_limit"` // 0 = estimate

	ContractsDir string `mapstructure:"contracts_dir"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
	SolcPath     string `mapstructure:"solc_path"`

	TokenASupply string        `mapstructure:"token_a_supply" validate:"required"`
	TokenBSupply string        `mapstructure:"token_b_supply" validate:"required"`
	LiquidityA   string        `mapstructure:"liquidity_a" validate:"required"`
	LiquidityB   string        `mapstructure:"liquidity_b" validate:"required"`
	SwapAmount   string        `mapstructure:"swap_amount" validate:"required"`
	SwapCount    int           `mapstructure:"swap_count" validate:"gte=0"`
	SwapInterval time.Duration `mapstructure:"swap_interval" validate:"gte=0"`
	SwapPolicy   string        `mapstructure:"swap_policy" validate:"oneof=fail-fast continue"`

	Simulate      bool   `mapstructure:"simulate"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	MetricsAddr   string `mapstructure:"metrics_addr"`
	ReportDir     string `mapstructure:"report_dir"`
	LogLevel      string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat     string `mapstructure:"log_format" validate:"oneof=console json"`
	NameSeed      int64  `mapstructure:"name_seed"`

	// Amounts holds the parsed token amounts. Set by Validate.
	Amounts Amounts `mapstructure:"-"`
}

// Amounts are the token quantities of a run, in base units.
type Amounts struct {
	TokenASupply *big.Int
	TokenBSupply *big.Int
	LiquidityA   *big.Int
	LiquidityB   *big.Int
	SwapAmount   *big.Int
}

// flagSpec maps a config key to its command-line flag.
type flagSpec struct {
	key   string
	flag  string
	usage string
	def   any
}

var flagSpecs = []flagSpec{
	{"rpc_url", "rpc-url", "JSON-RPC HTTP endpoint (AMMLAB_RPC_URL)", ""},
	{"ws_url", "ws-url", "JSON-RPC WebSocket endpoint for newHeads (optional)", ""},
	{"private_key", "private-key", "hex signing key (prefer AMMLAB_PRIVATE_KEY)", ""},
	{"chain_id", "chain-id", "chain id for EIP-155 signing (0 = query node)", int64(0)},
	{"confirm_timeout", "confirm-timeout", "maximum wait for one confirmation", DefaultConfirmTimeout},
	{"poll_interval", "poll-interval", "receipt polling interval", DefaultPollInterval},
	{"gas_limit", "gas-limit", "fixed gas limit (0 = estimate)", uint64(0)},
	{"contracts_dir", "contracts-dir", "directory with Solidity sources and contracts.yaml (empty = embedded)", ""},
	{"artifacts_dir", "artifacts-dir", "directory with precompiled JSON artifacts (skips solc)", ""},
	{"solc_path", "solc-path", "solc binary", "solc"},
	{"token_a_supply", "token-a-supply", "initial supply of token A", DefaultTokenASupply},
	{"token_b_supply", "token-b-supply", "initial supply of token B", DefaultTokenBSupply},
	{"liquidity_a", "liquidity-a", "token A deposited into the pool", DefaultLiquidityA},
	{"liquidity_b", "liquidity-b", "token B deposited into the pool", DefaultLiquidityB},
	{"swap_amount", "swap-amount", "token A sold per swap", DefaultSwapAmount},
	{"swap_count", "swap-count", "number of swaps", DefaultSwapCount},
	{"swap_interval", "swap-interval", "minimum spacing between swaps (0 disables)", DefaultSwapInterval},
	{"swap_policy", "swap-policy", "swap failure policy: fail-fast or continue", DefaultSwapPolicy},
	{"simulate", "simulate", "run against the in-memory ledger", false},
	{"postgres_dsn", "postgres-dsn", "PostgreSQL DSN for run history (optional)", ""},
	{"clickhouse_dsn", "clickhouse-dsn", "ClickHouse DSN for swap analytics (optional)", ""},
	{"metrics_addr", "metrics-addr", "Prometheus /metrics and /health address (empty to disable)", ""},
	{"report_dir", "report-dir", "directory for run reports (empty to disable)", DefaultReportDir},
	{"log_level", "log-level", "log level: debug, info, warn, error", DefaultLogLevel},
	{"log_format", "log-format", "log format: console or json", DefaultLogFormat},
	{"name_seed", "name-seed", "seed for token display names (0 = random)", int64(0)},
}

// RegisterFlags adds every config flag to fs and binds it to v.
func RegisterFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	for _, s := range flagSpecs {
		switch def := s.def.(type) {
		case string:
			fs.String(s.flag, def, s.usage)
		case int:
			fs.Int(s.flag, def, s.usage)
		case int64:
			fs.Int64(s.flag, def, s.usage)
		case uint64:
			fs.Uint64(s.flag, def, s.usage)
		case bool:
			fs.Bool(s.flag, def, s.usage)
		case time.Duration:
			fs.Duration(s.flag, def, s.usage)
		default:
			return fmt.Errorf("flag %s: unsupported default %T", s.flag, s.def)
		}
		if err := v.BindPFlag(s.key, fs.Lookup(s.flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", s.flag, err)
		}
	}
	return nil
}

// NewViper returns a viper instance holding the defaults. Environment
// variables are bound by Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for _, s := range flagSpecs {
		v.SetDefault(s.key, s.def)
	}
	return v
}

// bindEnv maps every key to its AMMLAB_<KEY> variable.
func bindEnv(v *viper.Viper) error {
	var problems []Problem
	for _, s := range flagSpecs {
		env := EnvPrefix + "_" + strings.ToUpper(s.key)
		if err := v.BindEnv(s.key, env); err != nil {
			problems = append(problems, Problem{Key: s.key, Message: fmt.Sprintf("bind %s: %v", env, err)})
		}
	}
	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// Load reads the config file (if path is set), decodes v and validates the result.
// Configuration problems are returned as *Error.
func Load(v *viper.Viper, path string) (*Config, error) {
	return load(v, path, true)
}

// LoadOffline is Load for commands that never talk to a node: the signing
// key and RPC endpoint are not required.
func LoadOffline(v *viper.Viper, path string) (*Config, error) {
	return load(v, path, false)
}

func load(v *viper.Viper, path string, online bool) (*Config, error) {
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Problems: []Problem{{Key: "config", Message: err.Error()}}}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Problems: []Problem{{Key: "config", Message: err.Error()}}}
	}
	if err := cfg.validate(online && !cfg.Simulate); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}

// Validate checks cfg and parses its amounts. The signing key and RPC
// endpoint are required unless Simulate is set.
func (c *Config) Validate() error {
	return c.validate(!c.Simulate)
}

func (c *Config) validate(requireNode bool) error {
	var problems []Problem

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &Error{Problems: []Problem{{Key: "config", Message: err.Error()}}}
		}
		for _, fe := range verrs {
			problems = append(problems, Problem{Key: fe.Field(), Message: describe(fe)})
		}
	}

	if requireNode {
		if c.PrivateKey == "" {
			problems = append(problems, Problem{Key: "private_key", Message: "signing key is required (set " + EnvPrefix + "_PRIVATE_KEY)"})
		}
		if c.RPCURL == "" {
			problems = append(problems, Problem{Key: "rpc_url", Message: "RPC endpoint is required (set " + EnvPrefix + "_RPC_URL)"})
		}
	}

	amounts := []struct {
		key string
		raw string
		dst **big.Int
	}{
		{"token_a_supply", c.TokenASupply, &c.Amounts.TokenASupply},
		{"token_b_supply", c.TokenBSupply, &c.Amounts.TokenBSupply},
		{"liquidity_a", c.LiquidityA, &c.Amounts.LiquidityA},
		{"liquidity_b", c.LiquidityB, &c.Amounts.LiquidityB},
		{"swap_amount", c.SwapAmount, &c.Amounts.SwapAmount},
	}
	for _, a := range amounts {
		if a.raw == "" {
			continue
		}
		v, err := ParseAmount(a.raw)
		if err != nil {
			problems = append(problems, Problem{Key: a.key, Message: err.Error()})
			continue
		}
		if v.Sign() <= 0 {
			problems = append(problems, Problem{Key: a.key, Message: "must be positive"})
			continue
		}
		*a.dst = v
	}

	if len(problems) == 0 {
		if c.Amounts.LiquidityA.Cmp(c.Amounts.TokenASupply) > 0 {
			problems = append(problems, Problem{Key: "liquidity_a", Message: "exceeds token A supply"})
		}
		if c.Amounts.LiquidityB.Cmp(c.Amounts.TokenBSupply) > 0 {
			problems = append(problems, Problem{Key: "liquidity_b", Message: "exceeds token B supply"})
		}
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "oneof":
		return fmt.Sprintf("%v is not one of [%s]", fe.Value(), fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("%v must be %s %s", fe.Value(), map[string]string{"gt": ">", "gte": ">="}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ParseAmount parses a non-negative integer amount. Scientific notation
// with an integer mantissa is accepted, e.g. "100e18".
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	mantissa, exp, hasExp := strings.Cut(strings.ToLower(s), "e")

	v, ok := new(big.Int).SetString(mantissa, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if !hasExp {
		return v, nil
	}

	e, ok := new(big.Int).SetString(exp, 10)
	if !ok || e.Sign() < 0 || e.Cmp(big.NewInt(77)) > 0 {
		return nil, fmt.Errorf("invalid amount exponent in %q", s)
	}
	return v.Mul(v, new(big.Int).Exp(big.NewInt(10), e, nil)), nil
}
