package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
)

// AppConfig ties together every configuration section of the service.
type AppConfig struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Mint      MintConfig      `mapstructure:"mint"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Bitcoind  BitcoindConfig  `mapstructure:"bitcoind"`
	Minter    MinterConfig    `mapstructure:"minter"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServiceConfig struct {
	HTTPPort          int           `mapstructure:"http_port"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	IdempotencyWindow time.Duration `mapstructure:"idempotency_window"`
	// IdempotencyStore is one of memory, file or postgres.
	IdempotencyStore     string `mapstructure:"idempotency_store"`
	IdempotencyStorePath string `mapstructure:"idempotency_store_path"`
	DLQPath              string `mapstructure:"dlq_path"`
}

// MintConfig is the quoting and lifecycle policy.
type MintConfig struct {
	Network        string  `mapstructure:"network"`
	SendAmountSats int64   `mapstructure:"send_amount_sats"`
	FeeRate        float64 `mapstructure:"fee_rate"`
	// PaymentAddress is used by the static address source.
	PaymentAddress string `mapstructure:"payment_address"`
	// AddressSource is static or bitcoind.
	AddressSource string `mapstructure:"address_source"`
	// Verifier is none or bitcoind.
	Verifier         string        `mapstructure:"verifier"`
	MinConfirmations int64         `mapstructure:"min_confirmations"`
	FinalizeDelay    time.Duration `mapstructure:"finalize_delay"`
	// Store is memory or postgres.
	Store string `mapstructure:"store"`
	// Scheduler is timer or asynq.
	Scheduler string `mapstructure:"scheduler"`
}

type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier int           `mapstructure:"backoff_multiplier"`
}

// PollerConfig drives the client-side verification loop.
type PollerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxErrors      int           `mapstructure:"max_errors"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Host        string `mapstructure:"host"`
	Port        string `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type BitcoindConfig struct {
	Host   string `mapstructure:"host"`
	User   string `mapstructure:"user"`
	Pass   string `mapstructure:"pass"`
	TLS    bool   `mapstructure:"tls"`
	Wallet string `mapstructure:"wallet"`
	Label  string `mapstructure:"label"`
}

// MinterConfig selects how inscriptions are produced: fake or eth.
type MinterConfig struct {
	Kind            string        `mapstructure:"kind"`
	RPCURL          string        `mapstructure:"rpc_url"`
	PrivateKey      string        `mapstructure:"private_key"`
	ContractAddress string        `mapstructure:"contract_address"`
	ReceiptTimeout  time.Duration `mapstructure:"receipt_timeout"`
}

type AuthConfig struct {
	HMACSecret string        `mapstructure:"hmac_secret"`
	ClockSkew  time.Duration `mapstructure:"clock_skew"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	envPrefix         = "DEGENMINT"
	defaultConfigName = "degenmint"

	// placeholderPaymentAddress is a testnet address with no known key holder.
	// Every request shares it, so it must never be used for real funds.
	placeholderPaymentAddress = "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7"
)

// Load reads configuration from path (or from degenmint.{yaml,json,toml} in
// the working directory or /etc/degenmint when path is empty), then applies
// DEGENMINT_* environment overrides, e.g. DEGENMINT_MINT_FEE_RATE.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		name := os.Getenv("DEGENMINT_CONFIG_NAME")
		if name == "" {
			name = defaultConfigName
		}
		v.SetConfigName(name)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/degenmint")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers a default for every key so environment overrides
// apply even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("service.http_port", 3000)
	v.SetDefault("service.shutdown_timeout", 15*time.Second)
	v.SetDefault("service.idempotency_window", 24*time.Hour)
	v.SetDefault("service.idempotency_store", "memory")
	v.SetDefault("service.idempotency_store_path", filepath.Join(os.TempDir(), "degenmint-idem.json"))
	v.SetDefault("service.dlq_path", filepath.Join(os.TempDir(), "degenmint-dlq"))

	v.SetDefault("mint.network", chaincfg.TestNet3Params.Name)
	v.SetDefault("mint.send_amount_sats", 10_000)
	v.SetDefault("mint.fee_rate", 1.0)
	v.SetDefault("mint.payment_address", placeholderPaymentAddress)
	v.SetDefault("mint.address_source", "static")
	v.SetDefault("mint.verifier", "none")
	v.SetDefault("mint.min_confirmations", 0)
	v.SetDefault("mint.finalize_delay", 5*time.Second)
	v.SetDefault("mint.store", "memory")
	v.SetDefault("mint.scheduler", "timer")

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff", 500*time.Millisecond)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("retry.backoff_multiplier", 2)

	v.SetDefault("poller.base_url", "http://localhost:3000")
	v.SetDefault("poller.interval", 5*time.Second)
	v.SetDefault("poller.max_errors", 3)
	v.SetDefault("poller.initial_backoff", time.Second)
	v.SetDefault("poller.max_backoff", 30*time.Second)
	v.SetDefault("poller.request_timeout", 10*time.Second)

	v.SetDefault("database.dsn", "")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.user", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "inscriptions")
	v.SetDefault("redis.concurrency", 10)

	v.SetDefault("bitcoind.host", "localhost:18332")
	v.SetDefault("bitcoind.user", "")
	v.SetDefault("bitcoind.pass", "")
	v.SetDefault("bitcoind.tls", false)
	v.SetDefault("bitcoind.wallet", "")
	v.SetDefault("bitcoind.label", "degenmint")

	v.SetDefault("minter.kind", "fake")
	v.SetDefault("minter.rpc_url", "")
	v.SetDefault("minter.private_key", "")
	v.SetDefault("minter.contract_address", "")
	v.SetDefault("minter.receipt_timeout", 2*time.Minute)

	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("auth.clock_skew", time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 2.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func (c *AppConfig) Validate() error {
	if _, err := c.NetworkParams(); err != nil {
		return err
	}
	if c.Mint.FeeRate <= 0 {
		return fmt.Errorf("mint.fee_rate must be positive, got %v", c.Mint.FeeRate)
	}
	if c.Mint.SendAmountSats < 0 {
		return fmt.Errorf("mint.send_amount_sats must not be negative, got %d", c.Mint.SendAmountSats)
	}
	if err := oneOf("mint.address_source", c.Mint.AddressSource, "static", "bitcoind"); err != nil {
		return err
	}
	if err := oneOf("mint.verifier", c.Mint.Verifier, "none", "bitcoind"); err != nil {
		return err
	}
	if err := oneOf("mint.store", c.Mint.Store, "memory", "postgres"); err != nil {
		return err
	}
	if err := oneOf("mint.scheduler", c.Mint.Scheduler, "timer", "asynq"); err != nil {
		return err
	}
	if err := oneOf("service.idempotency_store", c.Service.IdempotencyStore, "memory", "file", "postgres"); err != nil {
		return err
	}
	if err := oneOf("minter.kind", c.Minter.Kind, "fake", "eth"); err != nil {
		return err
	}
	if (c.Mint.Store == "postgres" || c.Service.IdempotencyStore == "postgres") && c.Database.DSN == "" {
		return errors.New("database.dsn is required for postgres storage")
	}
	if c.Mint.Scheduler == "asynq" && c.Mint.Store != "postgres" {
		return errors.New("mint.scheduler=asynq needs mint.store=postgres so workers see the requests")
	}
	if c.Mint.FinalizeDelay < 0 {
		return errors.New("mint.finalize_delay must not be negative")
	}
	return nil
}

// NetworkParams resolves mint.network to btcd chain parameters.
func (c *AppConfig) NetworkParams() (*chaincfg.Params, error) {
	return NetworkParams(c.Mint.Network)
}

func NetworkParams(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case "mainnet", "livenet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("mint.network: unknown network %q", name)
	}
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: %q is not one of %s", key, value, strings.Join(allowed, ", "))
}
