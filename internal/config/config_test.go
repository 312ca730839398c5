package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEGENMINT_CONFIG_NAME", "missing-config")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Service.HTTPPort)
	assert.Equal(t, int64(10_000), cfg.Mint.SendAmountSats)
	assert.Equal(t, 1.0, cfg.Mint.FeeRate)
	assert.Equal(t, 5*time.Second, cfg.Mint.FinalizeDelay)
	assert.Equal(t, "static", cfg.Mint.AddressSource)
	assert.Equal(t, "timer", cfg.Mint.Scheduler)
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval)
	assert.Equal(t, "fake", cfg.Minter.Kind)

	params, err := cfg.NetworkParams()
	require.NoError(t, err)
	assert.Equal(t, &chaincfg.TestNet3Params, params)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "degenmint.yaml")
	content := `
service:
  http_port: 8080
mint:
  network: regtest
  fee_rate: 3
  finalize_delay: 2s
retry:
  max_attempts: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("DEGENMINT_MINT_SEND_AMOUNT_SATS", "546")
	t.Setenv("DEGENMINT_RETRY_MAX_ATTEMPTS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.Equal(t, "regtest", cfg.Mint.Network)
	assert.Equal(t, 3.0, cfg.Mint.FeeRate)
	assert.Equal(t, 2*time.Second, cfg.Mint.FinalizeDelay)
	assert.Equal(t, int64(546), cfg.Mint.SendAmountSats)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() AppConfig {
		return AppConfig{
			Service: ServiceConfig{IdempotencyStore: "memory"},
			Mint: MintConfig{
				Network:        "testnet3",
				SendAmountSats: 10_000,
				FeeRate:        1,
				AddressSource:  "static",
				Verifier:       "none",
				Store:          "memory",
				Scheduler:      "timer",
			},
			Minter: MinterConfig{Kind: "fake"},
		}
	}

	base := valid()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{name: "unknown network", mutate: func(c *AppConfig) { c.Mint.Network = "dogecoin" }},
		{name: "zero fee rate", mutate: func(c *AppConfig) { c.Mint.FeeRate = 0 }},
		{name: "negative send amount", mutate: func(c *AppConfig) { c.Mint.SendAmountSats = -1 }},
		{name: "unknown scheduler", mutate: func(c *AppConfig) { c.Mint.Scheduler = "cron" }},
		{name: "unknown minter", mutate: func(c *AppConfig) { c.Minter.Kind = "ord" }},
		{name: "postgres without dsn", mutate: func(c *AppConfig) { c.Mint.Store = "postgres" }},
		{name: "asynq with memory store", mutate: func(c *AppConfig) { c.Mint.Scheduler = "asynq" }},
		{name: "negative finalize delay", mutate: func(c *AppConfig) { c.Mint.FinalizeDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAsynqWithPostgres(t *testing.T) {
	cfg := AppConfig{
		Service: ServiceConfig{IdempotencyStore: "memory"},
		Mint: MintConfig{
			Network:        "testnet3",
			SendAmountSats: 10_000,
			FeeRate:        1,
			AddressSource:  "static",
			Verifier:       "none",
			Store:          "postgres",
			Scheduler:      "asynq",
		},
		Database: DatabaseConfig{DSN: "postgres://localhost/degenmint"},
		Minter:   MinterConfig{Kind: "fake"},
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsAsynqWithMemoryStore(t *testing.T) {
	t.Setenv("DEGENMINT_MINT_SCHEDULER", "asynq")
	_, err := Load("")
	require.ErrorContains(t, err, "mint.store=postgres")
}

func TestNetworkParamsAliases(t *testing.T) {
	for name, want := range map[string]*chaincfg.Params{
		"mainnet":  &chaincfg.MainNetParams,
		"livenet":  &chaincfg.MainNetParams,
		"testnet":  &chaincfg.TestNet3Params,
		"TESTNET3": &chaincfg.TestNet3Params,
		"regtest":  &chaincfg.RegressionNetParams,
		"signet":   &chaincfg.SigNetParams,
	} {
		got, err := NetworkParams(name)
		require.NoError(t, err, name)
		assert.Same(t, want, got, name)
	}
}
