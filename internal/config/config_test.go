package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("SWAP_AUTH_JWT_SECRET", testSecret)
	t.Setenv("SWAP_AUTH_ADMINS", "alice,bob")
	t.Setenv("SWAP_ENGINE_HUB_TOKEN", "IC.ICP")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Postgres.MigrationsPath)
	assert.Equal(t, "IC.ICP", cfg.Engine.HubToken)
	assert.Equal(t, uint16(30), cfg.Engine.DefaultLPFeeBps)
	assert.Equal(t, 30*time.Second, cfg.Engine.TransferTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Audit.FlushTimeout)
	assert.True(t, cfg.IsAdmin("alice"))
	assert.True(t, cfg.IsAdmin("bob"))
	assert.False(t, cfg.IsAdmin("mallory"))

	eng := cfg.EngineConfig()
	assert.Equal(t, "IC.ICP", eng.HubToken)
	assert.Equal(t, 100_000, eng.ProofCacheSize)
	assert.Equal(t, 5*time.Second, eng.PersistTimeout)
	assert.Equal(t, rpc.CommitmentConfirmed, cfg.BridgeConfig().Commitment)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/swap
auth:
  jwt_secret: `+testSecret+`
  admins: [root]
engine:
  default_lp_fee_bps: 25
  stuck_after: 2m
  persist_timeout: 750ms
solana:
  enabled: true
  rpc_url: http://localhost:8899
  wallet_key: key
  commitment: finalized
`), 0o600))

	t.Setenv("SWAP_ENGINE_DEFAULT_LP_FEE_BPS", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/swap", cfg.DataDir)
	assert.Equal(t, uint16(20), cfg.Engine.DefaultLPFeeBps)
	assert.Equal(t, 2*time.Minute, cfg.Engine.StuckAfter)
	assert.Equal(t, 750*time.Millisecond, cfg.EngineConfig().PersistTimeout)
	assert.True(t, cfg.IsAdmin("root"))
	assert.Equal(t, rpc.CommitmentFinalized, cfg.BridgeConfig().Commitment)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("SWAP_AUTH_JWT_SECRET", testSecret)
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"short secret":       func(c *Config) { c.Auth.JWTSecret = "short" },
		"no data dir":        func(c *Config) { c.DataDir = "" },
		"fee above max":      func(c *Config) { c.Engine.DefaultLPFeeBps = c.Engine.MaxLPFeeBps + 1 },
		"max fee too large":  func(c *Config) { c.Engine.MaxLPFeeBps = 10_000 },
		"zero batch":         func(c *Config) { c.Audit.BatchSize = 0 },
		"log format":         func(c *Config) { c.Log.Format = "xml" },
		"solana without rpc": func(c *Config) { c.Solana.Enabled = true },
		"bad commitment": func(c *Config) {
			c.Solana.Enabled = true
			c.Solana.RPCURL = "http://x"
			c.Solana.WalletKey = "k"
			c.Solana.Commitment = "eventually"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			assert.Error(t, Validate(&c))
		})
	}
	assert.NoError(t, Validate(base))
}
