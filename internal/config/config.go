package config

import (
	"fmt"
	"time"

	"SwapLedger/internal/bridge"
	"SwapLedger/internal/core"

	"github.com/gagliardetto/solana-go/rpc"
)

// Config is the full process configuration.
type Config struct {
	DataDir       string `mapstructure:"data_dir"`
	CheckpointDir string `mapstructure:"checkpoint_dir"`

	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Solana   SolanaConfig   `mapstructure:"solana"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Workers  WorkersConfig  `mapstructure:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type PostgresConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	MigrationsPath string `mapstructure:"migrations_path"` // empty uses the schema built into the binary
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	LedgerPrefix  string `mapstructure:"ledger_prefix"`  // subject prefix of the native-ledger service
	LedgerAccount string `mapstructure:"ledger_account"` // the exchange's own account on the native ledger
	PublishTxs    bool   `mapstructure:"publish_txs"`
}

type AuthConfig struct {
	JWTSecret string   `mapstructure:"jwt_secret"`
	Admins    []string `mapstructure:"admins"`
}

type EngineConfig struct {
	HubToken        string        `mapstructure:"hub_token"`
	DefaultLPFeeBps uint16        `mapstructure:"default_lp_fee_bps"`
	MaxLPFeeBps     uint16        `mapstructure:"max_lp_fee_bps"`
	ProtocolFeeBps  uint16        `mapstructure:"protocol_fee_bps"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
	StuckAfter      time.Duration `mapstructure:"stuck_after"`
	ReferralTTL     time.Duration `mapstructure:"referral_ttl"`
	PersistTimeout  time.Duration `mapstructure:"persist_timeout"`
	ProofCacheSize  int           `mapstructure:"proof_cache_size"`
}

type SolanaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPCURL          string        `mapstructure:"rpc_url"`
	WalletKey       string        `mapstructure:"wallet_key"`
	Commitment      string        `mapstructure:"commitment"`
	ProofMaxAge     time.Duration `mapstructure:"proof_max_age"`
	ProofMaxSkew    time.Duration `mapstructure:"proof_max_skew"`
	BlockhashMaxAge time.Duration `mapstructure:"blockhash_max_age"`
	BlockhashEvery  time.Duration `mapstructure:"blockhash_refresh"`
	RPCRate         float64       `mapstructure:"rpc_rate"`
	RPCBurst        int           `mapstructure:"rpc_burst"`
}

type AuditConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
	ChannelSize  int           `mapstructure:"channel_size"`
}

type WorkersConfig struct {
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	StuckInterval time.Duration `mapstructure:"stuck_interval"`
	DepositBuffer int           `mapstructure:"deposit_buffer"`
}

// EngineConfig converts to the engine's configuration.
func (c *Config) EngineConfig() core.Config {
	return core.Config{
		HubToken:        c.Engine.HubToken,
		DefaultLPFeeBps: c.Engine.DefaultLPFeeBps,
		MaxLPFeeBps:     c.Engine.MaxLPFeeBps,
		ProtocolFeeBps:  c.Engine.ProtocolFeeBps,
		TransferTimeout: c.Engine.TransferTimeout,
		StuckAfter:      c.Engine.StuckAfter,
		ReferralTTL:     c.Engine.ReferralTTL,
		PersistTimeout:  c.Engine.PersistTimeout,
		ProofCacheSize:  c.Engine.ProofCacheSize,
	}
}

// BridgeConfig converts to the Solana adapter's configuration.
func (c *Config) BridgeConfig() bridge.Config {
	return bridge.Config{
		RPCURL:          c.Solana.RPCURL,
		WalletKey:       c.Solana.WalletKey,
		Commitment:      rpc.CommitmentType(c.Solana.Commitment),
		ProofMaxAge:     c.Solana.ProofMaxAge,
		ProofMaxSkew:    c.Solana.ProofMaxSkew,
		BlockhashMaxAge: c.Solana.BlockhashMaxAge,
		RPCRate:         c.Solana.RPCRate,
		RPCBurst:        c.Solana.RPCBurst,
	}
}

// IsAdmin reports whether principal is in the admin set.
func (c *Config) IsAdmin(principal string) bool {
	for _, a := range c.Auth.Admins {
		if a == principal {
			return true
		}
	}
	return false
}

// Validate checks the values the process cannot start without.
func Validate(c *Config) error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if f := c.Log.Format; f != "json" && f != "console" {
		return fmt.Errorf("log.format %q is not one of json, console", f)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Engine.MaxLPFeeBps >= 10_000 {
		return fmt.Errorf("engine.max_lp_fee_bps must be below 10000, got %d", c.Engine.MaxLPFeeBps)
	}
	if c.Engine.DefaultLPFeeBps > c.Engine.MaxLPFeeBps {
		return fmt.Errorf("engine.default_lp_fee_bps %d exceeds max %d", c.Engine.DefaultLPFeeBps, c.Engine.MaxLPFeeBps)
	}
	if c.Engine.ProtocolFeeBps > c.Engine.MaxLPFeeBps {
		return fmt.Errorf("engine.protocol_fee_bps %d exceeds max %d", c.Engine.ProtocolFeeBps, c.Engine.MaxLPFeeBps)
	}
	if c.Engine.ProofCacheSize <= 0 {
		return fmt.Errorf("engine.proof_cache_size must be positive")
	}
	if c.Audit.BatchSize <= 0 {
		return fmt.Errorf("audit.batch_size must be positive")
	}
	if c.Solana.Enabled {
		if c.Solana.RPCURL == "" || c.Solana.WalletKey == "" {
			return fmt.Errorf("solana.rpc_url and solana.wallet_key are required when solana is enabled")
		}
		switch rpc.CommitmentType(c.Solana.Commitment) {
		case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		default:
			return fmt.Errorf("solana.commitment %q is not one of processed, confirmed, finalized", c.Solana.Commitment)
		}
	}
	return nil
}
