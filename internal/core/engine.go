package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"SwapLedger/internal/amm"
	"SwapLedger/internal/claims"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config holds the engine's tunables.
type Config struct {
	HubToken        string        // intermediate token of two-hop routes
	DefaultLPFeeBps uint16        // used when AddPool omits a fee
	MaxLPFeeBps     uint16        // upper bound accepted from AddPool
	ProtocolFeeBps  uint16        // protocol cut of every new pool
	TransferTimeout time.Duration // per external transfer call
	StuckAfter      time.Duration // non-terminal requests older than this are reported
	ReferralTTL     time.Duration // how long a referral relationship lasts
	PersistTimeout  time.Duration // wait on a full audit channel before leaving the Tx to backfill
	ProofCacheSize  int
}

func DefaultConfig() Config {
	return Config{
		HubToken:        "IC.ckUSDT",
		DefaultLPFeeBps: 30,
		MaxLPFeeBps:     1_000,
		ProtocolFeeBps:  0,
		TransferTimeout: 30 * time.Second,
		StuckAfter:      10 * time.Minute,
		ReferralTTL:     365 * 24 * time.Hour,
		PersistTimeout:  5 * time.Second,
		ProofCacheSize:  100_000,
	}
}

// Deps are the engine's collaborators. Metrics, Claims and Now default
// when unset; PersistChan and PublishChan are optional.
type Deps struct {
	Store      *store.Store
	Settlement *Settlement
	Claims     *claims.Book
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
	Now        func() time.Time

	// Finalized Tx records. Sends on the persist channel wait up to
	// Config.PersistTimeout; the publish channel drops when full.
	PersistChan chan<- ledger.Tx
	PublishChan chan<- ledger.Tx
}

// Engine executes user operations as requests. Each request holds its
// user and pool locks from Verifying until its terminal record commits;
// everything else runs concurrently.
type Engine struct {
	cfg     Config
	store   *store.Store
	settle  *Settlement
	claims  *claims.Book
	locks   *LockManager
	proofs  *ProofChecker
	hasher  *AuditHasher
	metrics *observability.Metrics
	log     zerolog.Logger
	now     func() time.Time

	persistChan chan<- ledger.Tx
	publishChan chan<- ledger.Tx

	stuckFrom atomic.Uint64
}

func NewEngine(cfg Config, d Deps) (*Engine, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}
	if d.Settlement == nil {
		return nil, fmt.Errorf("engine requires a settlement router")
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Claims == nil {
		d.Claims = claims.NewBook(d.Store, d.Logger, d.Metrics)
	}
	d.Claims.SetClock(d.Now)
	if d.Settlement.Metrics == nil {
		d.Settlement.Metrics = d.Metrics
	}
	if d.Settlement.Timeout == 0 {
		d.Settlement.Timeout = cfg.TransferTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultConfig().PersistTimeout
	}
	if cfg.ProofCacheSize <= 0 {
		cfg.ProofCacheSize = DefaultConfig().ProofCacheSize
	}

	proofs, err := NewProofChecker(cfg.ProofCacheSize, d.Store, d.Metrics)
	if err != nil {
		return nil, err
	}
	warmed, err := proofs.Warm(cfg.ProofCacheSize)
	if err != nil {
		return nil, fmt.Errorf("warm proof cache: %w", err)
	}

	hasher := NewAuditHasher()
	if tip, ok, err := store.Meta(d.Store, auditTipMeta); err != nil {
		return nil, fmt.Errorf("load audit tip: %w", err)
	} else if ok {
		if err := hasher.Restore(tip); err != nil {
			return nil, err
		}
	}

	reset, err := d.Claims.Reconcile()
	if err != nil {
		return nil, fmt.Errorf("reconcile claims: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		store:       d.Store,
		settle:      d.Settlement,
		claims:      d.Claims,
		locks:       NewLockManager(),
		proofs:      proofs,
		hasher:      hasher,
		metrics:     d.Metrics,
		log:         d.Logger,
		now:         d.Now,
		persistChan: d.PersistChan,
		publishChan: d.PublishChan,
	}
	e.stuckFrom.Store(1)

	e.log.Info().
		Int("proofs_warmed", warmed).
		Int("claims_reset", reset).
		Str("hub_token", cfg.HubToken).
		Msg("engine ready")
	return e, nil
}

// Execute runs op for principal to a terminal state. On failure the
// returned reply is the request's terminal reply (FailedReply, or a
// kind-specific reply with Failed status when claims were created) and
// err says why.
func (e *Engine) Execute(ctx context.Context, principal string, op ledger.Operation) (ledger.Reply, error) {
	if e.store.Maintenance() {
		return nil, ledger.ErrMaintenance
	}
	if principal == "" {
		return nil, ledger.ErrUnauthorized.Wrap("missing principal")
	}
	if op == nil {
		return nil, ledger.ErrValidation.Wrap("missing operation")
	}

	referral := ""
	if s, ok := op.(ledger.SwapArgs); ok {
		referral = s.ReferredBy
	}
	user, err := e.EnsureUser(principal, referral)
	if err != nil {
		return nil, err
	}

	r, err := e.begin(ctx, user, op)
	if err != nil {
		return nil, err
	}
	defer r.release()

	var reply ledger.Reply
	switch a := op.(type) {
	case ledger.AddPoolArgs:
		reply, err = e.addPool(r, a)
	case ledger.AddLiquidityArgs:
		reply, err = e.addLiquidity(r, a)
	case ledger.RemoveLiquidityArgs:
		reply, err = e.removeLiquidity(r, a)
	case ledger.SwapArgs:
		reply, err = e.swap(r, a)
	case ledger.SendArgs:
		reply, err = e.send(r, a)
	case ledger.ClaimArgs:
		reply, err = e.claim(r, a)
	default:
		err = ledger.ErrValidation.Wrapf("unsupported operation %T", op)
	}
	return r.conclude(reply, err)
}

// Request loads a request by id.
func (e *Engine) Request(id uint64) (ledger.Request, error) {
	req, ok, err := store.Get[ledger.Request](e.store, store.Requests, id)
	if err != nil {
		return req, err
	}
	if !ok {
		return req, ledger.ErrNotFound.Wrapf("request %d", id)
	}
	return req, nil
}

// Tx loads a settled transaction by id.
func (e *Engine) Tx(id uint64) (ledger.Tx, error) {
	tx, ok, err := store.Get[ledger.Tx](e.store, store.Txs, id)
	if err != nil {
		return tx, err
	}
	if !ok {
		return tx, ledger.ErrNotFound.Wrapf("tx %d", id)
	}
	return tx, nil
}

// Claims exposes the claim book.
func (e *Engine) Claims() *claims.Book { return e.claims }

// Locks exposes the lock manager.
func (e *Engine) Locks() *LockManager { return e.locks }

// AuditTip returns the hash of the last finalized Tx.
func (e *Engine) AuditTip() [32]byte { return e.hasher.Tip() }

// hubID resolves the configured hub token, 0 when it is not listed.
func (e *Engine) hubID(r store.Reader) uint64 {
	if e.cfg.HubToken == "" {
		return 0
	}
	t, err := store.FindToken(r, e.cfg.HubToken)
	if err != nil || !t.Tradable() {
		return 0
	}
	return t.TokenID
}

func (e *Engine) finder(r store.Reader) amm.PoolFinder {
	return func(a, b uint64) (ledger.Pool, bool, error) {
		return store.PoolForPair(r, a, b)
	}
}
