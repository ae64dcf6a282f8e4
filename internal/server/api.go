package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"SwapLedger/internal/core"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
	"SwapLedger/internal/query"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
)

const maxBody = 1 << 20

// API serves the /v1 JSON endpoints.
type API struct {
	engine     *core.Engine
	store      *store.Store
	queries    *query.QueryService
	auth       *Authenticator
	checkpoint *persistence.CheckpointManager // nil disables /v1/admin/checkpoint
	deposits   *ingestion.ManualInjector      // nil disables manual deposit injection
	stuckAfter time.Duration
	metrics    *observability.Metrics
	log        zerolog.Logger
}

// APIDeps are the API's collaborators.
type APIDeps struct {
	Engine      *core.Engine
	Store       *store.Store
	Queries     *query.QueryService
	Auth        *Authenticator
	Checkpoints *persistence.CheckpointManager
	Deposits    *ingestion.ManualInjector
	StuckAfter  time.Duration
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

func NewAPI(d APIDeps) *API {
	if d.StuckAfter <= 0 {
		d.StuckAfter = core.DefaultConfig().StuckAfter
	}
	return &API{
		engine:     d.Engine,
		store:      d.Store,
		queries:    d.Queries,
		auth:       d.Auth,
		checkpoint: d.Checkpoints,
		deposits:   d.Deposits,
		stuckAfter: d.StuckAfter,
		metrics:    d.Metrics,
		log:        d.Logger,
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, int, error)

// Register binds every endpoint on mux.
func (a *API) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, path string
		h            handlerFunc
	}{
		{http.MethodPost, "/v1/swap", a.operation(decodeOp[ledger.SwapArgs])},
		{http.MethodPost, "/v1/add_pool", a.operation(decodeOp[ledger.AddPoolArgs])},
		{http.MethodPost, "/v1/add_liquidity", a.operation(decodeOp[ledger.AddLiquidityArgs])},
		{http.MethodPost, "/v1/remove_liquidity", a.operation(decodeOp[ledger.RemoveLiquidityArgs])},
		{http.MethodPost, "/v1/send", a.operation(decodeOp[ledger.SendArgs])},
		{http.MethodPost, "/v1/claim", a.operation(decodeOp[ledger.ClaimArgs])},

		{http.MethodGet, "/v1/swap_amounts", a.swapAmounts},
		{http.MethodGet, "/v1/add_liquidity_amounts", a.addLiquidityAmounts},
		{http.MethodGet, "/v1/remove_liquidity_amounts", a.removeLiquidityAmounts},

		{http.MethodGet, "/v1/pools", a.pools},
		{http.MethodGet, "/v1/tokens", a.tokens},
		{http.MethodGet, "/v1/claims", a.claims},
		{http.MethodGet, "/v1/user_balances", a.userBalances},
		{http.MethodGet, "/v1/requests/{id}", a.request},
		{http.MethodGet, "/v1/txs", a.txs},

		{http.MethodPost, "/v1/admin/maintenance", a.admin(a.maintenance)},
		{http.MethodPost, "/v1/admin/archive/{map}", a.admin(a.archive)},
		{http.MethodPost, "/v1/admin/tokens", a.admin(a.addToken)},
		{http.MethodPost, "/v1/admin/tokens/{token}/listed", a.admin(a.listToken)},
		{http.MethodPost, "/v1/admin/tokens/{token}/remove", a.admin(a.removeToken)},
		{http.MethodPost, "/v1/admin/fee_level", a.admin(a.feeLevel)},
		{http.MethodPost, "/v1/admin/checkpoint", a.admin(a.takeCheckpoint)},
		{http.MethodPost, "/v1/admin/solana_deposits", a.admin(a.injectDeposit)},
		{http.MethodGet, "/v1/admin/requests/{id}", a.admin(a.adminRequest)},
		{http.MethodGet, "/v1/admin/stuck", a.admin(a.stuck)},
		{http.MethodGet, "/v1/admin/integrity", a.admin(a.integrity)},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.path, a.wrap(rt.path, rt.h)); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.path, err)
		}
	}
	return nil
}

func (a *API) wrap(endpoint string, h handlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		body, status, err := h(w, r, params)
		if err != nil {
			status = statusFor(err)
			resp := errorResponse{Error: err.Error(), Kind: string(ledger.KindOf(err))}
			if reply, ok := body.(ledger.Reply); ok && reply != nil {
				resp.Reply, _ = ledger.MarshalReply(reply)
			}
			if status >= http.StatusInternalServerError {
				a.log.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
			}
			body = resp
		}
		writeJSON(w, status, body)
		if a.metrics != nil {
			a.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
			a.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type errorResponse struct {
	Error string          `json:"error"`
	Kind  string          `json:"kind"`
	Reply json.RawMessage `json:"reply,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrMaintenance):
		return http.StatusServiceUnavailable
	}
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindProof, ledger.KindComputation:
		return http.StatusUnprocessableEntity
	case ledger.KindConcurrency:
		return http.StatusConflict
	case ledger.KindSettlement:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	switch v := body.(type) {
	case nil:
	case []byte:
		w.Write(v)
	default:
		json.NewEncoder(w).Encode(v)
	}
}

func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return ledger.ErrValidation.Wrapf("read body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ledger.ErrValidation.Wrapf("decode body: %v", err)
	}
	return nil
}

func decodeOp[T ledger.Operation](r *http.Request) (ledger.Operation, error) {
	var op T
	if err := decodeBody(r, &op); err != nil {
		return nil, err
	}
	return op, nil
}

// operation authenticates the caller and runs op through the engine.
// Failed replies are returned alongside the error.
func (a *API) operation(decode func(*http.Request) (ledger.Operation, error)) handlerFunc {
	return func(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
		principal, err := a.auth.Principal(r)
		if err != nil {
			return nil, 0, err
		}
		op, err := decode(r)
		if err != nil {
			return nil, 0, err
		}
		reply, err := a.engine.Execute(r.Context(), principal, op)
		if err != nil {
			return reply, 0, err
		}
		data, err := ledger.MarshalReply(reply)
		if err != nil {
			return nil, 0, err
		}
		return data, http.StatusOK, nil
	}
}

func (a *API) admin(h handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, int, error) {
		principal, err := a.auth.Admin(r)
		if err != nil {
			return nil, 0, err
		}
		a.log.Info().Str("principal", principal).Str("path", r.URL.Path).Msg("admin call")
		return h(w, r, params)
	}
}

// discount is the optional caller's fee level for quotes.
func (a *API) discount(r *http.Request) uint8 {
	if r.Header.Get("Authorization") == "" {
		return 0
	}
	principal, err := a.auth.Principal(r)
	if err != nil {
		return 0
	}
	user, err := a.engine.UserByPrincipal(principal)
	if err != nil {
		return 0
	}
	return user.FeeDiscount(time.Now())
}

func intParam(r *http.Request, name string) (sdkmath.Int, error) {
	raw := r.URL.Query().Get(name)
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, ledger.ErrValidation.Wrapf("%s: invalid integer %q", name, raw)
	}
	return v, nil
}

func idParam(params map[string]string, name string) (uint64, error) {
	id, err := strconv.ParseUint(params[name], 10, 64)
	if err != nil {
		return 0, ledger.ErrValidation.Wrapf("%s: %v", name, err)
	}
	return id, nil
}
