package server

import (
	"net/http"
	"strconv"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/query"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
)

type swapAmountsResponse struct {
	PayToken      string            `json:"pay_token"`
	PayAmount     query.Amount      `json:"pay_amount"`
	ReceiveToken  string            `json:"receive_token"`
	ReceiveAmount query.Amount      `json:"receive_amount"`
	MidPrice      sdkmath.LegacyDec `json:"mid_price"`
	Price         sdkmath.LegacyDec `json:"price"`
	Slippage      sdkmath.LegacyDec `json:"slippage"`
	Txs           []ledger.SwapCalc `json:"txs"`
}

func (a *API) swapAmounts(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	amount, err := intParam(r, "pay_amount")
	if err != nil {
		return nil, 0, err
	}
	q := r.URL.Query()
	quote, err := a.engine.QuoteSwap(q.Get("pay_token"), amount, q.Get("receive_token"), a.discount(r))
	if err != nil {
		return nil, 0, err
	}
	return swapAmountsResponse{
		PayToken:      quote.PayToken.Address(),
		PayAmount:     query.FormatAmount(quote.Result.PayAmount, quote.PayToken.Decimals),
		ReceiveToken:  quote.ReceiveToken.Address(),
		ReceiveAmount: query.FormatAmount(quote.Result.ReceiveAmount, quote.ReceiveToken.Decimals),
		MidPrice:      quote.Result.MidPrice,
		Price:         quote.Result.Price,
		Slippage:      quote.Result.Slippage,
		Txs:           quote.Result.Calcs,
	}, http.StatusOK, nil
}

type liquidityAmountsResponse struct {
	Symbol   string       `json:"symbol"`
	Token0   string       `json:"token_0"`
	Amount0  query.Amount `json:"amount_0"`
	Token1   string       `json:"token_1"`
	Amount1  query.Amount `json:"amount_1"`
	LPAmount query.Amount `json:"lp_token_amount"`
}

func (a *API) addLiquidityAmounts(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	amount0, err := intParam(r, "amount_0")
	if err != nil {
		return nil, 0, err
	}
	amount1, err := intParam(r, "amount_1")
	if err != nil {
		return nil, 0, err
	}
	q := r.URL.Query()
	quote, err := a.engine.QuoteAddLiquidity(q.Get("token_0"), amount0, q.Get("token_1"), amount1)
	if err != nil {
		return nil, 0, err
	}
	return a.liquidityResponse(quote.Pool, quote.Token0, quote.Token1, quote.Amount0, quote.Amount1, quote.LPAmount)
}

func (a *API) removeLiquidityAmounts(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	lp, err := intParam(r, "remove_lp_token_amount")
	if err != nil {
		return nil, 0, err
	}
	q := r.URL.Query()
	quote, err := a.engine.QuoteRemoveLiquidity(q.Get("token_0"), q.Get("token_1"), lp)
	if err != nil {
		return nil, 0, err
	}
	return a.liquidityResponse(quote.Pool, quote.Token0, quote.Token1, quote.Amount0, quote.Amount1, quote.LPAmount)
}

func (a *API) liquidityResponse(p ledger.Pool, t0, t1 ledger.Token, amount0, amount1, lp sdkmath.Int) (any, int, error) {
	lpTok, err := store.MustToken(a.store, p.LPTokenID)
	if err != nil {
		return nil, 0, err
	}
	return liquidityAmountsResponse{
		Symbol:   lpTok.Symbol,
		Token0:   t0.Address(),
		Amount0:  query.FormatAmount(amount0, t0.Decimals),
		Token1:   t1.Address(),
		Amount1:  query.FormatAmount(amount1, t1.Decimals),
		LPAmount: query.FormatAmount(lp, lpTok.Decimals),
	}, http.StatusOK, nil
}

func (a *API) pools(http.ResponseWriter, *http.Request, map[string]string) (any, int, error) {
	pools, err := a.queries.Pools()
	return pools, http.StatusOK, err
}

func (a *API) tokens(http.ResponseWriter, *http.Request, map[string]string) (any, int, error) {
	tokens, err := a.queries.Tokens()
	return tokens, http.StatusOK, err
}

func (a *API) claims(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	principal, err := a.auth.Principal(r)
	if err != nil {
		return nil, 0, err
	}
	claims, err := a.queries.Claims(principal)
	return claims, http.StatusOK, err
}

func (a *API) userBalances(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	principal, err := a.auth.Principal(r)
	if err != nil {
		return nil, 0, err
	}
	bals, err := a.queries.UserBalances(principal)
	return bals, http.StatusOK, err
}

func (a *API) request(_ http.ResponseWriter, r *http.Request, params map[string]string) (any, int, error) {
	principal, err := a.auth.Principal(r)
	if err != nil {
		return nil, 0, err
	}
	id, err := idParam(params, "id")
	if err != nil {
		return nil, 0, err
	}
	req, err := a.queries.Request(id, principal)
	return req, http.StatusOK, err
}

func (a *API) txs(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	principal, err := a.auth.Principal(r)
	if err != nil {
		return nil, 0, err
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			return nil, 0, ledger.ErrValidation.Wrapf("limit must be 1..500, got %q", raw)
		}
		limit = n
	}
	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, ledger.ErrValidation.Wrapf("before: %v", err)
		}
		before = &n
	}
	entries, err := a.queries.TxHistory(r.Context(), principal, limit, before)
	return entries, http.StatusOK, err
}

// --- admin ---

func (a *API) maintenance(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeBody(r, &body); err != nil {
		return nil, 0, err
	}
	if err := a.store.SetMaintenance(body.Enabled); err != nil {
		return nil, 0, err
	}
	return map[string]bool{"maintenance": a.store.Maintenance()}, http.StatusOK, nil
}

func (a *API) archive(_ http.ResponseWriter, _ *http.Request, params map[string]string) (any, int, error) {
	m, ok := store.ParseMap(params["map"])
	if !ok {
		return nil, 0, ledger.ErrNotFound.Wrapf("map %q", params["map"])
	}
	n, err := a.store.Archive(m)
	if err != nil {
		return nil, 0, err
	}
	if a.metrics != nil {
		a.metrics.ArchiveEntries.WithLabelValues(string(m)).Add(float64(n))
	}
	return map[string]any{"map": m, "entries": n}, http.StatusOK, nil
}

func (a *API) addToken(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	var tok ledger.Token
	if err := decodeBody(r, &tok); err != nil {
		return nil, 0, err
	}
	created, err := a.engine.AddToken(tok)
	return created, http.StatusCreated, err
}

func (a *API) listToken(_ http.ResponseWriter, r *http.Request, params map[string]string) (any, int, error) {
	var body struct {
		Listed bool `json:"listed"`
	}
	if err := decodeBody(r, &body); err != nil {
		return nil, 0, err
	}
	tok, err := a.engine.SetTokenListed(params["token"], body.Listed)
	return tok, http.StatusOK, err
}

func (a *API) removeToken(_ http.ResponseWriter, _ *http.Request, params map[string]string) (any, int, error) {
	tok, err := a.engine.RemoveToken(params["token"])
	return tok, http.StatusOK, err
}

func (a *API) feeLevel(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	var body struct {
		Principal string `json:"principal"`
		Level     uint8  `json:"level"`
		Days      int    `json:"days"`
	}
	if err := decodeBody(r, &body); err != nil {
		return nil, 0, err
	}
	user, err := a.engine.SetFeeLevel(body.Principal, body.Level, body.Days)
	return user, http.StatusOK, err
}

func (a *API) takeCheckpoint(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	if a.checkpoint == nil {
		return nil, 0, ledger.ErrValidation.Wrap("checkpoints are not configured")
	}
	last, err := a.queries.LatestTxID()
	if err != nil {
		return nil, 0, err
	}
	tip := a.engine.AuditTip()
	rec, err := a.checkpoint.Create(r.Context(), a.store, last, tip[:])
	return rec, http.StatusCreated, err
}

func (a *API) injectDeposit(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	if a.deposits == nil {
		return nil, 0, ledger.ErrValidation.Wrap("deposit injection is not configured")
	}
	var d ledger.SolanaDeposit
	if err := decodeBody(r, &d); err != nil {
		return nil, 0, err
	}
	if err := a.deposits.InjectDeposit(r.Context(), d); err != nil {
		return nil, 0, ledger.ErrValidation.Wrap(err.Error())
	}
	return map[string]string{"signature": d.Signature, "status": "queued"}, http.StatusAccepted, nil
}

func (a *API) adminRequest(_ http.ResponseWriter, _ *http.Request, params map[string]string) (any, int, error) {
	id, err := idParam(params, "id")
	if err != nil {
		return nil, 0, err
	}
	req, err := a.queries.Request(id, "")
	return req, http.StatusOK, err
}

func (a *API) stuck(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	olderThan := a.stuckAfter
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, 0, ledger.ErrValidation.Wrapf("older_than: %v", err)
		}
		olderThan = d
	}
	reqs, err := a.engine.StuckRequests(olderThan)
	return reqs, http.StatusOK, err
}

func (a *API) integrity(_ http.ResponseWriter, r *http.Request, _ map[string]string) (any, int, error) {
	report, err := a.queries.VerifyIntegrity(r.Context())
	return report, http.StatusOK, err
}
