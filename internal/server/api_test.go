package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SwapLedger/internal/core"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/query"
	"SwapLedger/internal/server"
	"SwapLedger/internal/store"
	"SwapLedger/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret = "0123456789abcdef0123456789abcdef"
	admin  = "admin-principal"
	alice  = "alice-principal"
	bob    = "bob-principal"
)

type apiHarness struct {
	t     *testing.T
	store *store.Store
	auth  *server.Authenticator
	srv   *httptest.Server
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	st := testutil.NewTestStore(t)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	eng, err := core.NewEngine(core.DefaultConfig(), core.Deps{
		Store:       st,
		Settlement:  &core.Settlement{Native: testutil.NewFakeLedger(), Bridge: testutil.NewFakeBridge()},
		Metrics:     metrics,
		Logger:      zerolog.Nop(),
		PersistChan: make(chan ledger.Tx, 64),
	})
	require.NoError(t, err)

	auth := server.NewAuthenticator(secret, []string{admin})
	api := server.NewAPI(server.APIDeps{
		Engine:  eng,
		Store:   st,
		Queries: query.NewQueryService(st, nil),
		Auth:    auth,
		Metrics: metrics,
		Logger:  zerolog.Nop(),
	})
	handler, err := server.NewHTTPHandler(server.ServerDeps{
		API:           api,
		HealthChecker: observability.NewHealthChecker(),
		Gatherer:      reg,
	})
	require.NoError(t, err)

	h := &apiHarness{t: t, store: st, auth: auth, srv: httptest.NewServer(handler)}
	t.Cleanup(h.srv.Close)
	return h
}

func (h *apiHarness) do(method, path, principal string, body any) (int, []byte) {
	h.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	if principal != "" {
		tok, err := h.auth.Issue(principal, time.Hour)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, buf.Bytes()
}

func (h *apiHarness) addToken(symbol string) {
	status, body := h.do(http.MethodPost, "/v1/admin/tokens", admin, map[string]any{
		"chain": "IC", "symbol": symbol, "name": symbol, "decimals": 8, "fee": "10", "ledger_id": "ledger-" + symbol,
	})
	require.Equal(h.t, http.StatusCreated, status, string(body))
}

func TestSwapFlowOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	h.addToken("ICP")
	h.addToken("ckUSDT")

	status, body := h.do(http.MethodPost, "/v1/add_pool", alice, map[string]any{
		"token_0": "IC.ICP", "amount_0": "1000000", "token_1": "IC.ckUSDT", "amount_1": "2000000",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"kind":"add_pool"`)

	status, body = h.do(http.MethodGet, "/v1/swap_amounts?pay_token=IC.ICP&pay_amount=10000&receive_token=IC.ckUSDT", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var quote struct {
		ReceiveAmount query.Amount `json:"receive_amount"`
	}
	require.NoError(t, json.Unmarshal(body, &quote))
	assert.Equal(t, "19743", quote.ReceiveAmount.Raw)

	status, body = h.do(http.MethodPost, "/v1/swap", bob, map[string]any{
		"pay_token": "IC.ICP", "pay_amount": "10000", "receive_token": "IC.ckUSDT",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"kind":"swap"`)

	status, body = h.do(http.MethodGet, "/v1/requests/2", bob, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"state":"Success"`)

	status, _ = h.do(http.MethodGet, "/v1/requests/2", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = h.do(http.MethodGet, "/v1/pools", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"token_0":"IC.ICP"`)

	status, body = h.do(http.MethodGet, "/v1/user_balances", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"lp_token":"LP.ICP_ckUSDT"`)
}

func TestAdminRemovesToken(t *testing.T) {
	h := newAPIHarness(t)
	h.addToken("ICP")
	h.addToken("ckUSDT")

	status, _ := h.do(http.MethodPost, "/v1/admin/tokens/IC.ICP/remove", alice, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := h.do(http.MethodPost, "/v1/admin/tokens/IC.ICP/remove", admin, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"is_removed":true`)
	assert.Contains(t, string(body), `"listed":false`)

	status, _ = h.do(http.MethodPost, "/v1/add_pool", alice, map[string]any{
		"token_0": "IC.ICP", "amount_0": "1000000", "token_1": "IC.ckUSDT", "amount_1": "2000000",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(http.MethodPost, "/v1/admin/tokens/IC.ICP/listed", admin, map[string]bool{"listed": true})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuthAndErrorMapping(t *testing.T) {
	h := newAPIHarness(t)

	status, body := h.do(http.MethodPost, "/v1/swap", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, string(body), `"kind":"validation"`)

	status, _ = h.do(http.MethodPost, "/v1/admin/maintenance", alice, map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = h.do(http.MethodPost, "/v1/swap", bob, map[string]any{
		"pay_token": "IC.NOPE", "pay_amount": "1", "receive_token": "IC.ALSO",
	})
	assert.True(t, status == http.StatusBadRequest || status == http.StatusNotFound)

	status, _ = h.do(http.MethodPost, "/v1/admin/archive/txs", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status, "archive requires maintenance")

	status, _ = h.do(http.MethodPost, "/v1/admin/archive/nope", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(http.MethodPost, "/v1/admin/maintenance", admin, map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, h.store.Maintenance())

	status, body = h.do(http.MethodPost, "/v1/send", bob, map[string]any{"token": "IC.ICP", "amount": "1", "to_principal": alice})
	assert.Equal(t, http.StatusServiceUnavailable, status, string(body))

	status, body = h.do(http.MethodPost, "/v1/admin/archive/txs", admin, nil)
	assert.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"entries":0`)

	status, _ = h.do(http.MethodPost, "/v1/admin/checkpoint", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status, "no checkpoint manager configured")
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := server.NewAuthenticator(secret, []string{admin})
	other := server.NewAuthenticator(strings.Repeat("x", 32), nil)

	forged, err := other.Issue(alice, time.Hour)
	require.NoError(t, err)
	expired, err := auth.Issue(alice, -time.Minute)
	require.NoError(t, err)
	good, err := auth.Issue(alice, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, tok := range []string{forged, expired, "garbage"} {
		req.Header.Set("Authorization", "Bearer "+tok)
		_, err := auth.Principal(req)
		assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	}

	req.Header.Set("Authorization", "Bearer "+good)
	p, err := auth.Principal(req)
	require.NoError(t, err)
	assert.Equal(t, alice, p)
	_, err = auth.Admin(req)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	h := newAPIHarness(t)
	status, _ := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	h.do(http.MethodGet, "/v1/tokens", "", nil)
	status, body := h.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "swap_http_requests_total")
}
