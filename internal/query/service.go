package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"SwapLedger/internal/core"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
)

// QueryService serves read-only views. Entity views read committed Pebble
// state; history and integrity read the Postgres audit log when db is set.
// Responses carry as_of_tx_id for freshness.
type QueryService struct {
	st *store.Store
	db *sql.DB
}

func NewQueryService(st *store.Store, db *sql.DB) *QueryService {
	return &QueryService{st: st, db: db}
}

// Tokens lists every token that is not removed. LP tokens are included.
func (qs *QueryService) Tokens() ([]TokenResponse, error) {
	var out []TokenResponse
	err := store.Scan(qs.st, store.Tokens, 0, func(_ uint64, t ledger.Token) (bool, error) {
		if t.Removed {
			return true, nil
		}
		out = append(out, TokenResponse{
			TokenID:     t.TokenID,
			Address:     t.Address(),
			Chain:       string(t.Chain),
			Symbol:      t.Symbol,
			Name:        t.Name,
			Decimals:    t.Decimals,
			Fee:         FormatAmount(t.Fee, t.Decimals),
			Listed:      t.Listed,
			LedgerID:    t.LedgerID,
			MintAddress: t.MintAddress,
			PoolID:      t.PoolID,
		})
		return true, nil
	})
	return out, err
}

// Pools lists every pool with reserves, price and rolling stats.
func (qs *QueryService) Pools() ([]PoolResponse, error) {
	asOf, err := qs.LatestTxID()
	if err != nil {
		return nil, err
	}
	var out []PoolResponse
	err = store.Scan(qs.st, store.Pools, 0, func(_ uint64, p ledger.Pool) (bool, error) {
		resp, err := qs.pool(p)
		if err != nil {
			return false, err
		}
		resp.AsOfTxID = asOf
		out = append(out, resp)
		return true, nil
	})
	return out, err
}

func (qs *QueryService) pool(p ledger.Pool) (PoolResponse, error) {
	t0, err := store.MustToken(qs.st, p.TokenID0)
	if err != nil {
		return PoolResponse{}, err
	}
	t1, err := store.MustToken(qs.st, p.TokenID1)
	if err != nil {
		return PoolResponse{}, err
	}
	lp, err := store.MustToken(qs.st, p.LPTokenID)
	if err != nil {
		return PoolResponse{}, err
	}
	return PoolResponse{
		PoolID:         p.PoolID,
		Symbol:         lp.Symbol,
		Token0:         t0.Address(),
		Token1:         t1.Address(),
		Balance0:       FormatAmount(p.Balance0, t0.Decimals),
		Balance1:       FormatAmount(p.Balance1, t1.Decimals),
		Price:          Price(p, t0, t1),
		LPFeeBps:       p.LPFeeBps,
		ProtocolFeeBps: p.ProtocolFeeBps,
		LPFee0:         FormatAmount(p.LPFee0, t0.Decimals),
		LPFee1:         FormatAmount(p.LPFee1, t1.Decimals),
		LPToken:        lp.Address(),
		LPTotalSupply:  FormatAmount(p.LPTotalSupply, lp.Decimals),
		// rolling stats are denominated in token_1
		Volume24h: FormatAmount(p.RollingVolume, t1.Decimals),
		LPFee24h:  FormatAmount(p.RollingLPFee, t1.Decimals),
		Swaps24h:  p.RollingSwaps,
		APY24h:    p.RollingAPY,
	}, nil
}

// UserBalances returns the caller's LP positions. An unknown principal
// has no positions.
func (qs *QueryService) UserBalances(principal string) ([]BalanceResponse, error) {
	user, ok, err := store.UserByPrincipal(qs.st, principal)
	if err != nil || !ok {
		return nil, err
	}
	asOf, err := qs.LatestTxID()
	if err != nil {
		return nil, err
	}
	bals, err := store.LPBalancesForUser(qs.st, user.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]BalanceResponse, 0, len(bals))
	for _, bal := range bals {
		if !bal.Amount.IsPositive() {
			continue
		}
		resp, err := qs.balanceFor(qs.st, bal)
		if err != nil {
			return nil, err
		}
		resp.AsOfTxID = asOf
		out = append(out, resp)
	}
	return out, nil
}

// Claims returns the caller's claims, newest first.
func (qs *QueryService) Claims(principal string) ([]ClaimResponse, error) {
	user, ok, err := store.UserByPrincipal(qs.st, principal)
	if err != nil || !ok {
		return nil, err
	}
	claims, err := store.ClaimsForUser(qs.st, user.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]ClaimResponse, 0, len(claims))
	for i := len(claims) - 1; i >= 0; i-- {
		c := claims[i]
		tok, err := store.MustToken(qs.st, c.TokenID)
		if err != nil {
			return nil, err
		}
		out = append(out, ClaimResponse{
			ClaimID:     c.ClaimID,
			Token:       tok.Address(),
			Amount:      FormatAmount(c.Amount, tok.Decimals),
			Destination: c.Destination,
			Reason:      c.Reason,
			Status:      string(c.Status),
			RequestID:   c.RequestID,
			Attempts:    c.Attempts,
			CreatedAt:   c.CreatedAt,
		})
	}
	return out, nil
}

// Request returns a request if it belongs to principal. Admins pass an
// empty principal to skip the ownership check.
func (qs *QueryService) Request(id uint64, principal string) (ledger.Request, error) {
	req, ok, err := store.Get[ledger.Request](qs.st, store.Requests, id)
	if err != nil {
		return ledger.Request{}, err
	}
	if !ok {
		return ledger.Request{}, ledger.ErrNotFound.Wrapf("request %d", id)
	}
	if principal == "" {
		return req, nil
	}
	user, ok, err := store.UserByPrincipal(qs.st, principal)
	if err != nil {
		return ledger.Request{}, err
	}
	if !ok || user.UserID != req.UserID {
		return ledger.Request{}, ledger.ErrNotFound.Wrapf("request %d", id)
	}
	return req, nil
}

// TxHistory returns the caller's settled Txs from the audit log, newest
// first, with cursor pagination on tx_id.
func (qs *QueryService) TxHistory(ctx context.Context, principal string, limit int, beforeTxID *int64) ([]TxHistoryEntry, error) {
	if qs.db == nil {
		return nil, fmt.Errorf("audit log not configured")
	}
	user, ok, err := store.UserByPrincipal(qs.st, principal)
	if err != nil || !ok {
		return nil, err
	}

	query := `
		SELECT tx_id, request_id, kind, status, reply, hash, ts
		FROM audit.txs
		WHERE user_id = $1
	`
	args := []any{int64(user.UserID)}
	argIdx := 2

	if beforeTxID != nil {
		query += fmt.Sprintf(" AND tx_id < $%d", argIdx)
		args = append(args, *beforeTxID)
		argIdx++
	}

	query += " ORDER BY tx_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TxHistoryEntry
	for rows.Next() {
		var e TxHistoryEntry
		if err := rows.Scan(&e.TxID, &e.RequestID, &e.Kind, &e.Status, &e.Reply, &e.Hash, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity recomputes the audit hash chain over every Tx in the
// store, checks that LP holdings sum to each pool's supply, and reports
// how far the Postgres audit log trails the store.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	const page = 1_000
	prev := core.GenesisHash()
	var from uint64
	var last uint64
	for report.HashChainBreak == 0 {
		txs, err := qs.st.TxsFrom(from, page)
		if err != nil {
			return nil, err
		}
		if len(txs) == 0 {
			break
		}
		if bad, err := core.VerifyChain(prev, txs); err != nil {
			report.HashChainBreak = bad
			report.BreakReason = err.Error()
			break
		}
		report.TxsChecked += len(txs)
		tip := txs[len(txs)-1]
		if err := decodeHash(tip.Hash, &prev); err != nil {
			return nil, err
		}
		last = tip.TxID
		from = last + 1
	}

	err := store.Scan(qs.st, store.Pools, 0, func(_ uint64, p ledger.Pool) (bool, error) {
		bals, err := store.LPBalancesForToken(qs.st, p.LPTokenID)
		if err != nil {
			return false, err
		}
		held := sdkmath.ZeroInt()
		for _, b := range bals {
			held = held.Add(b.Amount)
		}
		if !held.Equal(p.LPTotalSupply) {
			report.LPImbalances = append(report.LPImbalances, LPImbalance{
				PoolID:      p.PoolID,
				TotalSupply: p.LPTotalSupply.String(),
				Held:        held.String(),
			})
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if qs.db != nil {
		mark, err := qs.getWatermark(ctx)
		if err != nil {
			return nil, fmt.Errorf("watermark: %w", err)
		}
		if last > uint64(mark) {
			report.AuditLag = last - uint64(mark)
		}
	}

	report.IsHealthy = report.HashChainBreak == 0 && len(report.LPImbalances) == 0
	return report, nil
}

// --- helpers ---

// LatestTxID is the id of the newest settled Tx, 0 when there is none.
func (qs *QueryService) LatestTxID() (uint64, error) {
	var id uint64
	err := store.ScanReverse(qs.st, store.Txs, func(txID uint64, _ ledger.Tx) (bool, error) {
		id = txID
		return false, nil
	})
	return id, err
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var id int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_tx_id, 0) FROM audit.watermark WHERE id = 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func decodeHash(s string, out *[32]byte) error {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		return fmt.Errorf("malformed tx hash %q", s)
	}
	copy(out[:], b)
	return nil
}
