package main

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"SwapLedger/internal/config"
	"SwapLedger/internal/core"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
	"SwapLedger/internal/store"

	"github.com/spf13/cobra"
)

func newCheckpointCmd(load func() (*config.Config, error)) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Write a consistent copy of the ledger store (the server must be stopped)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DataDir, store.Options{Logger: observability.NewLogger("store")})
			if err != nil {
				return err
			}
			defer st.Close()

			var db *sql.DB
			if record {
				if db, err = openDB(cmd.Context(), cfg); err != nil {
					return err
				}
				defer db.Close()
			}

			lastTxID, tip, err := chainTip(st)
			if err != nil {
				return err
			}

			mgr := persistence.NewCheckpointManager(db, cfg.CheckpointDir, observability.NewLogger("checkpoint"))
			rec, err := mgr.Create(cmd.Context(), st, lastTxID, tip)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
	cmd.Flags().BoolVar(&record, "record", true, "record the checkpoint in audit.checkpoints")
	return cmd
}

// chainTip is the newest Tx id and its audit hash.
func chainTip(st *store.Store) (uint64, []byte, error) {
	var last ledger.Tx
	err := store.ScanReverse(st, store.Txs, func(_ uint64, tx ledger.Tx) (bool, error) {
		last = tx
		return false, nil
	})
	if err != nil {
		return 0, nil, err
	}
	if last.TxID == 0 {
		genesis := core.GenesisHash()
		return 0, genesis[:], nil
	}
	tip, err := hex.DecodeString(last.Hash)
	if err != nil {
		return 0, nil, fmt.Errorf("tx %d hash: %w", last.TxID, err)
	}
	return last.TxID, tip, nil
}
