package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SwapLedger/internal/ledger"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// TxStream carries settled transactions for downstream consumers such as
// the analytics mirror.
const TxStream = "SWAP_TXS"

// Publisher is the part of jetstream.JetStream the TxPublisher uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// TxPublisher publishes finalized Txs to swap.txs.{kind}.{status}.
// Publishing is best effort: the Postgres audit log is the record.
type TxPublisher struct {
	js        Publisher
	inputChan <-chan ledger.Tx
	log       zerolog.Logger
}

func NewTxPublisher(js Publisher, inputChan <-chan ledger.Tx, log zerolog.Logger) *TxPublisher {
	return &TxPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run publishes until ctx is cancelled or the channel is closed.
func (p *TxPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case tx, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, tx); err != nil {
				p.log.Warn().Err(err).Uint64("tx_id", tx.TxID).Msg("tx publish failed")
			}
		}
	}
}

// TxSubject is the subject a Tx is published on.
func TxSubject(tx ledger.Tx) string {
	return fmt.Sprintf("swap.txs.%s.%s", tx.Kind, tx.Status)
}

func (p *TxPublisher) publish(ctx context.Context, tx ledger.Tx) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal tx: %w", err)
	}
	// Msg id makes redelivery after a restart a no-op inside the
	// stream's duplicate window.
	_, err = p.js.Publish(ctx, TxSubject(tx), data, jetstream.WithMsgID(fmt.Sprintf("tx-%d", tx.TxID)))
	return err
}

// EnsureTxStream creates the outbound transaction stream.
func EnsureTxStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       TxStream,
		Subjects:   []string{"swap.txs.>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", TxStream, err)
	}
	log.Info().Str("stream", TxStream).Msg("ensured outbound stream")
	return nil
}
