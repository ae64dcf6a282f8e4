package ingestion

import (
	"context"
	"fmt"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"

	"github.com/rs/zerolog"
)

// DepositRecorder persists observed deposits. Implemented by *store.Store.
type DepositRecorder interface {
	RecordSolanaDeposit(d ledger.SolanaDeposit) (bool, error)
}

// DepositIngestor drains RawEvents, records each deposit once, then acks.
// Malformed notifications are acked and dropped: redelivery cannot fix
// them. Store failures are nak'd for redelivery.
type DepositIngestor struct {
	events   <-chan RawEvent
	recorder DepositRecorder
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewDepositIngestor(events <-chan RawEvent, recorder DepositRecorder, metrics *observability.Metrics, log zerolog.Logger) *DepositIngestor {
	return &DepositIngestor{
		events:   events,
		recorder: recorder,
		metrics:  metrics,
		log:      log,
	}
}

// Run blocks until ctx is cancelled or the channel is closed.
func (di *DepositIngestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-di.events:
			if !ok {
				return nil
			}
			di.handle(raw)
		}
	}
}

func (di *DepositIngestor) handle(raw RawEvent) {
	outcome, err := di.Ingest(raw)
	di.metrics.SolanaDeposits.WithLabelValues(outcome).Inc()
	switch outcome {
	case "invalid":
		di.log.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed deposit notification")
		ack(raw)
	case "error":
		di.log.Error().Err(err).Str("subject", raw.Subject).Msg("deposit record failed")
		if raw.NakFunc != nil {
			raw.NakFunc()
		}
	default:
		ack(raw)
	}
}

// Ingest parses and records one notification. The outcome is one of
// recorded, duplicate, invalid or error.
func (di *DepositIngestor) Ingest(raw RawEvent) (string, error) {
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	d, err := ParseDeposit(raw.Data, ts)
	if err != nil {
		return "invalid", err
	}
	created, err := di.recorder.RecordSolanaDeposit(d)
	if err != nil {
		return "error", fmt.Errorf("record deposit %s: %w", d.Signature, err)
	}
	if !created {
		return "duplicate", nil
	}
	di.log.Debug().Str("signature", d.Signature).Str("amount", d.Amount.String()).Uint64("slot", d.Slot).Msg("deposit recorded")
	return "recorded", nil
}

func ack(raw RawEvent) {
	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

// ManualInjector lets operators feed a deposit the watcher missed through
// the same path as NATS notifications.
type ManualInjector struct {
	eventChan chan<- RawEvent
}

func NewManualInjector(eventChan chan<- RawEvent) *ManualInjector {
	return &ManualInjector{eventChan: eventChan}
}

// InjectDeposit validates d and queues it for the ingestor.
func (mi *ManualInjector) InjectDeposit(ctx context.Context, d ledger.SolanaDeposit) error {
	data, err := EncodeDeposit(d)
	if err != nil {
		return err
	}
	if _, err := ParseDeposit(data, time.Now()); err != nil {
		return err
	}
	raw := RawEvent{
		Subject:   "swap.solana.deposits.manual",
		Data:      data,
		Timestamp: time.Now(),
	}
	select {
	case mi.eventChan <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
