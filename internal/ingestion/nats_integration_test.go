package ingestion_test

import (
	"context"
	"testing"
	"time"

	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSSubscriberDeliversDeposits(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	nc, js, err := ingestion.ConnectNATS(testutil.TestNATSURL(), zerolog.Nop())
	if err != nil {
		t.Skipf("test nats not available: %v", err)
	}
	defer nc.Close()
	require.NoError(t, ingestion.EnsureStreams(ctx, js, zerolog.Nop()))

	events := make(chan ingestion.RawEvent, 1)
	sub := ingestion.NewNATSSubscriber(js, events, zerolog.Nop())
	require.NoError(t, sub.Subscribe(ctx, ingestion.DefaultSubjects()))
	defer sub.Stop()

	d := newDeposit(t)
	data, err := ingestion.EncodeDeposit(d)
	require.NoError(t, err)
	_, err = js.Publish(ctx, "swap.solana.deposits."+d.Receiver, data)
	require.NoError(t, err)

	// The durable consumer may still hold deposits from earlier runs.
	for {
		select {
		case raw := <-events:
			raw.AckFunc()
			got, err := ingestion.ParseDeposit(raw.Data, raw.Timestamp)
			require.NoError(t, err)
			if got.Signature != d.Signature {
				continue
			}
			assert.True(t, d.Amount.Equal(got.Amount))
			assert.False(t, raw.Timestamp.IsZero())
			return
		case <-ctx.Done():
			t.Fatal("deposit not delivered")
		}
	}
}
