package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"SwapLedger/internal/ledger"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// ErrInjected is returned by fakes told to fail.
var ErrInjected = errors.New("injected failure")

// Payment is one outbound transfer recorded by a fake.
type Payment struct {
	Token  string
	To     string
	Amount sdkmath.Int
	Ref    string
}

// FakeLedger is an in-memory native ledger. Deposits registered with
// Deposit can be verified by block index; TransferFrom always succeeds
// unless FailCollect is set.
type FakeLedger struct {
	mu        sync.Mutex
	block     uint64
	deposits  map[uint64]Payment
	Sent      []Payment
	Collected []Payment

	FailSend    bool
	FailCollect bool

	gate    chan struct{}
	entered chan struct{}
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{block: 1000, deposits: make(map[uint64]Payment)}
}

// Deposit records a transfer from principal to the exchange and returns
// its block index.
func (f *FakeLedger) Deposit(token ledger.Token, from string, amount sdkmath.Int) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block++
	f.deposits[f.block] = Payment{Token: token.Address(), To: from, Amount: amount}
	return f.block
}

func (f *FakeLedger) SetFailSend(fail bool) {
	f.mu.Lock()
	f.FailSend = fail
	f.mu.Unlock()
}

func (f *FakeLedger) Payments() []Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Payment(nil), f.Sent...)
}

func (f *FakeLedger) Collections() []Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Payment(nil), f.Collected...)
}

// HoldTransfers makes Transfer block until release is called. entered
// receives once for every call that reaches the gate.
func (f *FakeLedger) HoldTransfers() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate, in := make(chan struct{}), make(chan struct{}, 16)
	f.gate, f.entered = gate, in
	var once sync.Once
	return in, func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate, f.entered = nil, nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *FakeLedger) Transfer(_ context.Context, token ledger.Token, to string, amount sdkmath.Int) (uint64, error) {
	f.mu.Lock()
	gate, in := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		in <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend {
		return 0, ErrInjected
	}
	f.block++
	f.Sent = append(f.Sent, Payment{Token: token.Address(), To: to, Amount: amount, Ref: fmt.Sprint(f.block)})
	return f.block, nil
}

func (f *FakeLedger) TransferFrom(_ context.Context, token ledger.Token, from string, amount sdkmath.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCollect {
		return 0, ErrInjected
	}
	f.block++
	f.Collected = append(f.Collected, Payment{Token: token.Address(), To: from, Amount: amount, Ref: fmt.Sprint(f.block)})
	return f.block, nil
}

func (f *FakeLedger) VerifyTransfer(_ context.Context, token ledger.Token, from string, amount sdkmath.Int, blockIndex uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[blockIndex]
	if !ok {
		return fmt.Errorf("block %d not found", blockIndex)
	}
	if d.Token != token.Address() || d.To != from || !d.Amount.Equal(amount) {
		return fmt.Errorf("block %d does not match deposit", blockIndex)
	}
	return nil
}

// FakeBridge accepts any inbound proof carrying a signature and records
// outbound transfers.
type FakeBridge struct {
	mu   sync.Mutex
	n    int
	Sent []Payment

	FailSend   bool
	RejectSigs map[string]bool
}

func NewFakeBridge() *FakeBridge {
	return &FakeBridge{RejectSigs: make(map[string]bool)}
}

func (f *FakeBridge) ValidateAddress(address string) error {
	_, err := solana.PublicKeyFromBase58(address)
	return err
}

func (f *FakeBridge) VerifyInbound(_ context.Context, _ ledger.Token, _ sdkmath.Int, proof ledger.Proof) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RejectSigs[proof.TxSignature] {
		return "", ledger.ErrProof.Wrapf("signature %s rejected", proof.TxSignature)
	}
	return proof.TxSignature, nil
}

func (f *FakeBridge) SubmitOutbound(_ context.Context, token ledger.Token, dest string, amount sdkmath.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend {
		return "", ErrInjected
	}
	f.n++
	ref := fmt.Sprintf("sig-out-%d", f.n)
	f.Sent = append(f.Sent, Payment{Token: token.Address(), To: dest, Amount: amount, Ref: ref})
	return ref, nil
}
