package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octowatcher/internal/logging"
)

type fakeCreditor struct {
	mu    sync.Mutex
	total int64
	calls int
}

func (f *fakeCreditor) Credit(amount int64) {
	f.mu.Lock()
	f.total += amount
	f.calls++
	f.mu.Unlock()
}

func newTestLedger(store Store, creditor Creditor) *Ledger {
	return New(store, creditor, decimal.NewFromFloat(0.01), logging.Nop())
}

func transfer(sig string, amount float64) IncomingTransfer {
	return IncomingTransfer{
		Signature:    sig,
		Amount:       decimal.NewFromFloat(amount),
		Counterparty: "sender",
		ObservedAt:   time.Now().UTC(),
	}
}

func TestSubmitCreditsOnce(t *testing.T) {
	creditor := &fakeCreditor{}
	led := newTestLedger(NewMemStore(), creditor)
	ctx := context.Background()

	result, err := led.Submit(ctx, transfer("sig-1", 0.5))
	require.NoError(t, err)
	assert.Equal(t, Credited, result.Status)
	assert.Equal(t, int64(50), result.Credit)

	// The identical transfer is the normal, expected duplicate case.
	result, err = led.Submit(ctx, transfer("sig-1", 0.5))
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, result.Status)
	assert.Equal(t, int64(0), result.Credit)

	assert.Equal(t, int64(50), creditor.total)
	assert.Equal(t, 1, creditor.calls)
}

func TestSubmitDustRecordedWithoutCredit(t *testing.T) {
	creditor := &fakeCreditor{}
	store := NewMemStore()
	led := newTestLedger(store, creditor)
	ctx := context.Background()

	result, err := led.Submit(ctx, transfer("dust-1", 0.005))
	require.NoError(t, err)
	assert.Equal(t, Credited, result.Status)
	assert.Equal(t, int64(0), result.Credit)
	assert.Equal(t, 0, creditor.calls)

	// Dust must not be re-evaluated on resubmission.
	result, err = led.Submit(ctx, transfer("dust-1", 0.005))
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, result.Status)

	processed, err := store.HasProcessed(ctx, "dust-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestSubmitRejectsNonPositiveAmount(t *testing.T) {
	led := newTestLedger(NewMemStore(), &fakeCreditor{})

	_, err := led.Submit(context.Background(), transfer("zero", 0))
	assert.Error(t, err)

	_, err = led.Submit(context.Background(), IncomingTransfer{
		Signature: "neg",
		Amount:    decimal.NewFromFloat(-1),
	})
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) HasProcessed(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingStore) MarkProcessed(context.Context, ProcessedRecord) (bool, error) {
	return false, errors.New("connection refused")
}

func TestSubmitSurfacesStoreFailure(t *testing.T) {
	creditor := &fakeCreditor{}
	led := newTestLedger(failingStore{}, creditor)

	_, err := led.Submit(context.Background(), transfer("sig-1", 0.5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, 0, creditor.calls)
}

func TestCreditFor(t *testing.T) {
	led := newTestLedger(NewMemStore(), &fakeCreditor{})

	cases := []struct {
		amount float64
		want   int64
	}{
		{0.005, 0},
		{0.009, 0},
		{0.01, 1},
		{0.019, 1},
		{0.05, 5},
		{0.5, 50},
		{1.0, 100},
	}

	for _, tc := range cases {
		got := led.CreditFor(decimal.NewFromFloat(tc.amount))
		assert.Equal(t, tc.want, got, "amount=%v", tc.amount)
	}
}

func TestConcurrentSubmitCreditsExactlyOnce(t *testing.T) {
	creditor := &fakeCreditor{}
	led := newTestLedger(NewMemStore(), creditor)
	ctx := context.Background()

	var credited atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := led.Submit(ctx, transfer("contested", 0.1))
			if err == nil && result.Status == Credited {
				credited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), credited.Load())
	assert.Equal(t, int64(10), creditor.total)
	assert.Equal(t, 1, creditor.calls)
}

func TestDonationHookFiresForCreditedOnly(t *testing.T) {
	led := newTestLedger(NewMemStore(), &fakeCreditor{})

	var events []DonationEvent
	led.SetDonationHook(func(event DonationEvent) {
		events = append(events, event)
	})

	ctx := context.Background()
	_, err := led.Submit(ctx, transfer("sig-1", 0.5))
	require.NoError(t, err)
	_, err = led.Submit(ctx, transfer("sig-1", 0.5)) // duplicate
	require.NoError(t, err)
	_, err = led.Submit(ctx, transfer("dust", 0.001)) // dust
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "sig-1", events[0].Signature)
	assert.Equal(t, int64(50), events[0].Credit)
}
