package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octowatcher/internal/ledger"
	"octowatcher/internal/logging"
	"octowatcher/internal/solana"
)

type fakeSource struct {
	sigs    []solana.SignatureInfo
	txs     map[string]*solana.Transaction
	txErrs  map[string]error
	listErr error
}

func (f *fakeSource) GetBalance(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func (f *fakeSource) GetSignaturesForAddress(context.Context, string, int) ([]solana.SignatureInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sigs, nil
}

func (f *fakeSource) GetTransaction(_ context.Context, sig string) (*solana.Transaction, error) {
	if err, ok := f.txErrs[sig]; ok {
		return nil, err
	}
	return f.txs[sig], nil
}

type fakeSubmitter struct {
	submitted []string
	errFor    map[string]error
}

func (f *fakeSubmitter) Submit(_ context.Context, transfer ledger.IncomingTransfer) (ledger.CreditResult, error) {
	if err, ok := f.errFor[transfer.Signature]; ok {
		return ledger.CreditResult{}, err
	}
	f.submitted = append(f.submitted, transfer.Signature)
	return ledger.CreditResult{Status: ledger.Credited, Credit: 1}, nil
}

func incomingTx(sig string) *solana.Transaction {
	return makeTx(sig,
		[]string{"sender", wallet},
		[]int64{1_000_000_000, 0},
		[]int64{900_000_000, 100_000_000},
	)
}

func sigInfos(sigs ...string) []solana.SignatureInfo {
	out := make([]solana.SignatureInfo, len(sigs))
	for i, sig := range sigs {
		out[i] = solana.SignatureInfo{Signature: sig}
	}
	return out
}

func newTestWatcher(source TransactionSource, submitter Submitter) *Watcher {
	return New(source, submitter, Options{Address: wallet, SignatureLimit: 10}, logging.Nop())
}

func TestSyncSeedsHighWaterMarkWithoutReplay(t *testing.T) {
	source := &fakeSource{sigs: sigInfos("c", "b", "a")}
	submitter := &fakeSubmitter{}
	w := newTestWatcher(source, submitter)

	require.NoError(t, w.Sync(context.Background()))
	assert.Empty(t, submitter.submitted)

	// Nothing new: second sync is a no-op.
	require.NoError(t, w.Sync(context.Background()))
	assert.Empty(t, submitter.submitted)
}

func TestSyncSubmitsNewTransfersOldestFirst(t *testing.T) {
	source := &fakeSource{sigs: sigInfos("a")}
	submitter := &fakeSubmitter{}
	w := newTestWatcher(source, submitter)
	ctx := context.Background()

	require.NoError(t, w.Sync(ctx)) // seeds at "a"

	source.sigs = sigInfos("c", "b", "a")
	source.txs = map[string]*solana.Transaction{
		"b": incomingTx("b"),
		"c": incomingTx("c"),
	}

	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, []string{"b", "c"}, submitter.submitted)

	// Replaying the same window submits nothing further.
	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, []string{"b", "c"}, submitter.submitted)
}

func TestSyncDoesNotAdvancePastSubmitFailure(t *testing.T) {
	source := &fakeSource{sigs: sigInfos("a")}
	submitter := &fakeSubmitter{errFor: map[string]error{"c": ledger.ErrUnavailable}}
	w := newTestWatcher(source, submitter)
	ctx := context.Background()

	require.NoError(t, w.Sync(ctx)) // seed

	source.sigs = sigInfos("c", "b", "a")
	source.txs = map[string]*solana.Transaction{
		"b": incomingTx("b"),
		"c": incomingTx("c"),
	}

	err := w.Sync(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"b"}, submitter.submitted)

	// The failed transfer is retried on the next tick once the store heals.
	submitter.errFor = nil
	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, []string{"b", "c"}, submitter.submitted)
}

func TestSyncDoesNotAdvancePastFetchFailure(t *testing.T) {
	source := &fakeSource{sigs: sigInfos("a")}
	submitter := &fakeSubmitter{}
	w := newTestWatcher(source, submitter)
	ctx := context.Background()

	require.NoError(t, w.Sync(ctx)) // seed

	source.sigs = sigInfos("b", "a")
	source.txErrs = map[string]error{"b": errors.New("timeout")}

	require.Error(t, w.Sync(ctx))
	assert.Empty(t, submitter.submitted)

	source.txErrs = nil
	source.txs = map[string]*solana.Transaction{"b": incomingTx("b")}
	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, []string{"b"}, submitter.submitted)
}

func TestSyncSkipsFailedSignatures(t *testing.T) {
	source := &fakeSource{sigs: sigInfos("a")}
	submitter := &fakeSubmitter{}
	w := newTestWatcher(source, submitter)
	ctx := context.Background()

	require.NoError(t, w.Sync(ctx)) // seed

	failed := solana.SignatureInfo{Signature: "b", Err: []byte(`{"InstructionError":[]}`)}
	source.sigs = []solana.SignatureInfo{{Signature: "c"}, failed, {Signature: "a"}}
	source.txs = map[string]*solana.Transaction{"c": incomingTx("c")}

	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, []string{"c"}, submitter.submitted)
}

func TestSyncReportsBalance(t *testing.T) {
	source := &fakeSource{sigs: sigInfos("a")}
	w := newTestWatcher(source, &fakeSubmitter{})

	var got decimal.Decimal
	w.SetBalanceHook(func(sol decimal.Decimal) { got = sol })

	require.NoError(t, w.Sync(context.Background()))
	assert.True(t, got.Equal(decimal.NewFromInt(1)))
}
