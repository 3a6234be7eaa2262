package monitor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octowatcher/internal/solana"
)

const wallet = "8ejAYL1hNeJreUxTfwUQ5QVay7dN5FCbaEiQspiciVxw"

func makeTx(sig string, keys []string, pre, post []int64) *solana.Transaction {
	accountKeys := make([]solana.AccountKey, len(keys))
	for i, key := range keys {
		accountKeys[i] = solana.AccountKey{Pubkey: key}
	}
	blockTime := int64(1700000000)
	return &solana.Transaction{
		Signature: sig,
		BlockTime: &blockTime,
		Meta:      &solana.TransactionMeta{PreBalances: pre, PostBalances: post},
		Transaction: solana.TransactionEnvelope{
			Message: solana.TransactionMessage{AccountKeys: accountKeys},
		},
	}
}

func TestNormalizeIncomingTransfer(t *testing.T) {
	tx := makeTx("sig-1",
		[]string{"sender111", wallet},
		[]int64{5_000_000_000, 1_000_000_000},
		[]int64{4_500_000_000, 1_500_000_000},
	)

	got, ok := Normalize(tx, wallet)
	require.True(t, ok)
	assert.Equal(t, "sig-1", got.Signature)
	assert.True(t, got.Amount.Equal(decimal.NewFromFloat(0.5)), "amount=%s", got.Amount)
	assert.Equal(t, "sender111", got.Counterparty)
	assert.Equal(t, int64(1700000000), got.ObservedAt.Unix())
}

func TestNormalizeDiscardsWhenAccountAbsent(t *testing.T) {
	tx := makeTx("sig-1",
		[]string{"someone", "else"},
		[]int64{100, 200},
		[]int64{90, 210},
	)

	_, ok := Normalize(tx, wallet)
	assert.False(t, ok)
}

func TestNormalizeDiscardsOutgoingAndNeutral(t *testing.T) {
	outgoing := makeTx("out",
		[]string{wallet, "receiver"},
		[]int64{2_000_000_000, 0},
		[]int64{1_000_000_000, 1_000_000_000},
	)
	_, ok := Normalize(outgoing, wallet)
	assert.False(t, ok)

	neutral := makeTx("neutral",
		[]string{wallet, "other"},
		[]int64{1_000_000_000, 500},
		[]int64{1_000_000_000, 500},
	)
	_, ok = Normalize(neutral, wallet)
	assert.False(t, ok)
}

func TestNormalizeDiscardsFailedTransaction(t *testing.T) {
	tx := makeTx("failed",
		[]string{"sender", wallet},
		[]int64{100, 0},
		[]int64{0, 100},
	)
	tx.Meta.Err = []byte(`{"InstructionError":[0,"Custom"]}`)

	_, ok := Normalize(tx, wallet)
	assert.False(t, ok)
}

func TestNormalizeDiscardsMalformedRecords(t *testing.T) {
	_, ok := Normalize(nil, wallet)
	assert.False(t, ok)

	noMeta := makeTx("x", []string{wallet}, nil, nil)
	noMeta.Meta = nil
	_, ok = Normalize(noMeta, wallet)
	assert.False(t, ok)

	// Balance arrays shorter than the account list.
	mismatched := makeTx("y",
		[]string{"a", wallet},
		[]int64{100},
		[]int64{100},
	)
	_, ok = Normalize(mismatched, wallet)
	assert.False(t, ok)
}

func TestNormalizeUnknownCounterparty(t *testing.T) {
	// No participant lost balance; sender unresolvable.
	tx := makeTx("sig-1",
		[]string{"program", wallet},
		[]int64{0, 1_000_000_000},
		[]int64{0, 2_000_000_000},
	)

	got, ok := Normalize(tx, wallet)
	require.True(t, ok)
	assert.Equal(t, UnknownCounterparty, got.Counterparty)
}
