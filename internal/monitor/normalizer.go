// Package monitor turns raw provider transactions into ledger submissions:
// the normalizer extracts incoming transfers and the watcher drives the
// fetch-and-diff loop shared by the poll and push triggers.
package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"octowatcher/internal/ledger"
	"octowatcher/internal/solana"
)

// UnknownCounterparty is the sentinel used when no sender can be identified.
// Counterparty resolution is cosmetic; crediting depends only on signature
// and amount.
const UnknownCounterparty = "unknown"

var lamports = decimal.NewFromInt(solana.LamportsPerSOL)

// Normalize maps one raw transaction to at most one incoming transfer for
// the given account. It returns false when the record is irrelevant (account
// absent, outgoing or neutral delta, failed execution) or malformed; a bad
// record must never halt ingestion of the ones behind it.
func Normalize(tx *solana.Transaction, account string) (ledger.IncomingTransfer, bool) {
	if tx == nil || tx.Meta == nil || tx.Failed() {
		return ledger.IncomingTransfer{}, false
	}

	keys := tx.Transaction.Message.AccountKeys
	if len(tx.Meta.PreBalances) != len(keys) || len(tx.Meta.PostBalances) != len(keys) {
		return ledger.IncomingTransfer{}, false
	}

	index := -1
	for i, key := range keys {
		if key.Pubkey == account {
			index = i
			break
		}
	}
	if index == -1 {
		return ledger.IncomingTransfer{}, false
	}

	delta := tx.Meta.PostBalances[index] - tx.Meta.PreBalances[index]
	if delta <= 0 {
		return ledger.IncomingTransfer{}, false
	}

	observed := time.Now().UTC()
	if tx.BlockTime != nil {
		observed = time.Unix(*tx.BlockTime, 0).UTC()
	}

	return ledger.IncomingTransfer{
		Signature:    tx.Signature,
		Amount:       decimal.NewFromInt(delta).Div(lamports),
		Counterparty: counterparty(tx, account),
		ObservedAt:   observed,
	}, true
}

// counterparty picks the first participant whose balance decreased.
func counterparty(tx *solana.Transaction, account string) string {
	keys := tx.Transaction.Message.AccountKeys
	for i, key := range keys {
		if key.Pubkey == account {
			continue
		}
		if tx.Meta.PostBalances[i]-tx.Meta.PreBalances[i] < 0 {
			return key.Pubkey
		}
	}
	return UnknownCounterparty
}
