package solana

import (
	"encoding/json"
)

// LamportsPerSOL is the number of native smallest units in one SOL.
const LamportsPerSOL = 1_000_000_000

// SignatureInfo is one entry from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Err       json.RawMessage `json:"err"`
	BlockTime *int64          `json:"blockTime"`
}

// AccountKey is a participant entry in a transaction message. Depending on
// the requested encoding the provider returns either a bare base58 string or
// an object carrying a pubkey field; both decode into Pubkey.
type AccountKey struct {
	Pubkey string
}

// UnmarshalJSON accepts both account key representations.
func (a *AccountKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Pubkey = s
		return nil
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	a.Pubkey = obj.Pubkey
	return nil
}

// TransactionMeta carries per-participant balance movements.
type TransactionMeta struct {
	Err          json.RawMessage `json:"err"`
	PreBalances  []int64         `json:"preBalances"`
	PostBalances []int64         `json:"postBalances"`
}

// TransactionMessage lists the ordered participant accounts.
type TransactionMessage struct {
	AccountKeys []AccountKey `json:"accountKeys"`
}

// TransactionEnvelope wraps the message portion of a transaction.
type TransactionEnvelope struct {
	Message TransactionMessage `json:"message"`
}

// Transaction is the raw provider transaction record. It is held only long
// enough to normalize and is never persisted.
type Transaction struct {
	Signature   string
	BlockTime   *int64              `json:"blockTime"`
	Meta        *TransactionMeta    `json:"meta"`
	Transaction TransactionEnvelope `json:"transaction"`
}

// Failed reports whether the provider recorded an execution error.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && len(t.Meta.Err) > 0 && string(t.Meta.Err) != "null"
}
