package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octowatcher/internal/logging"
)

func newRPCServer(t *testing.T, handler func(method string, params []any) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestClient(url string) *Client {
	return NewClient(ClientOptions{RPCURL: url}, logging.Nop())
}

func TestGetBalance(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []any) (any, *rpcError) {
		assert.Equal(t, "getBalance", method)
		require.Len(t, params, 1)
		assert.Equal(t, "wallet-addr", params[0])
		return map[string]any{"value": 1_500_000_000}, nil
	})
	defer srv.Close()

	balance, err := newTestClient(srv.URL).GetBalance(context.Background(), "wallet-addr")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(1.5)), "balance=%s", balance)
}

func TestGetSignaturesForAddress(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []any) (any, *rpcError) {
		assert.Equal(t, "getSignaturesForAddress", method)
		require.Len(t, params, 2)
		opts, ok := params[1].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(20), opts["limit"])
		return []map[string]any{
			{"signature": "sig-b", "slot": 101, "err": nil, "blockTime": 1700000100},
			{"signature": "sig-a", "slot": 100, "err": map[string]any{"InstructionError": []any{}}},
		}, nil
	})
	defer srv.Close()

	sigs, err := newTestClient(srv.URL).GetSignaturesForAddress(context.Background(), "wallet-addr", 20)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "sig-b", sigs[0].Signature)
	assert.Equal(t, uint64(101), sigs[0].Slot)
	require.NotNil(t, sigs[0].BlockTime)
	assert.Equal(t, int64(1700000100), *sigs[0].BlockTime)
	assert.NotEmpty(t, sigs[1].Err)
}

func TestGetTransaction(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []any) (any, *rpcError) {
		assert.Equal(t, "getTransaction", method)
		require.Len(t, params, 2)
		assert.Equal(t, "sig-1", params[0])
		return map[string]any{
			"blockTime": 1700000000,
			"meta": map[string]any{
				"err":          nil,
				"preBalances":  []int64{5_000_000_000, 0},
				"postBalances": []int64{4_000_000_000, 1_000_000_000},
			},
			"transaction": map[string]any{
				"message": map[string]any{
					"accountKeys": []any{
						map[string]any{"pubkey": "sender"},
						"receiver",
					},
				},
			},
		}, nil
	})
	defer srv.Close()

	tx, err := newTestClient(srv.URL).GetTransaction(context.Background(), "sig-1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "sig-1", tx.Signature)
	assert.False(t, tx.Failed())

	keys := tx.Transaction.Message.AccountKeys
	require.Len(t, keys, 2)
	// Both object and bare-string account key encodings decode.
	assert.Equal(t, "sender", keys[0].Pubkey)
	assert.Equal(t, "receiver", keys[1].Pubkey)
	assert.Equal(t, []int64{5_000_000_000, 0}, tx.Meta.PreBalances)
}

func TestGetTransactionNotFound(t *testing.T) {
	srv := newRPCServer(t, func(string, []any) (any, *rpcError) {
		return nil, nil
	})
	defer srv.Close()

	tx, err := newTestClient(srv.URL).GetTransaction(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestCallSurfacesRPCError(t *testing.T) {
	srv := newRPCServer(t, func(string, []any) (any, *rpcError) {
		return nil, &rpcError{Code: -32602, Message: "invalid params"}
	})
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetBalance(context.Background(), "wallet-addr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
}

func TestCallSurfacesHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetBalance(context.Background(), "wallet-addr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
