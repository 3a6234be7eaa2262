// Package solana provides read-only access to a Solana JSON-RPC provider:
// balance queries, signature listings, transaction lookups, and a best-effort
// account-change subscription. No keys are ever handled; the package only
// observes a public address.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var dec1e9 = decimal.NewFromInt(LamportsPerSOL)

// ClientOptions parameterise the RPC client.
type ClientOptions struct {
	RPCURL    string
	Timeout   time.Duration
	UserAgent string
}

// Client issues JSON-RPC requests over HTTP.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	httpc   *http.Client
	baseURL string
}

// NewClient constructs an RPC client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "solana_client").Logger(),
		httpc:   &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.RPCURL, "/"),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if c.baseURL == "" {
		return errors.New("solana rpc url not configured")
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var envelope rpcResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc %s error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// GetBalance returns the account balance in SOL.
func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var result struct {
		Value int64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{address}, &result); err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromInt(result.Value).Div(dec1e9), nil
}

// GetSignaturesForAddress lists the most recent transaction signatures
// touching the address, newest first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	var result []SignatureInfo
	params := []any{address, map[string]any{"limit": limit}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransaction fetches full transaction details for one signature.
// A nil transaction with nil error means the provider has no record yet.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var result json.RawMessage
	params := []any{signature, map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var tx Transaction
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", signature, err)
	}
	tx.Signature = signature
	return &tx, nil
}
