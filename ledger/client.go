// Package ledger implements the settlement core's ledger contract against an
// HTTP ledger gateway, with a mock implementation for development and tests.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"starboard-backend/core/settlement"
)

// New selects a ledger client by provider name.
func New(name, base string) settlement.LedgerClient {
	switch name {
	case "http":
		return NewHTTPClient(base)
	default:
		return NewMock()
	}
}

// HTTPClient talks to a ledger gateway over its JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client for the given gateway base URL.
func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		baseURL: base,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type balanceResponse struct {
	Account string          `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// Balance returns the current balance of an account in smallest units.
func (c *HTTPClient) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/balance", c.baseURL, url.PathEscape(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch balance: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return decimal.Zero, fmt.Errorf("fetch balance: status %d: %s", resp.StatusCode, string(body))
	}
	var out balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("decode balance: %w", err)
	}
	return out.Balance, nil
}

type transferRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// Transfer submits a transfer and returns the ledger proof signature.
func (c *HTTPClient) Transfer(ctx context.Context, to string, amount decimal.Decimal) (settlement.TransferResult, error) {
	payload, err := json.Marshal(transferRequest{To: to, Amount: amount})
	if err != nil {
		return settlement.TransferResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(payload))
	if err != nil {
		return settlement.TransferResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return settlement.TransferResult{}, fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return settlement.TransferResult{}, fmt.Errorf("submit transfer: status %d: %s", resp.StatusCode, string(body))
	}
	var out transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return settlement.TransferResult{}, fmt.Errorf("decode transfer result: %w", err)
	}
	if out.Error != "" {
		return settlement.TransferResult{}, fmt.Errorf("transfer rejected: %s", out.Error)
	}
	return settlement.TransferResult{Signature: out.Signature}, nil
}

type transactionResponse struct {
	Signature string `json:"signature"`
	Erred     bool   `json:"erred"`
	Timestamp int64  `json:"timestamp"`
	Deltas    []struct {
		Account string          `json:"account"`
		Delta   decimal.Decimal `json:"delta"`
	} `json:"balance_deltas"`
}

// Transaction fetches the parsed view of a ledger transaction. A missing
// transaction is reported through Found, not an error.
func (c *HTTPClient) Transaction(ctx context.Context, signature string) (settlement.TransactionInfo, error) {
	endpoint := fmt.Sprintf("%s/transactions/%s", c.baseURL, url.PathEscape(signature))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return settlement.TransactionInfo{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return settlement.TransactionInfo{}, fmt.Errorf("fetch transaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return settlement.TransactionInfo{Signature: signature, Found: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return settlement.TransactionInfo{}, fmt.Errorf("fetch transaction: status %d: %s", resp.StatusCode, string(body))
	}
	var out transactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return settlement.TransactionInfo{}, fmt.Errorf("decode transaction: %w", err)
	}

	info := settlement.TransactionInfo{
		Signature: signature,
		Found:     true,
		Erred:     out.Erred,
		Timestamp: time.Unix(out.Timestamp, 0),
	}
	for _, d := range out.Deltas {
		info.Deltas = append(info.Deltas, settlement.BalanceDelta{Account: d.Account, Delta: d.Delta})
	}
	return info, nil
}
