package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"starboard-backend/core/settlement"
)

// Mock is an in-memory ledger used by the default driver and by tests. It
// moves balances between accounts synchronously and records every transfer
// as a fetchable transaction.
type Mock struct {
	mu           sync.Mutex
	balances     map[string]decimal.Decimal
	transactions map[string]settlement.TransactionInfo
	failNext     int
}

// NewMock creates an empty mock ledger.
func NewMock() *Mock {
	return &Mock{
		balances:     make(map[string]decimal.Decimal),
		transactions: make(map[string]settlement.TransactionInfo),
	}
}

// SetBalance seeds or overwrites an account balance.
func (m *Mock) SetBalance(account string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = balance
}

// FailNextTransfers makes the next n Transfer calls fail, for exercising
// retry paths.
func (m *Mock) FailNextTransfers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// RecordDeposit registers a deposit transaction crediting the given account,
// returning its signature. Used to simulate task funding.
func (m *Mock) RecordDeposit(account string, amount decimal.Decimal, at time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig := "dep-" + uuid.NewString()
	m.transactions[sig] = settlement.TransactionInfo{
		Signature: sig,
		Found:     true,
		Timestamp: at,
		Deltas:    []settlement.BalanceDelta{{Account: account, Delta: amount}},
	}
	m.balances[account] = m.balances[account].Add(amount)
	return sig
}

// Balance returns the account balance, zero for unknown accounts.
func (m *Mock) Balance(_ context.Context, account string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

// Transfer credits the destination and records the transaction. The source
// side is the gateway's own account and is not modeled here. It fails when
// armed via FailNextTransfers.
func (m *Mock) Transfer(_ context.Context, to string, amount decimal.Decimal) (settlement.TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return settlement.TransferResult{}, fmt.Errorf("mock ledger: transfer refused")
	}
	sig := "rel-" + uuid.NewString()
	m.balances[to] = m.balances[to].Add(amount)
	m.transactions[sig] = settlement.TransactionInfo{
		Signature: sig,
		Found:     true,
		Timestamp: time.Now(),
		Deltas:    []settlement.BalanceDelta{{Account: to, Delta: amount}},
	}
	return settlement.TransferResult{Signature: sig}, nil
}

// Transaction returns a recorded transaction, or Found=false when unknown.
func (m *Mock) Transaction(_ context.Context, signature string) (settlement.TransactionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.transactions[signature]
	if !ok {
		return settlement.TransactionInfo{Signature: signature, Found: false}, nil
	}
	return info, nil
}
