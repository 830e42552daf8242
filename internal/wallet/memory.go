package wallet

import (
	"context"
	"sync"
)

// Memory keeps balances in process. Used for local runs and tests.
type Memory struct {
	mu       sync.Mutex
	balances map[string]float64
	applied  map[string]struct{}
	opening  float64
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]float64),
		applied:  make(map[string]struct{}),
	}
}

// NewMemoryWithOpening opens unknown accounts on first use with the given
// balance instead of reporting ErrAccountNotFound.
func NewMemoryWithOpening(balance float64) *Memory {
	m := NewMemory()
	m.opening = balance
	return m
}

// account must be called with mu held.
func (m *Memory) account(userID string) (float64, bool) {
	bal, ok := m.balances[userID]
	if !ok && m.opening > 0 {
		bal, ok = m.opening, true
		m.balances[userID] = bal
	}
	return bal, ok
}

// SetBalance opens or overwrites an account.
func (m *Memory) SetBalance(userID string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
}

func (m *Memory) Balance(_ context.Context, userID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.account(userID)
	if !ok {
		return 0, ErrAccountNotFound
	}
	return bal, nil
}

func (m *Memory) Debit(_ context.Context, userID string, amount float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.account(userID)
	if !ok {
		return 0, ErrAccountNotFound
	}
	if bal < amount {
		return bal, ErrInsufficientFunds
	}
	bal -= amount
	m.balances[userID] = bal
	return bal, nil
}

func (m *Memory) Credit(_ context.Context, c Credit) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.account(c.UserID)
	if !ok {
		return 0, ErrAccountNotFound
	}
	if _, done := m.applied[c.Key()]; done {
		return bal, nil
	}
	m.applied[c.Key()] = struct{}{}
	bal += c.Amount
	m.balances[c.UserID] = bal
	return bal, nil
}
