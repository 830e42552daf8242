package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Debit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetBalance("1", 100)

	t.Run("debits when covered", func(t *testing.T) {
		bal, err := m.Debit(ctx, "1", 40)
		require.NoError(t, err)
		assert.Equal(t, 60.0, bal)
	})

	t.Run("rejects when short", func(t *testing.T) {
		bal, err := m.Debit(ctx, "1", 61)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, 60.0, bal)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := m.Debit(ctx, "nobody", 1)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestMemory_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetBalance("1", 100)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Debit(ctx, "1", 30); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	bal, err := m.Balance(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, bal)
}

func TestMemory_CreditIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetBalance("7", 0)

	c := Credit{RoundID: "r1", UserID: "7", Amount: 150}
	bal, err := m.Credit(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 150.0, bal)

	bal, err = m.Credit(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 150.0, bal)

	bal, err = m.Credit(ctx, Credit{RoundID: "r2", UserID: "7", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, 200.0, bal)
}

func TestMemory_OpeningBalance(t *testing.T) {
	ctx := context.Background()

	_, err := NewMemory().Balance(ctx, "new")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	m := NewMemoryWithOpening(1000)
	bal, err := m.Debit(ctx, "new", 250)
	require.NoError(t, err)
	assert.Equal(t, 750.0, bal)

	bal, err = m.Balance(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 750.0, bal)
}
