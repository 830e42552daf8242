package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	l := NewLedger()
	require.Zero(t, l.Count())
	require.Zero(t, l.CountCashedOut())
	_, ok := l.FindByUser("a")
	require.False(t, ok, "FindByUser on empty ledger found a bet")

	l.Append(&Bet{UserID: "a", Amount: 10})
	l.Append(&Bet{UserID: "b", Amount: 20})

	assert.True(t, l.Holds("a"))
	assert.False(t, l.Holds("c"))

	bet, ok := l.FindByUser("b")
	require.True(t, ok)
	require.Equal(t, 20.0, bet.Amount)
	m := 1.5
	bet.CashedOut = true
	bet.CashoutMultiplier = &m

	_, ok = l.FindByUser("b")
	assert.False(t, ok, "FindByUser returned a cashed out bet")
	assert.True(t, l.Holds("b"), "cashed out bet no longer held")
	assert.Equal(t, 1, l.CountCashedOut())

	snapshot := l.Bets()
	snapshot[0].Amount = 999
	assert.Equal(t, 10.0, l.Bets()[0].Amount, "Bets() exposes ledger storage")

	v := snapshot[1].view()
	*v.CashoutMultiplier = 3
	assert.Equal(t, 1.5, *bet.CashoutMultiplier, "view() shares the cashout multiplier")

	l.Clear()
	assert.Zero(t, l.Count())
	assert.False(t, l.Holds("a"), "Clear() left bets behind")
}
