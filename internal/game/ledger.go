package game

import "time"

type Bet struct {
	UserID            string
	Username          string
	Amount            float64
	CashoutMultiplier *float64
	CashedOut         bool
	PlacedAt          time.Time
}

func (b *Bet) view() *BetView {
	v := &BetView{Amount: b.Amount, CashedOut: b.CashedOut}
	if b.CashoutMultiplier != nil {
		m := *b.CashoutMultiplier
		v.CashoutMultiplier = &m
	}
	return v
}

// Ledger holds the bets of the active round in placement order. It is not
// safe for concurrent use; the engine goroutine owns it.
type Ledger struct {
	bets []*Bet
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(b *Bet) {
	l.bets = append(l.bets, b)
}

// FindByUser returns the user's first bet that has not cashed out.
func (l *Ledger) FindByUser(userID string) (*Bet, bool) {
	for _, b := range l.bets {
		if b.UserID == userID && !b.CashedOut {
			return b, true
		}
	}
	return nil, false
}

// Holds reports whether the user has any bet in this round.
func (l *Ledger) Holds(userID string) bool {
	_, ok := l.latest(userID)
	return ok
}

func (l *Ledger) latest(userID string) (*Bet, bool) {
	for i := len(l.bets) - 1; i >= 0; i-- {
		if l.bets[i].UserID == userID {
			return l.bets[i], true
		}
	}
	return nil, false
}

func (l *Ledger) Count() int {
	return len(l.bets)
}

func (l *Ledger) CountCashedOut() int {
	n := 0
	for _, b := range l.bets {
		if b.CashedOut {
			n++
		}
	}
	return n
}

// Bets returns copies of the bets, safe to hand to the payout calculator.
func (l *Ledger) Bets() []Bet {
	out := make([]Bet, len(l.bets))
	for i, b := range l.bets {
		out[i] = *b
	}
	return out
}

func (l *Ledger) Clear() {
	l.bets = nil
}
