package wallet

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
)

// Credit is one settlement payout owed to a user. RoundID and UserID
// together identify it, so applying the same Credit twice has no effect.
type Credit struct {
	RoundID string  `json:"round_id"`
	UserID  string  `json:"user_id"`
	Amount  float64 `json:"amount"`
}

func (c Credit) Key() string {
	return fmt.Sprintf("%s:%s", c.RoundID, c.UserID)
}

// Gateway executes balance mutations against the balance store. Each call is
// atomic on its own; Debit only succeeds if the balance covers the amount.
type Gateway interface {
	Balance(ctx context.Context, userID string) (float64, error)
	Debit(ctx context.Context, userID string, amount float64) (float64, error)
	Credit(ctx context.Context, credit Credit) (float64, error)
}
