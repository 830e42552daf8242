package game

import "github.com/shopspring/decimal"

const DEFAULT_COMMISSION_RATE = 0.10

// ratioPrecision bounds the payout ratio's digits. The ratio is truncated,
// never rounded up, so pro-rated payouts cannot exceed the distributable pool.
const ratioPrecision = 16

type Winner struct {
	UserID            string  `json:"userId"`
	Username          string  `json:"username"`
	Amount            float64 `json:"amount"`
	CashoutMultiplier float64 `json:"cashoutMultiplier"`
	Payout            float64 `json:"payout"`
}

type Loser struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
}

type SettlementResult struct {
	RoundID     string   `json:"roundId"`
	Winners     []Winner `json:"winners"`
	Losers      []Loser  `json:"losers"`
	Commission  float64  `json:"commission"`
	PayoutRatio float64  `json:"payoutRatio"`
}

// Settle computes the outcome of a finished round. Losing stakes fund the
// winners' profit after the house commission; when the pool is short every
// winner's profit is scaled by the same ratio. Stakes were escrowed at
// placement, so a winner's payout includes the stake.
func Settle(bets []Bet, commissionRate float64) SettlementResult {
	result := SettlementResult{
		Winners:     []Winner{},
		Losers:      []Loser{},
		PayoutRatio: 1,
	}

	one := decimal.NewFromInt(1)
	loserStake := decimal.Zero
	profitOwed := decimal.Zero

	for _, b := range bets {
		amount := decimal.NewFromFloat(b.Amount)
		if b.CashedOut && b.CashoutMultiplier != nil {
			mult := decimal.NewFromFloat(*b.CashoutMultiplier)
			profitOwed = profitOwed.Add(amount.Mul(mult.Sub(one)))
			continue
		}
		loserStake = loserStake.Add(amount)
		result.Losers = append(result.Losers, Loser{
			UserID:   b.UserID,
			Username: b.Username,
			Amount:   b.Amount,
		})
	}

	commission := loserStake.Mul(decimal.NewFromFloat(commissionRate))
	distributable := loserStake.Sub(commission)

	ratio := one
	if profitOwed.IsPositive() && distributable.LessThan(profitOwed) {
		ratio = distributable.DivRound(profitOwed, ratioPrecision+4).Truncate(ratioPrecision)
	}

	for _, b := range bets {
		if !b.CashedOut || b.CashoutMultiplier == nil {
			continue
		}
		amount := decimal.NewFromFloat(b.Amount)
		mult := decimal.NewFromFloat(*b.CashoutMultiplier)
		payout := amount.Add(amount.Mul(mult.Sub(one)).Mul(ratio))
		result.Winners = append(result.Winners, Winner{
			UserID:            b.UserID,
			Username:          b.Username,
			Amount:            b.Amount,
			CashoutMultiplier: *b.CashoutMultiplier,
			Payout:            payout.InexactFloat64(),
		})
	}

	result.Commission = commission.InexactFloat64()
	result.PayoutRatio = ratio.InexactFloat64()
	return result
}

// TotalStake sums every bet's amount.
func TotalStake(bets []Bet) float64 {
	total := decimal.Zero
	for _, b := range bets {
		total = total.Add(decimal.NewFromFloat(b.Amount))
	}
	return total.InexactFloat64()
}
