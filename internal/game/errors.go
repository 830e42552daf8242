package game

import "errors"

// Validation errors are reported to the requesting connection only.
var (
	ErrBettingClosed       = errors.New("betting is closed for this round")
	ErrInvalidAmount       = errors.New("invalid bet amount")
	ErrDuplicateBet        = errors.New("bet already placed this round")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoActiveRound       = errors.New("no game in progress")
	ErrNoEligibleBet       = errors.New("no active bet found or already cashed out")
)

// ErrServer marks failures of the engine's collaborators, such as a balance
// store that cannot be reached or a full request queue.
var ErrServer = errors.New("server error")

var validationErrors = []error{
	ErrBettingClosed,
	ErrInvalidAmount,
	ErrDuplicateBet,
	ErrInsufficientBalance,
	ErrNoActiveRound,
	ErrNoEligibleBet,
}

func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// Reason maps an error to the short code sent in rejection events.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrBettingClosed):
		return "BettingClosed"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrDuplicateBet):
		return "DuplicateBet"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrNoActiveRound):
		return "NoActiveRound"
	case errors.Is(err, ErrNoEligibleBet):
		return "NoEligibleBet"
	default:
		return "ServerError"
	}
}
