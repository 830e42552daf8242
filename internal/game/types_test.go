package game

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundState_WireFormat(t *testing.T) {
	mult := 1.8
	st := RoundState{
		RoundID:    "r1",
		Phase:      PhaseRunning,
		Multiplier: 2.05,
		ActiveBets: 3,
		MyBet:      &BetView{Amount: 10, CashedOut: true, CashoutMultiplier: &mult},
	}

	data, err := json.Marshal(st)
	require.NoError(t, err, "Failed to marshal RoundState")

	want := `{"roundId":"r1","phase":"RUNNING","multiplier":2.05,"countdownRemaining":0,"activeBets":3,` +
		`"myBet":{"amount":10,"cashedOut":true,"cashoutMultiplier":1.8}}`
	assert.Equal(t, want, string(data))
}

func TestEvent_WireFormat(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "countdown ended carries no data",
			ev:   Event{Type: EventRoundCountdownEnded},
			want: `{"type":"roundCountdownEnded"}`,
		},
		{
			name: "crash reveals the crash point",
			ev:   Event{Type: EventRoundCrashed, Data: RoundCrashedMessage{RoundID: "r1", FinalMultiplier: 1.22, CrashPoint: 3.4}},
			want: `{"type":"roundCrashed","data":{"roundId":"r1","finalMultiplier":1.22,"crashPoint":3.4}}`,
		},
		{
			name: "empty settlement keeps list fields",
			ev:   Event{Type: EventSettlementResult, Data: Settle(nil, DEFAULT_COMMISSION_RATE)},
			want: `{"type":"settlementResult","data":{"roundId":"","winners":[],"losers":[],"commission":0,"payoutRatio":1}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestRejection(t *testing.T) {
	ev := Rejection(EventBetRejected, fmt.Errorf("%w: debit failed", ErrServer))
	msg, ok := ev.Data.(RejectionMessage)
	require.True(t, ok, "Data = %T, want RejectionMessage", ev.Data)
	assert.Equal(t, "ServerError", msg.Reason)
	assert.Contains(t, msg.Message, "debit failed")
}

func TestReason(t *testing.T) {
	tests := []struct {
		err        error
		reason     string
		validation bool
	}{
		{ErrBettingClosed, "BettingClosed", true},
		{ErrInvalidAmount, "InvalidAmount", true},
		{ErrDuplicateBet, "DuplicateBet", true},
		{ErrInsufficientBalance, "InsufficientBalance", true},
		{ErrNoActiveRound, "NoActiveRound", true},
		{ErrNoEligibleBet, "NoEligibleBet", true},
		{fmt.Errorf("wrapped: %w", ErrNoEligibleBet), "NoEligibleBet", true},
		{ErrServer, "ServerError", false},
		{errors.New("boom"), "ServerError", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.reason, Reason(tt.err), "Reason(%v)", tt.err)
		assert.Equal(t, tt.validation, IsValidation(tt.err), "IsValidation(%v)", tt.err)
	}
}
