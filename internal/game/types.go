package game

type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhaseCountdown Phase = "COUNTDOWN"
	PhaseRunning   Phase = "RUNNING"
	PhaseCrashed   Phase = "CRASHED"
)

// Identity is the already authenticated caller of an engine operation.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

type BetRequest struct {
	Identity
	Amount       float64          `json:"amount"`
	ResponseChan chan BetResponse `json:"-"`
}

type BetResponse struct {
	Amount  float64 `json:"amount"`
	Balance float64 `json:"balance"`
	Err     error   `json:"-"`
}

type CashoutRequest struct {
	UserID       string               `json:"userId"`
	ResponseChan chan CashoutResponse `json:"-"`
}

type CashoutResponse struct {
	Multiplier float64 `json:"multiplier"`
	Err        error   `json:"-"`
}

type StateRequest struct {
	UserID       string          `json:"userId"`
	ResponseChan chan RoundState `json:"-"`
}

// RoundState is the public view of the current round. The crash point is
// deliberately absent.
type RoundState struct {
	RoundID            string   `json:"roundId,omitempty"`
	Phase              Phase    `json:"phase"`
	Multiplier         float64  `json:"multiplier"`
	CountdownRemaining int      `json:"countdownRemaining"`
	ActiveBets         int      `json:"activeBets"`
	MyBet              *BetView `json:"myBet,omitempty"`
}

type BetView struct {
	Amount            float64  `json:"amount"`
	CashedOut         bool     `json:"cashedOut"`
	CashoutMultiplier *float64 `json:"cashoutMultiplier,omitempty"`
}

type InitialStateMessage struct {
	Balance      *float64 `json:"balance,omitempty"`
	MyBet        *BetView `json:"myBet"`
	HasCashedOut bool     `json:"hasCashedOut"`
	Phase        Phase    `json:"phase"`
	Multiplier   float64  `json:"multiplier"`
}

// NewInitialState combines a round snapshot with the caller's balance. A nil
// balance is left out of the message.
func NewInitialState(state RoundState, balance *float64) InitialStateMessage {
	msg := InitialStateMessage{
		Balance:    balance,
		MyBet:      state.MyBet,
		Phase:      state.Phase,
		Multiplier: state.Multiplier,
	}
	if state.MyBet != nil {
		msg.HasCashedOut = state.MyBet.CashedOut
	}
	return msg
}
