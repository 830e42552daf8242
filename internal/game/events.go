package game

type EventType string

// Broadcast events.
const (
	EventRoundCountdownStarted EventType = "roundCountdownStarted"
	EventRoundCountdownTick    EventType = "roundCountdownTick"
	EventRoundCountdownEnded   EventType = "roundCountdownEnded"
	EventMultiplierUpdate      EventType = "multiplierUpdate"
	EventRoundCrashed          EventType = "roundCrashed"
	EventSettlementResult      EventType = "settlementResult"
	EventActiveBetCount        EventType = "activeBetCount"
	EventPlayerCashedOut       EventType = "playerCashedOut"
)

// Unicast events.
const (
	EventBalanceUpdate   EventType = "balanceUpdate"
	EventBetAccepted     EventType = "betAccepted"
	EventBetRejected     EventType = "betRejected"
	EventCashOutAccepted EventType = "cashOutAccepted"
	EventCashOutRejected EventType = "cashOutRejected"
	EventInitialState    EventType = "initialState"
	EventPong            EventType = "pong"
)

type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type RoundCrashedMessage struct {
	RoundID         string  `json:"roundId"`
	FinalMultiplier float64 `json:"finalMultiplier"`
	CrashPoint      float64 `json:"crashPoint"`
}

type PlayerCashedOutMessage struct {
	UserID            string  `json:"userId"`
	Username          string  `json:"username"`
	CashoutMultiplier float64 `json:"cashoutMultiplier"`
}

type RejectionMessage struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Broadcaster delivers engine events to connected clients.
type Broadcaster interface {
	Broadcast(event Event)
	SendToUser(userID string, event Event)
}

func Rejection(t EventType, err error) Event {
	return Event{Type: t, Data: RejectionMessage{Reason: Reason(err), Message: err.Error()}}
}
