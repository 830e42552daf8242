package clock

import (
	"sync"
	"time"
)

// TickerName identifies one of the engine's periodic cadences.
type TickerName string

const (
	Countdown  TickerName = "countdown"
	Multiplier TickerName = "multiplier"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Scheduler creates tickers and reports the current time. The engine only
// talks to time through a Scheduler so tests can drive it by hand.
type Scheduler interface {
	NewTicker(name TickerName, interval time.Duration) Ticker
	Now() time.Time
}

// System is the wall-clock scheduler backed by time.Ticker.
type System struct{}

func NewSystem() *System {
	return &System{}
}

func (s *System) NewTicker(_ TickerName, interval time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(interval)}
}

func (s *System) Now() time.Time {
	return time.Now()
}

type systemTicker struct {
	t    *time.Ticker
	once sync.Once
}

func (t *systemTicker) C() <-chan time.Time {
	return t.t.C
}

func (t *systemTicker) Stop() {
	t.once.Do(t.t.Stop)
}
