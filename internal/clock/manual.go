package clock

import (
	"sync"
	"time"
)

// Manual is a Scheduler whose tickers only fire when Tick is called.
// Tick blocks until the consumer has received the tick, so a caller that
// then queries the consumer observes the state after the tick.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[TickerName]*manualTicker
	created map[TickerName]int
}

func NewManual(start time.Time) *Manual {
	return &Manual{
		now:     start,
		tickers: make(map[TickerName]*manualTicker),
		created: make(map[TickerName]int),
	}
}

func (m *Manual) NewTicker(name TickerName, interval time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTicker{
		interval: interval,
		ch:       make(chan time.Time),
		stopped:  make(chan struct{}),
	}
	m.tickers[name] = t
	m.created[name]++
	return t
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Tick advances virtual time by the ticker's interval and delivers one tick.
// It returns false when no ticker with that name is running.
func (m *Manual) Tick(name TickerName) bool {
	m.mu.Lock()
	t, ok := m.tickers[name]
	if !ok || t.isStopped() {
		m.mu.Unlock()
		return false
	}
	m.now = m.now.Add(t.interval)
	now := m.now
	m.mu.Unlock()

	select {
	case t.ch <- now:
		return true
	case <-t.stopped:
		return false
	}
}

// Active reports whether a ticker with the given name is running.
func (m *Manual) Active(name TickerName) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickers[name]
	return ok && !t.isStopped()
}

// Created returns how many tickers with the given name were ever started.
func (m *Manual) Created(name TickerName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created[name]
}

type manualTicker struct {
	interval time.Duration
	ch       chan time.Time
	stopped  chan struct{}
	once     sync.Once
}

func (t *manualTicker) C() <-chan time.Time {
	return t.ch
}

func (t *manualTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (t *manualTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}
