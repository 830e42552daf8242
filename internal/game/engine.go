package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crashround/internal/clock"
	"crashround/internal/wallet"
)

// Engine runs one crash round at a time. Every request and every tick is
// handled by a single goroutine, so round state is never shared.
type Engine struct {
	cfg       Config
	gateway   wallet.Gateway
	retry     wallet.RetryQueue
	events    Broadcaster
	scheduler clock.Scheduler
	sampler   CrashSampler
	metrics   *Metrics
	log       *zap.Logger

	betChannel     chan BetRequest
	cashoutChannel chan CashoutRequest
	stateChannel   chan StateRequest
	stopChan       chan struct{}
	done           chan struct{}
	startOnce      sync.Once
	stopOnce       sync.Once

	// Owned by the game loop.
	phase            Phase
	round            *round
	roundID          string
	ledger           *Ledger
	countdownTicker  clock.Ticker
	multiplierTicker clock.Ticker
}

type round struct {
	id                 string
	crashPoint         float64
	multiplier         float64
	countdownRemaining int
}

func NewEngine(gateway wallet.Gateway, events Broadcaster, opts ...Option) *Engine {
	e := &Engine{
		cfg:       DefaultConfig(),
		gateway:   gateway,
		events:    events,
		scheduler: clock.NewSystem(),
		sampler:   NewUniformSampler(),
		log:       zap.NewNop(),
		phase:     PhaseIdle,
		ledger:    NewLedger(),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if e.retry == nil {
		e.retry = wallet.NewLogRetryQueue(e.log)
	}
	e.log = e.log.Named("engine")

	e.betChannel = make(chan BetRequest, e.cfg.QueueSize)
	e.cashoutChannel = make(chan CashoutRequest, e.cfg.QueueSize)
	e.stateChannel = make(chan StateRequest, e.cfg.QueueSize)
	return e
}

func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		go e.gameLoop(ctx)
	})
}

// Stop ends the game loop and refunds bets of a round that never settled.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
	<-e.done
}

func (e *Engine) PlaceBet(ctx context.Context, who Identity, amount float64) (BetResponse, error) {
	req := BetRequest{Identity: who, Amount: amount, ResponseChan: make(chan BetResponse, 1)}

	select {
	case <-e.done:
		return BetResponse{}, fmt.Errorf("%w: engine stopped", ErrServer)
	default:
	}

	select {
	case e.betChannel <- req:
	default:
		return BetResponse{}, fmt.Errorf("%w: bet queue full", ErrServer)
	}

	select {
	case resp := <-req.ResponseChan:
		return resp, resp.Err
	case <-time.After(e.cfg.BetTimeout):
		return BetResponse{}, fmt.Errorf("%w: bet timeout", ErrServer)
	case <-ctx.Done():
		return BetResponse{}, fmt.Errorf("%w: %v", ErrServer, ctx.Err())
	case <-e.done:
		return BetResponse{}, fmt.Errorf("%w: engine stopped", ErrServer)
	}
}

func (e *Engine) Cashout(ctx context.Context, userID string) (CashoutResponse, error) {
	req := CashoutRequest{UserID: userID, ResponseChan: make(chan CashoutResponse, 1)}

	select {
	case <-e.done:
		return CashoutResponse{}, fmt.Errorf("%w: engine stopped", ErrServer)
	default:
	}

	select {
	case e.cashoutChannel <- req:
	default:
		return CashoutResponse{}, fmt.Errorf("%w: cashout queue full", ErrServer)
	}

	select {
	case resp := <-req.ResponseChan:
		return resp, resp.Err
	case <-time.After(e.cfg.CashoutTimeout):
		return CashoutResponse{}, fmt.Errorf("%w: cashout timeout", ErrServer)
	case <-ctx.Done():
		return CashoutResponse{}, fmt.Errorf("%w: %v", ErrServer, ctx.Err())
	case <-e.done:
		return CashoutResponse{}, fmt.Errorf("%w: engine stopped", ErrServer)
	}
}

// State returns the public round snapshot, including the caller's own bet
// when userID is set.
func (e *Engine) State(ctx context.Context, userID string) (RoundState, error) {
	req := StateRequest{UserID: userID, ResponseChan: make(chan RoundState, 1)}

	select {
	case e.stateChannel <- req:
	case <-ctx.Done():
		return RoundState{}, ctx.Err()
	case <-e.done:
		return RoundState{}, fmt.Errorf("%w: engine stopped", ErrServer)
	}

	select {
	case state := <-req.ResponseChan:
		return state, nil
	case <-ctx.Done():
		return RoundState{}, ctx.Err()
	case <-e.done:
		return RoundState{}, fmt.Errorf("%w: engine stopped", ErrServer)
	}
}

func (e *Engine) gameLoop(ctx context.Context) {
	defer close(e.done)

	e.log.Info("game loop started")
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case <-e.stopChan:
			e.shutdown()
			return
		case req := <-e.betChannel:
			e.processBet(ctx, req)
		case req := <-e.cashoutChannel:
			e.processCashout(req)
		case req := <-e.stateChannel:
			req.ResponseChan <- e.snapshot(req.UserID)
		case <-tickerC(e.countdownTicker):
			e.onCountdownTick()
		case <-tickerC(e.multiplierTicker):
			e.onMultiplierTick(ctx)
		}
	}
}

func tickerC(t clock.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func (e *Engine) processBet(ctx context.Context, req BetRequest) {
	resp := BetResponse{}
	defer func() {
		e.metrics.Bets.WithLabelValues(outcome(resp.Err)).Inc()
		req.ResponseChan <- resp
	}()

	if e.phase == PhaseRunning {
		resp.Err = ErrBettingClosed
		return
	}
	if !validAmount(req.Amount, e.cfg.MaxBetAmount) {
		resp.Err = ErrInvalidAmount
		return
	}
	if e.ledger.Holds(req.UserID) {
		resp.Err = ErrDuplicateBet
		return
	}

	gctx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	balance, err := e.gateway.Debit(gctx, req.UserID, req.Amount)
	cancel()
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds), errors.Is(err, wallet.ErrAccountNotFound):
		resp.Err = ErrInsufficientBalance
		return
	case err != nil:
		e.log.Error("debit failed", zap.String("user_id", req.UserID), zap.Error(err))
		resp.Err = fmt.Errorf("%w: debit failed", ErrServer)
		return
	}

	if e.ledger.Count() == 0 {
		e.roundID = uuid.NewString()
	}
	e.ledger.Append(&Bet{
		UserID:   req.UserID,
		Username: req.Username,
		Amount:   req.Amount,
		PlacedAt: e.scheduler.Now(),
	})
	resp.Amount = req.Amount
	resp.Balance = balance

	e.log.Info("bet placed",
		zap.String("round_id", e.roundID),
		zap.String("user_id", req.UserID),
		zap.Float64("amount", req.Amount),
	)
	e.events.Broadcast(Event{Type: EventActiveBetCount, Data: e.ledger.Count()})

	if e.phase == PhaseIdle && e.ledger.Count() >= e.cfg.MinBetsToStart {
		e.startCountdown()
	}
}

func validAmount(amount, max float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return false
	}
	return max <= 0 || amount <= max
}

func outcome(err error) string {
	if err == nil {
		return "accepted"
	}
	return Reason(err)
}

func (e *Engine) processCashout(req CashoutRequest) {
	resp := CashoutResponse{}
	defer func() {
		req.ResponseChan <- resp
	}()

	if e.phase != PhaseRunning {
		resp.Err = ErrNoActiveRound
		return
	}
	bet, ok := e.ledger.FindByUser(req.UserID)
	if !ok {
		resp.Err = ErrNoEligibleBet
		return
	}

	mult := e.round.multiplier
	bet.CashedOut = true
	bet.CashoutMultiplier = &mult
	resp.Multiplier = mult

	e.metrics.Cashouts.Inc()
	e.log.Info("cashed out",
		zap.String("round_id", e.round.id),
		zap.String("user_id", req.UserID),
		zap.Float64("multiplier", mult),
	)
	e.events.Broadcast(Event{Type: EventPlayerCashedOut, Data: PlayerCashedOutMessage{
		UserID:            bet.UserID,
		Username:          bet.Username,
		CashoutMultiplier: mult,
	}})
}

// startCountdown is a no-op while a round is already counting down or running.
func (e *Engine) startCountdown() {
	if e.phase == PhaseCountdown || e.phase == PhaseRunning {
		return
	}

	e.round = &round{
		id:                 e.roundID,
		crashPoint:         e.sampler.Sample(),
		multiplier:         MIN_MULTIPLIER,
		countdownRemaining: e.cfg.CountdownSeconds,
	}
	e.phase = PhaseCountdown
	e.countdownTicker = e.scheduler.NewTicker(clock.Countdown, e.cfg.CountdownInterval)
	e.metrics.RoundsStarted.Inc()

	e.log.Info("countdown started", zap.String("round_id", e.round.id), zap.Int("bets", e.ledger.Count()))
	e.log.Debug("crash point drawn", zap.String("round_id", e.round.id), zap.Float64("crash_point", e.round.crashPoint))
	e.events.Broadcast(Event{Type: EventRoundCountdownStarted, Data: e.round.countdownRemaining})
}

func (e *Engine) onCountdownTick() {
	if e.phase != PhaseCountdown {
		return
	}

	e.round.countdownRemaining--
	e.events.Broadcast(Event{Type: EventRoundCountdownTick, Data: e.round.countdownRemaining})
	if e.round.countdownRemaining > 0 {
		return
	}

	e.stopCountdownTicker()
	e.events.Broadcast(Event{Type: EventRoundCountdownEnded})

	if e.ledger.Count() == 0 {
		e.log.Warn("countdown ended without bets", zap.String("round_id", e.round.id))
		e.resetToIdle()
		return
	}
	e.startRunning()
}

func (e *Engine) startRunning() {
	e.phase = PhaseRunning
	e.round.multiplier = MIN_MULTIPLIER
	e.multiplierTicker = e.scheduler.NewTicker(clock.Multiplier, e.cfg.TickInterval)

	e.log.Info("round running", zap.String("round_id", e.round.id), zap.Int("bets", e.ledger.Count()))
	e.events.Broadcast(Event{Type: EventMultiplierUpdate, Data: e.round.multiplier})
}

func (e *Engine) onMultiplierTick(ctx context.Context) {
	if e.phase != PhaseRunning {
		return
	}

	e.round.multiplier = nextMultiplier(e.round.multiplier)
	e.events.Broadcast(Event{Type: EventMultiplierUpdate, Data: e.round.multiplier})

	if e.shouldCrash() {
		e.crash(ctx)
	}
}

func (e *Engine) shouldCrash() bool {
	if e.round.multiplier >= e.round.crashPoint {
		return true
	}
	total := e.ledger.Count()
	return total > 0 && e.ledger.CountCashedOut()*2 >= total
}

// crash settles the round before the loop accepts another request.
func (e *Engine) crash(ctx context.Context) {
	e.stopMultiplierTicker()
	e.phase = PhaseCrashed
	r := e.round

	e.metrics.RoundsCrashed.Inc()
	e.metrics.CrashMultiplier.Observe(r.multiplier)
	e.log.Info("round crashed",
		zap.String("round_id", r.id),
		zap.Float64("multiplier", r.multiplier),
		zap.Float64("crash_point", r.crashPoint),
	)
	e.events.Broadcast(Event{Type: EventRoundCrashed, Data: RoundCrashedMessage{
		RoundID:         r.id,
		FinalMultiplier: r.multiplier,
		CrashPoint:      r.crashPoint,
	}})

	bets := e.ledger.Bets()
	result := Settle(bets, e.cfg.CommissionRate)
	result.RoundID = r.id

	balances := e.applySettlement(ctx, result, bets)

	e.events.Broadcast(Event{Type: EventSettlementResult, Data: result})
	for _, b := range bets {
		if bal, ok := balances[b.UserID]; ok {
			e.events.SendToUser(b.UserID, Event{Type: EventBalanceUpdate, Data: bal})
		}
	}

	e.log.Info("round settled",
		zap.String("round_id", r.id),
		zap.Int("winners", len(result.Winners)),
		zap.Int("losers", len(result.Losers)),
		zap.Float64("commission", result.Commission),
		zap.Float64("payout_ratio", result.PayoutRatio),
	)
	e.resetToIdle()
}

// applySettlement credits every winner concurrently and collects the
// resulting balance of each participant. A failed credit is handed to the
// retry queue without affecting the others.
func (e *Engine) applySettlement(ctx context.Context, result SettlementResult, bets []Bet) map[string]float64 {
	var (
		mu       sync.Mutex
		balances = make(map[string]float64, len(bets))
		g        errgroup.Group
	)
	g.SetLimit(e.cfg.CreditConcurrency)

	record := func(userID string, bal float64) {
		mu.Lock()
		balances[userID] = bal
		mu.Unlock()
	}

	for _, w := range result.Winners {
		credit := wallet.Credit{RoundID: result.RoundID, UserID: w.UserID, Amount: w.Payout}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
			defer cancel()

			bal, err := e.gateway.Credit(cctx, credit)
			if err != nil {
				e.creditFailed(credit, err)
				return nil
			}
			record(credit.UserID, bal)
			return nil
		})
	}

	for _, l := range result.Losers {
		userID := l.UserID
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
			defer cancel()

			bal, err := e.gateway.Balance(cctx, userID)
			if err != nil {
				e.log.Warn("balance lookup failed", zap.String("user_id", userID), zap.Error(err))
				return nil
			}
			record(userID, bal)
			return nil
		})
	}

	_ = g.Wait()
	return balances
}

func (e *Engine) creditFailed(credit wallet.Credit, err error) {
	e.metrics.CreditFailures.Inc()
	e.log.Error("settlement credit failed",
		zap.String("round_id", credit.RoundID),
		zap.String("user_id", credit.UserID),
		zap.Float64("amount", credit.Amount),
		zap.Error(err),
	)

	// The round context may already be gone; the retry hand-off must still happen.
	qctx, cancel := context.WithTimeout(context.Background(), e.cfg.GatewayTimeout)
	defer cancel()
	if qerr := e.retry.Enqueue(qctx, credit); qerr != nil {
		e.log.Error("credit could not be queued for retry",
			zap.String("key", credit.Key()),
			zap.Float64("amount", credit.Amount),
			zap.Error(qerr),
		)
	}
}

func (e *Engine) resetToIdle() {
	e.ledger.Clear()
	e.round = nil
	e.roundID = ""
	e.phase = PhaseIdle
}

func (e *Engine) stopCountdownTicker() {
	if e.countdownTicker != nil {
		e.countdownTicker.Stop()
		e.countdownTicker = nil
	}
}

func (e *Engine) stopMultiplierTicker() {
	if e.multiplierTicker != nil {
		e.multiplierTicker.Stop()
		e.multiplierTicker = nil
	}
}

// shutdown stops the tickers and returns escrowed stakes of an unsettled round.
func (e *Engine) shutdown() {
	e.stopCountdownTicker()
	e.stopMultiplierTicker()

	bets := e.ledger.Bets()
	if len(bets) > 0 {
		e.log.Warn("refunding unsettled bets", zap.String("round_id", e.roundID), zap.Int("bets", len(bets)))
	}
	for _, b := range bets {
		credit := wallet.Credit{RoundID: "refund-" + e.roundID, UserID: b.UserID, Amount: b.Amount}
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.GatewayTimeout)
		_, err := e.gateway.Credit(ctx, credit)
		cancel()
		if err != nil {
			e.creditFailed(credit, err)
		}
	}
	e.resetToIdle()
	e.log.Info("game loop stopped")
}

func (e *Engine) snapshot(userID string) RoundState {
	state := RoundState{
		Phase:      e.phase,
		Multiplier: MIN_MULTIPLIER,
		ActiveBets: e.ledger.Count(),
	}
	if e.round != nil {
		state.RoundID = e.round.id
		state.Multiplier = e.round.multiplier
		if e.phase == PhaseCountdown {
			state.CountdownRemaining = e.round.countdownRemaining
		}
	}
	if userID != "" {
		if b, ok := e.ledger.latest(userID); ok {
			state.MyBet = b.view()
		}
	}
	return state
}
