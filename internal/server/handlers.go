package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"crashround/internal/game"
	"crashround/internal/wallet"
)

const requestTimeout = 6 * time.Second

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"game": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

func (s *FiberServer) gameStateHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	state, err := s.engine.State(ctx, "")
	if err != nil {
		return s.engineError(c, err)
	}
	return c.JSON(state)
}

func (s *FiberServer) balanceHandler(c *fiber.Ctx) error {
	who := identity(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	balance, err := s.gateway.Balance(ctx, who.UserID)
	if errors.Is(err, wallet.ErrAccountNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}
	if err != nil {
		s.log.Error("balance lookup failed", zap.String("user_id", who.UserID), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Balance unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"userId":  who.UserID,
		"balance": balance,
	})
}

type betBody struct {
	Amount float64 `json:"amount"`
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var body betBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	who := identity(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	resp, err := s.engine.PlaceBet(ctx, who, body.Amount)
	if err != nil {
		return s.engineError(c, err)
	}

	s.hub.SendToUser(who.UserID, game.Event{Type: game.EventBalanceUpdate, Data: resp.Balance})
	return c.JSON(resp)
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	who := identity(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	resp, err := s.engine.Cashout(ctx, who.UserID)
	if err != nil {
		return s.engineError(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) engineError(c *fiber.Ctx, err error) error {
	if !game.IsValidation(err) {
		s.log.Error("engine request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(statusFor(err)).JSON(game.RejectionMessage{
		Reason:  game.Reason(err),
		Message: err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrInsufficientBalance):
		return fiber.StatusPaymentRequired
	case errors.Is(err, game.ErrBettingClosed),
		errors.Is(err, game.ErrDuplicateBet),
		errors.Is(err, game.ErrNoActiveRound),
		errors.Is(err, game.ErrNoEligibleBet):
		return fiber.StatusConflict
	default:
		return fiber.StatusServiceUnavailable
	}
}

type clientMessage struct {
	Type   string              `json:"type"`
	Amount jsoniter.RawMessage `json:"amount"`
}

// gameWebSocketHandler serves one authenticated socket. Replies go through
// the hub client so they are ordered with broadcasts.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	who, _ := conn.Locals(identityKey).(game.Identity)
	log := s.log.With(zap.String("user_id", who.UserID))

	client := s.hub.RegisterClient(conn, who.UserID)
	// conn goes back to the pool when this handler returns.
	defer func() {
		s.hub.UnregisterClient(client)
		<-client.Done()
	}()

	s.sendInitialState(client, who)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug("read failed", zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Debug("malformed client message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "placeBet":
			s.wsPlaceBet(client, who, msg.Amount)
		case "cashOut":
			s.wsCashout(client, who)
		case "ping":
			client.Send(game.Event{Type: game.EventPong})
		default:
			log.Debug("unknown client message", zap.String("type", msg.Type))
		}
	}
}

func (s *FiberServer) sendInitialState(client *game.Client, who game.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	state, err := s.engine.State(ctx, who.UserID)
	if err != nil {
		s.log.Warn("initial state unavailable", zap.String("user_id", who.UserID), zap.Error(err))
		return
	}
	msg := game.NewInitialState(state, nil)
	balance, err := s.gateway.Balance(ctx, who.UserID)
	switch {
	case err == nil:
		msg.Balance = &balance
	case errors.Is(err, wallet.ErrAccountNotFound):
		msg.Balance = new(float64)
	default:
		s.log.Warn("initial balance unavailable", zap.String("user_id", who.UserID), zap.Error(err))
	}

	client.Send(game.Event{Type: game.EventInitialState, Data: msg})
}

func (s *FiberServer) wsPlaceBet(client *game.Client, who game.Identity, raw jsoniter.RawMessage) {
	var amount float64
	if err := json.Unmarshal(raw, &amount); err != nil {
		client.Send(game.Rejection(game.EventBetRejected, game.ErrInvalidAmount))
		return
	}

	resp, err := s.engine.PlaceBet(context.Background(), who, amount)
	if err != nil {
		if !game.IsValidation(err) {
			s.log.Error("bet failed", zap.String("user_id", who.UserID), zap.Error(err))
		}
		client.Send(game.Rejection(game.EventBetRejected, err))
		return
	}

	client.Send(game.Event{Type: game.EventBetAccepted, Data: resp.Amount})
	client.Send(game.Event{Type: game.EventBalanceUpdate, Data: resp.Balance})
}

func (s *FiberServer) wsCashout(client *game.Client, who game.Identity) {
	resp, err := s.engine.Cashout(context.Background(), who.UserID)
	if err != nil {
		if !game.IsValidation(err) {
			s.log.Error("cashout failed", zap.String("user_id", who.UserID), zap.Error(err))
		}
		client.Send(game.Rejection(game.EventCashOutRejected, err))
		return
	}
	client.Send(game.Event{Type: game.EventCashOutAccepted, Data: resp.Multiplier})
}
