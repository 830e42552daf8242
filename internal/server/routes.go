package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crashround/internal/auth"
	"crashround/internal/game"
)

const identityKey = "identity"

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     s.corsOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)
	if s.gatherer != nil {
		s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.App.Group("/api/v1")
	api.Get("/game/state", s.gameStateHandler)
	api.Get("/me/balance", s.requireAuth, s.balanceHandler)
	api.Post("/game/bet", s.requireAuth, s.placeBetHandler)
	api.Post("/game/cashout", s.requireAuth, s.cashoutHandler)

	// Tokens are checked before the upgrade.
	s.App.Use("/ws", s.requireAuth, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

// requireAuth accepts a bearer header or, for browsers opening a socket, a
// token query parameter.
func (s *FiberServer) requireAuth(c *fiber.Ctx) error {
	token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		token = c.Query("token")
	}

	who, err := s.verifier.Verify(token)
	if err != nil {
		s.log.Debug("authentication failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "Unauthorized",
			"message": auth.ErrInvalidToken.Error(),
		})
	}

	c.Locals(identityKey, who)
	return c.Next()
}

func identity(c *fiber.Ctx) game.Identity {
	who, _ := c.Locals(identityKey).(game.Identity)
	return who
}
