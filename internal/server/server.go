package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"crashround/internal/auth"
	"crashround/internal/cache"
	"crashround/internal/database"
	"crashround/internal/game"
	"crashround/internal/wallet"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options wires the server to the round engine and its collaborators. DB,
// Cache and Gatherer are optional.
type Options struct {
	Engine   *game.Engine
	Hub      *game.Hub
	Gateway  wallet.Gateway
	Verifier *auth.Verifier
	DB       database.Service
	Cache    cache.Service
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	CORSOrigins  string
	RateLimitMax int
}

type FiberServer struct {
	*fiber.App

	engine   *game.Engine
	hub      *game.Hub
	gateway  wallet.Gateway
	verifier *auth.Verifier
	db       database.Service
	cache    cache.Service
	gatherer prometheus.Gatherer
	log      *zap.Logger

	corsOrigins string
}

func New(opts Options) *FiberServer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CORSOrigins == "" {
		opts.CORSOrigins = "*"
	}
	if opts.RateLimitMax <= 0 {
		opts.RateLimitMax = 100
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          "crashround",
			AppName:               "crashround",
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
			IdleTimeout:           120 * time.Second,
			JSONEncoder:           json.Marshal,
			JSONDecoder:           json.Unmarshal,
			DisableStartupMessage: true,
		}),

		engine:      opts.Engine,
		hub:         opts.Hub,
		gateway:     opts.Gateway,
		verifier:    opts.Verifier,
		db:          opts.DB,
		cache:       opts.Cache,
		gatherer:    opts.Gatherer,
		log:         opts.Logger.Named("server"),
		corsOrigins: opts.CORSOrigins,
	}

	server.App.Use(recover.New())
	server.App.Use("/api", limiter.New(limiter.Config{
		Max:        opts.RateLimitMax,
		Expiration: 1 * time.Minute,
	}))

	return server
}

// Shutdown stops accepting requests and closes the storage connections. The
// engine and hub are owned by the caller.
func (s *FiberServer) Shutdown() error {
	s.log.Info("shutting down")

	err := s.App.Shutdown()

	if s.cache != nil {
		if cerr := s.cache.Close(); cerr != nil {
			s.log.Warn("close cache", zap.Error(cerr))
		}
	}
	if s.db != nil {
		if derr := s.db.Close(); derr != nil {
			s.log.Warn("close database", zap.Error(derr))
		}
	}
	return err
}
