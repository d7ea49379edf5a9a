package server

import (
	"context"

	"backend-fieldops/internal/auth"
	"backend-fieldops/internal/config"
	"backend-fieldops/internal/routing"
	"backend-fieldops/internal/stream"
	"backend-fieldops/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Routes *routing.Cache
	Calc   *routing.Calculator
	Logger *zap.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	calc := routing.NewCalculator(routing.Options{
		GoogleAPIKey: cfg.GoogleMapsAPIKey,
		OSRMBaseURL:  cfg.OSRMBaseURL,
		TierTimeout:  cfg.RoutingTierTimeout,
	}, log)

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, log),
		Routes: routing.NewCache(calc, cfg.RouteCacheTTL),
		Calc:   calc,
		Logger: log,
	}

	registerRoutes(s)
	return s
}

// StartCacheSweeper launches the periodic expired-entry sweep. Call once
// at startup; the sweep stops when ctx is cancelled.
func (s *Server) StartCacheSweeper(ctx context.Context) {
	s.Routes.StartSweeper(ctx, s.Cfg.RouteCacheSweepPeriod)
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	authSvc := auth.NewService(s.Cfg.JWTSecret, s.DB)
	trackSvc := tracking.NewService(s.DB, authSvc, s.Routes, s.Calc, s.Stream, s.Logger, tracking.Options{
		MaxAccuracyM:       s.Cfg.GPSMaxAccuracyM,
		MinPointDistanceKm: s.Cfg.GPSMinPointDistanceKm,
		MaxBatchSize:       s.Cfg.GPSMaxBatchSize,
		ChunkSize:          s.Cfg.GPSChunkSize,
	})

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc)
	tracking.RegisterRoutes(s.App.Group("/tracking"), trackSvc, jwtMiddleware)
	routing.RegisterRoutes(s.App.Group("/routes"), s.Routes, s.Calc, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
