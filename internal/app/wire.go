package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khelzone/platform/internal/auth"
	"github.com/khelzone/platform/internal/guard"
	"github.com/khelzone/platform/internal/handler"
	"github.com/khelzone/platform/internal/infra"
	"github.com/khelzone/platform/internal/ledger"
	"github.com/khelzone/platform/internal/match"
	"github.com/khelzone/platform/internal/provider"
	"github.com/khelzone/platform/internal/realtime"
	"github.com/khelzone/platform/internal/repository"
	"github.com/khelzone/platform/internal/room"
	"github.com/khelzone/platform/internal/service"
	"github.com/khelzone/platform/internal/settlement"
)

// Deps holds everything NewApp needs from main.
type Deps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Config *infra.Config
	Logger *slog.Logger
}

// App is the assembled server: the HTTP router plus the background
// components main has to run and shut down.
type App struct {
	Router     chi.Router
	Matchmaker *match.Matchmaker
	Rooms      *room.Registry
	Sessions   *realtime.Registry
}

// NewApp wires repositories, the ledger engine, the realtime layer, the
// matchmaker and the room registry into a ready-to-serve application.
func NewApp(deps Deps) *App {
	pool := deps.Pool
	cfg := deps.Config
	logger := deps.Logger

	// Repositories
	walletRepo := repository.NewWalletRepository()
	ledgerRepo := repository.NewLedgerRepository()
	roomRepo := repository.NewRoomRepository()
	queueRepo := repository.NewQueueRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Payment gateway + ledger engine
	gateway := provider.NewGateway(cfg.GatewaySecret)
	ledgerEngine := ledger.NewEngine(walletRepo, ledgerRepo, outboxRepo, gateway)
	settler := settlement.NewSettler(pool, ledgerEngine, ledgerRepo, outboxRepo, logger)

	// Realtime layer
	sessions := realtime.NewRegistry()
	bus := realtime.NewBus(sessions, logger)

	// Rooms + matchmaking
	rooms := room.NewRegistry(room.Deps{
		DB:       pool,
		Rooms:    roomRepo,
		Bus:      bus,
		Presence: sessions,
		Settler:  settler,
		Config:   cfg,
		Logger:   logger,
	})
	matchmaker := match.NewMatchmaker(pool, queueRepo, roomRepo, outboxRepo, ledgerEngine, rooms, bus, cfg, logger)

	// Services
	paymentSvc := service.NewPaymentService(pool, gateway, ledgerEngine, cfg, logger)

	// Handlers
	walletHandler := handler.NewWalletHandler(walletRepo, ledgerRepo, pool)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	webhookHandler := handler.NewWebhookHandler(paymentSvc, logger)
	adminHandler := handler.NewAdminHandler(paymentSvc, ledgerEngine, pool)
	wsHandler := handler.NewWSHandler(bus, sessions, matchmaker, rooms, roomRepo, pool, logger)

	paymentLimiter := guard.NewRateLimiter(10, time.Minute)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Webhooks (no auth — raw body required for signature verification)
	r.Post("/payments/webhook", webhookHandler.HandleGatewayWebhook)

	// Player-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(deps.JWTMgr))

		// Websocket upgrade (token also accepted via ?token= query param)
		r.Get("/ws", wsHandler.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(handler.JSONContentType)

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/balance", walletHandler.GetBalance)
				r.Get("/transactions", walletHandler.GetTransactions)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Use(handler.RateLimit(paymentLimiter))
				r.Post("/deposit", paymentHandler.InitiateDeposit)
				r.Post("/withdraw", paymentHandler.RequestWithdrawal)
			})
		})
	})

	// Payout operator routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(deps.JWTMgr))
		r.Use(handler.JSONContentType)

		r.Get("/wallets/{userId}/invariant", adminHandler.VerifyInvariant)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.WriteRoles()...))
			r.Post("/withdrawals/{id}/complete", adminHandler.CompleteWithdrawal)
			r.Post("/withdrawals/{id}/fail", adminHandler.FailWithdrawal)
		})
	})

	return &App{
		Router:     r,
		Matchmaker: matchmaker,
		Rooms:      rooms,
		Sessions:   sessions,
	}
}
