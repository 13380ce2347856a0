package router

import (
	"live_session_service/internal/session/api/handlers"
	sessionapp "live_session_service/internal/session/app"
	"live_session_service/pkg/middlewares"
	"live_session_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 註冊 coordinator 的路由
// @title Live Session Coordinator API
// @version 1.0
// @description Rooms, wallets and the live session websocket
// @host localhost:8080
// @BasePath /
func RegisterRoutes(app *fiber.App, coord *sessionapp.Coordinator, ws *sessionapp.SessionWebsocketHandler, limiter *middlewares.KeyedLimiter) {
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/", handlers.ConnectCheck)
	app.Post("/debug", handlers.DebugLogFlag)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	roomHandler := handlers.NewRoomHandler(coord)
	walletHandler := handlers.NewWalletHandler(coord)

	app.Get("/rooms", roomHandler.LiveRooms)
	app.Get("/gifts", roomHandler.GiftCatalog)

	jwt := middlewares.JWTMiddleware()
	limit := middlewares.RateLimit(limiter)
	app.Post("/rooms", jwt, limit, roomHandler.StartStream)
	app.Post("/rooms/:id/live", jwt, limit, roomHandler.GoLive)
	app.Delete("/rooms/:id", jwt, limit, roomHandler.EndStream)
	app.Get("/rooms/:id/snapshot", jwt, limit, roomHandler.Snapshot)
	app.Get("/rooms/:id/pending", jwt, limit, roomHandler.Pending)
	app.Get("/wallet", jwt, limit, walletHandler.Wallet)
	app.Post("/wallets/:owner/topup", jwt, middlewares.RequireRole(token.RoleAdmin), walletHandler.TopUp)

	// websocket 在 upgrade 前驗證 token
	app.Use("/ws", jwt, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(ws.HandleConnection))
}
