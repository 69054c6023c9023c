package main

import (
	"context"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/config"
	"github.com/yudapramadita/lokapasar/internal/db"
	"github.com/yudapramadita/lokapasar/internal/handlers"
	"github.com/yudapramadita/lokapasar/internal/logger"
	"github.com/yudapramadita/lokapasar/internal/middleware"
	"github.com/yudapramadita/lokapasar/internal/realtime"
	"github.com/yudapramadita/lokapasar/internal/session"
	"github.com/yudapramadita/lokapasar/internal/store"
	"github.com/yudapramadita/lokapasar/internal/transaction"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(os.Getenv("APP_DEBUG") == "true")
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}

	rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}

	if err := db.Migrate(gdb); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	bus := realtime.NewBus(rdb, log)
	hub := realtime.NewHub(log)
	go hub.Run()

	st := store.New(gdb, bus, log)
	machine := transaction.NewMachine(st, bus, log)
	sessions := session.NewManager(st, bus, hub, session.Config{
		UnreadDebounce:  cfg.UnreadDebounce,
		UnreadPollEvery: cfg.UnreadPollEvery,
		NotifyPollEvery: cfg.NotifyPollEvery,
	}, log)

	authH := &handlers.AuthHandler{DB: gdb, JWTSecret: cfg.JWTSecret, Expires: cfg.JWTExpiresMin}
	listingH := handlers.NewListingHandler(gdb, log)
	chatH := handlers.NewChatHandler(st, hub, sessions, log)
	notifH := handlers.NewNotificationHandler(st, sessions, log)
	txH := handlers.NewTransactionHandler(st, machine, log)
	wsH := handlers.NewWSHandler(st, hub, bus, sessions, machine, log)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://127.0.0.1:3000, http://localhost:3000",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Post("/auth/logout", authH.Logout)
	api.Get("/listings/:id", listingH.Get)

	// protected (JWT cookie)
	protected := api.Group("/",
		middleware.JWTFromCookie(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Post("/listings", listingH.Create)

	chat := protected.Group("/chat")
	chat.Post("/conversations", chatH.CreateOrGetConversation)
	chat.Get("/conversations", chatH.GetConversations)
	chat.Get("/conversations/unread-total", chatH.GetUnreadTotal)
	chat.Get("/conversations/:id/messages", chatH.GetMessages)
	chat.Post("/conversations/:id/messages", chatH.SendMessage)
	chat.Patch("/conversations/:id/read", chatH.MarkAsRead)
	chat.Delete("/conversations/:id", chatH.DeleteConversation)
	chat.Get("/conversations/:id/transaction", txH.GetForConversation)

	notif := protected.Group("/notifications")
	notif.Get("/", notifH.List)
	notif.Get("/unread-count", notifH.UnreadCount)
	notif.Patch("/read-all", notifH.MarkAllRead)
	notif.Patch("/alarm-active", notifH.SetAlarmActive)
	notif.Delete("/:id", notifH.Delete)

	tx := protected.Group("/transactions")
	tx.Post("/:id/request-completion", txH.RequestCompletion)
	tx.Post("/:id/confirm-completion", txH.ConfirmCompletion)
	tx.Post("/:id/reject-completion", txH.RejectCompletion)
	tx.Post("/:id/rate", txH.Rate)
	tx.Get("/:id/has-rated", txH.HasRated)

	// WebSocket endpoint (auth via query param)
	app.Get("/ws", websocket.New(wsH.Handle))

	log.Fatal("listen", zap.Error(app.Listen(":"+cfg.AppPort)))
}
