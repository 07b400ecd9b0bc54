package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"PrivateLine/server/internal/appMiddleware"
	"PrivateLine/server/internal/config"
	"PrivateLine/server/internal/crypto"
	"PrivateLine/server/internal/db"
	"PrivateLine/server/internal/directory"
	"PrivateLine/server/internal/handlers"
	"PrivateLine/server/internal/pipeline"
	"PrivateLine/server/internal/realtime"
	"PrivateLine/server/internal/store"
	"PrivateLine/server/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level, cfg.Logger.Development)

	if err := db.Migrate(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	messageRepo := store.NewMessageRepository(pool)
	reactionRepo := store.NewReactionRepository(pool)
	extrasRepo := store.NewExtrasRepository(pool)
	userRepo := store.NewUserRepository(pool)
	directoryRepo := directory.NewRepository(pool)

	hub := realtime.NewHub(log)
	codec := crypto.NewCodec(cfg.Crypto.MasterSecret)

	pipe := pipeline.New(pipeline.Deps{
		Messages:  messageRepo,
		Directory: directoryRepo,
		Reactions: reactionRepo,
		Extras:    extrasRepo,
		Users:     userRepo,
		Tx:        pipeline.NewPgxTransactor(pool, messageRepo, directoryRepo),
		Codec:     codec,
		Publisher: hub,
		Logger:    log,
	})

	messageHandler := handlers.NewMessageHandler(pipe, log)
	chatHandler := handlers.NewChatHandler(pipe, log)
	wsHandler := handlers.NewWebSocketHandler(hub, pipe, userRepo, cfg.JWT.Secret, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.AuthMiddleware(cfg.JWT.Secret))

		r.Route("/api/messages", func(r chi.Router) {
			r.Post("/", messageHandler.Send)
			r.Get("/", messageHandler.Get)
			r.Get("/more", messageHandler.LoadMore)
			r.Get("/search", messageHandler.Search)
			r.Get("/favorites", messageHandler.FavoriteList)
			r.Patch("/{message_id}", messageHandler.Edit)
			r.Delete("/{message_id}", messageHandler.Delete)
			r.Post("/{message_id}/react", messageHandler.React)
			r.Post("/{message_id}/pin", messageHandler.Pin)
			r.Post("/{message_id}/forward", messageHandler.Forward)
			r.Post("/{message_id}/favorite", messageHandler.Favorite)
		})

		r.Route("/api/chats", func(r chi.Router) {
			r.Get("/", chatHandler.List)
			r.Get("/{user_id}/settings", chatHandler.Settings)
			r.Get("/{user_id}/unread", chatHandler.UnreadCount)
			r.Get("/{user_id}/pins", chatHandler.Pins)
			r.Post("/{user_id}/seen", chatHandler.Seen)
			r.Post("/{user_id}/read-all", chatHandler.ReadAll)
			r.Post("/{user_id}/archive", chatHandler.Archive)
			r.Post("/{user_id}/mute", chatHandler.Mute)
			r.Post("/{user_id}/pin", chatHandler.PinChat)
			r.Post("/{user_id}/color", chatHandler.Color)
			r.Post("/{user_id}/typing", chatHandler.Typing)
		})
	})

	r.Get("/ws", wsHandler.Serve)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("server started", "addr", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "err", err)
	}
	log.Info("server stopped")
}
