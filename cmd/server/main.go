package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"academy-chat/internal/chat"
	"academy-chat/internal/db"
	"academy-chat/internal/directory"
	"academy-chat/internal/feed"
	"academy-chat/internal/identity"
	"academy-chat/internal/message"
	"academy-chat/internal/middleware"
	"academy-chat/internal/notify"
	"academy-chat/internal/profile"
	"academy-chat/internal/readstate"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	webhookURL := os.Getenv("NOTIFY_WEBHOOK_URL")

	// 2. Platform layer
	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	log.Println("Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Database schema initialized")

	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")

	// 3. Change feed + notification dispatch
	publisher := feed.NewPublisher(redisClient)
	subscriber := feed.NewSubscriber(redisClient)

	dispatcher := notify.NewDispatcher(redisAddr)
	defer dispatcher.Close()

	worker := notify.NewWorker(redisAddr, webhookURL)
	go func() {
		if err := worker.Run(context.Background()); err != nil {
			log.Printf("notification worker stopped: %v", err)
		}
	}()

	// 4. Identity + profiles
	identityRepo := identity.NewRepository(database.Conn)
	identityService := identity.NewService(identityRepo, jwtSecret)
	identityHandler := identity.NewHandler(identityService)

	profiles := profile.NewRepository(database.Conn)

	// 5. Messaging core
	directoryService := directory.NewService(directory.NewRepository(database.Conn), profiles)
	messageService := message.NewService(message.NewRepository(database.Conn), publisher, dispatcher, profiles)
	tracker := readstate.NewTracker(database.Conn)

	hub := chat.NewHub(chat.NewFeedSource(subscriber))
	go hub.Run()

	chatHandler := chat.NewHandler(hub, directoryService, messageService, tracker, profiles)

	authMiddleware := middleware.NewAuthMiddleware(identityService)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	// Public
	r.Post("/register", identityHandler.Register)
	r.Post("/login", identityHandler.Login)

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", chatHandler.SearchUsers)

		r.Get("/ws", chatHandler.ServeWs)

		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Get("/api/conversations/{id}/messages", chatHandler.GetMessages)
		r.Post("/api/conversations/{id}/messages", chatHandler.PostMessage)
		r.Post("/api/conversations/{id}/read", chatHandler.MarkRead)
	})

	log.Printf("Server starting on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(err)
	}
}
