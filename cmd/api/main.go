package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/commerce-core/internal/api"
	"github.com/example/commerce-core/internal/auth"
	"github.com/example/commerce-core/internal/config"
	"github.com/example/commerce-core/internal/domain/login"
	"github.com/example/commerce-core/internal/domain/order"
	"github.com/example/commerce-core/internal/domain/session"
	"github.com/example/commerce-core/internal/infrastructure/kafka"
	"github.com/example/commerce-core/internal/infrastructure/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Configuration error: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Commerce Core")
	log.Println("[API] ========================================")
	log.Printf("[API] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[API] Topic: %s", cfg.KafkaTopic)
	log.Printf("[API] Session backend: %s", cfg.SessionBackend)

	// Kafka producer for domain events
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	// PostgreSQL is the primary store
	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("[API] Connected to PostgreSQL")

	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("[API] Failed to ensure schema: %v", err)
	}

	// Session storage backend
	var sessionStore session.Store
	switch cfg.SessionBackend {
	case "redis":
		sessionStore = store.NewRedisSessionStore(cfg.RedisAddr)
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("[API] Failed to load AWS config: %v", err)
		}
		sessionStore = store.NewDynamoSessionStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable, cfg.DynamoIndex)
	default:
		sessionStore = store.NewPostgresSessionStore(db)
	}

	// Domain services
	sessions := session.NewService(sessionStore, cfg.SessionTTL)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)

	userStore := store.NewPostgresUserStore(db)
	orchestrator := login.NewOrchestrator(
		login.NewDirectoryVerifier(userStore),
		sessions,
		jwtService,
		userStore,
		producer,
		cfg.TokenTTL,
	)

	orderStore := store.NewPostgresOrderStore(db)
	orders := order.NewService(
		orderStore,
		store.NewPostgresCatalog(db),
		store.NewPostgresTaxRates(db),
		order.FlatRateShipping{Rate: 500, FreeAbove: 10000},
		producer,
	)

	// HTTP surface
	router := api.NewRouter(
		api.NewHandlers(orders),
		api.NewAuthHandlers(orchestrator, sessions),
		jwtService,
		sessions,
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Server started on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}
}
