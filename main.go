package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atlas-air/internal/account/account_api"
	"atlas-air/internal/auth"
	"atlas-air/internal/boardingpass"
	"atlas-air/internal/client/client_api"
	"atlas-air/internal/config"
	customerdb "atlas-air/internal/customers/db"
	"atlas-air/internal/database"
	"atlas-air/internal/database/migrations"
	flightdb "atlas-air/internal/flights/db"
	"atlas-air/internal/kafka"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"
	"atlas-air/internal/reservation"
	reservationdb "atlas-air/internal/reservation/db"
	seatlock "atlas-air/internal/reservation/redis"
	"atlas-air/internal/reservation/reservation_api"
	seatdb "atlas-air/internal/seats/db"
	"atlas-air/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	log.Info("DATABASE", fmt.Sprintf("✅ %s connection successful", cfg.Database.Driver))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))

	return bunDB, redisClient
}

func prepareSchema(ctx context.Context, cfg *config.Config, bunDB *bun.DB, log *logger.Logger) {
	if cfg.Database.Driver == database.DriverSQLite {
		if err := database.CreateSchema(ctx, bunDB); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to create schema: %v", err))
		}
		log.Info("DATABASE", "SQLite schema created")
		return
	}

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: cfg.Migrations.Dir,
		AutoMigrate:   cfg.Migrations.Auto,
	}, log)
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Failed to run migrations: %v", err))
	}
	log.Info("MIGRATE", "✅ Migrations applied")
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, cfg.Log.Level)
	defer log.Close()
	log.Info("APP", "Starting Atlas Air reservation service")

	ctx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	prepareSchema(ctx, cfg, bunDB, log)

	emitter := sse.NewSeatEventEmitter()

	// With Kafka on, seat events reach this instance's SSE clients through the
	// seat-status topic so that every instance sees every change.
	var events reservation.EventPublisher
	var notifier reservation.SeatNotifier = emitter
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.TopicNames(cfg.Kafka.Topics), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}

		groupID := "atlas-air-seats-" + uuid.NewString()
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.SeatStatus, groupID, log)
		defer consumer.Close()
		go func() {
			err := consumer.ConsumeSeatStatus(ctx, func(ev models.SeatStatusEvent) {
				emitter.EmitSeatStatus(ev)
			})
			if err != nil {
				log.Error("KAFKA", fmt.Sprintf("Seat status consumer stopped: %v", err))
			}
		}()

		events = producer
		notifier = nil
	} else {
		log.Warn("KAFKA", "Kafka disabled, seat events stay local to this instance")
	}

	flights := &flightdb.DB{Bun: bunDB}
	seats := &seatdb.DB{Bun: bunDB}
	customers := &customerdb.DB{Bun: bunDB}

	reservationService := reservation.NewReservationService(
		&reservationdb.DB{Bun: bunDB},
		seats,
		flights,
		seatlock.NewRedis(redisClient, cfg.Reservation.SeatLockTTL, log),
		events,
		notifier,
		log,
	)

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	sessions := auth.NewRedisSessionStore(redisClient)

	clientHandler := client_api.NewHandler(reservationService, flights, boardingpass.NewQRGenerator(cfg.BoardingPass.QRSecret), emitter, log, cfg.Auth.LoginPath)
	reservationHandler := reservation_api.NewHandler(reservationService, flights, seats, customers, log, cfg.Auth.LoginPath)
	accountHandler := account_api.NewHandler(customers, issuer, sessions, cfg.Auth.CookieName, log)
	accountHandler.Secure = cfg.Auth.SecureCookie

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: cfg.Server.CredentialedCORS(),
		MaxAge:           300,
	}))
	r.Use(auth.Authenticate(issuer, sessions, cfg.Auth.CookieName, log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/Client/Search", http.StatusFound)
	})

	clientHandler.RegisterRoutes(r)
	log.Info("ROUTER", "Client routes registered under /Client")
	reservationHandler.RegisterRoutes(r)
	log.Info("ROUTER", "Reservation routes registered under /Reservation")
	accountHandler.RegisterRoutes(r)
	log.Info("ROUTER", "Account routes registered under /Account")

	// No WriteTimeout: it would cut the seat event streams.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}
	server.RegisterOnShutdown(emitter.Close)

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Atlas Air running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancelRoot()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Atlas Air shutdown complete")
	}
}
