package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"park-ticketing/internal/auth"
	"park-ticketing/internal/config"
	"park-ticketing/internal/database/migrations"
	"park-ticketing/internal/kafka"
	"park-ticketing/internal/logger"
	"park-ticketing/internal/notify"
	"park-ticketing/internal/sse"
	ticket_db "park-ticketing/internal/tickets/db"
	"park-ticketing/internal/tickets/qr"
	"park-ticketing/internal/tickets/template"
	dayredis "park-ticketing/internal/tickets/redis"
	tickets "park-ticketing/internal/tickets/service"
	"park-ticketing/internal/tickets/ticket_api"
	"park-ticketing/internal/users"
	"park-ticketing/internal/users/user_api"
	"park-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// openStore returns the ticket store selected by STORE_DRIVER and a function
// that releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (tickets.TicketStore, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(cfg.MaxConns)
		bunDB := bun.NewDB(sqldb, sqlitedialect.New())
		store, err := ticket_db.NewDB(ctx, bunDB)
		if err != nil {
			bunDB.Close()
			return nil, nil, err
		}
		log.Info("DATABASE", fmt.Sprintf("✅ SQLite ticket store at %s", cfg.DSN))
		return store, func() { bunDB.Close() }, nil

	case "postgres":
		sqldb, err := connectPostgres(ctx, cfg.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		if err := migratePostgres(cfg.DSN, log); err != nil {
			sqldb.Close()
			return nil, nil, err
		}
		bunDB := bun.NewDB(sqldb, pgdialect.New())
		store, err := ticket_db.NewDB(ctx, bunDB)
		if err != nil {
			bunDB.Close()
			return nil, nil, err
		}
		log.Info("DATABASE", "✅ PostgreSQL ticket store ready")
		return store, func() { bunDB.Close() }, nil

	default:
		store, err := ticket_db.OpenFileStore(cfg.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func connectPostgres(ctx context.Context, dsn string, log *logger.Logger) (*sql.DB, error) {
	const maxRetries = 5
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err := sql.Open("postgres", dsn)
		if err == nil {
			if err = sqldb.PingContext(ctx); err == nil {
				return sqldb, nil
			}
			sqldb.Close()
		}
		lastErr = err
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", maxRetries, lastErr)
}

// migratePostgres runs on its own connection; closing the migrator closes it.
func migratePostgres(dsn string, log *logger.Logger) error {
	migrationDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	runner := migrations.NewRunner(migrationDB, log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", err.Error())
		}
	}()
	return runner.MigrateUp()
}

func dayLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (tickets.DayLocker, func(), error) {
	if cfg.Lock.Backend != "redis" {
		return tickets.NewLocalDayLocker(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("REDIS", fmt.Sprintf("✅ Capacity locks held in Redis at %s", cfg.Redis.Addr))
	return dayredis.NewDayLock(client, cfg.Lock.TTL, cfg.Lock.Wait, log), func() { client.Close() }, nil
}

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Dir, "park-ticketing")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	log.Info("APP", "Starting park ticketing service")

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer closeStore()

	locker, closeLocker, err := dayLocker(ctx, cfg, log)
	if err != nil {
		log.Fatal("REDIS", err.Error())
	}
	defer closeLocker()

	directory := users.NewDirectory(users.DefaultPasswordParams())
	if err := directory.SeedDemoUsers(ctx, cfg.Auth.DemoPassword); err != nil {
		log.Fatal("USERS", err.Error())
	}

	qrGenerator := qr.NewQRGenerator(cfg.QR.SecretKey, cfg.QR.Size)
	if cfg.QR.SecretKey == "" {
		log.Warn("CONFIG", "QR_SECRET_KEY not set, QR codes carry plain JSON")
	}

	availabilityEvents := sse.NewAvailabilityEmitter()
	opts := []tickets.Option{
		tickets.WithLocker(locker),
		tickets.WithAvailabilityEvents(availabilityEvents),
	}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		opts = append(opts, tickets.WithPublisher(producer))
		log.Info("KAFKA", fmt.Sprintf("Publishing issued tickets to %s", cfg.Kafka.Topic))
	}

	ticketService := tickets.NewTicketService(
		store,
		cfg.Park,
		qrGenerator,
		directory,
		notify.New(cfg.Email, log),
		log,
		opts...,
	)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.MockTokens)
	if cfg.Auth.JWTSecret == "" && !cfg.Auth.MockTokens {
		log.Warn("AUTH", "Neither AUTH_JWT_SECRET nor mock tokens are enabled; protected routes will reject every request")
	}

	ticketHandler := ticket_api.NewHandler(ticketService, qrGenerator, template.NewTicketPDFGenerator(cfg.Park.Name), log)
	ticketHandler.Events = availabilityEvents
	userHandler := user_api.NewHandler(directory, tokens, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(utils.RequestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		userHandler.RegisterRoutes(r)
		log.Info("ROUTER", "User routes registered under /api/users and /api/auth")

		ticketHandler.RegisterRoutes(r, auth.Middleware(tokens, log))
		log.Info("ROUTER", "Ticket routes registered under /api/tickets")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Park ticketing service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Park ticketing service shutdown complete")
	}
}
