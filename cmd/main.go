/**
 * @description
 * This is the main entry point for the escrow-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * the on-chain escrow client, message brokers, repositories, the core application service,
 * the cron scheduler, and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/escrowclient: Client for the on-chain escrow contract.
 * - pkg/rabbitmq, pkg/userdirectory: Clients for RabbitMQ and the user directory.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/transfa/escrow-service/internal/api"
	"github.com/transfa/escrow-service/internal/app"
	"github.com/transfa/escrow-service/internal/config"
	"github.com/transfa/escrow-service/internal/store"
	"github.com/transfa/escrow-service/pkg/escrowclient"
	"github.com/transfa/escrow-service/pkg/rabbitmq"
	"github.com/transfa/escrow-service/pkg/userdirectory"
)

func main() {
	// Load .env for local development; production injects real env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting escrow-service\" port=%s", cfg.ServerPort)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Align pool tuning with the other transfa services.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the data access layer. This also applies the schema.
	repository, err := store.NewPostgresRepository(bootCtx, dbpool)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"repository init failed\" err=%v", err)
	}

	// Initialize the RabbitMQ producer to publish notification events.
	// Notifications are best-effort, so a broker outage falls back to no-op.
	var producer rabbitmq.Publisher
	if eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the on-chain escrow client. Without an RPC URL the service
	// runs on the in-memory fake, which is only useful in local development.
	var escrow escrowclient.Client
	var rpcHealth api.HealthChecker
	if strings.TrimSpace(cfg.ChainRPCURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"no chain rpc url configured; using in-memory escrow fake\"")
		escrow = escrowclient.NewFakeClient()
	} else {
		ethClient, err := escrowclient.NewEthClient(bootCtx, escrowclient.EthClientConfig{
			RPCURL:          cfg.ChainRPCURL,
			PrivateKeyHex:   cfg.EscrowSignerKey,
			ContractAddress: cfg.EscrowContractAddress,
			FeeCurrency:     cfg.FeeCurrencyAddress,
		})
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"escrow client init failed\" err=%v", err)
		}
		if err := ethClient.Ping(bootCtx); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"chain rpc ping failed; continuing\" err=%v", err)
		}
		escrow = ethClient
		rpcHealth = ethClient
		log.Println("level=info component=bootstrap msg=\"escrow client connected\"")
	}

	// Initialize the client for the user-directory service.
	directory := userdirectory.NewClient(cfg.UserDirectoryURL, cfg.UserDirectoryAPIKey, cfg.DirectoryHTTPTimeout)

	// Initialize the core application service with its dependencies.
	escrowService := app.NewService(
		repository,
		escrow,
		directory,
		producer,
		cfg.TransferExpiryDays,
		cfg.ReminderWindow(),
	)

	// Start the cron scheduler for the expiry and reminder jobs.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(escrowService, logger, cfg.JobTimeout)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()

	// Initialize the API handlers and router.
	metrics := api.NewMetricsRegistry()
	escrowHandlers := api.NewEscrowHandlers(escrowService, metrics)
	router := api.EscrowRoutes(escrowHandlers, metrics, cfg.ClerkJWKSURL, cfg.InternalAPIKey, repository, rpcHealth)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Let an in-flight cron batch finish before exiting.
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
