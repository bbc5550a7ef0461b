package main

import (
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"livetally/bus"
	"livetally/cliparse"
	"livetally/db"
	"livetally/handlers"
	"livetally/ingest"
	"livetally/ledger"
	"livetally/lifecycle"
	"livetally/middleware"
	"livetally/models"
	"livetally/publish"
	"livetally/router"
	"livetally/tally"
)

func main() {
	var err error

	// Load .env if present; real env always wins
	_ = godotenv.Load()

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to the database
	driver := "postgres"
	if cfg.DatabaseType == "sqlite" {
		driver = "sqlite"
	}
	dbConn, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if cfg.DatabaseType == "sqlite" {
		// sqlite handles one writer; funnel everything through one connection
		dbConn.SetMaxOpenConns(1)
	}

	// Verify connection
	if err := dbConn.Ping(); err != nil {
		slog.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready")

	// Wire the vote engine
	lifecycleBus := bus.New[models.LifecycleEvent]()
	tallyBus := bus.New[models.TallySnapshot]()
	rightsBus := bus.New[models.RightsEvent]()

	voteLedger := ledger.New()
	transferSvc := ledger.NewTransferService(dbConn, rightsBus)
	aggregator := tally.New(dbConn)
	publisher := publish.New(dbConn, aggregator, tallyBus, cfg.SnapshotWindow, cfg.SnapshotBatch)
	pipeline := ingest.New(dbConn, voteLedger, aggregator)
	coordinator := lifecycle.New(dbConn, aggregator, publisher, lifecycleBus)
	streams := handlers.NewStreamHandler(lifecycleBus, tallyBus, rightsBus)

	aggregator.Start(publisher)
	publisher.Start()
	defer func() {
		streams.Close()
		publisher.Stop()
		aggregator.Stop()
	}()

	// Create router
	mux := router.NewRouter(dbConn, cfg, router.Deps{
		Ledger:      voteLedger,
		Transfer:    transferSvc,
		Pipeline:    pipeline,
		Coordinator: coordinator,
		Aggregator:  aggregator,
		Streams:     streams,
		RightsBus:   rightsBus,
	})

	// Create server
	server := http.Server{
		Handler: middleware.CORS(mux),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		server.Close()
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port, "database", cfg.DatabaseType)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}
