package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codemind/reviewhub/internal/analysis"
	"github.com/codemind/reviewhub/internal/api"
	"github.com/codemind/reviewhub/internal/config"
	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/notify"
	"github.com/codemind/reviewhub/internal/server"
	"github.com/codemind/reviewhub/internal/service"
	"github.com/codemind/reviewhub/internal/stats"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	dsn            string
	signingKey     string
	analysisURL    string
	allowedOrigins stringSliceFlag
)

func main() {
	// .env is optional; real deployments set the environment directly
	godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("REVIEWHUB_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("REVIEWHUB_DSN",
		"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("REVIEWHUB_SIGNING_KEY"), "base64 encoded signing key")
	flag.StringVar(&analysisURL, "analysis-url", envOr("REVIEWHUB_ANALYSIS_URL", "http://localhost:9000"), "code analysis service URL")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[reviewhub] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, analysisURL, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgReviewRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(cfg.MigrationsURL); err != nil {
		logger.Fatal("migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	for _, metric := range []string{
		stats.ActiveConnections,
		stats.LoadedRooms,
		stats.EventsPublished,
		stats.StaleSubscriptions,
		stats.NotificationsQueued,
		stats.NotificationsFailed,
		stats.AnalysesPerformed,
		stats.ActiveSubscriptions,
	} {
		statsUpdater.RegisterMetric(metric)
	}
	statsUpdater.Run()
	defer statsUpdater.Stop()

	dispatcher := notify.NewDispatcher(logger, dbConn, statsUpdater)
	dispatcher.Run()

	collabServer, err := server.NewCollabServer(logger, dbConn, statsUpdater, dispatcher)
	if err != nil {
		logger.Fatal("new collab server:", err)
	}
	go collabServer.Run()

	svc := service.NewCollabService(logger, dbConn, collabServer, dispatcher)
	analyzer := analysis.NewClient(logger, cfg.AnalysisURL, dbConn, statsUpdater)

	srv := api.NewReviewHubApp(logger, collabServer, svc, analyzer, dbConn, statsUpdater, mux, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down collab server...")
	collabServer.Shutdown()

	logger.Println("draining notification dispatcher...")
	dispatcher.Shutdown()

	logger.Println("shutdown complete")
}
