package main

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Conceptual-Machines/jamctl/internal/api"
	"github.com/Conceptual-Machines/jamctl/internal/broadcast"
	"github.com/Conceptual-Machines/jamctl/internal/clock"
	"github.com/Conceptual-Machines/jamctl/internal/config"
	"github.com/Conceptual-Machines/jamctl/internal/llmrunner"
	"github.com/Conceptual-Machines/jamctl/internal/metrics"
	"github.com/Conceptual-Machines/jamctl/internal/observability"
	"github.com/Conceptual-Machines/jamctl/internal/orchestrator"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func GetVersion() string {
	return releaseVersion
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "jamctl@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
			Debug:            cfg.Environment != environmentProduction,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("Sentry not configured (SENTRY_DSN not set)")
	}

	observability.InitializeLangfuse(context.Background(), cfg)

	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	clk := clock.Real{}
	runner := llmrunner.New(llmrunner.Config{
		Binary:       cfg.LLMBinary,
		Profile:      cfg.LLMProfile,
		AgentTimeout: cfg.AgentTimeout,
	}, nil, clk)
	hub := broadcast.New()

	cwMetrics, err := metrics.NewClient(context.Background(), cfg.Environment)
	if err != nil {
		log.Printf("Failed to initialize CloudWatch metrics: %v", err)
	}

	orch, err := orchestrator.New(clk, runner, hub, cwMetrics, cfg.DefaultGenre, cfg.DefaultModel)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	router := api.SetupRouter(cfg, hub, orch, GetVersion())

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting jamctl on port %s", port)
	if err := router.Run(":" + port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start server:", err)
	}
}
