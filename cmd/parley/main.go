// Parley service entry point.
//
// Usage:
//
//	parley serve                     # start the server
//	parley serve --config parley.yaml
//	parley version
//	parley health                    # probe a running server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parley-ai/parley/audio"
	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/contextbudget"
	"github.com/parley-ai/parley/internal/metrics"
	"github.com/parley-ai/parley/internal/server"
	"github.com/parley-ai/parley/internal/telemetry"
	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/llm/queue"
	"github.com/parley-ai/parley/llm/speech"
	"github.com/parley-ai/parley/llm/tokenizer"
	"github.com/parley-ai/parley/orchestrator"
	"github.com/parley-ai/parley/routing"
	"github.com/parley-ai/parley/store"
)

// Injected at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		fmt.Printf("parley %s (%s)\n", Version, GitCommit)
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting parley",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("parley", prometheus.DefaultRegisterer, logger)

	// Inference pipeline: provider behind the bounded-concurrency queue.
	provider := llm.NewOpenAIProvider(cfg.LLM, logger)
	inferenceQueue := queue.New(provider, cfg.Queue, logger, collector)
	defer inferenceQueue.Close()

	router := routing.New(inferenceQueue, cfg.Routing, logger)
	budgeter := contextbudget.New(cfg.Budget, tokenizer.NewTiktoken(cfg.LLM.Model), logger)

	// Persistence: MongoDB, optionally fronted by the Redis cache. The
	// service degrades to memory-only operation when Mongo is unreachable.
	var convStore store.ConversationStore
	if mongoStore, err := store.NewMongoStore(ctx, cfg.Mongo, logger); err != nil {
		logger.Warn("MongoDB not available, running without persistence", zap.Error(err))
	} else {
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			if err := mongoStore.Close(closeCtx); err != nil {
				logger.Warn("MongoDB disconnect failed", zap.Error(err))
			}
		}()
		convStore = mongoStore
		if cfg.Redis.Enabled {
			cached, err := store.NewCachedStore(ctx, mongoStore, cfg.Redis.Cache, logger)
			if err != nil {
				logger.Warn("Redis not available, continuing without cache", zap.Error(err))
			} else {
				convStore = cached
			}
		}
	}

	var saver orchestrator.Saver
	if convStore != nil {
		saver = convStore
	}

	hub := server.NewHub(logger)
	audioQueue := audio.New(hub.DeliverAudio, logger)
	registry := orchestrator.NewRegistry(cfg.Registry, saver, logger)

	opts := []orchestrator.Option{
		orchestrator.WithConfig(cfg.Orchestrator),
		orchestrator.WithLogger(logger),
		orchestrator.WithEmitter(hub),
		orchestrator.WithObserver(collector),
		orchestrator.WithAudio(audioQueue),
	}
	if saver != nil {
		opts = append(opts, orchestrator.WithStore(saver))
	}
	if cfg.Speech.Enabled {
		ttsCfg := cfg.Speech.TTS
		if ttsCfg.APIKey == "" {
			ttsCfg.APIKey = cfg.LLM.APIKey
		}
		opts = append(opts, orchestrator.WithSpeech(speech.NewOpenAITTSProvider(ttsCfg), cfg.VoiceDefaults()))
	}
	orch := orchestrator.New(router, inferenceQueue, budgeter, opts...)

	svc := server.NewConversationService(
		registry, convStore, orch, hub,
		cfg.Orchestrator.MaxIterations,
		promhttp.Handler(),
		logger,
	)

	manager := server.NewManager(svc.Routes(), server.ManagerConfig{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := registry.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := manager.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	manager.WaitForShutdown()

	cancel()
	if err := group.Wait(); err != nil {
		logger.Error("background worker failed", zap.Error(err))
	}
	logger.Info("parley stopped")
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func printUsage() {
	fmt.Println(`Parley - multi-persona conversation server

Usage:
  parley <command> [options]

Commands:
  serve     Start the server
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Examples:
  parley serve
  parley serve --config /etc/parley/parley.yaml
  parley health --addr http://localhost:8080`)
}
