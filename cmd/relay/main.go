package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/relaychat/relay/capability"
	"github.com/relaychat/relay/config"
	"github.com/relaychat/relay/llm"
	"github.com/relaychat/relay/relay"
	"github.com/relaychat/relay/search"
	"github.com/relaychat/relay/transport"
)

func main() {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	yamlPath := os.Getenv(config.EnvConfigPath)
	if *configPath != "" {
		yamlPath = *configPath
	}
	if yamlPath == "" {
		yamlPath = "config.yaml"
	}

	cfg, err := config.Load(yamlPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Rebuild the logger at the configured level.
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("Invalid log level in config, using default", zap.String("level", cfg.LogLevel), zap.Error(err))
	} else {
		loggerConfig.Level = zap.NewAtomicLevelAt(level)
		newLogger, err := loggerConfig.Build()
		if err != nil {
			logger.Warn("Failed to create logger with new level, keeping default", zap.Error(err))
		} else {
			logger = newLogger
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received termination signal")
		cancel()
	}()

	backend := llm.NewClient(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMAPIKey, logger)
	searcher := search.NewProvider(cfg.SearchBaseURL, logger)
	caps := capability.NewRegistry(logger, capability.NewWebSearch(searcher, logger))

	rly := relay.New(backend, caps, relay.Options{
		MaxRounds:    cfg.MaxRounds,
		RoundTimeout: cfg.RoundTimeout,
	}, logger)

	var throttle *transport.Throttle
	if cfg.ThrottleRPS > 0 {
		throttle = transport.NewThrottle(cfg.ThrottleRPS, cfg.ThrottleBurst)
	}

	handler := transport.NewChatHandler(rly, logger)
	router := transport.NewRouter(handler, cfg.StaticDir, throttle, logger)

	server, errChan, err := transport.StartHTTPServer(ctx, logger, cfg, router)
	if err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}

	logger.Info("Relay is ready",
		zap.String("addr", cfg.ListenAddr),
		zap.String("llmBaseURL", cfg.LLMBaseURL),
		zap.String("model", cfg.LLMModel),
		zap.String("searchBaseURL", cfg.SearchBaseURL))

	select {
	case listenerErr, ok := <-errChan:
		if ok && listenerErr != nil {
			logger.Error("HTTP server failed", zap.Error(listenerErr))
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	transport.ShutdownHTTPServer(shutdownCtx, logger, server)
}
