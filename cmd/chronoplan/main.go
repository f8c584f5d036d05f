// Package main provides the chronoplan binary entry point. ChronoPlan
// is a calendar and task orchestration agent that mediates between a
// conversational front-end and the Reclaim.ai and Nylas providers over
// JSON-RPC 2.0.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/chronoplan/chronoplan/llm/providers"

	"github.com/spf13/cobra"

	"github.com/chronoplan/chronoplan/agent"
	"github.com/chronoplan/chronoplan/config"
	"github.com/chronoplan/chronoplan/interpret"
	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/metric"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/provider/nylas"
	"github.com/chronoplan/chronoplan/provider/reclaim"
	"github.com/chronoplan/chronoplan/rpc"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "chronoplan"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Calendar and task orchestration agent",
		Long: `ChronoPlan mediates between a conversational front-end and two
providers: Reclaim.ai for tasks and Nylas for calendar events.

It exposes four capabilities over JSON-RPC 2.0:
- manage_productivity: create, update, complete, and delete items
- find_and_analyze: search, schedule views, workload analysis
- check_availability: free/busy checks and slot search
- optimize_schedule: concrete schedule improvements

Mutations that touch other people's calendars, look like duplicates,
or operate in bulk are gated behind a stateless approval round-trip.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, addr, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the agent server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, addr, logLevel)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "card",
		Short: "Print the agent card as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, addr, logLevel)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rpc.BuildCard(cfg))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func loadConfig(configPath, addr, logLevel string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	} else {
		cfg, err = config.NewLoader(slog.Default()).Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func serve(configPath, addr, logLevel string) error {
	cfg, err := loadConfig(configPath, addr, logLevel)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Log)
	slog.SetDefault(logger)

	registry := model.NewDefaultRegistry(cfg.Model.Name, &model.EndpointConfig{
		Provider:  cfg.Model.Provider,
		URL:       cfg.Model.Endpoint,
		Model:     cfg.Model.Name,
		APIKey:    cfg.Model.APIKey(),
		MaxTokens: cfg.Model.MaxTokens,
	})
	llmClient := llm.NewClient(registry,
		llm.WithLogger(logger),
		llm.WithObserver(metric.ObserveInterpreter),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
	)
	interp := interpret.New(llmClient, interpret.WithLogger(logger))

	var dispatcherOpts []agent.Option
	dispatcherOpts = append(dispatcherOpts,
		agent.WithLogger(logger),
		agent.WithProviderTimeout(cfg.Providers.Timeout),
	)
	if cfg.Providers.ReclaimBaseURL != "" {
		dispatcherOpts = append(dispatcherOpts,
			agent.WithReclaimOptions(reclaim.WithBaseURL(cfg.Providers.ReclaimBaseURL)))
	}
	if cfg.Providers.NylasBaseURL != "" {
		dispatcherOpts = append(dispatcherOpts,
			agent.WithNylasOptions(nylas.WithBaseURL(cfg.Providers.NylasBaseURL)))
	}
	dispatcher := agent.New(interp, dispatcherOpts...)

	server := rpc.NewServer(cfg, dispatcher, rpc.WithLogger(logger))
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Hot-reload the project config so log level and provider URLs can
	// change without a restart.
	if path := config.NewLoader(logger).FindProjectConfig(); path != "" {
		watcher := config.NewWatcher(path, cfg, logger)
		watcher.OnReload(func(next *config.Config) {
			slog.SetDefault(buildLogger(next.Log))
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Config watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ChronoPlan ready",
			"version", Version,
			"addr", cfg.Server.Addr,
			"agent_id", cfg.Agent.ID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
