package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/localforge/llamaserve/internal/chatformat"
	"github.com/localforge/llamaserve/internal/config"
	"github.com/localforge/llamaserve/internal/db"
	"github.com/localforge/llamaserve/internal/llama"
	"github.com/localforge/llamaserve/internal/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "llamaserve",
		Short: "OpenAI-compatible API server for a local llama.cpp engine",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("host", "localhost", "interface to bind the API server to")
	f.Int("port", 8000, "HTTP port for the API server")
	f.String("engine-url", llama.DefaultBaseURL, "base URL of the llama-server engine")
	f.String("model", "llama-2-functionary", "model identifier reported to clients")
	f.String("chat-format", chatformat.FormatLlama2Functionary, "chat format used to build prompts")
	f.String("db-path", "llamaserve.db", "path to the request accounting database")

	// Bind flags to viper. Viper keys use underscores (engine_url) so they
	// match the env var suffix after stripping the LLAMASERVE_ prefix.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("host", "host")
	bindFlag("port", "port")
	bindFlag("engine_url", "engine-url")
	bindFlag("model", "model")
	bindFlag("chat_format", "chat-format")
	bindFlag("db_path", "db-path")

	// LLAMASERVE_* environment variables. AutomaticEnv with the prefix maps
	// LLAMASERVE_PORT -> "port", LLAMASERVE_ENGINE_URL -> "engine_url", etc.
	viper.SetEnvPrefix("LLAMASERVE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("llamaserve %s starting\n", config.Version)
	fmt.Printf("  Engine: %s\n", cfg.EngineURL)
	fmt.Printf("  Model: %s\n", cfg.Model)
	fmt.Printf("  Chat format: %s\n", cfg.ChatFormat)
	fmt.Printf("  Listen: %s:%d\n", cfg.Host, cfg.Port)
	fmt.Println()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close() //nolint:errcheck

	// The engine holds a single generation context; serialize access so at
	// most one generation is in flight.
	engine := llama.NewSerialized(llama.NewClient(cfg.EngineURL, cfg.Model))
	registry := chatformat.NewRegistry(engine)

	server := web.New(&cfg, registry, engine, database)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-server.Ready():
		log.Printf("ready on %s", server.Addr())
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down...", sig)
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("web server shutdown: %v", err)
	}

	return nil
}
