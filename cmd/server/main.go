package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/victornm/mockinterview/internal/config"
	"github.com/victornm/mockinterview/internal/server"
)

func main() {
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	if err := setupLogger(c.Log.Level); err != nil {
		log.Fatalf("Setup logger failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

// loadConfig reads the optional file at CONFIG_PATH over the defaults, then
// the environment, including the variable names the web client deployments use.
func loadConfig() (server.Config, error) {
	c := server.DefaultConfig()

	err := config.Load(os.Getenv("CONFIG_PATH"), &c,
		config.WithEnv("http.port", "PORT"),
		config.WithEnv("http.allowedorigins", "ALLOWED_ORIGINS"),
		config.WithEnv("auth.secret", "JWT_SECRET"),
		config.WithEnv("users.mongo.uri", "MONGO_URI"),
		config.WithEnv("users.postgres.url", "DATABASE_URL"),
	)
	if err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

func setupLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
	return nil
}
