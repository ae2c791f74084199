package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/omochice/roomlink/internal/server"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type config struct {
	Addr         string `env:"ADDR,default=:8080"`
	RoomID       string `env:"ROOM_ID,default=1"`
	RoomName     string `env:"ROOM_NAME,default=General"`
	InvitedUsers string `env:"INVITED_USERS,required=true"`
	LogLevel     string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomserver terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var cfg config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	invited := splitUsers(cfg.InvitedUsers)
	if len(invited) == 0 {
		return exitConfig, fmt.Errorf("INVITED_USERS must name at least one user")
	}

	registry := server.NewRegistry()
	registry.CreateRoom(cfg.RoomID, cfg.RoomName, invited)

	srv := server.New(cfg.Addr, registry, logger)
	if err := srv.Start(); err != nil {
		return exitRuntime, err
	}

	logger.Info("room ready",
		"room", cfg.RoomID, "name", cfg.RoomName, "invited", invited)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Wait() }()

	select {
	case err := <-errChan:
		if err != nil {
			return exitRuntime, err
		}
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		srv.Stop()
	}

	logger.Info("room server stopped")
	return exitOK, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func splitUsers(raw string) []string {
	var users []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			users = append(users, part)
		}
	}
	return users
}
