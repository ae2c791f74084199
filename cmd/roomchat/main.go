package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"

	"github.com/omochice/roomlink/internal/conn"
	"github.com/omochice/roomlink/internal/msglog"
	"github.com/omochice/roomlink/internal/presence"
	"github.com/omochice/roomlink/internal/session"
	"github.com/omochice/roomlink/internal/snapshot"
	"github.com/omochice/roomlink/internal/transport"
	"github.com/omochice/roomlink/internal/transport/gobws"
	"github.com/omochice/roomlink/internal/transport/ws"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type config struct {
	ServerURL   string `env:"SERVER_URL,default=ws://localhost:8080"`
	SnapshotURL string `env:"SNAPSHOT_URL,default=http://localhost:8080"`
	RoomID      string `env:"ROOM_ID,required=true"`
	Username    string `env:"USERNAME,required=true"`
	Transport   string `env:"TRANSPORT,default=ws"`
	LogLevel    string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomchat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var cfg config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		lvl = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	dialer, err := newDialer(cfg)
	if err != nil {
		return exitConfig, err
	}

	s := session.New(session.Config{
		Dialer:    dialer,
		Snapshots: snapshot.NewClient(cfg.SnapshotURL, nil),
		Logger:    logger,
	})

	// Callbacks run on the session loop goroutine, so the counters need no
	// locking.
	printed := 0
	s.OnMessages(func(msgs []msglog.Message) {
		for ; printed < len(msgs); printed++ {
			printMessage(msgs[printed], cfg.Username)
		}
	})
	known := make(map[string]bool)
	s.OnPresence(func(roster []presence.Participant) {
		for _, p := range roster {
			was, seen := known[p.Username]
			known[p.Username] = p.Connected
			switch {
			case p.Connected && (!seen || !was):
				color.Gray.Printf("*** %s joined the room ***\n", p.Username)
			case !p.Connected && seen && was:
				color.Gray.Printf("*** %s left the room ***\n", p.Username)
			}
		}
	})
	s.OnConnectionState(func(st conn.State, reason string) {
		if st == conn.StateFailed {
			color.Red.Printf("connection lost: %s\n", reason)
		}
	})
	s.OnSnapshotError(func(err error) {
		color.Yellow.Printf("history unavailable: %v\n", err)
	})

	if err := s.Join(context.Background(), cfg.RoomID, cfg.Username); err != nil {
		return exitRuntime, fmt.Errorf("failed to join room: %w", err)
	}
	defer s.Leave()

	color.Green.Printf("joined room %s as %s\n", cfg.RoomID, cfg.Username)
	fmt.Println("Type your messages (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}
		if err := s.Send(text); err != nil {
			logger.Error("failed to send message", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("failed to read input", "error", err)
	}

	color.Gray.Println("left the room")
	return exitOK, nil
}

func newDialer(cfg config) (transport.Dialer, error) {
	switch cfg.Transport {
	case "ws":
		return ws.Dialer{BaseURL: cfg.ServerURL}, nil
	case "gobws":
		return gobws.Dialer{BaseURL: cfg.ServerURL}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want ws or gobws)", cfg.Transport)
	}
}

func printMessage(msg msglog.Message, self string) {
	sender := msg.Sender
	if sender == "" {
		sender = "?"
	}
	stamp := msg.SentAt.Format("15:04")
	line := fmt.Sprintf("%s [%s]: %s", stamp, sender, msg.Body)
	switch {
	case msg.Origin == msglog.OriginHistory:
		color.Gray.Println(line)
	case sender == self:
		color.Cyan.Println(line)
	default:
		fmt.Println(line)
	}
}
