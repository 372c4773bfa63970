package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/cardfelt/holdemd/internal/server"
)

var CLI struct {
	Serve ServeCmd `cmd:"" default:"1" help:"Run the game server."`
}

// ServeCmd runs the websocket server until interrupted.
type ServeCmd struct {
	Config   string `short:"c" default:"holdemd.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Listen address (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
}

// Run implements the serve command.
func (s *ServeCmd) Run() error {
	cfg, err := server.LoadConfig(s.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if s.LogLevel != "" {
		cfg.Server.LogLevel = s.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	addr := cfg.ListenAddr()
	if s.Addr != "" {
		addr = s.Addr
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	logger.Info("starting holdemd",
		"addr", addr,
		"tables", len(cfg.Tables),
		"bots", len(cfg.Bots))

	svc, err := server.NewService(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("building service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.NewServer(addr, svc, logger).Start(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("holdemd"),
		kong.Description("Authoritative no-limit hold'em game server."),
	)
	kctx.FatalIfErrorf(kctx.Run())
}
