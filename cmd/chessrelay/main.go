// Package main provides the chess relay binary: an HTTP and websocket server
// that pairs two players per room and relays their moves.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chessrelay/internal/config"
	"github.com/cory-johannsen/chessrelay/internal/observability"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "chessrelay",
		Usage: "room-based two-player chess relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/dev.yaml",
				Usage:   "path to configuration file; empty uses defaults and RELAY_* variables",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before configuration",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the relay until interrupted",
				Action: serve,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate configuration, then exit",
				Action: checkConfig,
			},
		},
	}
}

// loadConfig applies the dotenv file, then reads configuration. Variables
// already present in the environment win over the dotenv file.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	if envFile := cmd.String("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return config.Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	gin.SetMode(ginMode(cfg.Logging.Level))

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("starting chess relay",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("room_ttl", cfg.Rooms.TTL),
		zap.Duration("sweep_interval", cfg.Rooms.SweepInterval),
		zap.Duration("startup", time.Since(start)),
	)
	return a.lifecycle.Run(ctx)
}

func checkConfig(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "config ok: listening on %s, rooms expire after %s\n",
		cfg.Server.Addr(), cfg.Rooms.TTL)
	return nil
}
