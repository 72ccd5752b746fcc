package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"socialdm/backend/internal/auth"
	"socialdm/backend/internal/config"
	"socialdm/backend/internal/storage"

	"github.com/rs/zerolog"
)

const usage = `Usage: admin <command> [args]

Commands:
  migrate                      create or update the schema
  sweep-deletions              purge conversations both participants deleted
  purge-message <message_id>   delete one message and its attachment files
  deactivate-token <token>     stop sending push notifications to a token
  issue-token <user_id> [ttl]  sign an access token (default ttl 24h)`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	// issue-token needs no database.
	if os.Args[1] == "issue-token" {
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			logger.Fatal().Err(err).Msg("issue-token failed")
		}
		return
	}

	db, err := storage.OpenPostgres(cfg.DatabaseURL, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	// No redis needed for the admin CLI.
	store := storage.NewStorageService(db, nil, storage.DiskFiles{Root: cfg.MediaRoot}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := run(ctx, store, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func run(ctx context.Context, store *storage.Service, logger zerolog.Logger, command string, args []string) error {
	switch command {
	case "migrate":
		if err := store.Migrate(); err != nil {
			return err
		}
		logger.Info().Msg("schema is up to date")

	case "sweep-deletions":
		n, err := store.SweepMutualDeletions(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("purged", n).Msg("sweep complete")

	case "purge-message":
		if len(args) != 1 {
			return fmt.Errorf("usage: admin purge-message <message_id>")
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id %q", args[0])
		}
		if err := store.DeleteMessage(ctx, uint(id)); err != nil {
			return err
		}
		logger.Info().Uint64("message_id", id).Msg("message purged")

	case "deactivate-token":
		if len(args) != 1 {
			return fmt.Errorf("usage: admin deactivate-token <token>")
		}
		if err := store.DeactivatePushToken(ctx, args[0]); err != nil {
			return err
		}
		logger.Info().Msg("token deactivated")

	default:
		fmt.Println(usage)
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func issueToken(cfg *config.Config, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: admin issue-token <user_id> [ttl]")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	ttl := 24 * time.Hour
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid ttl %q: %w", args[1], err)
		}
		ttl = d
	}
	token, err := auth.NewVerifier(cfg.JWTSecret).Issue(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
