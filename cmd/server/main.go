package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/socialchat-server/internal/app"
	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/config"
	applog "github.com/vovakirdan/socialchat-server/internal/log"
)

type rootFlags struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "socialchat-server",
		Short:         "Real-time chat backend for the social network",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config.yaml")
	pf.StringVar(&flags.overrides.Addr, "addr", "", "HTTP listen address")
	pf.StringVar(&flags.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.overrides.DatabasePath, "db", "", "SQLite database path")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	})
	root.AddCommand(newTokenCmd(flags))

	return root
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	bootLog := applog.New("info")

	cfg, path, err := config.Load(bootLog, flags.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.UpdateFrom(flags.overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := applog.New(cfg.LogLevel)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize app")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting socialchat server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		userID    string
		firstName string
		lastName  string
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a handshake token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if userID == "" {
				userID = uuid.NewString()
			}
			if ttl <= 0 {
				ttl = cfg.JWTTTL
			}

			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}, userID, firstName, lastName)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "user id claim (random when empty)")
	cmd.Flags().StringVar(&firstName, "firstname", "Dev", "firstname claim")
	cmd.Flags().StringVar(&lastName, "lastname", "User", "lastname claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt_ttl)")

	return cmd
}
