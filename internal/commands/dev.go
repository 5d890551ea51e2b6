package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/config"
	"github.com/dinarwallet/wallet/internal/devserver"
)

func newDevCommand(opts *globalOptions) *cobra.Command {
	devCmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the local development backend",
	}
	devCmd.AddCommand(newDevServeCommand(opts), newDevTokenCommand(opts))
	return devCmd
}

func newDevServeCommand(opts *globalOptions) *cobra.Command {
	var (
		listen string
		store  string
		noSeed bool
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the wallet tables and procedures over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.DevServer.Listen = listen
			}
			if store != "" {
				cfg.DevServer.Store = store
			}
			return runDevServe(cmd, cfg, !noSeed, ttl)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	cmd.Flags().StringVar(&store, "store", "", "memory or postgres (default from config)")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "do not create the demo users")
	cmd.Flags().DurationVar(&ttl, "token-ttl", 24*time.Hour, "lifetime of the printed demo tokens")

	return cmd
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (devserver.Store, error) {
	switch cfg.DevServer.Store {
	case "", "memory":
		return devserver.NewMemStore(), nil
	case "postgres":
		return devserver.OpenPostgres(ctx, cfg.DevServer.PostgresDSN, log)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.DevServer.Store)
	}
}

func devLimits(cfg *config.Config) devserver.Limits {
	return devserver.Limits{
		Min:     decimal.NewFromInt(cfg.Transfer.MinAmount),
		Max:     decimal.NewFromInt(cfg.Transfer.MaxAmount),
		Daily:   decimal.NewFromInt(cfg.DevServer.DailyLimit),
		Monthly: decimal.NewFromInt(cfg.DevServer.MonthlyLimit),
	}
}

func runDevServe(cmd *cobra.Command, cfg *config.Config, seed bool, ttl time.Duration) error {
	ctx := cmd.Context()
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	out := cmd.OutOrStdout()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if seed {
		users, err := devserver.Seed(ctx, store, devserver.DemoUsers())
		if err != nil {
			return fmt.Errorf("seeding demo users: %w", err)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EMAIL\tACCOUNT\tREFERRAL\tACCESS TOKEN")
		for _, u := range users {
			token, err := devserver.IssueToken(cfg.DevServer.JWTSecret, u.ID, u.Email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Email, u.AccountNumber, u.ReferralCode, token)
		}
		tw.Flush()
	}

	srv := devserver.NewServer(store, devserver.Options{
		AnonKey:   cfg.Backend.AnonKey,
		JWTSecret: cfg.DevServer.JWTSecret,
		Limits:    devLimits(cfg),
		Logger:    log,
	})
	fmt.Fprintf(out, "Serving on http://%s (anon key %q, %s store)\n", cfg.DevServer.Listen, cfg.Backend.AnonKey, storeName(cfg))
	return srv.ListenAndServe(ctx, cfg.DevServer.Listen)
}

func storeName(cfg *config.Config) string {
	if cfg.DevServer.Store == "" {
		return "memory"
	}
	return cfg.DevServer.Store
}

func newDevTokenCommand(opts *globalOptions) *cobra.Command {
	var (
		ttl  time.Duration
		name string
	)

	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue an access token for a user of the postgres dev store",
		Long: "Issue an access token for a user of the postgres development store,\n" +
			"creating the user when it does not exist. The memory store lives only\n" +
			"inside `wallet dev serve`, which prints tokens for its demo users.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runDevToken(cmd, cfg, args[0], name, ttl)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&name, "name", "", "full name when the user is created")
	return cmd
}

func runDevToken(cmd *cobra.Command, cfg *config.Config, email, name string, ttl time.Duration) error {
	if cfg.DevServer.Store != "postgres" {
		return errors.New("dev token needs the postgres store; `wallet dev serve` prints tokens for the memory store")
	}
	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := devserver.Seed(ctx, store, []devserver.SeedUser{{Email: strings.TrimSpace(email), FullName: name}})
	if err != nil {
		return err
	}
	token, err := devserver.IssueToken(cfg.DevServer.JWTSecret, users[0].ID, users[0].Email, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
