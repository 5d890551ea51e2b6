package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/backend"
	"github.com/dinarwallet/wallet/internal/config"
	"github.com/dinarwallet/wallet/internal/model"
	"github.com/dinarwallet/wallet/internal/transfer"
	"github.com/dinarwallet/wallet/internal/wallet"
)

type globalOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

// resolvePath returns the config file path and its directory.
func (o *globalOptions) resolvePath() (string, string, error) {
	if o.configPath != "" {
		abs, err := filepath.Abs(o.configPath)
		if err != nil {
			return "", "", fmt.Errorf("resolving path: %w", err)
		}
		return abs, filepath.Dir(abs), nil
	}
	dir, err := config.Dir()
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, config.FileName), dir, nil
}

// loadConfig reads the config file (defaults when it does not exist) and
// overlays the environment.
func (o *globalOptions) loadConfig() (*config.Config, string, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, "", err
	}
	path, dir, err := o.resolvePath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, "", err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, dir, nil
}

func (o *globalOptions) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// app is the per-invocation wiring shared by the wallet commands.
type app struct {
	cfg      *config.Config
	api      *wallet.API
	session  *wallet.Session
	activity *activity.Recorder
	log      *slog.Logger
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
}

func newApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	cfg, dir, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	log := opts.logger(cmd)

	token := cfg.Backend.AccessToken
	client, err := backend.New(cfg.Backend.URL, cfg.Backend.AnonKey,
		backend.WithAccessToken(token),
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	userID := cfg.User.ID
	if userID == "" && token != "" {
		if userID, err = backend.SubjectFromToken(token); err != nil {
			return nil, err
		}
	}
	if userID == "" {
		return nil, errors.New("no user: set backend.access_token (or user.id) in the config or WALLET_ACCESS_TOKEN")
	}

	api := wallet.NewAPI(client)
	session := wallet.NewSession(api, userID,
		wallet.WithMinTransfer(decimal.NewFromInt(cfg.Transfer.MinAmount)),
		wallet.WithReloadAfter(cfg.Transfer.ReloadAfter),
		wallet.WithDefaultDescription(cfg.Transfer.DefaultDescription),
		wallet.WithSessionLogger(log),
	)

	var rec *activity.Recorder
	if cfg.Activity.Enabled {
		actDir := cfg.Activity.Dir
		if actDir == "" {
			actDir = dir
		}
		rec = activity.NewRecorder(actDir)
	}

	return &app{
		cfg:      cfg,
		api:      api,
		session:  session,
		activity: rec,
		log:      log,
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}, nil
}

func (a *app) close() {
	a.session.Close()
}

// load fills the session cache. Partial failures are reported as warnings.
func (a *app) load(ctx context.Context) {
	if err := a.session.Load(ctx); err != nil {
		a.warn("some wallet data could not be loaded: %v", err)
	}
}

func (a *app) warn(format string, args ...any) {
	fmt.Fprintf(a.errOut, "warning: "+format+"\n", args...)
}

// record appends to the activity log; failures only warn.
func (a *app) record(e activity.Entry) {
	e.UserID = a.session.UserID()
	if err := a.activity.Record(e); err != nil {
		a.warn("failed to write activity log: %v", err)
	}
}

func (a *app) limits() transfer.Limits {
	return transfer.Limits{
		Min: decimal.NewFromInt(a.cfg.Transfer.MinAmount),
		Max: decimal.NewFromInt(a.cfg.Transfer.MaxAmount),
	}
}

// withApp builds the app for cmd and runs fn with it.
func withApp(opts *globalOptions, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, args)
	}
}

func formatAmount(d decimal.Decimal, c model.Currency) string {
	return d.StringFixed(2) + " " + c.Code()
}

func formatDZD(d decimal.Decimal) string {
	return formatAmount(d, model.CurrencyDZD)
}

// parseAmount reads a positive amount argument.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := transfer.ParseAmount(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
