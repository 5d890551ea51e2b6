package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/config"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var (
		url     string
		anonKey string
		token   string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default wallet.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, err := opts.resolvePath()
			if err != nil {
				return err
			}
			return runInit(cmd, path, url, anonKey, token, force)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "backend URL")
	cmd.Flags().StringVar(&anonKey, "anon-key", "", "backend anon key")
	cmd.Flags().StringVar(&token, "token", "", "access token of the wallet user")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")

	return cmd
}

func runInit(cmd *cobra.Command, path, url, anonKey, token string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfg := config.Default()
	if url != "" {
		cfg.Backend.URL = url
	}
	if anonKey != "" {
		cfg.Backend.AnonKey = anonKey
	}
	cfg.Backend.AccessToken = token
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
