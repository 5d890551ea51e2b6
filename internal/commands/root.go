package commands

import (
	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "wallet",
		Short:   "Digital wallet client with instant DZD transfers",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $WALLET_HOME/wallet.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests and timings to stderr")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newBalanceCommand(opts),
		newRechargeCommand(opts),
		newTransactionsCommand(opts),
		newTransferCommand(opts),
		newSearchCommand(opts),
		newHistoryCommand(opts),
		newLimitsCommand(opts),
		newCardsCommand(opts),
		newInvestCommand(opts),
		newGoalsCommand(opts),
		newNotificationsCommand(opts),
		newReferralsCommand(opts),
		newProfileCommand(opts),
		newLogCommand(opts),
		newDevCommand(opts),
	)

	return rootCmd
}
