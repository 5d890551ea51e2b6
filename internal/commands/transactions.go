package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/ledger"
	"github.com/dinarwallet/wallet/internal/wallet"
)

func newTransactionsCommand(opts *globalOptions) *cobra.Command {
	var (
		limit   int
		export  string
		summary bool
	)

	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List recent transactions",
		Args:    cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			return runTransactions(ctx, a, limit, export, summary)
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", wallet.DefaultTransactionLimit, "number of transactions")
	cmd.Flags().StringVar(&export, "export", "", "write the transactions to a CSV file")
	cmd.Flags().BoolVar(&summary, "summary", false, "print totals per currency and type")

	cmd.AddCommand(newTransactionsImportCommand(opts))
	return cmd
}

func runTransactions(ctx context.Context, a *app, limit int, export string, summary bool) error {
	txs, err := a.api.Transactions(ctx, a.session.UserID(), limit)
	if err != nil {
		return err
	}

	if export != "" {
		f, err := os.Create(export)
		if err != nil {
			return fmt.Errorf("creating %s: %w", export, err)
		}
		if err := ledger.WriteTransactions(f, txs); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", export, err)
		}
		fmt.Fprintf(a.out, "Exported %d transactions to %s\n", len(txs), export)
		return nil
	}

	if summary {
		printSummary(a, ledger.Summarize(txs))
		return nil
	}

	if len(txs) == 0 {
		fmt.Fprintln(a.out, "No transactions")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tSTATUS\tDESCRIPTION\tREFERENCE")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.CreatedAt.Local().Format("2006-01-02 15:04"), tx.Type, formatAmount(tx.Amount, tx.Currency),
			tx.Status, tx.Description, tx.Reference)
	}
	return tw.Flush()
}

func printSummary(a *app, s ledger.Summary) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CURRENCY\tCOUNT\tTOTAL")
	for _, c := range s.Currencies() {
		t := s.ByCurrency[c]
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Code(), t.Count, t.Sum.StringFixed(2))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TYPE\tCOUNT\tTOTAL")
	for _, ty := range s.Types() {
		t := s.ByType[ty]
		fmt.Fprintf(tw, "%s\t%d\t%s\n", ty, t.Count, t.Sum.StringFixed(2))
	}
	tw.Flush()
	if s.Skipped > 0 {
		fmt.Fprintf(a.out, "(%d pending or failed transactions not counted)\n", s.Skipped)
	}
}

func newTransactionsImportCommand(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Append transactions from an exported CSV",
		Long: "Append the rows of a CSV written by `transactions --export` as new\n" +
			"transactions of the current user. Each row keeps its created_at time and\n" +
			"gets a new id. Rows matching an existing transaction (same time, type,\n" +
			"currency, amount, status, reference and description) are skipped, so\n" +
			"importing the same file twice adds nothing the second time. Rows without\n" +
			"a created_at are always added and dated now.",
		Args: cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			return runTransactionsImport(ctx, a, args[0], dryRun)
		}),
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}

func runTransactionsImport(ctx context.Context, a *app, path string, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	incoming, err := ledger.ReadTransactions(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	existing, err := a.api.Transactions(ctx, a.session.UserID(), 0)
	if err != nil {
		return fmt.Errorf("reading existing transactions: %w", err)
	}
	txs, skipped := ledger.Missing(existing, incoming)
	if dryRun {
		fmt.Fprintf(a.out, "%d transactions would be imported (%d already present)\n", len(txs), skipped)
		return nil
	}

	for i, tx := range txs {
		if _, err := a.session.AddTransaction(ctx, wallet.NewTransaction{
			Type:        tx.Type,
			Amount:      tx.Amount,
			Currency:    string(tx.Currency),
			Description: tx.Description,
			Status:      tx.Status,
			Reference:   tx.Reference,
			Recipient:   tx.Recipient,
			CreatedAt:   tx.CreatedAt,
		}); err != nil {
			return fmt.Errorf("importing transaction %d of %d: %w", i+1, len(txs), err)
		}
	}
	a.record(activity.Entry{Action: "import", Details: fmt.Sprintf("%d transactions from %s", len(txs), path)})
	fmt.Fprintf(a.out, "Imported %d transactions (%d already present)\n", len(txs), skipped)
	return nil
}
