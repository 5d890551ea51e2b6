package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/model"
	"github.com/dinarwallet/wallet/internal/transfer"
)

func newTransferCommand(opts *globalOptions) *cobra.Command {
	var (
		to          string
		amount      string
		description string
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send an instant DZD transfer",
		Long: "Send an instant DZD transfer to another wallet user, identified by\n" +
			"email or account number. The transfer is confirmed interactively\n" +
			"unless --yes is given.",
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			return runTransfer(ctx, a, transferInput{to: to, amount: amount, description: description, yes: yes}, bufio.NewReader(a.in))
		}),
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient email or account number (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in DZD (required)")
	cmd.Flags().StringVar(&description, "description", "", "optional note for the recipient")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

type transferInput struct {
	to          string
	amount      string
	description string
	yes         bool
}

func runTransfer(ctx context.Context, a *app, in transferInput, prompt *bufio.Reader) error {
	a.load(ctx)

	resolver := transfer.NewResolver(a.session,
		transfer.WithDebounce(a.cfg.Transfer.SearchDebounce),
		transfer.WithResolverLogger(a.log),
	)
	flow := transfer.NewFlow(a.session,
		transfer.WithLimits(a.limits()),
		transfer.WithResolver(resolver),
		transfer.WithResetAfter(a.cfg.Transfer.ResetAfter),
		transfer.WithLogger(a.log),
		transfer.OnTransfer(func(amount decimal.Decimal, recipient string) {
			a.record(activity.Entry{Action: "transfer", Amount: amount, Currency: model.CurrencyDZD.Code(), Details: "to " + recipient})
		}),
	)
	defer flow.Close()

	flow.SetAmount(in.amount)
	flow.SetRecipient(in.to)
	flow.SetDescription(in.description)

	// Resolve the recipient now rather than after the debounce window.
	if err := resolver.Flush(ctx); err != nil {
		a.warn("recipient search failed: %v", err)
	} else if m, ok := exactMatch(resolver.Results(), in.to); ok {
		flow.SelectRecipient(m)
	}

	if err := flow.Next(); err != nil {
		return errors.New(flow.ErrorMessage())
	}

	recipient := strings.TrimSpace(in.to)
	if m, ok := flow.Selected(); ok {
		recipient = fmt.Sprintf("%s <%s>", m.Label(), m.Email)
	}
	amount, _ := transfer.ParseAmount(in.amount)
	fmt.Fprintf(a.out, "Send %s to %s\n", formatDZD(amount), recipient)
	if d := strings.TrimSpace(in.description); d != "" {
		fmt.Fprintf(a.out, "Description: %s\n", d)
	}

	if !in.yes {
		fmt.Fprint(a.out, "Confirm? [y/N] ")
		answer, _ := prompt.ReadString('\n')
		if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
			_ = flow.Back()
			fmt.Fprintln(a.out, "Transfer cancelled")
			return nil
		}
	}

	res, err := flow.Confirm(ctx)
	if err != nil {
		return errors.New(flow.ErrorMessage())
	}
	fmt.Fprintf(a.out, "%s\n", res.Message)
	fmt.Fprintf(a.out, "Reference:   %s\n", res.Reference)
	fmt.Fprintf(a.out, "New balance: %s\n", formatDZD(res.NewBalance))
	fmt.Fprintf(a.out, "Processed in %s\n", res.ProcessingTime.Round(time.Millisecond))
	return nil
}

// exactMatch returns the match whose email or account number is exactly s.
func exactMatch(matches []model.UserMatch, s string) (model.UserMatch, bool) {
	s = strings.TrimSpace(s)
	for _, m := range matches {
		if strings.EqualFold(m.Email, s) || m.AccountNumber == s {
			return m, true
		}
	}
	return model.UserMatch{}, false
}

func newSearchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find transfer recipients by name, email or account number",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(opts, runSearch),
	}
}

func runSearch(ctx context.Context, a *app, args []string) error {
	resolver := transfer.NewResolver(a.session, transfer.WithResolverLogger(a.log))
	defer resolver.Close()

	resolver.Update(args[0])
	if err := resolver.Flush(ctx); err != nil {
		return err
	}
	matches := resolver.Results()
	if len(matches) == 0 {
		fmt.Fprintln(a.out, "No matching users")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tEMAIL\tACCOUNT")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.FullName, m.Email, m.AccountNumber)
	}
	return tw.Flush()
}

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List sent and received instant transfers",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			return runHistory(ctx, a, limit)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of transfers (0 for all)")
	return cmd
}

func runHistory(ctx context.Context, a *app, limit int) error {
	recs, err := a.session.InstantTransferHistory(ctx, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No instant transfers")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tREFERENCE\tDIRECTION\tCOUNTERPARTY\tAMOUNT\tDESCRIPTION")
	for _, r := range recs {
		sign := "-"
		if r.Direction == model.DirectionReceived {
			sign = "+"
		}
		who := r.CounterpartyName
		if who == "" {
			who = r.Counterparty
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Reference, r.Direction, who,
			sign, formatDZD(r.Amount), r.Description)
	}
	return tw.Flush()
}

func newLimitsCommand(opts *globalOptions) *cobra.Command {
	var amount string

	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show instant transfer usage and limits",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			return runLimits(ctx, a, amount)
		}),
	}
	cmd.Flags().StringVar(&amount, "amount", "", "check whether this amount can be sent now")
	return cmd
}

func runLimits(ctx context.Context, a *app, amount string) error {
	stats, err := a.session.InstantTransferStats(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tCOUNT\tSENT\tLIMIT\tREMAINING")
	fmt.Fprintf(tw, "today\t%d\t%s\t%s\t%s\n", stats.DailyCount,
		stats.DailyTotal.StringFixed(2), stats.DailyLimit.StringFixed(2), stats.DailyRemaining.StringFixed(2))
	fmt.Fprintf(tw, "month\t%d\t%s\t%s\t%s\n", stats.MonthlyCount,
		stats.MonthlyTotal.StringFixed(2), stats.MonthlyLimit.StringFixed(2), stats.MonthlyRemaining.StringFixed(2))
	if err := tw.Flush(); err != nil {
		return err
	}

	own, err := a.session.TransferLimits(ctx)
	if err != nil {
		a.warn("could not read personal limits: %v", err)
	} else if own != nil {
		fmt.Fprintf(a.out, "Personal limits: %s per transfer, %s daily, %s monthly\n",
			formatDZD(own.PerTransferLimit), formatDZD(own.DailyLimit), formatDZD(own.MonthlyLimit))
	}

	if amount == "" {
		return nil
	}
	d, err := parseAmount(amount)
	if err != nil {
		return err
	}
	check, err := a.session.CheckInstantTransferLimits(ctx, d)
	if err != nil {
		return err
	}
	if check.Allowed {
		fmt.Fprintf(a.out, "%s can be sent now\n", formatDZD(d))
		return nil
	}
	fmt.Fprintf(a.out, "%s cannot be sent: %s\n", formatDZD(d), check.Reason)
	return nil
}
