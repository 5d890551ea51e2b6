package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/model"
	"github.com/dinarwallet/wallet/internal/wallet"
)

var investmentPeriods = map[model.InvestmentType]func(time.Time) time.Time{
	model.InvestWeekly:    func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
	model.InvestMonthly:   func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
	model.InvestQuarterly: func(t time.Time) time.Time { return t.AddDate(0, 3, 0) },
	model.InvestYearly:    func(t time.Time) time.Time { return t.AddDate(1, 0, 0) },
}

func newInvestCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invest",
		Short: "List and manage investments",
		Args:  cobra.NoArgs,
		RunE:  withApp(opts, runInvestList),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List investments",
			Args:  cobra.NoArgs,
			RunE:  withApp(opts, runInvestList),
		},
		newInvestAddCommand(opts),
		&cobra.Command{
			Use:   "return <amount>",
			Short: "Move DZD from the investment balance back to the wallet",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(opts, runInvestReturn),
		},
	)
	return cmd
}

func runInvestList(ctx context.Context, a *app, _ []string) error {
	a.load(ctx)
	snap := a.session.Snapshot()
	fmt.Fprintf(a.out, "Investment balance: %s\n", formatDZD(snap.InvestmentBalance))
	if len(snap.Investments) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tAMOUNT\tRATE\tPROFIT\tSTATUS\tENDS")
	for _, inv := range snap.Investments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%%\t%s\t%s\t%s\n", inv.ID, inv.Type, formatDZD(inv.Amount),
			inv.ProfitRate.String(), inv.Profit.StringFixed(2), inv.Status, inv.EndDate.Format("2006-01-02"))
	}
	return tw.Flush()
}

func newInvestAddCommand(opts *globalOptions) *cobra.Command {
	var (
		typ  string
		rate string
	)
	cmd := &cobra.Command{
		Use:   "add <amount>",
		Short: "Invest DZD from the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			return runInvestAdd(ctx, a, args[0], model.InvestmentType(typ), rate)
		}),
	}
	cmd.Flags().StringVar(&typ, "type", string(model.InvestMonthly), "weekly, monthly, quarterly or yearly")
	cmd.Flags().StringVar(&rate, "rate", "5", "profit rate in percent")
	return cmd
}

func runInvestAdd(ctx context.Context, a *app, amountArg string, typ model.InvestmentType, rateArg string) error {
	amount, err := parseAmount(amountArg)
	if err != nil {
		return err
	}
	period, ok := investmentPeriods[typ]
	if !ok {
		return fmt.Errorf("unknown investment type %q", typ)
	}
	rate, err := decimal.NewFromString(rateArg)
	if err != nil {
		return fmt.Errorf("invalid rate %q", rateArg)
	}

	res, err := a.session.UpdateInvestmentBalance(ctx, amount, wallet.InvestAdd)
	if err != nil {
		return err
	}
	start := time.Now()
	inv, err := a.session.AddInvestment(ctx, wallet.NewInvestment{
		Type:       typ,
		Amount:     amount,
		ProfitRate: rate,
		StartDate:  start,
		EndDate:    period(start),
	})
	if err != nil {
		return fmt.Errorf("recording investment: %w", err)
	}
	a.record(activity.Entry{Action: "invest", Amount: amount, Currency: model.CurrencyDZD.Code(), Reference: inv.ID})
	fmt.Fprintf(a.out, "Invested %s (%s at %s%%), wallet %s, invested %s\n",
		formatDZD(amount), typ, inv.ProfitRate, formatDZD(res.DZD), formatDZD(res.InvestmentBalance))
	return nil
}

func runInvestReturn(ctx context.Context, a *app, args []string) error {
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	res, err := a.session.UpdateInvestmentBalance(ctx, amount, wallet.InvestSubtract)
	if err != nil {
		return err
	}
	a.record(activity.Entry{Action: "invest_return", Amount: amount, Currency: model.CurrencyDZD.Code()})
	fmt.Fprintf(a.out, "Returned %s, wallet %s, invested %s\n",
		formatDZD(amount), formatDZD(res.DZD), formatDZD(res.InvestmentBalance))
	return nil
}
