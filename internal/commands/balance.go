package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/model"
)

func newBalanceCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		Args:  cobra.NoArgs,
		RunE:  withApp(opts, runBalance),
	}
}

func runBalance(ctx context.Context, a *app, _ []string) error {
	a.load(ctx)
	b, ok := a.session.Balance()
	if !ok {
		return fmt.Errorf("balance is not available")
	}
	for _, c := range model.Currencies {
		fmt.Fprintf(a.out, "%-4s %15s\n", c.Code(), b.Amount(c).StringFixed(2))
	}
	fmt.Fprintf(a.out, "%-4s %15s\n", "INV", a.session.Snapshot().InvestmentBalance.StringFixed(2))
	return nil
}

func newRechargeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recharge <amount>",
		Short: "Add DZD to the wallet",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(opts, runRecharge),
	}
}

func runRecharge(ctx context.Context, a *app, args []string) error {
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	b, err := a.session.Recharge(ctx, amount)
	if err != nil {
		return err
	}
	a.record(activity.Entry{Action: "recharge", Amount: amount, Currency: model.CurrencyDZD.Code()})
	fmt.Fprintf(a.out, "Recharged %s, balance %s\n", formatDZD(amount), formatDZD(b.DZD))
	return nil
}
