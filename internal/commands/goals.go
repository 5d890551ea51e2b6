package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/model"
	"github.com/dinarwallet/wallet/internal/wallet"
)

func newGoalsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "List and manage savings goals",
		Args:  cobra.NoArgs,
		RunE:  withApp(opts, runGoalsList),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List active savings goals",
			Args:  cobra.NoArgs,
			RunE:  withApp(opts, runGoalsList),
		},
		newGoalsAddCommand(opts),
		&cobra.Command{
			Use:   "deposit <goal-id> <amount>",
			Short: "Move DZD from the wallet into a goal",
			Args:  cobra.ExactArgs(2),
			RunE:  withApp(opts, runGoalsDeposit),
		},
	)
	return cmd
}

func runGoalsList(ctx context.Context, a *app, _ []string) error {
	a.load(ctx)
	goals := a.session.Snapshot().SavingsGoals
	if len(goals) == 0 {
		fmt.Fprintln(a.out, "No savings goals")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSAVED\tTARGET\tPROGRESS\tDEADLINE")
	for _, g := range goals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s%%\t%s\n", g.ID, g.Name, g.CurrentAmount.StringFixed(2),
			g.TargetAmount.StringFixed(2), g.Progress().Shift(2).StringFixed(0), g.Deadline.Format("2006-01-02"))
	}
	return tw.Flush()
}

func newGoalsAddCommand(opts *globalOptions) *cobra.Command {
	var (
		target   string
		deadline string
		category string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a savings goal",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			amount, err := parseAmount(target)
			if err != nil {
				return err
			}
			due, err := time.ParseInLocation("2006-01-02", deadline, time.Local)
			if err != nil {
				return fmt.Errorf("invalid deadline %q (want YYYY-MM-DD)", deadline)
			}
			g, err := a.session.AddSavingsGoal(ctx, wallet.NewSavingsGoal{
				Name:         args[0],
				TargetAmount: amount,
				Deadline:     due,
				Category:     category,
			})
			if err != nil {
				return err
			}
			a.record(activity.Entry{Action: "goal_add", Amount: amount, Currency: model.CurrencyDZD.Code(), Reference: g.ID, Details: g.Name})
			fmt.Fprintf(a.out, "Created goal %s (%s) targeting %s by %s\n", g.Name, g.ID, formatDZD(g.TargetAmount), g.Deadline.Format("2006-01-02"))
			return nil
		}),
	}
	cmd.Flags().StringVar(&target, "target", "", "target amount in DZD (required)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline as YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&category, "category", "", "category label")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func runGoalsDeposit(ctx context.Context, a *app, args []string) error {
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}
	a.load(ctx)
	g, err := a.session.DepositToGoal(ctx, args[0], amount)
	if err != nil {
		return err
	}
	a.record(activity.Entry{Action: "goal_deposit", Amount: amount, Currency: model.CurrencyDZD.Code(), Reference: g.ID, Details: g.Name})
	fmt.Fprintf(a.out, "Deposited %s into %s (%s of %s)\n", formatDZD(amount), g.Name,
		g.CurrentAmount.StringFixed(2), g.TargetAmount.StringFixed(2))
	return nil
}
