package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/model"
)

func newCardsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "List and manage cards",
		Args:  cobra.NoArgs,
		RunE:  withApp(opts, runCards),
	}
	cmd.AddCommand(
		newCardFreezeCommand(opts, "freeze", true),
		newCardFreezeCommand(opts, "unfreeze", false),
		newCardLimitCommand(opts),
	)
	return cmd
}

func runCards(ctx context.Context, a *app, _ []string) error {
	a.load(ctx)
	cards := a.session.Snapshot().Cards
	if len(cards) == 0 {
		fmt.Fprintln(a.out, "No cards")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNUMBER\tLIMIT\tSTATE")
	for _, c := range cards {
		state := "active"
		if c.IsFrozen {
			state = "frozen"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.CardType, c.Masked(), formatDZD(c.SpendingLimit), state)
	}
	return tw.Flush()
}

// findCard matches a card by id, type or last four digits.
func findCard(cards []model.Card, ref string) (model.Card, error) {
	ref = strings.TrimSpace(ref)
	var found []model.Card
	for _, c := range cards {
		if c.ID == ref || string(c.CardType) == ref || (len(ref) == 4 && strings.HasSuffix(c.CardNumber, ref)) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return model.Card{}, fmt.Errorf("no card matches %q", ref)
	case 1:
		return found[0], nil
	default:
		return model.Card{}, fmt.Errorf("%q matches %d cards, use the card id", ref, len(found))
	}
}

func newCardFreezeCommand(opts *globalOptions, verb string, freeze bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <card>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a card (id, type or last four digits)",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			a.load(ctx)
			card, err := findCard(a.session.Snapshot().Cards, args[0])
			if err != nil {
				return err
			}
			updated, err := a.session.UpdateCard(ctx, card.ID, model.CardUpdate{IsFrozen: &freeze})
			if err != nil {
				return err
			}
			a.record(activity.Entry{Action: "card_" + verb, Details: updated.Masked()})
			state := "unfrozen"
			if updated.IsFrozen {
				state = "frozen"
			}
			fmt.Fprintf(a.out, "Card %s %s\n", updated.Masked(), state)
			return nil
		}),
	}
}

func newCardLimitCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "limit <card> <amount>",
		Short: "Set a card's spending limit",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			a.load(ctx)
			card, err := findCard(a.session.Snapshot().Cards, args[0])
			if err != nil {
				return err
			}
			limit, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			updated, err := a.session.UpdateCard(ctx, card.ID, model.CardUpdate{SpendingLimit: model.Dec(limit)})
			if err != nil {
				return err
			}
			a.record(activity.Entry{Action: "card_limit", Amount: limit, Currency: model.CurrencyDZD.Code(), Details: updated.Masked()})
			fmt.Fprintf(a.out, "Card %s limit set to %s\n", updated.Masked(), formatDZD(updated.SpendingLimit))
			return nil
		}),
	}
}
