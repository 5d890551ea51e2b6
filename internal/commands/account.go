package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dinarwallet/wallet/internal/activity"
	"github.com/dinarwallet/wallet/internal/model"
)

func newNotificationsCommand(opts *globalOptions) *cobra.Command {
	var read string

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			if read != "" {
				n, err := a.session.MarkNotificationRead(ctx, read)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Marked %q as read\n", n.Title)
				return nil
			}
			return runNotifications(ctx, a)
		}),
	}
	cmd.Flags().StringVar(&read, "read", "", "mark the notification with this id as read")
	return cmd
}

func runNotifications(ctx context.Context, a *app) error {
	a.load(ctx)
	list := a.session.Snapshot().Notifications
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No notifications")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\t\tTITLE\tMESSAGE")
	for _, n := range list {
		mark := "*"
		if n.IsRead {
			mark = ""
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), mark, n.Title, n.Message)
	}
	return tw.Flush()
}

func newReferralsCommand(opts *globalOptions) *cobra.Command {
	var (
		stats bool
		check string
	)

	cmd := &cobra.Command{
		Use:   "referrals",
		Short: "List referrals and referral earnings",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			switch {
			case check != "":
				r, err := a.session.ValidateReferralCode(ctx, check)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Code belongs to %s\n", r.FullName)
				return nil
			case stats:
				return runReferralStats(ctx, a)
			default:
				return runReferrals(ctx, a)
			}
		}),
	}
	cmd.Flags().BoolVar(&stats, "stats", false, "show referral statistics")
	cmd.Flags().StringVar(&check, "check", "", "validate a referral code")
	return cmd
}

func runReferrals(ctx context.Context, a *app) error {
	a.load(ctx)
	snap := a.session.Snapshot()
	if snap.Profile != nil {
		fmt.Fprintf(a.out, "Your referral code: %s\n", snap.Profile.ReferralCode)
	}
	if len(snap.Referrals) == 0 {
		fmt.Fprintln(a.out, "No referrals yet")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tUSER\tREWARD\tSTATUS")
	for _, r := range snap.Referrals {
		who := r.ReferredID
		if r.ReferredUser != nil {
			who = r.ReferredUser.FullName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.CreatedAt.Local().Format("2006-01-02"), who, formatDZD(r.RewardAmount), r.Status)
	}
	return tw.Flush()
}

func runReferralStats(ctx context.Context, a *app) error {
	st, err := a.session.ReferralStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Total referrals:     %d\n", st.TotalReferrals)
	fmt.Fprintf(a.out, "Completed:           %d\n", st.CompletedReferrals)
	fmt.Fprintf(a.out, "This month:          %d\n", st.ThisMonthReferrals)
	fmt.Fprintf(a.out, "Pending rewards:     %d\n", st.PendingRewards)
	fmt.Fprintf(a.out, "Total earnings:      %s\n", formatDZD(st.TotalEarnings))
	return nil
}

func newProfileCommand(opts *globalOptions) *cobra.Command {
	var name, phone, address string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var u model.ProfileUpdate
			if cmd.Flags().Changed("name") {
				u.FullName = &name
			}
			if cmd.Flags().Changed("phone") {
				u.Phone = &phone
			}
			if cmd.Flags().Changed("address") {
				u.Address = &address
			}
			return withApp(opts, func(ctx context.Context, a *app, _ []string) error {
				return runProfile(ctx, a, u)
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&address, "address", "", "postal address")
	return cmd
}

func runProfile(ctx context.Context, a *app, u model.ProfileUpdate) error {
	var (
		p   model.Profile
		err error
	)
	if u.IsEmpty() {
		p, err = a.api.Profile(ctx, a.session.UserID())
	} else {
		p, err = a.session.UpdateProfile(ctx, u)
		if err == nil {
			a.record(activity.Entry{Action: "profile_update"})
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Name:     %s\n", p.FullName)
	fmt.Fprintf(a.out, "Email:    %s\n", p.Email)
	fmt.Fprintf(a.out, "Phone:    %s\n", p.Phone)
	fmt.Fprintf(a.out, "Address:  %s\n", p.Address)
	fmt.Fprintf(a.out, "Account:  %s\n", p.AccountNumber)
	fmt.Fprintf(a.out, "Referral: %s\n", p.ReferralCode)
	return nil
}

func newLogCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the local activity log",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			if a.activity == nil {
				return fmt.Errorf("the activity log is disabled (activity.enabled: false)")
			}
			entries, err := activity.Read(a.activity.Dir())
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No activity recorded")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tAMOUNT\tREFERENCE\tDETAILS")
			for _, e := range entries {
				amount := ""
				if !e.Amount.IsZero() {
					amount = e.Amount.StringFixed(2) + " " + e.Currency
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Action, amount, e.Reference, e.Details)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "show only the most recent entries (0 for all)")
	return cmd
}
