package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/happysentences/internal/entitlement"
)

func newEntitlementCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Inspect or adjust the stored premium entitlement",
		Long: `entitlement shows the stored premium state and lets operators grant credits,
an ad pass or a subscription by hand. Purchases and ads themselves are not
handled here.`,
	}

	withManager := func(fn func(ctx context.Context, m *entitlement.Manager) (entitlement.Entitlement, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			_, application, cleanup, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			m := application.Entitlements()
			e, err := fn(cmd.Context(), m)
			if err != nil {
				return err
			}
			perm, err := m.CheckPremium(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Entitlement entitlement.Entitlement `json:"entitlement"`
				Permission  entitlement.Permission  `json:"permission"`
			}{e, perm})
		}
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the entitlement and the premium permission",
		Args:  cobra.NoArgs,
		RunE: withManager(func(ctx context.Context, m *entitlement.Manager) (entitlement.Entitlement, error) {
			return m.Get(ctx)
		}),
	}

	var amount int
	credits := &cobra.Command{
		Use:   "credits",
		Short: "Add premium credits",
		Args:  cobra.NoArgs,
		RunE: withManager(func(ctx context.Context, m *entitlement.Manager) (entitlement.Entitlement, error) {
			return m.AddCredits(ctx, amount)
		}),
	}
	credits.Flags().IntVarP(&amount, "amount", "n", 1, "number of credits to add")

	var passFor time.Duration
	adpass := &cobra.Command{
		Use:   "adpass",
		Short: "Grant an ad pass",
		Args:  cobra.NoArgs,
		RunE: withManager(func(ctx context.Context, m *entitlement.Manager) (entitlement.Entitlement, error) {
			return m.GrantAdPass(ctx, passFor)
		}),
	}
	adpass.Flags().DurationVar(&passFor, "for", entitlement.DefaultAdPass, "how long the pass lasts")

	var days int
	subscribe := &cobra.Command{
		Use:   "subscribe",
		Short: "Mark the user as subscribed",
		Args:  cobra.NoArgs,
		RunE: withManager(func(ctx context.Context, m *entitlement.Manager) (entitlement.Entitlement, error) {
			if days < 0 {
				return entitlement.Entitlement{}, fmt.Errorf("invalid --days %d", days)
			}
			var until time.Time
			if days > 0 {
				until = time.Now().AddDate(0, 0, days)
			}
			return m.Subscribe(ctx, until)
		}),
	}
	subscribe.Flags().IntVar(&days, "days", 0, "subscription length in days (0 = no expiry)")

	cmd.AddCommand(show, credits, adpass, subscribe)
	return cmd
}
