package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"badgehub/internal/models"
	"badgehub/internal/services"

	"github.com/spf13/cobra"
)

// NewBadgesCommand groups the badge catalog commands.
func NewBadgesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badges",
		Short: "Browse and issue badge definitions",
	}

	cmd.AddCommand(newBadgesListCommand(rootOpts))
	cmd.AddCommand(newBadgesShowCommand(rootOpts))
	cmd.AddCommand(newBadgesRecipientsCommand(rootOpts))
	cmd.AddCommand(newBadgesAwardCommand(rootOpts))
	return cmd
}

func newBadgesListCommand(rootOpts *RootOptions) *cobra.Command {
	var issuer string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List badge definitions",
		Long:  "List badge definitions, optionally restricted to one issuer.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withServices(cmd, func(ctx context.Context, sc *services.ServiceCollection) error {
				defs, err := sc.CatalogService.ListDefinitions(ctx, issuer)
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(defs, func(w io.Writer) {
					printDefinitions(w, defs)
				})
			})
		},
	}

	cmd.Flags().StringVar(&issuer, "issuer", "", "only list badges from this issuer (hex or npub)")
	return cmd
}

func newBadgesShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <badge-id>",
		Short: "Show one badge definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withServices(cmd, func(ctx context.Context, sc *services.ServiceCollection) error {
				def, err := sc.CatalogService.GetDefinition(ctx, args[0])
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(def, func(w io.Writer) {
					fmt.Fprintf(w, "ID:          %s\n", def.ID)
					fmt.Fprintf(w, "Name:        %s\n", def.Name)
					fmt.Fprintf(w, "Issuer:      %s\n", def.Issuer)
					if def.Description != "" {
						fmt.Fprintf(w, "Description: %s\n", def.Description)
					}
					if def.Image != "" {
						fmt.Fprintf(w, "Image:       %s\n", def.Image)
					}
				})
			})
		},
	}
}

func newBadgesRecipientsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recipients <badge-id>",
		Short: "List who holds a badge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withServices(cmd, func(ctx context.Context, sc *services.ServiceCollection) error {
				recipients, err := sc.CatalogService.ListRecipients(ctx, args[0])
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(recipients, func(w io.Writer) {
					if len(recipients) == 0 {
						fmt.Fprintln(w, "No recipients")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "RECIPIENT\tAWARD\tAWARDED")
					for _, r := range recipients {
						fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Recipient, r.AwardID, r.AwardedAt)
					}
					tw.Flush()
				})
			})
		},
	}
}

func newBadgesAwardCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "award <badge-id> <recipient>...",
		Short: "Award a badge to one or more recipients",
		Long: `Sign and publish an award for a badge. The issuer named in the badge
identifier must have a key in SIGNING_KEYS or CREATOR_NSEC.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withServices(cmd, func(ctx context.Context, sc *services.ServiceCollection) error {
				def, err := sc.CatalogService.GetDefinition(ctx, args[0])
				if err != nil {
					return err
				}
				award, err := sc.IssuanceService.AwardBadge(ctx, def.Issuer, def.ID, args[1:])
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(award, func(w io.Writer) {
					fmt.Fprintf(w, "Published award %s to %d recipients\n", award.ID, len(award.Recipients))
				})
			})
		},
	}
}

func printDefinitions(w io.Writer, defs []*models.BadgeDefinition) {
	if len(defs) == 0 {
		fmt.Fprintln(w, "No badge definitions found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BADGE\tNAME\tCREATED")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", d.ID, d.Name, d.CreatedAt)
	}
	tw.Flush()
}
