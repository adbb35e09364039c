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

// AwardsResult is the JSON payload of the awards command.
type AwardsResult struct {
	Recipient string                  `json:"recipient"`
	Awards    []*models.ResolvedAward `json:"awards"`
	Pending   int                     `json:"pending"`
}

// NewAwardsCommand lists the badges awarded to a recipient.
func NewAwardsCommand(rootOpts *RootOptions) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "awards <recipient>",
		Short: "List badges awarded to a recipient",
		Long: `Resolve every badge awarded to a recipient, newest first.

The recipient may be a hex key, an npub or a name@domain identifier.
With --preview, definitions that were not found in the first pass are
listed as pending instead of being retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withServices(cmd, func(ctx context.Context, sc *services.ServiceCollection) error {
				recipient, err := sc.IssuanceService.ResolveRecipient(ctx, args[0])
				if err != nil {
					return err
				}

				var awards []*models.ResolvedAward
				if preview {
					awards, _ = sc.AwardService.PreviewAwardsFor(ctx, recipient)
				} else {
					awards = sc.AwardService.ResolveAwardsFor(ctx, recipient)
				}

				result := &AwardsResult{Recipient: recipient, Awards: awards, Pending: countPending(awards)}
				return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
					printAwards(w, result)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&preview, "preview", false, "skip the fallback pass for missing definitions")
	return cmd
}

func countPending(awards []*models.ResolvedAward) int {
	n := 0
	for _, a := range awards {
		if a.Pending {
			n++
		}
	}
	return n
}

func printAwards(w io.Writer, result *AwardsResult) {
	if len(result.Awards) == 0 {
		fmt.Fprintf(w, "No badges awarded to %s\n", result.Recipient)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BADGE\tNAME\tAWARDED\tSTATUS")
	for _, a := range result.Awards {
		status := "resolved"
		name := a.Name
		if a.Pending {
			status = "pending"
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", a.ID, name, a.AwardedAt, status)
	}
	tw.Flush()

	if result.Pending > 0 {
		fmt.Fprintf(w, "%d of %d badges still pending\n", result.Pending, len(result.Awards))
	}
}
