package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/services"

	"github.com/spf13/cobra"
)

// NewProfileCommand shows a user's metadata.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <pubkey>",
		Short: "Show profile metadata for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := decodeUser(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withServices(cmd, func(ctx context.Context, sc *services.ServiceCollection) error {
				profile, err := sc.ProfileService.GetProfile(ctx, user)
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Success(profile, func(w io.Writer) {
					printProfile(w, profile)
				})
			})
		},
	}
}

// DisplayResult is the JSON payload of the display commands.
type DisplayResult struct {
	List      *models.ProfileDisplayList `json:"list"`
	State     string                     `json:"state,omitempty"`
	Changed   *bool                      `json:"changed,omitempty"`
	Confirmed *bool                      `json:"confirmed,omitempty"`
}

// NewDisplayCommand groups the profile display list commands.
func NewDisplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "display",
		Short: "Read and edit the badges a user shows on their profile",
	}

	cmd.AddCommand(newDisplayShowCommand(rootOpts))
	cmd.AddCommand(newDisplayToggleCommand(rootOpts, models.DisplayAdd))
	cmd.AddCommand(newDisplayToggleCommand(rootOpts, models.DisplayRemove))
	return cmd
}

func newDisplayShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <pubkey>",
		Short: "Show a user's display list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := decodeUser(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withServices(cmd, func(ctx context.Context, sc *services.ServiceCollection) error {
				list, err := sc.DisplayService.GetDisplayList(ctx, user)
				if err != nil {
					return err
				}
				result := &DisplayResult{List: list, State: sc.DisplayService.State(user).String()}
				return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
					printDisplayList(w, list)
				})
			})
		},
	}
}

func newDisplayToggleCommand(rootOpts *RootOptions, action models.DisplayAction) *cobra.Command {
	var wait time.Duration

	use := "add <pubkey> <badge-id> <award-id>"
	short := "Add a badge to a user's display list"
	args := cobra.ExactArgs(3)
	if action == models.DisplayRemove {
		use = "remove <pubkey> <badge-id>"
		short = "Remove a badge from a user's display list"
		args = cobra.ExactArgs(2)
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

The user's key must be in SIGNER_KEYS. The updated list is published
immediately; --wait blocks until relays confirm it or the wait elapses.`,
		Args: args,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := decodeUser(args[0])
			if err != nil {
				return err
			}
			var awardID string
			if len(args) > 2 {
				awardID = args[2]
			}

			return rootOpts.withServices(cmd, func(ctx context.Context, sc *services.ServiceCollection) error {
				out := rootOpts.formatter(cmd)
				res, err := sc.DisplayService.ToggleDisplay(ctx, user, args[1], awardID, action)
				if err != nil {
					return err
				}

				result := &DisplayResult{List: res.List, Changed: &res.Changed}
				if wait > 0 && res.Confirmed != nil {
					out.VerboseLog("Waiting up to %s for relay confirmation", wait)
					timer := time.NewTimer(wait)
					defer timer.Stop()
					select {
					case confirmed := <-res.Confirmed:
						result.Confirmed = &confirmed
					case <-timer.C:
					case <-ctx.Done():
					}
				}

				return out.Success(result, func(w io.Writer) {
					if !res.Changed {
						fmt.Fprintln(w, "Display list unchanged")
					} else {
						fmt.Fprintf(w, "Display list updated (%s %s)\n", action, args[1])
					}
					if result.Confirmed != nil {
						fmt.Fprintf(w, "Confirmed by relays: %t\n", *result.Confirmed)
					}
					printDisplayList(w, res.List)
				})
			})
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "wait this long for relay confirmation")
	return cmd
}

func decodeUser(raw string) (string, error) {
	key, err := nostr.DecodePublicKey(raw)
	if err != nil {
		return "", services.InvalidKeyError("pubkey", raw, err)
	}
	return key, nil
}

func printProfile(w io.Writer, p *models.ProfileMetadata) {
	fields := []struct{ label, value string }{
		{"Pubkey", p.PubKey},
		{"Name", p.Name},
		{"Display name", p.DisplayName},
		{"About", p.About},
		{"NIP-05", p.Nip05},
		{"Website", p.Website},
		{"Picture", p.Picture},
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range fields {
		if f.value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", f.label, f.value)
		}
	}
	tw.Flush()
}

func printDisplayList(w io.Writer, list *models.ProfileDisplayList) {
	if list == nil || len(list.Entries) == 0 {
		fmt.Fprintln(w, "No badges displayed")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBADGE\tAWARD")
	for i, e := range list.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, e.BadgeID, e.AwardID)
	}
	tw.Flush()
}
