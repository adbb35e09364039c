package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"badgehub/internal/config"

	"github.com/spf13/cobra"
)

// DefaultRelayFile is used by the relays commands when neither --file nor
// RELAY_FILE names one.
const DefaultRelayFile = "relays.yaml"

// RelaysResult is the JSON payload of the relays commands.
type RelaysResult struct {
	File   string   `json:"file,omitempty"`
	Relays []string `json:"relays"`
}

// NewRelaysCommand groups the relay list commands.
func NewRelaysCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "relays",
		Short: "Show and edit the relay list",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "relay file (defaults to RELAY_FILE or "+DefaultRelayFile+")")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the relays badgectl and the server connect to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			result := &RelaysResult{File: cfg.Relays.File, Relays: cfg.Relays.URLs}
			return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
				printRelays(w, result)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <url>...",
		Short: "Add relays to the relay file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := relayFilePath(file)
			for _, u := range args {
				if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid relay url %q: must start with ws:// or wss://", u))
				}
			}
			urls, err := readRelayFile(path)
			if err != nil {
				return err
			}
			return saveRelays(cmd, rootOpts, path, append(urls, args...))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <url>...",
		Short: "Remove relays from the relay file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := relayFilePath(file)
			urls, err := readRelayFile(path)
			if err != nil {
				return err
			}

			drop := make(map[string]struct{}, len(args))
			for _, u := range args {
				drop[normalizeRelay(u)] = struct{}{}
			}
			kept := urls[:0]
			for _, u := range urls {
				if _, ok := drop[normalizeRelay(u)]; !ok {
					kept = append(kept, u)
				}
			}
			return saveRelays(cmd, rootOpts, path, kept)
		},
	})

	return cmd
}

func relayFilePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("RELAY_FILE"); env != "" {
		return env
	}
	return DefaultRelayFile
}

func readRelayFile(path string) ([]string, error) {
	urls, err := config.LoadRelayFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read relay file", err)
	}
	return urls, nil
}

func saveRelays(cmd *cobra.Command, rootOpts *RootOptions, path string, urls []string) error {
	if err := config.SaveRelayFile(path, urls); err != nil {
		return WrapExitError(ExitFailure, "failed to write relay file", err)
	}
	saved, err := config.LoadRelayFile(path)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read back relay file", err)
	}
	result := &RelaysResult{File: path, Relays: saved}
	return rootOpts.formatter(cmd).Success(result, func(w io.Writer) {
		printRelays(w, result)
	})
}

func normalizeRelay(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

func printRelays(w io.Writer, result *RelaysResult) {
	if result.File != "" {
		fmt.Fprintf(w, "# %s\n", result.File)
	}
	if len(result.Relays) == 0 {
		fmt.Fprintln(w, "No relays configured")
		return
	}
	for _, u := range result.Relays {
		fmt.Fprintln(w, u)
	}
}
