package cli

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

func newIgnOffCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ign-off",
		Short: "Inspect the last ignition-off time",
	}
	cmd.AddCommand(newIgnOffShowCmd(opts))
	return cmd
}

func newIgnOffShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the last recorded ignition-off time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			t, err := store.GetLastIgnOffTime(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read ignition-off time: %w", err)
			}

			if opts.json {
				payload := map[string]any{"last_ign_off": nil}
				if !t.IsZero() {
					payload["last_ign_off"] = t.UTC().Format(time.RFC3339)
				}
				data, err := sonic.Marshal(payload)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if t.IsZero() {
				fmt.Fprintln(out, "Ignition-off never recorded.")
				return nil
			}
			fmt.Fprintln(out, t.UTC().Format(time.RFC3339))
			return nil
		},
	}
}
