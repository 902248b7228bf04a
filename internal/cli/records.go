package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/persistence"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// recordSummary is the listing form of a record
type recordSummary struct {
	PolicyAppID    string         `json:"policy_app_id"`
	DeviceID       string         `json:"device_id"`
	HMIAppID       uint32         `json:"hmi_app_id"`
	HMILevel       types.HMILevel `json:"hmi_level"`
	IgnitionCycles int            `json:"ign_off_count"`
	SavedAt        time.Time      `json:"time_stamp"`
	Commands       int            `json:"commands"`
	SubMenus       int            `json:"sub_menus"`
	Files          int            `json:"files"`
}

func summarize(r *types.Record) recordSummary {
	return recordSummary{
		PolicyAppID:    r.PolicyAppID,
		DeviceID:       r.DeviceID,
		HMIAppID:       r.HMIAppID,
		HMILevel:       r.HMILevel,
		IgnitionCycles: r.IgnitionCycles,
		SavedAt:        r.TimeStamp,
		Commands:       len(r.Content.Commands),
		SubMenus:       len(r.Content.SubMenus),
		Files:          len(r.Content.Files),
	}
}

func newRecordsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Manage saved resumption records",
		Long: `Manage the resumption records kept for disconnected applications.

Examples:
  # List all records
  resumectl records list

  # Show the full record of one application
  resumectl records show com.example.nav DEVICE-1

  # Drop a record so the application starts fresh
  resumectl records remove com.example.nav DEVICE-1`,
	}

	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newShowCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newListCmd(opts).RunE(cmd, args)
	}

	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load records: %w", err)
			}

			summaries := make([]recordSummary, 0, len(records))
			for _, r := range records {
				if device != "" && r.DeviceID != device {
					continue
				}
				summaries = append(summaries, summarize(r))
			}
			sort.Slice(summaries, func(i, j int) bool {
				if summaries[i].PolicyAppID != summaries[j].PolicyAppID {
					return summaries[i].PolicyAppID < summaries[j].PolicyAppID
				}
				return summaries[i].DeviceID < summaries[j].DeviceID
			})

			if opts.json {
				data, err := sonic.MarshalIndent(map[string]any{"records": summaries}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(summaries) == 0 {
				fmt.Fprintln(out, "No records saved.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "APP\tDEVICE\tHMI ID\tLEVEL\tIGN CYCLES\tSAVED\tCOMMANDS\tSUBMENUS\tFILES")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\t%d\t%d\t%d\n",
					s.PolicyAppID, s.DeviceID, s.HMIAppID, s.HMILevel, s.IgnitionCycles,
					s.SavedAt.Format(time.RFC3339), s.Commands, s.SubMenus, s.Files)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "Only list records of this device")

	return cmd
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <policyAppId> <deviceId>",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := types.RecordKey{PolicyAppID: args[0], DeviceID: args[1]}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load records: %w", err)
			}
			for _, r := range records {
				if r.Key() != key {
					continue
				}
				data, err := sonic.MarshalIndent(r, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			return fmt.Errorf("%s: %w", key, persistence.ErrNotFound)
		},
	}
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <policyAppId> <deviceId>",
		Short: "Remove a record from the store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := types.RecordKey{PolicyAppID: args[0], DeviceID: args[1]}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := persistence.RemoveRecord(cmd.Context(), store, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed record %s\n", key)
			return nil
		},
	}
}
