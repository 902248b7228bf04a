// Package cli implements resumectl, the offline inspection tool for the
// resumption record store.
package cli

import (
	"fmt"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/persistence"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every subcommand
type options struct {
	storage config.StorageConfig
	json    bool
}

// openStore opens the store selected by the persistent flags
func (o *options) openStore() (persistence.Store, error) {
	store, err := persistence.Open(o.storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

// NewRootCommand creates the root command for resumectl
func NewRootCommand() *cobra.Command {
	opts := &options{storage: config.LoadOrDefault().Storage}

	cmd := &cobra.Command{
		Use:   "resumectl",
		Short: "Inspect and edit resumption records",
		Long: `resumectl reads the resumption store used by the head-unit service.

The store location defaults to the service configuration (STORAGE_BACKEND,
STORAGE_PATH, STORAGE_COMPRESS). Stop the service before removing records,
otherwise its next flush overwrites the change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.storage.Backend, "backend", opts.storage.Backend, "Store backend (file, sqlite)")
	cmd.PersistentFlags().StringVar(&opts.storage.Path, "path", opts.storage.Path, "Store path")
	cmd.PersistentFlags().BoolVar(&opts.storage.Compress, "compress", opts.storage.Compress, "Write the file store gzip compressed")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Output in JSON format")

	cmd.AddCommand(newRecordsCmd(opts))
	cmd.AddCommand(newIgnOffCmd(opts))

	return cmd
}
