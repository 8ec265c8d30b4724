package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Corn-mrb/project/bot"
	"github.com/Corn-mrb/project/entry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	storesOwner  string
	storesFormat string
)

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "Inspects the entry bot's stores",
}

var storesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints stores from the configured storage, without passphrases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if storesFormat != formatJSON && storesFormat != formatYAML {
			return fmt.Errorf("unknown format %q, expected %s or %s", storesFormat, formatJSON, formatYAML)
		}
		ctx := cmd.Context()
		logger := bot.NewLogger("stores", cfg.Entry.Storage.LogLevel)

		backend, err := entry.OpenBackend(ctx, cfg.Entry, logger)
		if err != nil {
			return err
		}
		registry := entry.NewRegistry(backend, cfg.Entry, logger)
		defer func() {
			_ = registry.Close()
		}()
		if err = registry.Load(ctx); err != nil {
			return err
		}
		return writeListings(cmd.OutOrStdout(), registry.Owned(storesOwner), storesFormat)
	},
}

func writeListings(w io.Writer, listings []entry.Listing, format string) error {
	for i := range listings {
		listings[i].Store.Passphrase = ""
	}
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(listings); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(listings)
}

//nolint:gochecknoinits
func init() {
	storesListCmd.Flags().StringVar(&storesOwner, "owner", "", "only list stores owned by this user ID")
	storesListCmd.Flags().StringVar(&storesFormat, "format", formatJSON, "output format: json or yaml")
	storesCmd.AddCommand(storesListCmd)
	rootCmd.AddCommand(storesCmd)
}
