package cmd

import (
	"fmt"

	"github.com/Corn-mrb/project/bot"
	"github.com/Corn-mrb/project/entry"
	"github.com/spf13/cobra"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Runs the store entry bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := bot.New("entry", cfg.Bot, bot.WithIntents(entry.GatewayIntents))
		if err != nil {
			return fmt.Errorf("error creating bot: %w", err)
		}
		app, err := entry.NewApp(ctx, b, cfg.Entry)
		if err != nil {
			return err
		}
		return app.Run(ctx)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(entryCmd)
}
