package cmd

import (
	"fmt"

	"github.com/Corn-mrb/project/bot"
	"github.com/Corn-mrb/project/joke"
	"github.com/spf13/cobra"
)

var jokeCmd = &cobra.Command{
	Use:   "joke",
	Short: "Runs the owl joke bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := bot.New("joke", cfg.Bot)
		if err != nil {
			return fmt.Errorf("error creating bot: %w", err)
		}
		app, err := joke.NewApp(ctx, b, cfg.Joke)
		if err != nil {
			return err
		}
		return app.Run(ctx)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(jokeCmd)
}
