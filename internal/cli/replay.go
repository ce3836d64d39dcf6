package cli

import (
	"fmt"

	"github.com/smallbiznis/waiter/internal/app"
	"github.com/spf13/cobra"
)

func newReplayCmd() *cobra.Command {
	var eventType string

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Apply one stored notification envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Replay(args[0], eventType)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&eventType, "event-type", "", "Override the envelope event type")

	return cmd
}
