package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/inventra/internal/errors"
)

func newSyncCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay pending changes to the remote endpoint now",
		Long: `Run one sync pass with the configured transport. The queue is left
untouched when the pass fails, so the command can simply be run again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			result, err := a.coordinator.TriggerSync(cmd.Context())
			if err != nil {
				printf(w, "%s %s\n", errStyle.Render("✗ sync failed"), dimStyle.Render(string(errors.CodeOf(err))))
				printf(w, "  %d change(s) still pending\n", a.coordinator.PendingCount())
				return err
			}

			printf(w, "%s replayed %s change(s) in %s\n",
				okStyle.Render("✓"),
				humanize.Comma(int64(result.Replayed)),
				result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
