package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newQueueCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or discard changes waiting to be synced",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending changes in replay order",
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
			entries := a.coordinator.Pending()
			if len(entries) == 0 {
				printf(w, "%s\n", dimStyle.Render("No pending changes."))
				return nil
			}

			printf(w, "%s\n", titleStyle.Render("Pending changes"))
			for i, e := range entries {
				printf(w, "%3d  %-6s %-16s %10s  %s\n",
					i+1,
					e.Kind,
					e.ResourceKey,
					humanize.Bytes(uint64(len(e.Payload))),
					dimStyle.Render(humanize.Time(e.EnqueuedAt)))
			}
			return nil
		},
	})

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every pending change without syncing it",
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
			n := a.coordinator.PendingCount()
			if n > 0 && !yes {
				printf(w, "%s %d pending change(s) would be lost; pass --yes to confirm\n", warnStyle.Render("!"), n)
				return nil
			}
			if err := a.coordinator.ClearQueue(); err != nil {
				return err
			}
			printf(w, "%s discarded %d change(s) at %s\n", okStyle.Render("✓"), n, time.Now().Format(time.Kitchen))
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "discard without confirmation")
	cmd.AddCommand(clearCmd)

	return cmd
}
