package main

import (
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	syncpkg "github.com/kimhsiao/inventra/internal/sync"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending changes and the last successful sync",
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

			renderStatus(cmd.OutOrStdout(), a.coordinator.Status(), a.coordinator.QueueStats(), a.session.DeviceID())
			return nil
		},
	}
}

func renderStatus(w io.Writer, status syncpkg.Status, stats map[string]int, deviceID string) {
	var state string
	switch {
	case status.State == syncpkg.SyncStateFailed:
		state = badge("FAILED", lipgloss.Color("196"))
	case status.PendingCount > 0:
		state = badge("PENDING", lipgloss.Color("214"))
	default:
		state = badge("IN SYNC", lipgloss.Color("42"))
	}

	printf(w, "%s %s\n", titleStyle.Render("Inventra"), state)
	printf(w, "  device     %s\n", dimStyle.Render(deviceID))

	pending := okStyle.Render("0")
	if status.PendingCount > 0 {
		pending = warnStyle.Render(humanize.Comma(int64(status.PendingCount)))
	}
	printf(w, "  pending    %s", pending)
	if status.PendingCount > 0 {
		printf(w, " %s", dimStyle.Render(queueBreakdown(stats)))
	}
	printf(w, "\n")
	printf(w, "  last sync  %s\n", since(status.LastSyncAt))
	if status.LastError != "" {
		printf(w, "  error      %s\n", errStyle.Render(status.LastError))
	}
}

// queueBreakdown renders stats as "(2 save, 1 delete, 3 resources)".
func queueBreakdown(stats map[string]int) string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		if k != "total" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := "("
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += humanize.Comma(int64(stats[k])) + " " + k
	}
	return out + ")"
}
