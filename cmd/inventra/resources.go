package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newResourcesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the keys held in the local store",
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

			keys, err := a.coordinator.ResourceKeys()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(keys) == 0 {
				printf(w, "%s\n", dimStyle.Render("Store is empty."))
				return nil
			}
			for _, k := range keys {
				raw := a.coordinator.ReadResource(k, nil)
				size := dimStyle.Render("unreadable")
				if raw != nil {
					size = humanize.Bytes(uint64(len(raw)))
				}
				printf(w, "%-16s %s\n", k, size)
			}
			return nil
		},
	}
}
