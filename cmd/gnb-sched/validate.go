package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/gnb-scheduler/internal/config"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a scenario without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scn, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			slices := 0
			for _, c := range scn.Cells {
				slices += len(c.Slices)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scenario %q ok: %d cells, %d slices, %d ues, numerology %d\n",
				scn.Name, len(scn.Cells), slices, len(scn.UEs), scn.Numerology())
			return nil
		},
	}
}
