package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gmfloripa/patrol-relay/internal/config"
)

func recipientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipients",
		Short: "List the configured patrol units",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			roster, err := cfg.Roster()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NUMBER\tNAME\tID")
			for _, rc := range roster.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", rc.Code, rc.Name, rc.ID)
			}
			return tw.Flush()
		},
	}
}
