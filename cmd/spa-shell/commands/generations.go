package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) newGenerationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generations",
		Short: "List the cache generations in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			config, err := c.config()
			if err != nil {
				return err
			}
			storage, err := config.Store.OpenStorage(ctx)
			if err != nil {
				return err
			}
			defer storage.Close()

			names, err := storage.Names(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GENERATION\tENTRIES\tCURRENT")
			for _, name := range names {
				generation, ok, err := storage.Lookup(ctx, name)
				if err != nil {
					return err
				} else if !ok {
					// deleted in the meantime
					continue
				}
				keys, err := generation.Keys(ctx)
				if err != nil {
					return err
				}
				current := ""
				if name == config.Version {
					current = "*"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", name, len(keys), current)
			}
			return tw.Flush()
		},
	}
}
