package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Precache the app shell and activate the cache generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := c.newShell(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.registration.Register(ctx, s.worker); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%d precached)\n", s.worker.Version(), len(s.config.Precache))
			return err
		},
	}
}

func (c *CLI) newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Install the app shell and refetch every stored response from the origin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := c.newShell(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.registration.Register(ctx, s.worker); err != nil {
				return err
			}
			updated, err := s.worker.RefreshAll(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d entries in %s\n", updated, s.worker.Version())
			return err
		},
	}
}
