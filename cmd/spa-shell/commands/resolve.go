package commands

import (
	"fmt"
	"strings"

	"github.com/always-cache/spa-shell/pkg/headless"
	"github.com/always-cache/spa-shell/router"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
)

func (c *CLI) newResolveCmd() *cobra.Command {
	var loggedIn bool
	cmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Show which page unit the router mounts for a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := c.config()
			if err != nil {
				return err
			}
			table, err := config.Table()
			if err != nil {
				return err
			}

			pages := headless.NewPages()
			history := headless.NewHistory("/")
			controller, err := router.NewController(router.Config{
				Table:   table,
				Units:   pages.Units(table),
				Surface: headless.NewSurface(),
				History: history,
				Session: headless.NewSession(loggedIn),
			})
			if err != nil {
				return err
			}
			controller.Navigate(cmd.Context(), args[0], true)

			state := controller.State()
			if state.Mounted == nil {
				return zerr.With(zerr.New("nothing mounted"), "path", args[0])
			}
			var params []string
			if page, ok := state.Mounted.(*headless.Page); ok {
				params = page.Props().Params
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "unit:     %s\n", state.Mounted.Name())
			fmt.Fprintf(out, "params:   [%s]\n", strings.Join(params, ", "))
			fmt.Fprintf(out, "location: %s\n", history.Location())
			return nil
		},
	}
	cmd.Flags().BoolVar(&loggedIn, "logged-in", false, "Resolve with an authenticated session")
	return cmd
}
