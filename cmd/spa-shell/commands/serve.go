package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (c *CLI) newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Install the app shell and serve the offline-capable proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := c.newShell(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if listen == "" {
				listen = s.config.Listen
			}

			// the proxy also serves while the origin is unreachable:
			// a failed install is logged and requests pass through
			if err := s.registration.Register(ctx, s.worker); err != nil {
				log.Error().Err(err).Msg("Could not install app shell")
			}

			server := &http.Server{
				Addr:              listen,
				Handler:           adminRouter(s),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errs := make(chan error, 1)
			go func() {
				log.Info().Msgf("Proxying %s to %s (with hostname '%s')", listen, s.origin.String(), s.config.Host)
				errs <- server.ListenAndServe()
			}()

			select {
			case err := <-errs:
				return err
			case <-ctx.Done():
			}
			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			err = server.Shutdown(shutdownCtx)
			// let pending cache writes finish before the store is closed
			s.registration.Wait()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on (default from config, :8080)")
	return cmd
}
