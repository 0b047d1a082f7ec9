package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/folio/pkg/remote"
	"github.com/odvcencio/folio/pkg/source"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		addr       string
		token      string
		sqlitePath string
		poll       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve content to folio clients over HTTP",
		Long: `Serve content to folio clients over HTTP. By default the project's content
directory is served and polled for edits made behind the server's back;
--sqlite serves a database file instead and needs no config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("FOLIO_SERVER_TOKEN")
			}
			logger := newLogger(cmd, g.verbose)

			var src source.Source
			if sqlitePath != "" {
				db, err := source.OpenSQLite(sqlitePath)
				if err != nil {
					return err
				}
				defer db.Close()
				src = db
			} else {
				p, err := openProject(cmd, g)
				if err != nil {
					return err
				}
				src = p.fs
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := remote.NewServer(src, remote.ServerOptions{Logger: logger, Token: token})
			defer srv.Close()
			if poll > 0 {
				go srv.Poll(ctx, poll)
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			errc := make(chan error, 1)
			go func() { errc <- httpSrv.Serve(ln) }()
			fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", ln.Addr())

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			// Event streams are hijacked connections Shutdown does not wait for.
			srv.Close()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":7373", "listen address")
	f.StringVar(&token, "token", "", "bearer token clients must send (default: $FOLIO_SERVER_TOKEN)")
	f.StringVar(&sqlitePath, "sqlite", "", "serve a SQLite database instead of the content directory")
	f.DurationVar(&poll, "poll", 2*time.Second, "how often to check the source for outside edits (0 disables)")
	return cmd
}
