package main

import (
	"fmt"
	"net"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/persistence/boltdb"
	"github.com/bakerykit/bakery/persistence/remote"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newJournalCommand() *cobra.Command {
	var (
		path   string
		listen string
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Host a journal shared by the members of a cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			logger, flush, err := newLogger()
			if err != nil {
				return err
			}
			defer flush()

			server := &remote.Server{
				Provider: &boltdb.FileProvider{Path: path},
				Logger:   logger,
			}
			defer func() {
				err = multierr.Append(err, server.Close())
			}()

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("unable to listen on %s: %w", listen, err)
			}

			gs := grpcx.NewServer()
			server.Register(gs)

			logging.Log(logger, "serving journals from %s on %s", path, lis.Addr())

			return grpcx.Serve(cmd.Context(), lis, gs)
		},
	}

	cmd.Flags().StringVar(&path, "path", "bakery.boltdb", "path to the BoltDB database file")
	cmd.Flags().StringVar(&listen, "listen", ":7000", "address on which to accept connections")

	return cmd
}
