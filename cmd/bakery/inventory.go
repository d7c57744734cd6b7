package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bakerykit/bakery"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/spf13/cobra"
)

func newInventoryCommand() *cobra.Command {
	var (
		configFile string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List the instances in a journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bakery.LoadConfigFile(configFile)
			if err != nil {
				return err
			}

			instances, err := bakery.Inventory(
				cmd.Context(),
				cfg,
				timeout,
				bakery.WithLogger(logging.DiscardLogger{}),
			)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTANCE\tBLUEPRINT\tCREATED")

			for _, md := range instances {
				fmt.Fprintf(
					w,
					"%s\t%s\t%s\n",
					md.InstanceID,
					md.BlueprintID,
					md.CreatedAt.Format(time.RFC3339),
				)
			}

			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "bakery.yaml", "path to the configuration file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "maximum time to wait for the journal")

	return cmd
}
