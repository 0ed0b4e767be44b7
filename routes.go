package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/freekieb7/flint/net/admin"
)

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the route table of the demo application",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a := newApp(cfg, slog.New(slog.DiscardHandler))
			if err := a.server.Err(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHODS\tPATTERN\tAUTH")
			for _, r := range admin.Routes(a.server) {
				fmt.Fprintf(w, "%s\t%s\t%t\n", r.Methods, r.Pattern, r.Protected)
			}
			return w.Flush()
		},
	}
}
