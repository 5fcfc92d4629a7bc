package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "quote",
		Short:         "Offline storefront pricing",
		Long:          "quote prices carts from embedded tier tables without calling the catalog or cart services.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newPriceCmd())
	return cmd
}
