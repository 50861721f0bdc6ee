package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewinther/portalsync/internal/domain/model"
)

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "Discover and print the gateway's API versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			client, err := a.newPortalClient()
			if err != nil {
				return err
			}
			if err := client.Initialize(cmd.Context()); err != nil {
				return describeAPIError(err)
			}

			versions := client.Versions()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: v%s\n%s: v%s\n",
				model.ProductPortal, versions.Portal,
				model.ProductWidgets, versions.Widgets)
			return nil
		},
	}
}
