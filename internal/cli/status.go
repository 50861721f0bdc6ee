package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a usable credential is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			cred, err := a.manager.GetCredential(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cred == nil {
				fmt.Fprintln(out, "Not logged in. Run `portalsync login`.")
				return nil
			}

			remaining := time.Until(cred.ExpiresAt).Round(time.Second)
			fmt.Fprintf(out, "Logged in (%s credential, source %s).\n", cred.Kind, cred.Source)
			fmt.Fprintf(out, "Expires at %s (%s remaining).\n",
				cred.ExpiresAt.Local().Format(time.RFC1123), remaining)
			return nil
		},
	}
}
