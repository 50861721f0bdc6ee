package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ewinther/portalsync/internal/domain/model"
)

func newFetchCmd() *cobra.Command {
	var (
		ttl time.Duration
		raw bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <resource>",
		Short: "Fetch a portal API resource and print the response body",
		Long: `Fetches a resource under the discovered portal API version prefix,
for example "grades" or "schedule/today". With --raw the path is used
verbatim with no version prefix and no caching.

Cache lifetime resolution: --ttl when set, otherwise the resource's
entry in cache_ttls from config.toml, otherwise uncached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			client, err := a.newPortalClient()
			if err != nil {
				return err
			}

			// Discovery is mandatory before any request, raw included.
			if err := client.Initialize(cmd.Context()); err != nil {
				return describeAPIError(err)
			}

			resource := args[0]
			var body []byte
			if raw {
				body, err = client.GetRaw(cmd.Context(), resource)
			} else {
				effective := ttl
				if !cmd.Flags().Changed("ttl") {
					effective = a.cfg.CacheTTLs[resource]
				}
				body, err = client.Get(cmd.Context(), resource, effective)
			}
			if err != nil {
				return describeAPIError(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "cache the response for this long (overrides cache_ttls)")
	cmd.Flags().BoolVar(&raw, "raw", false, "fetch the path verbatim, bypassing version prefix and cache")
	return cmd
}

// describeAPIError rewrites client errors into actionable CLI messages.
func describeAPIError(err error) error {
	switch {
	case errors.Is(err, model.ErrUnauthenticated), errors.Is(err, model.ErrAuthExpired):
		return fmt.Errorf("not authenticated: run `portalsync login` and retry")
	}

	var rateErr *model.RateLimitError
	if errors.As(err, &rateErr) {
		if rateErr.RetryAfter > 0 {
			return fmt.Errorf("the gateway is rate limiting requests, retry in %s", rateErr.RetryAfter)
		}
		return fmt.Errorf("the gateway is rate limiting requests, retry later")
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 403 {
		return fmt.Errorf("access denied (status 403): your account may not have this module enabled")
	}
	return err
}
