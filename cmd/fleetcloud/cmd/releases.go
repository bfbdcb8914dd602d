package cmd

import (
	"github.com/spf13/cobra"

	"fleetcloud.sh/internal/ferrors"
	"fleetcloud.sh/internal/visuals"
	"fleetcloud.sh/sdk"
)

var releasesFields = []visuals.Field{
	visuals.F("commit"),
	visuals.F("created_at"),
	visuals.F("status"),
	visuals.F("semver"),
	visuals.F("is_final"),
}

// newReleasesCmd creates the releases command
func newReleasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "releases <fleet>",
		Short: "List all releases of a fleet",
		Long: `List the releases of a fleet, newest first. The fleet may be given by
name, by slug (org/name) or by id.`,
		Example: `  fleetcloud releases myorg/myfleet
  fleetcloud releases 1234567`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: authenticated,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || args[0] == "" {
				return ferrors.Expected("You must specify a fleet")
			}
			fleet := args[0]

			releases, err := a.client.Releases.GetAllByApplication(cmd.Context(), fleet)
			if err != nil {
				return sdk.LookupError(err, "Fleet %s not found", fleet)
			}

			records := make([]visuals.Record, len(releases))
			for i := range releases {
				records[i] = releaseRecord(&releases[i])
			}
			return visuals.Horizontal(cmd.OutOrStdout(), records, releasesFields)
		},
	}
}
