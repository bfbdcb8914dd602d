package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleetcloud.sh/internal/ferrors"
	"fleetcloud.sh/internal/visuals"
	"fleetcloud.sh/sdk"
)

var releaseFields = []visuals.Field{
	visuals.F("commit"),
	visuals.F("created_at"),
	visuals.F("status"),
	visuals.F("semver"),
	visuals.F("is_final"),
	visuals.F("build_log"),
	visuals.F("start_timestamp"),
	visuals.F("end_timestamp"),
	visuals.F("release_tag"),
}

// newReleaseCmd creates the release command
func newReleaseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release <commit>",
		Short: "Get info for a release",
		Long: `Show the details of a release. The commit may be shortened as long as it
matches a single release.`,
		Example: `  fleetcloud release a777f7345fe3d655c1c981aa642e5555
  fleetcloud release a777f73`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: authenticated,
		RunE: func(cmd *cobra.Command, args []string) error {
			commit, err := commitArg(args)
			if err != nil {
				return err
			}

			release, err := getRelease(cmd, a, commit)
			if err != nil {
				return err
			}
			return visuals.Vertical(cmd.OutOrStdout(), releaseRecord(release), releaseFields)
		},
	}

	cmd.AddCommand(newReleaseFinalizeCmd(a))

	return cmd
}

// newReleaseFinalizeCmd creates the release finalize command
func newReleaseFinalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <commit>",
		Short: "Finalize a release",
		Long: `Finalize a draft release. Devices only track final releases, so a draft
release must be finalized before a fleet pinned to the latest release moves
to it. A final release cannot be turned back into a draft.`,
		Example:     `  fleetcloud release finalize a777f7345fe3d655c1c981aa642e5555`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: authenticated,
		RunE: func(cmd *cobra.Command, args []string) error {
			commit, err := commitArg(args)
			if err != nil {
				return err
			}

			release, err := getRelease(cmd, a, commit)
			if err != nil {
				return err
			}
			if release.IsFinal {
				return ferrors.Expected("Release %s is not draft!", commit)
			}

			if err := a.client.Releases.Finalize(cmd.Context(), release.ID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Release %s finalized\n", commit)
			return nil
		},
	}
}

func commitArg(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", ferrors.Expected("You must specify a release commit")
	}
	return args[0], nil
}

func getRelease(cmd *cobra.Command, a *app, commit string) (*sdk.Release, error) {
	release, err := a.client.Releases.Get(cmd.Context(), commit)
	if err != nil {
		return nil, sdk.LookupError(err, "Release %s not found!", commit)
	}
	return release, nil
}

func releaseRecord(r *sdk.Release) visuals.Record {
	return visuals.Record{
		"id":              r.ID,
		"commit":          r.Commit,
		"created_at":      r.CreatedAt,
		"status":          r.Status,
		"semver":          r.Semver,
		"is_final":        r.IsFinal,
		"build_log":       r.BuildLog,
		"start_timestamp": r.StartTimestamp,
		"end_timestamp":   r.EndTimestamp,
		"release_tag":     r.ReleaseTag,
	}
}
