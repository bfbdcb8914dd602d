package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"fleetcloud.sh/internal/version"
)

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	var (
		short  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version information for fleetcloud`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			info := version.Get()

			if short {
				fmt.Fprintln(out, info.Version)
				return nil
			}

			if asJSON {
				return json.NewEncoder(out).Encode(info)
			}

			fmt.Fprintf(out, "%s\n", bold("fleetcloud"))
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Built:      %s\n", info.Built)
			fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
			fmt.Fprintf(out, "OS/Arch:    %s/%s\n", info.OS, info.Arch)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output version in JSON format")

	return cmd
}
