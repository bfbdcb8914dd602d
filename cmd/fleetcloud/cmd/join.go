package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"fleetcloud.sh/internal/discovery"
	"fleetcloud.sh/internal/ferrors"
	"fleetcloud.sh/internal/promote"
	"fleetcloud.sh/internal/prompt"
)

var joinFlagRules = flagRules{
	exclusive: [][]string{
		{"application", "fleet"},
	},
}

// newJoinCmd creates the join command
func newJoinCmd(a *app) *cobra.Command {
	var (
		fleet        fleetFlags
		pollInterval int
	)

	cmd := &cobra.Command{
		Use:   "join [deviceIpOrHostname]",
		Short: "Move a local device to a fleet",
		Long: `Move a device on your local network to a fleet of your account.

The device must run a development image of fleetOS. When the address or the
fleet is left out, join scans the local network and asks which device and
which fleet to use.`,
		Example: `  fleetcloud join
  fleetcloud join a1b2c3d.local
  fleetcloud join 192.168.1.25 --fleet myorg/myfleet --pollInterval 10`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: authenticated,
		RunE: func(cmd *cobra.Command, args []string) error {
			var input string
			if len(args) > 0 {
				input = args[0]
			}
			address, err := promote.ParseLocalHostnameOrIP(input)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("pollInterval") && pollInterval <= 0 {
				return ferrors.Expected("--pollInterval must be a positive number of minutes")
			}

			return runJoin(cmd, a, promote.Options{
				DeviceAddress: address,
				Fleet:         fleet.key(),
				PollInterval:  time.Duration(pollInterval) * time.Minute,
				ScanTimeout:   a.v.GetDuration("join.scan_timeout"),
				WaitTimeout:   a.v.GetDuration("join.wait_timeout"),
			})
		},
	}

	fleet.register(cmd, false)
	cmd.Flags().IntVarP(&pollInterval, "pollInterval", "i", 0, "device update poll interval in minutes")
	joinFlagRules.apply(cmd)

	return cmd
}

func runJoin(cmd *cobra.Command, a *app, opts promote.Options) error {
	stderr := cmd.ErrOrStderr()

	joiner := &promote.Joiner{
		Client:  a.client,
		Scanner: discovery.NewScanner(""),
		Dial: promote.SSHDialer(promote.SSHConfig{
			Port: a.v.GetInt("join.ssh_port"),
		}),
		Log: a.log,
		Out: stderr,
	}
	if a.isTerminal(cmd.InOrStdin()) {
		joiner.Prompter = prompt.New(cmd.InOrStdin(), stderr)
	}

	result, err := joiner.Join(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if result.Online {
		printSuccess(cmd.OutOrStdout(), "Device %s joined fleet %s", shortUUID(result.UUID), result.Fleet.Slug)
	} else {
		printWarning(stderr, "Device %s was configured for fleet %s but is not online yet", shortUUID(result.UUID), result.Fleet.Slug)
	}
	printInfo(cmd.OutOrStdout(), "Dashboard: %s", result.DashboardURL)

	return nil
}
