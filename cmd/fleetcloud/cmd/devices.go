package cmd

import (
	"github.com/spf13/cobra"

	"fleetcloud.sh/internal/visuals"
	"fleetcloud.sh/sdk"
)

const (
	// uuidDisplayLength is the UUID prefix shown in tables
	uuidDisplayLength = 7

	outputWordingDeprecation = `Column headers and JSON keys mentioning "application" are deprecated. Use --v13 to switch to "fleet" wording`
)

var devicesFlagRules = flagRules{
	exclusive: [][]string{
		{"application", "app", "fleet"},
		{"application", "v13"},
		{"app", "v13"},
	},
}

type devicesOptions struct {
	fleetFlags
	json bool
	v13  bool
}

// legacyWording reports whether output keeps the "application" terms
func (o devicesOptions) legacyWording() bool {
	return o.fleet == "" && !o.v13
}

// newDevicesCmd creates the devices command
func newDevicesCmd(a *app) *cobra.Command {
	var opts devicesOptions

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List all devices",
		Long: `List all the devices you can access, optionally only those of one fleet.
Table output shortens the device UUID; JSON output keeps every field in full.`,
		Example: `  fleetcloud devices
  fleetcloud devices --fleet myorg/myfleet
  fleetcloud devices --fleet myorg/myfleet --json`,
		Args:        cobra.NoArgs,
		Annotations: authenticated,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd, a, opts)
		},
	}

	opts.register(cmd, true)
	cmd.Flags().BoolVarP(&opts.json, "json", "j", false, "produce JSON output instead of tabular output")
	cmd.Flags().BoolVar(&opts.v13, "v13", false, `use "fleet" instead of "application" in the output`)
	devicesFlagRules.apply(cmd)

	return cmd
}

func runDevices(cmd *cobra.Command, a *app, opts devicesOptions) error {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()
	interactive := a.isTerminal(stderr)

	warned := false
	if opts.legacy() && !opts.json && interactive {
		printWarning(stderr, applicationFlagDeprecation)
		warned = true
	}

	var (
		devices []sdk.Device
		err     error
	)
	if key := opts.key(); key != "" {
		fleet, lookupErr := a.client.Applications.Get(ctx, key)
		if lookupErr != nil {
			return sdk.LookupError(lookupErr, "Fleet %s not found", key)
		}
		devices, err = a.client.Devices.GetAllByApplication(ctx, fleet.ID)
	} else {
		devices, err = a.client.Devices.GetAll(ctx)
	}
	if err != nil {
		return err
	}

	records := make([]visuals.Record, len(devices))
	for i := range devices {
		records[i] = deviceRecord(a.client, &devices[i], opts.json)
	}

	fields := deviceFields(opts.legacyWording(), opts.json)
	if opts.json {
		return visuals.JSON(cmd.OutOrStdout(), records, fields)
	}

	if opts.legacyWording() && !warned && interactive {
		printWarning(stderr, outputWordingDeprecation)
	}
	return visuals.Horizontal(cmd.OutOrStdout(), records, fields)
}

func deviceRecord(client *sdk.Client, d *sdk.Device, full bool) visuals.Record {
	uuid := d.UUID
	if !full {
		uuid = shortUUID(uuid)
	}

	return visuals.Record{
		"id":                 d.ID,
		"uuid":               uuid,
		"device_name":        d.DeviceName,
		"device_type":        d.DeviceTypeSlug(),
		"application_name":   d.ApplicationName(),
		"status":             d.Status,
		"is_online":          d.IsOnline,
		"supervisor_version": d.SupervisorVersion,
		"os_version":         d.OSVersion,
		"dashboard_url":      client.Devices.DashboardURL(d.UUID),
	}
}

func deviceFields(legacy, json bool) []visuals.Field {
	fleet := visuals.F("application_name")
	switch {
	case legacy:
	case json:
		fleet.Rename = "fleet_name"
	default:
		fleet.Rename = "FLEET"
	}

	return []visuals.Field{
		visuals.F("id"),
		visuals.F("uuid"),
		visuals.F("device_name"),
		visuals.F("device_type"),
		fleet,
		visuals.F("status"),
		visuals.F("is_online"),
		visuals.F("supervisor_version"),
		visuals.F("os_version"),
		visuals.F("dashboard_url"),
	}
}

func shortUUID(uuid string) string {
	if len(uuid) > uuidDisplayLength {
		return uuid[:uuidDisplayLength]
	}
	return uuid
}
