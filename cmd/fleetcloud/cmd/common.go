package cmd

import (
	"github.com/spf13/cobra"
)

// flagRules lists the flag combinations a command rejects. Each group may
// have at most one of its flags set; cobra checks them before RunE.
type flagRules struct {
	exclusive [][]string
}

func (r flagRules) apply(cmd *cobra.Command) {
	for _, group := range r.exclusive {
		cmd.MarkFlagsMutuallyExclusive(group...)
	}
}

// fleetFlags are the legacy application flags and their replacement
type fleetFlags struct {
	application string
	app         string
	fleet       string
}

func (f *fleetFlags) register(cmd *cobra.Command, withAppAlias bool) {
	cmd.Flags().StringVarP(&f.fleet, "fleet", "f", "", "fleet name, slug (org/name) or id")
	cmd.Flags().StringVarP(&f.application, "application", "a", "", "DEPRECATED alias for --fleet")
	if withAppAlias {
		cmd.Flags().StringVar(&f.app, "app", "", "DEPRECATED alias for --fleet")
	}
}

// key returns the single fleet identifier given by any of the flags
func (f fleetFlags) key() string {
	for _, v := range []string{f.application, f.app, f.fleet} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (f fleetFlags) legacy() bool {
	return f.application != "" || f.app != ""
}

const applicationFlagDeprecation = "The -a, --application and --app options are deprecated, use -f, --fleet instead"
