package version

import (
	"runtime"
)

var (
	// Set during the build process using ldflags
	Version   = "development"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Info is the build information reported by `fleetcloud version`
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Built     string `json:"built"`
	GoVersion string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the build information of the running binary
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    CommitSHA,
		Built:     BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// UserAgent returns the User-Agent header sent to the platform API
func UserAgent() string {
	return "fleetcloud/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

// GetVersion returns the full version string
func GetVersion() string {
	return Version + " (" + CommitSHA + ") built at " + BuildTime
}
