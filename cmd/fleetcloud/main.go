package main

import (
	"os"

	"fleetcloud.sh/cmd/fleetcloud/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
