// Copyright (c) 2025 The FileZap developers

package main

import "fmt"

const (
	// appMajor is application major version
	appMajor = 0

	// appMinor is application minor version
	appMinor = 2

	// appPatch is application patch version
	appPatch = 0
)

// appBuild may be set at link time with -ldflags "-X main.appBuild=..."
var appBuild string

// version returns the version as major.minor.patch with the build suffix if
// one was set
func version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appBuild != "" {
		v += "+" + appBuild
	}
	return v
}
