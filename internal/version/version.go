// Package version produces the version report peers request from a node to
// debug environment mismatches across a cluster.
package version

import (
	"os"
	"runtime"
	"runtime/debug"
)

// Version is the release version stamped at build time via -ldflags.
var Version = "dev"

// Host describes the runtime environment of this node.
type Host struct {
	GoVersion string `json:"go-version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Hostname  string `json:"hostname"`
}

// Report is the payload returned by the versions operation.
type Report struct {
	Version  string            `json:"version"`
	Host     Host              `json:"host"`
	Packages map[string]string `json:"packages"`
}

// Get builds a report. packages selects module paths to include from build
// info; unknown paths report "MISSING" so mismatched deployments stand out.
// With no packages requested, every dependency in build info is included.
func Get(packages []string) Report {
	hostname, _ := os.Hostname()
	r := Report{
		Version: Version,
		Host: Host{
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			Hostname:  hostname,
		},
		Packages: make(map[string]string),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		for _, p := range packages {
			r.Packages[p] = "MISSING"
		}
		return r
	}

	known := make(map[string]string, len(bi.Deps)+1)
	known[bi.Main.Path] = bi.Main.Version
	for _, d := range bi.Deps {
		known[d.Path] = d.Version
	}

	if len(packages) == 0 {
		r.Packages = known
		return r
	}
	for _, p := range packages {
		if v, ok := known[p]; ok {
			r.Packages[p] = v
		} else {
			r.Packages[p] = "MISSING"
		}
	}
	return r
}
