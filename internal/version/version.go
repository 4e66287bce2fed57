// Package version holds build-time version information for the raggpt binary.
// The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/raggpt-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/raggpt-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/raggpt-go/internal/version.BuildDate=2026-01-01"
//
// Without ldflags the values fall back to "dev"/"unknown".
package version

import "fmt"

// Version is the semantic version of the binary (e.g. "v0.3.0").
var Version = "dev"

// Commit is the short git SHA of the commit the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339 format).
var BuildDate = "unknown"

// String renders the version line printed by `raggpt version`.
func String() string {
	return fmt.Sprintf("raggpt %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
