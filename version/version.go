// Package version holds build-time identifiers injected via -ldflags.
package version

// Version and Date are overwritten at build time; the defaults below
// only apply to `go run`/local builds.
var (
	Version = "dev"
	Date    = "2026-07-30T00:00:00Z"
)
