// Package version carries the build identity of the recipesearch binary.
package version

// Stamped by the release build via -ldflags; defaults identify a dev build.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
