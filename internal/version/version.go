// Package version holds build-time version information, set via
// -ldflags at release build time.
package version

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders a one-line version string.
func String() string {
	return Version + " (" + Commit + ", built " + Date + ")"
}
