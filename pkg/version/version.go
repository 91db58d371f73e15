// Package version exports the library's version. The value is overridden at
// build time via -ldflags for release builds.
package version

// Version is the symbolic version of this library.
var Version = "v0.1.0"
