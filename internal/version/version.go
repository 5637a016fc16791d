// Package version holds the released version of the enricher.
package version

// Current is bumped on release; no "v" prefix.
const Current = "0.3.0"
