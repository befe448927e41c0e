// Package cmd holds the build information stamped into the binaries.
package cmd

// Set with -ldflags "-X github.com/circleci/modellr/cmd.Version=..."
var (
	Version = "dev"
	Date    = "now"
)
