// Package cmd implements the capfetch CLI commands using Cobra.
//
// The root command takes a URL and runs the fetch loop. Other commands:
//   - history: List fetches recorded with --history
//   - init: Write a default .capfetch.yaml
//   - completion: Generate shell completion scripts
//   - version: Show capfetch version information
package cmd
