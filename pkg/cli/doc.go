// Package cli provides the command-line interface for bizlog.
//
// The cli package implements commands for working with a bizlog
// configuration outside the host application:
//   - render: Render a message template against variables
//   - diff: Diff two JSON snapshots of a configured entity
//   - query: Query stored audit records
//   - validate: Validate a configuration file
//   - init: Create a starter configuration file
//   - schema: Print the configuration JSON Schema
//   - version: Show bizlog version
//
// Every command accepts --json for machine-readable output. The
// configuration is discovered from --config, $BIZLOG_CONFIG, or
// bizlog.yaml in the current directory.
package cli
