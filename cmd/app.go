// Package cmd implements the CLI application to replay trading scenarios
// through the ledger.
package cmd

import "github.com/google/subcommands"

// Register the subcommands.
// A main package calls Register() to install the subcommands, and Execute()
// on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&runCmd{}, "scenario")
}
