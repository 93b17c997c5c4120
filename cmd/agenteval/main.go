// cmd/agenteval/main.go
package main

import (
	cmd "github.com/mwiater/agenteval/internal/cli"
)

// Build metadata, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
)

// main starts the agenteval CLI by delegating to the cobra root command.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
