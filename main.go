// The main package for the hubharvest executable.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hubharvest/hubharvest/cmd"
)

// main defers all execution to the Cobra CLI library. An interrupt cancels
// the command context so an in-flight run can stop between identifiers.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
