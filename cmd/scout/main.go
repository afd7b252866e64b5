// Package main provides scout, an agent that answers requests by driving a
// hidden browser and a sandboxed working directory.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/entrhq/scout/pkg/logging"
)

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
