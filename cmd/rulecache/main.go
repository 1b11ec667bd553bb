// Command rulecache inspects and verifies shared rule caches.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hupe1980/rulecache/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
