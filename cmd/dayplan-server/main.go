package main

import (
	"context"
	"fmt"
	"os"

	_ "time/tzdata"

	"dayplan/backend/internal/cli"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	return cli.NewRootCommand(version).ExecuteContext(context.Background())
}
