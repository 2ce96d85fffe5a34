package main

import (
	"fmt"
	"os"

	"github.com/hiveplane/hive/internal/cmd"
	"github.com/hiveplane/hive/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}
