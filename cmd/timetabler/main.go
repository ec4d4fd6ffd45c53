// Command timetabler checks timetable versions for feasibility and orders
// block lessons.
package main

import (
	"errors"
	"fmt"
	"os"
	"timetabler/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(2)
		}
	}()
	if err := cli.BuildCLI().Execute(); err != nil {
		if !errors.Is(err, cli.ErrIssuesFound) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
