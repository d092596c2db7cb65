// Command sdlbuilder generates, validates and imports Akash SDL deployment
// descriptors, from the command line or over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		var cErr *CommandError
		if errors.As(err, &cErr) {
			fmt.Fprintln(stderr, cErr.Error())
			return cErr.ExitCode
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitUsageError
	}

	return ExitSuccess
}
