package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"meico/internal/services"
)

func main() {
	os.Exit(execute(newRootCommand(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs cmd and maps its error onto a process exit code.
func execute(cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	if err == nil {
		return services.ExitOK
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "meico: %s\n", services.Details(err).Message)
	}
	return services.ExitCode(err)
}
