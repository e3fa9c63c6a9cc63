// Nivuus is an interruptible terminal agent. It works through an
// OpenAI-compatible chat completion service, runs shell commands and
// file operations behind operator confirmation, and keeps its
// conversation and memory on disk so a restart resumes where it left
// off.
//
// Usage:
//
//	nivuus                           Start (or resume) the agent
//	nivuus checkpoints list          List saved snapshots
//	nivuus checkpoints restore <id>  Write a snapshot back to disk
//	nivuus reset [--yes]             Move the saved state aside
//	nivuus version [--json]          Print version information
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

const binaryName = "nivuus"

// main wires the process environment into [execute] and exits with its
// status.
func main() {
	os.Exit(execute(context.Background(), os.Stdin, os.Stdout, os.Stderr, os.Args[1:], os.Exit))
}

// execute runs the command line and returns the process exit code: 0
// on quit or interrupt, 1 on any error. exit is called directly by the
// signal handler after its final save.
func execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string, exit func(int)) int {
	root := newRootCmd(exit)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", binaryName, err)
		return 1
	}
	return 0
}
