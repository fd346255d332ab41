// Command checknode runs the node health probes and reconciles the verdict
// with the scheduler.
package main

import (
	"io"
	"os"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 64
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		if msg := err.Error(); msg != "" {
			io.WriteString(stderr, "checknode: "+msg+"\n")
		}
	}
	return exitCodeOf(err)
}
