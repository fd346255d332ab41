//go:build !unix

package probe

import (
	"os"
	"os/exec"
)

func isolate(cmd *exec.Cmd) {}

func reapGroup(cmd *exec.Cmd) {}

func exitCode(state *os.ProcessState) int {
	return state.ExitCode()
}
