//go:build unix

package signals

import (
	"os"

	"golang.org/x/sys/unix"
)

var terminalSignals = []os.Signal{
	unix.SIGINT, unix.SIGQUIT, unix.SIGTRAP, unix.SIGABRT,
	unix.SIGALRM, unix.SIGBUS, unix.SIGTERM, unix.SIGHUP,
}

var nonTerminalSignals = []os.Signal{
	unix.SIGFPE, unix.SIGUSR1, unix.SIGUSR2, unix.SIGSEGV,
	unix.SIGPIPE, unix.SIGCHLD,
}

func isChildStatus(sig os.Signal) bool {
	return sig == unix.SIGCHLD
}
