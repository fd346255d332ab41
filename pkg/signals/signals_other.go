//go:build !unix

package signals

import "os"

var terminalSignals = []os.Signal{os.Interrupt}

var nonTerminalSignals []os.Signal

func isChildStatus(os.Signal) bool { return false }
