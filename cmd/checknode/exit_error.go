package main

import (
	"errors"
	"fmt"
)

// exitError carries an explicit process exit code through cobra.
type exitError struct {
	code  int
	msg   string
	cause error
}

func (e *exitError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *exitError) Unwrap() error { return e.cause }

// silentExit ends the process with code without printing anything; the
// outcome was already reported through the loggers.
func silentExit(code int) error {
	return &exitError{code: code}
}

func wrapExit(code int, msg string, cause error) error {
	if code <= 0 {
		code = exitFailed
	}
	return &exitError{code: code, msg: msg, cause: cause}
}

// exitCodeOf extracts the exit code from err, defaulting to 1.
func exitCodeOf(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailed
}
