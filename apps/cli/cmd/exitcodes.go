package cmd

import "errors"

// Exit codes for hitseq CLI
const (
	// ExitSuccess indicates every request reached Applied
	ExitSuccess = 0

	// ExitSequenceFailure indicates one or more requests failed
	ExitSequenceFailure = 1

	// ExitParseError indicates a grammar or dictionary error
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the process exit code for a failed command. A nil err
// means the command already reported the failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return "exit status"
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitSequenceFailure
}
