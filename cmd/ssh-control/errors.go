package main

import (
	"errors"
	"fmt"

	"ssh-control/pkg/manager"
	"ssh-control/pkg/remote"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitNotFound     = 2
	ExitConfigError  = 3
	ExitRemoteError  = 4
)

// exitError carries an exit code alongside the message shown to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func notFoundf(format string, args ...any) error {
	return &exitError{code: ExitNotFound, err: fmt.Errorf(format, args...)}
}

func configError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: ExitConfigError, err: err}
}

func remoteError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: ExitRemoteError, err: err}
}

// exitCodeFromErr maps an error to the process exit code. Coded errors win;
// otherwise known config and remote failures are classified by type.
func exitCodeFromErr(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var se *manager.StructuralError
	if errors.Is(err, manager.ErrInvalidJSON) || errors.As(err, &se) {
		return ExitConfigError
	}
	var st *remote.StatusError
	if errors.Is(err, remote.ErrTimeout) || errors.As(err, &st) {
		return ExitRemoteError
	}
	return ExitGeneralError
}
