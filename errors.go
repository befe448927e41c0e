package modellr

import (
	"errors"
	"fmt"

	"github.com/circleci/modellr/o11y"
)

var (
	ErrNoConnections      = errors.New("no valid database connection options have been provided")
	ErrNoViableConnection = errors.New("no valid database connections could be established")
	ErrSyncUnsupported    = errors.New("instance engine does not support sync")

	// ErrConnectionFailed is a warning, a load that only lost some instances still succeeds.
	ErrConnectionFailed = o11y.NewWarning("connection failed")
)

// ConnectionError is the failure of one alias to authenticate.
type ConnectionError struct {
	Alias string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("A connection to \"%s\" could not be established; %s", e.Alias, e.Err.Error())
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnectionFailed, e.Err}
}

// ModelLoadError names the definition that could not be applied and the instance it failed on.
type ModelLoadError struct {
	Model string
	Alias string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("model %q failed to load on %q: %s", e.Model, e.Alias, e.Err.Error())
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}
