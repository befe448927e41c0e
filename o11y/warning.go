package o11y

import "errors"

// warning reports on spans as a warning. Each warning is matched by IsWarning,
// but two warnings are never equal under errors.Is.
type warning struct {
	msg string
}

func NewWarning(msg string) error {
	return &warning{msg: msg}
}

func (w *warning) Error() string {
	return w.msg
}

func IsWarning(err error) bool {
	var w *warning
	return errors.As(err, &w)
}

// DontErrorTrace is true for errors that should not be traced as failures.
func DontErrorTrace(err error) bool {
	return IsWarning(err) || isContextErr(err)
}
