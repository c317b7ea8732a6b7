package cli

// SilentError wraps an error whose message has already been written to the
// user. main exits non-zero without printing it again.
type SilentError struct {
	err error
}

// NewSilentError wraps err so main does not print it.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string {
	return e.err.Error()
}

func (e *SilentError) Unwrap() error {
	return e.err
}
