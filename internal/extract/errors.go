package extract

import "fmt"

// PreconditionError reports a missing identifier, credential or collaborator.
// It is returned before any session is opened or file is touched.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precondition failed: %s: %v", e.Reason, e.Err)
	}
	return "precondition failed: " + e.Reason
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// SessionError reports a failure to open the page source session.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("failed to open reading session: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
