package core

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

type StatusType string

const (
	StatusPending  StatusType = "PENDING"
	StatusRunning  StatusType = "RUNNING"
	StatusSuccess  StatusType = "SUCCESS"
	StatusFailed   StatusType = "FAILED"
	StatusSkipped  StatusType = "SKIPPED"
	StatusTimedOut StatusType = "TIMED_OUT"
	StatusCanceled StatusType = "CANCELED"
)

func (s StatusType) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s StatusType) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusTimedOut, StatusCanceled:
		return true
	}
	return false
}
