package domain

// Status is the derived acceptance state of one document for one user.
type Status string

const (
	StatusAccepted    Status = "accepted"
	StatusPending     Status = "pending"
	StatusOverdue     Status = "overdue"
	StatusNotRequired Status = "not-required"
)

// Outstanding reports whether the user still has to act on the document.
func (s Status) Outstanding() bool {
	return s == StatusPending || s == StatusOverdue
}
