package booking

type Status string

const (
	StatusPaymentPending Status = "payment_pending"
	StatusConfirmed      Status = "confirmed"
	StatusCheckedIn      Status = "checked-in"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

var transitions = map[Status][]Status{
	StatusPaymentPending: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn:      {StatusCompleted},
}

// CanTransition reports whether from -> to is an edge of the booking state
// machine. Skipping a state is never allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsBlocking reports whether a booking in status s occupies its court slot.
func IsBlocking(s Status) bool {
	switch s {
	case StatusPaymentPending, StatusConfirmed, StatusCheckedIn:
		return true
	default:
		return false
	}
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPaymentPending, StatusConfirmed, StatusCheckedIn, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}
