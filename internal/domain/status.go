package domain

// DeriveStatus computes the aggregate status from component statuses.
// A cancelled component marks the whole booking cancelled, since only the
// coordinator cancels and it always cancels every component. Any component
// still pending or processing keeps the booking processing.
func DeriveStatus(components []ComponentBooking) BookingStatus {
	if len(components) == 0 {
		return BookingStatusProcessing
	}
	var confirmed, failed int
	for _, c := range components {
		switch c.Status {
		case ComponentStatusCancelled:
			return BookingStatusCancelled
		case ComponentStatusPending, ComponentStatusProcessing:
			return BookingStatusProcessing
		case ComponentStatusConfirmed:
			confirmed++
		case ComponentStatusFailed:
			failed++
		}
	}
	return Classify(confirmed, failed)
}

// Classify maps settled success and failure counts to an aggregate status.
func Classify(confirmed, failed int) BookingStatus {
	switch {
	case failed == 0 && confirmed > 0:
		return BookingStatusConfirmed
	case confirmed == 0:
		return BookingStatusFailed
	default:
		return BookingStatusPartial
	}
}

// ConfirmedTotal sums the prices of confirmed components only.
func ConfirmedTotal(components []ComponentBooking) int64 {
	var total int64
	for _, c := range components {
		if c.Status == ComponentStatusConfirmed {
			total += c.PriceCents
		}
	}
	return total
}

// CanTransition reports whether a component may move from one status to
// another. Cancelled is terminal.
func CanTransition(from, to ComponentStatus) bool {
	switch from {
	case ComponentStatusPending:
		return to == ComponentStatusProcessing || to == ComponentStatusFailed || to == ComponentStatusCancelled
	case ComponentStatusProcessing:
		return to == ComponentStatusConfirmed || to == ComponentStatusFailed || to == ComponentStatusCancelled
	case ComponentStatusConfirmed, ComponentStatusFailed:
		return to == ComponentStatusCancelled
	}
	return false
}

var componentStatuses = []ComponentStatus{
	ComponentStatusPending,
	ComponentStatusProcessing,
	ComponentStatusConfirmed,
	ComponentStatusFailed,
	ComponentStatusCancelled,
}

// TransitionSources lists the statuses from which a component may move to
// to. Status writes are only applied to rows in one of these statuses.
func TransitionSources(to ComponentStatus) []ComponentStatus {
	var from []ComponentStatus
	for _, s := range componentStatuses {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}
