package services

import (
	"time"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

// Clock returns the current time. Services take one so departure checks
// can be tested.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

type Event string

const (
	EventAccept Event = "accept"
	EventReject Event = "reject"
	EventCancel Event = "cancel"
	EventSettle Event = "settle"
)

type transition struct {
	from models.BookingStatus
	to   models.BookingStatus
}

// transitions is the complete booking state machine. Creation is not an
// event: a booking always starts pending.
var transitions = map[Event]transition{
	EventAccept: {from: models.BookingPending, to: models.BookingAccepted},
	EventReject: {from: models.BookingPending, to: models.BookingRejected},
	EventCancel: {from: models.BookingPending, to: models.BookingDeleted},
	EventSettle: {from: models.BookingAccepted, to: models.BookingPaid},
}

// Step describes how an event applies to a booking in a given status.
type Step struct {
	From models.BookingStatus
	To   models.BookingStatus
	// Noop is set when the booking already sits in the target status.
	Noop bool
}

// Plan resolves ev against current. It fails with InvalidTransition when
// the booking is neither in the source nor the target status.
func Plan(current models.BookingStatus, ev Event) (Step, error) {
	t, ok := transitions[ev]
	if !ok {
		return Step{}, status.Newf(status.KindValidation, "unknown booking event %q", ev)
	}
	if current == t.to {
		return Step{From: current, To: current, Noop: true}, nil
	}
	if current != t.from {
		return Step{}, status.Newf(status.KindInvalidTransition, "cannot %s a %s booking", ev, current)
	}
	return Step{From: t.from, To: t.to}, nil
}

// Releases reports whether taking ev returns the booking's units to the
// ledger.
func Releases(ev Event) bool {
	return ev == EventReject || ev == EventCancel
}

// DecisionEvent maps a vendor decision to its event.
func DecisionEvent(decision string) (Event, error) {
	switch decision {
	case "accept", "accepted":
		return EventAccept, nil
	case "reject", "rejected":
		return EventReject, nil
	}
	return "", status.Newf(status.KindValidation, "decision must be accept or reject, got %q", decision)
}
