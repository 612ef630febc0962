// README: Transport booking aggregate, status definitions, and the transition table.
package booking

import (
	"time"

	"caretransit/internal/types"
)

type Status string

const (
	StatusNone          Status = "none"
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusEnRoute       Status = "en_route"
	StatusArrived       Status = "arrived"
	StatusPickedUp      Status = "picked_up"
	StatusAtDestination Status = "at_destination"
	StatusReturning     Status = "returning"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusFailed        Status = "failed"
)

// progressRank orders the forward chain Confirmed → EnRoute → Arrived →
// PickedUp → AtDestination → Returning → Completed. A poll can observe the
// vehicle several steps further along than the last one did, so any forward
// jump within the chain is a legal transition; back-transitions never are.
var progressRank = map[Status]int{
	StatusConfirmed:     0,
	StatusEnRoute:       1,
	StatusArrived:       2,
	StatusPickedUp:      3,
	StatusAtDestination: 4,
	StatusReturning:     5,
	StatusCompleted:     6,
}

// CanTransition reports whether a booking may move from one status to
// another: forward along the chain only, with cancellation reachable only
// before pickup.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from == StatusConfirmed || from == StatusEnRoute || from == StatusArrived
	}
	fromRank, ok := progressRank[from]
	if !ok {
		return false
	}
	toRank, ok := progressRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// ParseStatus maps a provider status string onto our enum. Unknown strings
// map to StatusNone so callers can discard them explicitly.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusEnRoute, StatusArrived,
		StatusPickedUp, StatusAtDestination, StatusReturning,
		StatusCompleted, StatusCancelled, StatusFailed:
		return Status(raw)
	}
	return StatusNone
}

// OfferSnapshot freezes the selected service offer at booking time.
type OfferSnapshot struct {
	OfferID     string
	DisplayName string
	FareMinor   int64
	EtaMinutes  int
}

type Booking struct {
	ID                 types.ID
	AppointmentID      types.ID
	PatientID          types.ID
	Offer              OfferSnapshot
	Pickup             types.Location
	Dropoff            types.Location
	PassengerName      string
	PassengerPhone     string
	Status             Status
	StatusVersion      int
	DriverName         string
	DriverPhone        string
	VehicleID          string
	ProviderBookingID  string
	CreatedAt          time.Time
	LastStatusChangeAt time.Time
}

// StatusEvent is one row of the append-only status audit log.
type StatusEvent struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorRole  string
	CreatedAt  time.Time
}

// FlowState tracks the pre-booking orchestration for one appointment.
type FlowState string

const (
	FlowAwaitingDecision FlowState = "awaiting_decision"
	FlowSelectingOffer   FlowState = "selecting_offer"
	FlowBooking          FlowState = "booking"
	FlowConfirmed        FlowState = "confirmed"
	FlowDeclined         FlowState = "declined"
	FlowFailed           FlowState = "failed"
)
