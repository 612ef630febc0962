// README: Fixed status→message templates with a generic fallback.
package notify

import "caretransit/internal/modules/booking"

var statusMessages = map[booking.Status]string{
	booking.StatusConfirmed:     "Transport has been booked for the appointment",
	booking.StatusEnRoute:       "Transport is on the way to pick up the patient",
	booking.StatusArrived:       "Transport has arrived at the pickup location",
	booking.StatusPickedUp:      "The patient has been picked up",
	booking.StatusAtDestination: "The patient has arrived at the appointment",
	booking.StatusReturning:     "Transport is bringing the patient home",
	booking.StatusCompleted:     "The trip is complete; the patient is home",
	booking.StatusCancelled:     "The transport booking was cancelled",
	booking.StatusFailed:        "The transport booking could not be completed",
}

const fallbackMessage = "Transport status has been updated"

// messageFor never fails: unmapped statuses get the generic fallback rather
// than dropping the notification.
func messageFor(status booking.Status) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return fallbackMessage
}
