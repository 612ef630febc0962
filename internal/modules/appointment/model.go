// README: Appointment read model; the record itself is owned by the appointment store.
package appointment

import (
	"time"

	"caretransit/internal/types"
)

type Appointment struct {
	ID                types.ID
	PatientID         types.ID
	ScheduledAt       time.Time
	RequiresTransport bool
	// TransportStatus mirrors the booking status, "none" without a booking.
	TransportStatus string
}
