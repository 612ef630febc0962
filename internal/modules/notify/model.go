// README: Notification records; append-only, one per recipient per transition.
package notify

import (
	"time"

	"caretransit/internal/modules/booking"
	"caretransit/internal/types"
)

type Record struct {
	ID          types.ID
	RecipientID types.ID
	BookingID   types.ID
	Status      booking.Status
	Message     string
	CreatedAt   time.Time
}
