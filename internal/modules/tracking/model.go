// README: Tracking session state exposed to callers as immutable snapshots.
package tracking

import (
	"time"

	"caretransit/internal/types"
)

// Fix is the last location observed for a vehicle.
type Fix struct {
	Lat            float64
	Lng            float64
	HeadingDegrees float64
	SpeedKph       float64
	ObservedAt     time.Time
}

// Session is a point-in-time snapshot of one tracking session. Values are
// copies; mutating a snapshot has no effect on the live session.
type Session struct {
	BookingID               types.ID
	PollInterval            time.Duration
	LastKnownLocation       *Fix
	LastKnownEtaAt          time.Time
	DistanceRemainingMeters int
	ConsecutivePollFailures int
	// IsStale marks location data that could not be refreshed recently but
	// is still the best known estimate.
	IsStale bool
	// Ended is set once the provider reported a terminal status; the final
	// snapshot stays readable until the session is discarded.
	Ended bool
}
