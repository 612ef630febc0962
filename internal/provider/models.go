// README: Wire types for the external transportation provider API.
package provider

import "time"

// Offer is one bookable service returned by a quote call.
type Offer struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"display_name"`
	EstimatedFareMinor  int64  `json:"estimated_fare_minor"`
	EstimatedEtaMinutes int    `json:"estimated_eta_minutes"`
}

// BookingResult is the provider's acknowledgement of a successful booking.
type BookingResult struct {
	ProviderBookingID string `json:"provider_booking_id"`
	DriverName        string `json:"driver_name"`
	DriverPhone       string `json:"driver_phone"`
	VehicleID         string `json:"vehicle_id"`
	FareMinor         int64  `json:"fare_minor"`
}

// LocationFix is one poll result for an active provider booking.
type LocationFix struct {
	Lat                     float64   `json:"lat"`
	Lng                     float64   `json:"lng"`
	HeadingDegrees          float64   `json:"heading_degrees"`
	SpeedKph                float64   `json:"speed_kph"`
	EtaAt                   time.Time `json:"eta_at"`
	DistanceRemainingMeters int       `json:"distance_remaining_meters"`
	Status                  string    `json:"status"`
}

// BookRequest carries everything the provider needs to place a booking.
type BookRequest struct {
	OfferID        string    `json:"offer_id"`
	PickupLat      float64   `json:"pickup_lat"`
	PickupLng      float64   `json:"pickup_lng"`
	PickupAddress  string    `json:"pickup_address"`
	DropoffLat     float64   `json:"dropoff_lat"`
	DropoffLng     float64   `json:"dropoff_lng"`
	DropoffAddress string    `json:"dropoff_address"`
	PassengerName  string    `json:"passenger_name"`
	PassengerPhone string    `json:"passenger_phone"`
	ScheduledAt    time.Time `json:"scheduled_at"`
}
