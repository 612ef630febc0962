// README: Booking store backed by PostgreSQL with CAS status updates.
package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"caretransit/internal/types"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, b *Booking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transport_bookings (
			id, appointment_id, patient_id,
			offer_id, offer_display_name, offer_fare_minor, offer_eta_minutes,
			pickup_lat, pickup_lng, pickup_address,
			dropoff_lat, dropoff_lng, dropoff_address,
			passenger_name, passenger_phone,
			status, status_version,
			driver_name, driver_phone, vehicle_id, provider_booking_id,
			created_at, last_status_change_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15,
			$16, $17,
			$18, $19, $20, $21,
			$22, $23
		)`,
		string(b.ID),
		string(b.AppointmentID),
		string(b.PatientID),
		b.Offer.OfferID, b.Offer.DisplayName, b.Offer.FareMinor, b.Offer.EtaMinutes,
		b.Pickup.Point.Lat, b.Pickup.Point.Lng, b.Pickup.Address,
		b.Dropoff.Point.Lat, b.Dropoff.Point.Lng, b.Dropoff.Address,
		b.PassengerName, b.PassengerPhone,
		string(b.Status), b.StatusVersion,
		b.DriverName, b.DriverPhone, b.VehicleID, b.ProviderBookingID,
		b.CreatedAt, b.LastStatusChangeAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.getWhere(ctx, "id = $1", string(id))
}

func (s *PostgresStore) GetByAppointment(ctx context.Context, appointmentID types.ID) (*Booking, error) {
	return s.getWhere(ctx, "appointment_id = $1", string(appointmentID))
}

func (s *PostgresStore) getWhere(ctx context.Context, where string, arg any) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, appointment_id, patient_id,
		       offer_id, offer_display_name, offer_fare_minor, offer_eta_minutes,
		       pickup_lat, pickup_lng, pickup_address,
		       dropoff_lat, dropoff_lng, dropoff_address,
		       passenger_name, passenger_phone,
		       status, status_version,
		       driver_name, driver_phone, vehicle_id, provider_booking_id,
		       created_at, last_status_change_at
		FROM transport_bookings
		WHERE `+where, arg,
	)

	var b Booking
	err := row.Scan(
		&b.ID, &b.AppointmentID, &b.PatientID,
		&b.Offer.OfferID, &b.Offer.DisplayName, &b.Offer.FareMinor, &b.Offer.EtaMinutes,
		&b.Pickup.Point.Lat, &b.Pickup.Point.Lng, &b.Pickup.Address,
		&b.Dropoff.Point.Lat, &b.Dropoff.Point.Lng, &b.Dropoff.Address,
		&b.PassengerName, &b.PassengerPhone,
		&b.Status, &b.StatusVersion,
		&b.DriverName, &b.DriverPhone, &b.VehicleID, &b.ProviderBookingID,
		&b.CreatedAt, &b.LastStatusChangeAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE transport_bookings
		SET status = $1,
		    status_version = status_version + 1,
		    last_status_change_at = NOW()
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *StatusEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_status_events (
			booking_id, from_status, to_status, actor_role, created_at
		) VALUES ($1, $2, $3, $4, $5)`,
		string(e.BookingID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorRole,
		e.CreatedAt,
	)
	return err
}

// ListEvents returns the status history for a booking, oldest first.
func (s *PostgresStore) ListEvents(ctx context.Context, bookingID types.ID) ([]StatusEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_role, created_at
		FROM booking_status_events
		WHERE booking_id = $1
		ORDER BY id`, string(bookingID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StatusEvent
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.BookingID, &e.FromStatus, &e.ToStatus, &e.ActorRole, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
