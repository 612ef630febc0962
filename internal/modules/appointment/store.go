// README: Appointment store adapter backed by PostgreSQL.
package appointment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"caretransit/internal/types"
)

var ErrNotFound = errors.New("appointment not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, patient_id, scheduled_at, requires_transport, transport_status
		FROM appointments
		WHERE id = $1`, string(id),
	)

	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ScheduledAt, &a.RequiresTransport, &a.TransportStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) SetTransportStatus(ctx context.Context, id types.ID, status string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET transport_status = $1
		WHERE id = $2`,
		status,
		string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
