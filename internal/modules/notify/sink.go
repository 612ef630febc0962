// README: Notification sink backed by PostgreSQL (append-only).
package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Deliver(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO notification_records (
			id, recipient_id, booking_id, status, message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(rec.ID),
		string(rec.RecipientID),
		string(rec.BookingID),
		string(rec.Status),
		rec.Message,
		rec.CreatedAt,
	)
	return err
}
