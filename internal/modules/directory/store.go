// README: Relationship directory adapter; resolves who gets notified for a patient.
package directory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"caretransit/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ListNotifiableContacts returns the account ids linked to a patient with
// notification permission. The patient is always included.
func (s *Store) ListNotifiableContacts(ctx context.Context, patientID types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT recipient_id FROM patient_contacts
		WHERE patient_id = $1 AND notify_enabled`, string(patientID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []types.ID{patientID}
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id != patientID {
			recipients = append(recipients, id)
		}
	}
	return recipients, rows.Err()
}
