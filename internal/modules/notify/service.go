// README: Status notifier; resolves recipients and fans out one record each, at most once per (booking, status).
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caretransit/internal/modules/booking"
	"caretransit/internal/types"
)

type Directory interface {
	ListNotifiableContacts(ctx context.Context, patientID types.ID) ([]types.ID, error)
}

// Sink accepts fully-formed notification records for delivery or storage.
type Sink interface {
	Deliver(ctx context.Context, rec Record) error
}

// Summarizer is optional; when present, completed trips get a one-sentence
// recap appended to the template message.
type Summarizer interface {
	Recap(ctx context.Context, pickupAddress, dropoffAddress, driverName string) (string, error)
}

type Service struct {
	directory  Directory
	sink       Sink
	summarizer Summarizer
	log        *zap.Logger

	// seen tracks (booking, status) pairs already fanned out during this
	// process lifetime. The tracking loop can observe the same status on
	// consecutive polls; only the first observation notifies.
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewService(directory Directory, sink Sink, summarizer Summarizer, log *zap.Logger) *Service {
	return &Service{
		directory:  directory,
		sink:       sink,
		summarizer: summarizer,
		log:        log,
		seen:       map[string]struct{}{},
	}
}

// OnTransition fans a status change out to every notifiable contact of the
// booking's patient. Delivery failures are logged per recipient and never
// propagated; a booking status change must not fail because a notification
// could not be stored.
func (s *Service) OnTransition(ctx context.Context, b *booking.Booking, from, to booking.Status) {
	key := string(b.ID) + "|" + string(to)
	s.mu.Lock()
	if _, dup := s.seen[key]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[key] = struct{}{}
	s.mu.Unlock()

	recipients, err := s.directory.ListNotifiableContacts(ctx, b.PatientID)
	if err != nil {
		// Nothing was sent; forget the pair so a later observation of the
		// same status can retry without risking duplicates.
		s.mu.Lock()
		delete(s.seen, key)
		s.mu.Unlock()
		s.log.Warn("recipient lookup failed",
			zap.String("booking_id", string(b.ID)),
			zap.String("status", string(to)),
			zap.Error(err))
		return
	}

	msg := s.buildMessage(ctx, b, to)
	now := time.Now()
	for _, recipientID := range recipients {
		rec := Record{
			ID:          types.ID(uuid.NewString()),
			RecipientID: recipientID,
			BookingID:   b.ID,
			Status:      to,
			Message:     msg,
			CreatedAt:   now,
		}
		if err := s.sink.Deliver(ctx, rec); err != nil {
			s.log.Warn("notification delivery failed",
				zap.String("booking_id", string(b.ID)),
				zap.String("recipient_id", string(recipientID)),
				zap.Error(err))
		}
	}
	s.log.Info("status notifications sent",
		zap.String("booking_id", string(b.ID)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("recipients", len(recipients)))
}

func (s *Service) buildMessage(ctx context.Context, b *booking.Booking, to booking.Status) string {
	msg := messageFor(to)
	if to == booking.StatusCompleted && s.summarizer != nil {
		recap, err := s.summarizer.Recap(ctx, b.Pickup.Address, b.Dropoff.Address, b.DriverName)
		if err != nil {
			s.log.Debug("trip recap unavailable", zap.Error(err))
		} else if recap != "" {
			msg = fmt.Sprintf("%s %s", msg, recap)
		}
	}
	return msg
}
