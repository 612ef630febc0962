// README: Tracking supervisor; one cancellable polling session per active booking.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"caretransit/internal/config"
	"caretransit/internal/modules/booking"
	"caretransit/internal/provider"
	"caretransit/internal/types"
)

var (
	ErrNoSession       = errors.New("no tracking session")
	ErrBookingFinished = errors.New("booking already finished")
)

type Poller interface {
	PollLocation(ctx context.Context, providerBookingID string) (provider.LocationFix, error)
}

// Bookings is the slice of the booking service the supervisor needs: reading
// a booking to seed a session and applying provider-observed transitions.
type Bookings interface {
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
	AdvanceStatus(ctx context.Context, id types.ID, to booking.Status, actorRole string) error
}

// Supervisor owns the session arena. Sessions share nothing but the poller,
// which must be safe for concurrent use.
type Supervisor struct {
	cfg      config.TrackingConfig
	poller   Poller
	bookings Bookings
	log      *zap.Logger

	mu       sync.Mutex
	sessions map[types.ID]*session
}

// Handle identifies one tracking session to its caller.
type Handle struct {
	s *session
}

func (h *Handle) BookingID() types.ID {
	return h.s.bookingID
}

type session struct {
	bookingID         types.ID
	providerBookingID string
	interval          time.Duration
	cancel            context.CancelFunc
	done              chan struct{}

	// mu guards everything below. Stop takes it before returning, so any
	// poll result applied afterwards would have to observe stopped=true;
	// that is the happens-before guarantee.
	mu         sync.Mutex
	stopped    bool
	lastStatus booking.Status
	state      Session
}

func NewSupervisor(cfg config.TrackingConfig, poller Poller, bookings Bookings, log *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		poller:   poller,
		bookings: bookings,
		log:      log,
		sessions: map[types.ID]*session{},
	}
}

// Start launches a polling session for a booking. Starting a booking that
// already has a session returns the existing handle unchanged.
func (s *Supervisor) Start(ctx context.Context, bookingID types.ID) (*Handle, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[bookingID]; ok {
		s.mu.Unlock()
		return &Handle{s: sess}, nil
	}
	s.mu.Unlock()

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.IsTerminal(b.Status) {
		return nil, ErrBookingFinished
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[bookingID]; ok {
		return &Handle{s: sess}, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		bookingID:         bookingID,
		providerBookingID: b.ProviderBookingID,
		interval:          s.cfg.PollInterval,
		cancel:            cancel,
		done:              make(chan struct{}),
		lastStatus:        b.Status,
		state: Session{
			BookingID:    bookingID,
			PollInterval: s.cfg.PollInterval,
		},
	}
	s.sessions[bookingID] = sess
	go s.run(runCtx, sess)
	return &Handle{s: sess}, nil
}

// Lookup returns the handle for a booking's session, if one exists.
func (s *Supervisor) Lookup(bookingID types.ID) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[bookingID]
	if !ok {
		return nil, false
	}
	return &Handle{s: sess}, true
}

// Stop cancels the session's polling loop. After Stop returns, no poll
// result mutates the session; results already in flight are discarded.
// Stopping an ended session is a no-op.
func (s *Supervisor) Stop(h *Handle) {
	if h == nil {
		return
	}
	h.s.mu.Lock()
	h.s.stopped = true
	h.s.mu.Unlock()
	h.s.cancel()
}

// CurrentState returns a snapshot of the session, including the final state
// of an ended session until it is discarded.
func (s *Supervisor) CurrentState(h *Handle) Session {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	snap := h.s.state
	if h.s.state.LastKnownLocation != nil {
		fix := *h.s.state.LastKnownLocation
		snap.LastKnownLocation = &fix
	}
	return snap
}

// Discard forgets a session once the caller has consumed its final state.
func (s *Supervisor) Discard(h *Handle) {
	if h == nil {
		return
	}
	s.Stop(h)
	s.mu.Lock()
	delete(s.sessions, h.s.bookingID)
	s.mu.Unlock()
}

func (s *Supervisor) run(ctx context.Context, sess *session) {
	defer close(sess.done)

	// First poll fires immediately; afterwards one poll per tick. The loop
	// is strictly sequential, so polls for one session never overlap.
	if s.poll(ctx, sess) {
		return
	}
	ticker := time.NewTicker(sess.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.poll(ctx, sess) {
				return
			}
		}
	}
}

// poll performs one tick. The return value reports whether the session is
// finished and the loop should exit.
func (s *Supervisor) poll(ctx context.Context, sess *session) bool {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	fix, err := s.poller.PollLocation(callCtx, sess.providerBookingID)
	cancel()

	sess.mu.Lock()
	if sess.stopped {
		sess.mu.Unlock()
		return true
	}

	if err != nil {
		// A poll failure is never fatal: count it, mark the data stale
		// past the threshold, and keep polling.
		sess.state.ConsecutivePollFailures++
		if sess.state.ConsecutivePollFailures >= s.cfg.StaleThreshold {
			sess.state.IsStale = true
		}
		failures := sess.state.ConsecutivePollFailures
		sess.mu.Unlock()
		s.log.Warn("location poll failed",
			zap.String("booking_id", string(sess.bookingID)),
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		return false
	}

	sess.state.ConsecutivePollFailures = 0
	sess.state.IsStale = false
	sess.state.LastKnownLocation = &Fix{
		Lat:            fix.Lat,
		Lng:            fix.Lng,
		HeadingDegrees: fix.HeadingDegrees,
		SpeedKph:       fix.SpeedKph,
		ObservedAt:     time.Now(),
	}
	sess.state.LastKnownEtaAt = fix.EtaAt
	sess.state.DistanceRemainingMeters = fix.DistanceRemainingMeters

	newStatus := booking.ParseStatus(fix.Status)
	changed := newStatus != booking.StatusNone && newStatus != sess.lastStatus
	terminal := booking.IsTerminal(newStatus)
	if terminal {
		sess.state.Ended = true
		sess.stopped = true
	}
	sess.mu.Unlock()

	if changed {
		if err := s.bookings.AdvanceStatus(ctx, sess.bookingID, newStatus, "provider"); err != nil {
			// Out-of-table results are logged and discarded; the booking
			// keeps its previous status.
			s.log.Warn("poll transition rejected",
				zap.String("booking_id", string(sess.bookingID)),
				zap.String("to", string(newStatus)),
				zap.Error(err))
		} else {
			sess.mu.Lock()
			sess.lastStatus = newStatus
			sess.mu.Unlock()
		}
	}
	return terminal
}
