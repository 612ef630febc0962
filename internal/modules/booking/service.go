// README: Booking orchestrator; drives decision → offer selection → booking → confirmed.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caretransit/internal/modules/appointment"
	"caretransit/internal/modules/catalog"
	"caretransit/internal/provider"
	"caretransit/internal/types"
)

var (
	ErrNotFound            = errors.New("booking not found")
	ErrValidation          = errors.New("invalid input")
	ErrInvalidState        = errors.New("invalid orchestration state")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrStaleOffer          = errors.New("offer not in latest quote")
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrConflict            = errors.New("booking state conflict")
	ErrBookingFailed       = errors.New("provider booking failed")
)

// Store is the persistence contract for bookings. UpdateStatus must be a
// compare-and-swap on (status, status_version) so that concurrent writers
// serialize per booking.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	GetByAppointment(ctx context.Context, appointmentID types.ID) (*Booking, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	AppendEvent(ctx context.Context, e *StatusEvent) error
}

// Trip is the pickup/dropoff pair a quote was produced for.
type Trip struct {
	Pickup  types.Location `json:"pickup"`
	Dropoff types.Location `json:"dropoff"`
}

// Flows keeps the short-lived orchestration state per appointment: the
// decision stage, the most recent quote, and the selected offer.
type Flows interface {
	GetState(ctx context.Context, appointmentID types.ID) (FlowState, bool, error)
	SetState(ctx context.Context, appointmentID types.ID, state FlowState) error
	SaveQuote(ctx context.Context, appointmentID types.ID, trip Trip, offers []catalog.ServiceOffer) error
	GetQuote(ctx context.Context, appointmentID types.ID) (Trip, []catalog.ServiceOffer, bool, error)
	SaveSelection(ctx context.Context, appointmentID types.ID, offerID string) error
	GetSelection(ctx context.Context, appointmentID types.ID) (string, bool, error)
}

type Catalog interface {
	ListOffers(ctx context.Context, pickup, dropoff types.Location) []catalog.ServiceOffer
}

type Gateway interface {
	Book(ctx context.Context, req provider.BookRequest) (provider.BookingResult, error)
	Cancel(ctx context.Context, providerBookingID string) error
}

type Appointments interface {
	Get(ctx context.Context, id types.ID) (*appointment.Appointment, error)
	SetTransportStatus(ctx context.Context, id types.ID, status string) error
}

type Notifier interface {
	OnTransition(ctx context.Context, b *Booking, from, to Status)
}

type Service struct {
	store    Store
	flows    Flows
	catalog  Catalog
	gateway  Gateway
	appts    Appointments
	notifier Notifier
	log      *zap.Logger

	startTracking func(bookingID types.ID)

	// inflight guards against a second orchestration step starting for the
	// same appointment or booking while one is pending.
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewService(store Store, flows Flows, cat Catalog, gw Gateway, appts Appointments, notifier Notifier, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		flows:    flows,
		catalog:  cat,
		gateway:  gw,
		appts:    appts,
		notifier: notifier,
		log:      log,
		inflight: map[string]struct{}{},
	}
}

// BindTracking registers the hook that starts a tracking session for a
// freshly confirmed booking. Wired by main; breaks the package cycle with
// the tracking supervisor.
func (s *Service) BindTracking(start func(bookingID types.ID)) {
	s.startTracking = start
}

type DecideCommand struct {
	AppointmentID types.ID
	Accept        bool
	Role          string
}

type QuoteCommand struct {
	AppointmentID types.ID
	Pickup        types.Location
	Dropoff       types.Location
}

type SelectCommand struct {
	AppointmentID types.ID
	OfferID       string
	Role          string
}

type ConfirmCommand struct {
	AppointmentID  types.ID
	PassengerName  string
	PassengerPhone string
	Role           string
}

type CancelCommand struct {
	BookingID types.ID
	Role      string
	Reason    string
}

// Decide records the transport decision for an appointment. Declining sets
// the appointment's transport status back to none; accepting requires the
// appointment to actually need transport.
func (s *Service) Decide(ctx context.Context, cmd DecideCommand) error {
	release, err := s.acquire("appt:" + string(cmd.AppointmentID))
	if err != nil {
		return err
	}
	defer release()

	state, ok, err := s.flows.GetState(ctx, cmd.AppointmentID)
	if err != nil {
		return err
	}
	if ok && state != FlowAwaitingDecision {
		return ErrInvalidState
	}

	appt, err := s.appts.Get(ctx, cmd.AppointmentID)
	if err != nil {
		return err
	}

	if !cmd.Accept {
		if err := s.appts.SetTransportStatus(ctx, cmd.AppointmentID, string(StatusNone)); err != nil {
			return err
		}
		return s.flows.SetState(ctx, cmd.AppointmentID, FlowDeclined)
	}

	if !appt.RequiresTransport {
		return ErrInvalidState
	}
	return s.flows.SetState(ctx, cmd.AppointmentID, FlowSelectingOffer)
}

// ListOffers quotes the trip and remembers the result so a later selection
// can be checked against it.
func (s *Service) ListOffers(ctx context.Context, cmd QuoteCommand) ([]catalog.ServiceOffer, error) {
	release, err := s.acquire("appt:" + string(cmd.AppointmentID))
	if err != nil {
		return nil, err
	}
	defer release()

	state, ok, err := s.flows.GetState(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !ok || state != FlowSelectingOffer {
		return nil, ErrInvalidState
	}

	offers := s.catalog.ListOffers(ctx, cmd.Pickup, cmd.Dropoff)
	trip := Trip{Pickup: cmd.Pickup, Dropoff: cmd.Dropoff}
	if err := s.flows.SaveQuote(ctx, cmd.AppointmentID, trip, offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// SelectOffer picks one offer out of the most recent quote. An offer id that
// is not in that quote is stale and rejected.
func (s *Service) SelectOffer(ctx context.Context, cmd SelectCommand) error {
	release, err := s.acquire("appt:" + string(cmd.AppointmentID))
	if err != nil {
		return err
	}
	defer release()

	state, ok, err := s.flows.GetState(ctx, cmd.AppointmentID)
	if err != nil {
		return err
	}
	if !ok || state != FlowSelectingOffer {
		return ErrInvalidState
	}

	_, offers, ok, err := s.flows.GetQuote(ctx, cmd.AppointmentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStaleOffer
	}
	found := false
	for _, o := range offers {
		if o.ID == cmd.OfferID {
			found = true
			break
		}
	}
	if !found {
		return ErrStaleOffer
	}

	if err := s.flows.SaveSelection(ctx, cmd.AppointmentID, cmd.OfferID); err != nil {
		return err
	}
	return s.flows.SetState(ctx, cmd.AppointmentID, FlowBooking)
}

// Confirm places the booking with the provider and, on success, creates the
// TransportBooking, mirrors the appointment status, and starts tracking.
// Provider retries happen inside the gateway client; when they are
// exhausted the flow ends in Failed with the last provider error attached.
func (s *Service) Confirm(ctx context.Context, cmd ConfirmCommand) (*Booking, error) {
	release, err := s.acquire("appt:" + string(cmd.AppointmentID))
	if err != nil {
		return nil, err
	}
	defer release()

	state, ok, err := s.flows.GetState(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !ok || state != FlowBooking {
		return nil, ErrInvalidState
	}

	trip, offers, ok, err := s.flows.GetQuote(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleOffer
	}
	offerID, ok, err := s.flows.GetSelection(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleOffer
	}
	var selected *catalog.ServiceOffer
	for i := range offers {
		if offers[i].ID == offerID {
			selected = &offers[i]
			break
		}
	}
	if selected == nil {
		return nil, ErrStaleOffer
	}

	if trip.Pickup.Address == "" {
		return nil, fmt.Errorf("%w: pickup address is required", ErrValidation)
	}
	if !phoneValid(cmd.PassengerPhone) {
		return nil, fmt.Errorf("%w: passenger phone is required", ErrValidation)
	}

	appt, err := s.appts.Get(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Book(ctx, provider.BookRequest{
		OfferID:        selected.ID,
		PickupLat:      trip.Pickup.Point.Lat,
		PickupLng:      trip.Pickup.Point.Lng,
		PickupAddress:  trip.Pickup.Address,
		DropoffLat:     trip.Dropoff.Point.Lat,
		DropoffLng:     trip.Dropoff.Point.Lng,
		DropoffAddress: trip.Dropoff.Address,
		PassengerName:  cmd.PassengerName,
		PassengerPhone: cmd.PassengerPhone,
		ScheduledAt:    appt.ScheduledAt,
	})
	if err != nil {
		if stateErr := s.flows.SetState(ctx, cmd.AppointmentID, FlowFailed); stateErr != nil {
			s.log.Warn("failed to record failed flow state", zap.Error(stateErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrBookingFailed, err)
	}

	now := time.Now()
	b := &Booking{
		ID:            types.ID(uuid.NewString()),
		AppointmentID: cmd.AppointmentID,
		PatientID:     appt.PatientID,
		Offer: OfferSnapshot{
			OfferID:     selected.ID,
			DisplayName: selected.DisplayName,
			FareMinor:   selected.EstimatedFareMinor,
			EtaMinutes:  selected.EstimatedEtaMinutes,
		},
		Pickup:             trip.Pickup,
		Dropoff:            trip.Dropoff,
		PassengerName:      cmd.PassengerName,
		PassengerPhone:     cmd.PassengerPhone,
		Status:             StatusConfirmed,
		StatusVersion:      0,
		DriverName:         res.DriverName,
		DriverPhone:        res.DriverPhone,
		VehicleID:          res.VehicleID,
		ProviderBookingID:  res.ProviderBookingID,
		CreatedAt:          now,
		LastStatusChangeAt: now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &StatusEvent{
		BookingID:  b.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusConfirmed,
		ActorRole:  cmd.Role,
		CreatedAt:  now,
	})
	if err := s.appts.SetTransportStatus(ctx, cmd.AppointmentID, string(StatusConfirmed)); err != nil {
		s.log.Warn("appointment status mirror failed", zap.String("appointment_id", string(cmd.AppointmentID)), zap.Error(err))
	}
	if err := s.flows.SetState(ctx, cmd.AppointmentID, FlowConfirmed); err != nil {
		s.log.Warn("flow state update failed", zap.Error(err))
	}

	if s.notifier != nil {
		s.notifier.OnTransition(ctx, b, StatusNone, StatusConfirmed)
	}
	if s.startTracking != nil {
		s.startTracking(b.ID)
	}
	return b, nil
}

// Cancel is the administrative cancellation path. Cancellation is only
// reachable before pickup; afterwards it is rejected and the status is kept.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	release, err := s.acquire("booking:" + string(cmd.BookingID))
	if err != nil {
		return err
	}
	defer release()

	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	if !CanTransition(b.Status, StatusCancelled) {
		return ErrInvalidTransition
	}
	if err := s.gateway.Cancel(ctx, b.ProviderBookingID); err != nil {
		return err
	}
	return s.advance(ctx, b, StatusCancelled, cmd.Role)
}

// AdvanceStatus applies a provider-observed progress transition. Transitions
// absent from the table are rejected with ErrInvalidTransition and the
// previous status is retained.
func (s *Service) AdvanceStatus(ctx context.Context, id types.ID, to Status, actorRole string) error {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.advance(ctx, b, to, actorRole)
}

func (s *Service) advance(ctx context.Context, b *Booking, to Status, actorRole string) error {
	from := b.Status
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	applied, err := s.store.UpdateStatus(ctx, b.ID, from, to, b.StatusVersion)
	if err != nil {
		return err
	}
	if !applied {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &StatusEvent{
		BookingID:  b.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorRole:  actorRole,
		CreatedAt:  time.Now(),
	})
	if err := s.appts.SetTransportStatus(ctx, b.AppointmentID, string(to)); err != nil {
		s.log.Warn("appointment status mirror failed", zap.String("appointment_id", string(b.AppointmentID)), zap.Error(err))
	}

	updated := *b
	updated.Status = to
	updated.StatusVersion = b.StatusVersion + 1
	updated.LastStatusChangeAt = time.Now()
	if s.notifier != nil {
		s.notifier.OnTransition(ctx, &updated, from, to)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByAppointment(ctx context.Context, appointmentID types.ID) (*Booking, error) {
	return s.store.GetByAppointment(ctx, appointmentID)
}

func (s *Service) acquire(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, ErrOperationInProgress
	}
	s.inflight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, nil
}

func phoneValid(phone string) bool {
	if phone == "" {
		return false
	}
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			return true
		}
	}
	return false
}
