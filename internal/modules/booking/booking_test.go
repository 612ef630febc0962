// README: Booking orchestrator tests (transition table, flow, invalid requests).
package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"caretransit/internal/modules/appointment"
	"caretransit/internal/modules/catalog"
	"caretransit/internal/provider"
	"caretransit/internal/types"
)

// TestCanTransition verifies the status transition table without a database.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusConfirmed, StatusEnRoute, true},
		{StatusEnRoute, StatusArrived, true},
		{StatusArrived, StatusPickedUp, true},
		{StatusPickedUp, StatusAtDestination, true},
		{StatusAtDestination, StatusReturning, true},
		{StatusReturning, StatusCompleted, true},
		// polls can skip intermediate states
		{StatusConfirmed, StatusArrived, true},
		{StatusEnRoute, StatusPickedUp, true},
		{StatusArrived, StatusCompleted, true},
		// cancellation only before pickup
		{StatusConfirmed, StatusCancelled, true},
		{StatusEnRoute, StatusCancelled, true},
		{StatusArrived, StatusCancelled, true},
		{StatusPickedUp, StatusCancelled, false},
		{StatusAtDestination, StatusCancelled, false},
		{StatusReturning, StatusCancelled, false},
		// no back-transitions
		{StatusArrived, StatusEnRoute, false},
		{StatusCompleted, StatusReturning, false},
		{StatusPickedUp, StatusConfirmed, false},
		// terminal states have no outgoing transitions
		{StatusCompleted, StatusEnRoute, false},
		{StatusCancelled, StatusEnRoute, false},
		{StatusFailed, StatusConfirmed, false},
		// self-transitions are not transitions
		{StatusEnRoute, StatusEnRoute, false},
		// unknown statuses never transition
		{StatusNone, StatusEnRoute, false},
		{StatusConfirmed, StatusNone, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

// ---- in-memory test doubles ----

type memStore struct {
	mu       sync.Mutex
	bookings map[types.ID]*Booking
	events   []StatusEvent
}

func newMemStore() *memStore {
	return &memStore{bookings: map[types.ID]*Booking{}}
}

func (s *memStore) Create(_ context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id types.ID) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) GetByAppointment(_ context.Context, appointmentID types.ID) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.AppointmentID == appointmentID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	if b.Status != from || b.StatusVersion != version {
		return false, nil
	}
	b.Status = to
	b.StatusVersion++
	b.LastStatusChangeAt = time.Now()
	return true, nil
}

func (s *memStore) AppendEvent(_ context.Context, e *StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

type memFlows struct {
	mu         sync.Mutex
	states     map[types.ID]FlowState
	quotes     map[types.ID]storedQuote
	selections map[types.ID]string
}

func newMemFlows() *memFlows {
	return &memFlows{
		states:     map[types.ID]FlowState{},
		quotes:     map[types.ID]storedQuote{},
		selections: map[types.ID]string{},
	}
}

func (f *memFlows) GetState(_ context.Context, id types.ID) (FlowState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[id]
	return st, ok, nil
}

func (f *memFlows) SetState(_ context.Context, id types.ID, state FlowState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = state
	return nil
}

func (f *memFlows) SaveQuote(_ context.Context, id types.ID, trip Trip, offers []catalog.ServiceOffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[id] = storedQuote{Trip: trip, Offers: offers}
	return nil
}

func (f *memFlows) GetQuote(_ context.Context, id types.ID) (Trip, []catalog.ServiceOffer, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[id]
	return q.Trip, q.Offers, ok, nil
}

func (f *memFlows) SaveSelection(_ context.Context, id types.ID, offerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selections[id] = offerID
	return nil
}

func (f *memFlows) GetSelection(_ context.Context, id types.ID) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel, ok := f.selections[id]
	return sel, ok, nil
}

type fakeCatalog struct {
	offers []catalog.ServiceOffer
}

func (c *fakeCatalog) ListOffers(context.Context, types.Location, types.Location) []catalog.ServiceOffer {
	out := make([]catalog.ServiceOffer, len(c.offers))
	copy(out, c.offers)
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	bookFn    func(provider.BookRequest) (provider.BookingResult, error)
	cancelErr error
	cancelled []string
}

func (g *fakeGateway) Book(_ context.Context, req provider.BookRequest) (provider.BookingResult, error) {
	if g.bookFn != nil {
		return g.bookFn(req)
	}
	return provider.BookingResult{
		ProviderBookingID: "prov-1",
		DriverName:        "Dana Driver",
		DriverPhone:       "555-0100",
		VehicleID:         "VAN-7",
		FareMinor:         2200,
	}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, providerBookingID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, providerBookingID)
	return nil
}

type fakeAppts struct {
	mu       sync.Mutex
	appts    map[types.ID]*appointment.Appointment
	statuses map[types.ID]string
}

func newFakeAppts() *fakeAppts {
	return &fakeAppts{
		appts:    map[types.ID]*appointment.Appointment{},
		statuses: map[types.ID]string{},
	}
}

func (a *fakeAppts) Get(_ context.Context, id types.ID) (*appointment.Appointment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	appt, ok := a.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (a *fakeAppts) SetTransportStatus(_ context.Context, id types.ID, status string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[id] = status
	return nil
}

func (a *fakeAppts) status(id types.ID) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statuses[id]
}

type recordingNotifier struct {
	mu          sync.Mutex
	transitions []string
}

func (n *recordingNotifier) OnTransition(_ context.Context, _ *Booking, from, to Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, string(from)+"->"+string(to))
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.transitions))
	copy(out, n.transitions)
	return out
}

type testEnv struct {
	svc      *Service
	store    *memStore
	flows    *memFlows
	gateway  *fakeGateway
	appts    *fakeAppts
	notifier *recordingNotifier

	mu      sync.Mutex
	tracked []types.ID
}

var testOffers = []catalog.ServiceOffer{
	{ID: "offer-cheap", DisplayName: "Shared Van", EstimatedFareMinor: 2200, EstimatedEtaMinutes: 12},
	{ID: "offer-fast", DisplayName: "Sedan", EstimatedFareMinor: 2500, EstimatedEtaMinutes: 8},
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:    newMemStore(),
		flows:    newMemFlows(),
		gateway:  &fakeGateway{},
		appts:    newFakeAppts(),
		notifier: &recordingNotifier{},
	}
	env.appts.appts["a1"] = &appointment.Appointment{
		ID:                "a1",
		PatientID:         "patient-1",
		ScheduledAt:       time.Now().Add(2 * time.Hour),
		RequiresTransport: true,
	}
	env.svc = NewService(env.store, env.flows, &fakeCatalog{offers: testOffers}, env.gateway, env.appts, env.notifier, zap.NewNop())
	env.svc.BindTracking(func(id types.ID) {
		env.mu.Lock()
		env.tracked = append(env.tracked, id)
		env.mu.Unlock()
	})
	return env
}

var testTrip = QuoteCommand{
	AppointmentID: "a1",
	Pickup: types.Location{
		Point:   types.Point{Lat: 40.7128, Lng: -74.006},
		Address: "12 Elm Street",
	},
	Dropoff: types.Location{
		Point:   types.Point{Lat: 40.7306, Lng: -73.9866},
		Address: "City Medical Center",
	},
}

func mustAccept(t *testing.T, env *testEnv) {
	t.Helper()
	if err := env.svc.Decide(context.Background(), DecideCommand{AppointmentID: "a1", Accept: true, Role: "patient"}); err != nil {
		t.Fatalf("decide: %v", err)
	}
}

func mustQuote(t *testing.T, env *testEnv) []catalog.ServiceOffer {
	t.Helper()
	offers, err := env.svc.ListOffers(context.Background(), testTrip)
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	return offers
}

func mustConfirm(t *testing.T, env *testEnv, offerID string) *Booking {
	t.Helper()
	ctx := context.Background()
	if err := env.svc.SelectOffer(ctx, SelectCommand{AppointmentID: "a1", OfferID: offerID, Role: "patient"}); err != nil {
		t.Fatalf("select offer: %v", err)
	}
	b, err := env.svc.Confirm(ctx, ConfirmCommand{
		AppointmentID:  "a1",
		PassengerName:  "Edna Example",
		PassengerPhone: "555-0199",
		Role:           "patient",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return b
}

func TestBookingFlowHappyPath(t *testing.T) {
	env := newTestEnv()
	mustAccept(t, env)

	state, _, _ := env.flows.GetState(context.Background(), "a1")
	if state != FlowSelectingOffer {
		t.Fatalf("expected selecting_offer after accept, got %s", state)
	}

	offers := mustQuote(t, env)
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}

	b := mustConfirm(t, env, "offer-cheap")
	if b.Status != StatusConfirmed {
		t.Errorf("expected confirmed booking, got %s", b.Status)
	}
	if b.Offer.FareMinor != 2200 {
		t.Errorf("expected snapshot of the 2200 offer, got %d", b.Offer.FareMinor)
	}
	if b.DriverName != "Dana Driver" || b.ProviderBookingID != "prov-1" {
		t.Errorf("driver details not captured: %+v", b)
	}
	if got := env.appts.status("a1"); got != string(StatusConfirmed) {
		t.Errorf("appointment transport status = %q, want confirmed", got)
	}
	if got := env.notifier.all(); len(got) != 1 || got[0] != "none->confirmed" {
		t.Errorf("unexpected notifications: %v", got)
	}
	env.mu.Lock()
	tracked := len(env.tracked)
	env.mu.Unlock()
	if tracked != 1 {
		t.Errorf("expected tracking to start once, got %d", tracked)
	}
}

func TestDeclineSetsAppointmentNone(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if err := env.svc.Decide(ctx, DecideCommand{AppointmentID: "a1", Accept: false, Role: "family_member"}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got := env.appts.status("a1"); got != string(StatusNone) {
		t.Errorf("appointment transport status = %q, want none", got)
	}
	// the decision is authoritative; a second one is rejected
	err := env.svc.Decide(ctx, DecideCommand{AppointmentID: "a1", Accept: true, Role: "patient"})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("second decide = %v, want ErrInvalidState", err)
	}
}

func TestAcceptRequiresTransportFlag(t *testing.T) {
	env := newTestEnv()
	env.appts.appts["a2"] = &appointment.Appointment{ID: "a2", PatientID: "patient-1", RequiresTransport: false}
	err := env.svc.Decide(context.Background(), DecideCommand{AppointmentID: "a2", Accept: true, Role: "patient"})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("accept without transport flag = %v, want ErrInvalidState", err)
	}
}

func TestSelectOfferNotInQuoteIsStale(t *testing.T) {
	env := newTestEnv()
	mustAccept(t, env)
	mustQuote(t, env)

	err := env.svc.SelectOffer(context.Background(), SelectCommand{AppointmentID: "a1", OfferID: "offer-unknown", Role: "patient"})
	if !errors.Is(err, ErrStaleOffer) {
		t.Errorf("stale select = %v, want ErrStaleOffer", err)
	}
}

func TestSelectOfferWithoutQuoteIsStale(t *testing.T) {
	env := newTestEnv()
	mustAccept(t, env)

	err := env.svc.SelectOffer(context.Background(), SelectCommand{AppointmentID: "a1", OfferID: "offer-cheap", Role: "patient"})
	if !errors.Is(err, ErrStaleOffer) {
		t.Errorf("select without quote = %v, want ErrStaleOffer", err)
	}
}

func TestConfirmValidatesInput(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv()
	mustAccept(t, env)
	noAddress := testTrip
	noAddress.Pickup.Address = ""
	if _, err := env.svc.ListOffers(ctx, noAddress); err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if err := env.svc.SelectOffer(ctx, SelectCommand{AppointmentID: "a1", OfferID: "offer-cheap", Role: "patient"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	_, err := env.svc.Confirm(ctx, ConfirmCommand{AppointmentID: "a1", PassengerName: "Edna", PassengerPhone: "555-0199", Role: "patient"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("confirm without pickup address = %v, want ErrValidation", err)
	}

	env = newTestEnv()
	mustAccept(t, env)
	mustQuote(t, env)
	if err := env.svc.SelectOffer(ctx, SelectCommand{AppointmentID: "a1", OfferID: "offer-cheap", Role: "patient"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	for _, phone := range []string{"", "no-digits-here"} {
		_, err := env.svc.Confirm(ctx, ConfirmCommand{AppointmentID: "a1", PassengerName: "Edna", PassengerPhone: phone, Role: "patient"})
		if !errors.Is(err, ErrValidation) {
			t.Errorf("confirm with phone %q = %v, want ErrValidation", phone, err)
		}
	}
}

func TestConfirmProviderFailureEndsInFailed(t *testing.T) {
	env := newTestEnv()
	env.gateway.bookFn = func(provider.BookRequest) (provider.BookingResult, error) {
		return provider.BookingResult{}, errors.New("gateway timeout")
	}
	mustAccept(t, env)
	mustQuote(t, env)
	ctx := context.Background()
	if err := env.svc.SelectOffer(ctx, SelectCommand{AppointmentID: "a1", OfferID: "offer-fast", Role: "patient"}); err != nil {
		t.Fatalf("select: %v", err)
	}

	_, err := env.svc.Confirm(ctx, ConfirmCommand{AppointmentID: "a1", PassengerName: "Edna", PassengerPhone: "555-0199", Role: "patient"})
	if !errors.Is(err, ErrBookingFailed) {
		t.Fatalf("confirm = %v, want ErrBookingFailed", err)
	}
	state, _, _ := env.flows.GetState(ctx, "a1")
	if state != FlowFailed {
		t.Errorf("flow state = %s, want failed", state)
	}
	if got := env.notifier.all(); len(got) != 0 {
		t.Errorf("no notifications expected for a failed booking, got %v", got)
	}
}

func TestAdvanceStatusRejectsOffTableTransition(t *testing.T) {
	env := newTestEnv()
	mustAccept(t, env)
	mustQuote(t, env)
	b := mustConfirm(t, env, "offer-cheap")

	ctx := context.Background()
	if err := env.svc.AdvanceStatus(ctx, b.ID, StatusPickedUp, "provider"); err != nil {
		t.Fatalf("confirmed -> picked_up (forward jump): %v", err)
	}
	err := env.svc.AdvanceStatus(ctx, b.ID, StatusEnRoute, "provider")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("back-transition = %v, want ErrInvalidTransition", err)
	}
	got, _ := env.svc.Get(ctx, b.ID)
	if got.Status != StatusPickedUp {
		t.Errorf("status after rejected transition = %s, want picked_up (retained)", got.Status)
	}
}

func TestCancelBeforePickup(t *testing.T) {
	env := newTestEnv()
	mustAccept(t, env)
	mustQuote(t, env)
	b := mustConfirm(t, env, "offer-cheap")

	ctx := context.Background()
	if err := env.svc.AdvanceStatus(ctx, b.ID, StatusEnRoute, "provider"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := env.svc.Cancel(ctx, CancelCommand{BookingID: b.ID, Role: "family_member", Reason: "appointment moved"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := env.svc.Get(ctx, b.ID)
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if len(env.gateway.cancelled) != 1 || env.gateway.cancelled[0] != "prov-1" {
		t.Errorf("provider cancel calls = %v", env.gateway.cancelled)
	}
}

func TestCancelAfterPickupRejected(t *testing.T) {
	env := newTestEnv()
	mustAccept(t, env)
	mustQuote(t, env)
	b := mustConfirm(t, env, "offer-cheap")

	ctx := context.Background()
	if err := env.svc.AdvanceStatus(ctx, b.ID, StatusPickedUp, "provider"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	err := env.svc.Cancel(ctx, CancelCommand{BookingID: b.ID, Role: "patient"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel after pickup = %v, want ErrInvalidTransition", err)
	}
	got, _ := env.svc.Get(ctx, b.ID)
	if got.Status != StatusPickedUp {
		t.Errorf("status = %s, want picked_up (retained)", got.Status)
	}
	if len(env.gateway.cancelled) != 0 {
		t.Errorf("provider cancel should not be called, got %v", env.gateway.cancelled)
	}
}

func TestSecondOrchestrationStepInProgress(t *testing.T) {
	env := newTestEnv()
	mustAccept(t, env)
	mustQuote(t, env)
	ctx := context.Background()
	if err := env.svc.SelectOffer(ctx, SelectCommand{AppointmentID: "a1", OfferID: "offer-cheap", Role: "patient"}); err != nil {
		t.Fatalf("select: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	env.gateway.bookFn = func(provider.BookRequest) (provider.BookingResult, error) {
		close(entered)
		<-release
		return provider.BookingResult{ProviderBookingID: "prov-1"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Confirm(ctx, ConfirmCommand{AppointmentID: "a1", PassengerName: "Edna", PassengerPhone: "555-0199", Role: "patient"})
		done <- err
	}()
	<-entered

	_, err := env.svc.Confirm(ctx, ConfirmCommand{AppointmentID: "a1", PassengerName: "Edna", PassengerPhone: "555-0199", Role: "patient"})
	if !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("concurrent confirm = %v, want ErrOperationInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first confirm: %v", err)
	}
}
