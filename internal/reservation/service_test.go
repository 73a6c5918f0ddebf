package reservation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"atlas-air/internal/auth"
	"atlas-air/internal/database/dbtest"
	flightdb "atlas-air/internal/flights/db"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"
	"atlas-air/internal/reservation"
	reservationdb "atlas-air/internal/reservation/db"
	seatlock "atlas-air/internal/reservation/redis"
	seatdb "atlas-air/internal/seats/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEvents records published events
type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) PublishReservationCreated(ctx context.Context, r models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockEvents) PublishReservationCancelled(ctx context.Context, r models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockEvents) PublishSeatStatus(ctx context.Context, ev models.SeatStatusEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.SeatStatusEvent
}

func (n *recordingNotifier) EmitSeatStatus(ev models.SeatStatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

type env struct {
	svc      *reservation.ReservationService
	fx       dbtest.Fixture
	notifier *recordingNotifier
	mr       *miniredis.Miniredis
}

func setup(t *testing.T, events reservation.EventPublisher) env {
	t.Helper()
	bunDB := dbtest.NewTestDB(t)
	fx := dbtest.Seed(t, bunDB)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	log := logger.NewTestLogger(nil)
	notifier := &recordingNotifier{}
	svc := reservation.NewReservationService(
		&reservationdb.DB{Bun: bunDB},
		&seatdb.DB{Bun: bunDB},
		&flightdb.DB{Bun: bunDB},
		seatlock.NewRedis(client, time.Minute, log),
		events,
		notifier,
		log,
	)
	return env{svc: svc, fx: fx, notifier: notifier, mr: mr}
}

func customer(c models.Customer) auth.Identity {
	return auth.Identity{CustomerID: c.ID, Name: c.Name, Role: auth.RoleCustomer}
}

func seatIDs(seats []models.Seat) []int64 {
	ids := make([]int64, 0, len(seats))
	for _, s := range seats {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestLifecycle_AvailabilityFollowsReservations(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	s1, s2, s3 := e.fx.Seats[0], e.fx.Seats[1], e.fx.Seats[2]

	seats, err := e.svc.AvailableSeats(ctx, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{s1.ID, s2.ID, s3.ID}, seatIDs(seats))

	r, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, s1.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^R-[0-9A-F]{8}$`, r.ReservationCode)
	assert.Equal(t, models.ReservationStatusConfirmed, r.Status)
	assert.Equal(t, e.fx.Customer.ID, r.CustomerID)
	assert.WithinDuration(t, time.Now(), r.ReservationDate, time.Minute)

	seats, err = e.svc.AvailableSeats(ctx, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{s2.ID, s3.ID}, seatIDs(seats))

	cancelled, err := e.svc.Cancel(ctx, customer(e.fx.Customer), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationDate)

	seats, err = e.svc.AvailableSeats(ctx, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{s1.ID, s2.ID, s3.ID}, seatIDs(seats))

	// seat lock released after creation
	assert.False(t, e.mr.Exists(seatlock.SeatLockKey(e.fx.Flight.ID, s1.ID)))

	require.Len(t, e.notifier.events, 2)
	assert.Equal(t, models.SeatStatusReserved, e.notifier.events[0].Status)
	assert.Equal(t, "1A", e.notifier.events[0].SeatNumber)
	assert.Equal(t, models.SeatStatusAvailable, e.notifier.events[1].Status)
}

func TestPurchase_Validation(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	_, err := e.svc.Purchase(ctx, e.fx.Customer.ID, 9999, e.fx.Seats[0].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.OtherSeat.ID)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPurchase_SeatAlreadyTaken(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	_, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	require.NoError(t, err)

	_, err = e.svc.Purchase(ctx, e.fx.Stranger.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	assert.ErrorIs(t, err, models.ErrSeatUnavailable)
}

func TestPurchase_LockHeldElsewhere(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, e.mr.Set(seatlock.SeatLockKey(e.fx.Flight.ID, e.fx.Seats[0].ID), "another-instance"))

	_, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	assert.ErrorIs(t, err, models.ErrSeatUnavailable)

	seats, err := e.svc.AvailableSeats(ctx, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 3)
}

func TestPurchase_ConcurrentSameSeatOneWins(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	const buyers = 6
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[2].ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, models.ErrSeatUnavailable)
	}
	assert.Equal(t, 1, wins)

	list, err := e.svc.List(ctx, auth.Identity{CustomerID: e.fx.Admin.ID, Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestQuickReserve(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	res, err := e.svc.QuickReserve(ctx, e.fx.Customer.ID, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.Contains(t, seatIDs(e.fx.Seats), res.Seat.ID)
	assert.Equal(t, res.Seat.ID, res.Reservation.SeatID)

	_, err = e.svc.QuickReserve(ctx, e.fx.Customer.ID, e.fx.Flight.ID)
	require.NoError(t, err)
	_, err = e.svc.QuickReserve(ctx, e.fx.Customer.ID, e.fx.Flight.ID)
	require.NoError(t, err)

	seats, err := e.svc.AvailableSeats(ctx, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.Empty(t, seats)

	_, err = e.svc.QuickReserve(ctx, e.fx.Customer.ID, e.fx.Flight.ID)
	assert.ErrorIs(t, err, models.ErrNoSeatsAvailable)

	mine, err := e.svc.List(ctx, customer(e.fx.Customer))
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func TestQuickReserve_SkipsLockedSeats(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	s1, s2, s3 := e.fx.Seats[0], e.fx.Seats[1], e.fx.Seats[2]

	require.NoError(t, e.mr.Set(seatlock.SeatLockKey(e.fx.Flight.ID, s1.ID), "another-instance"))
	require.NoError(t, e.mr.Set(seatlock.SeatLockKey(e.fx.Flight.ID, s2.ID), "another-instance"))

	res, err := e.svc.QuickReserve(ctx, e.fx.Customer.ID, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.Equal(t, s3.ID, res.Seat.ID)

	// only locked seats left
	_, err = e.svc.QuickReserve(ctx, e.fx.Customer.ID, e.fx.Flight.ID)
	assert.ErrorIs(t, err, models.ErrSeatUnavailable)
}

func TestQuickReserve_NoAircraftCreatesNothing(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	_, err := e.svc.QuickReserve(ctx, e.fx.Customer.ID, e.fx.LaterFlight.ID)
	assert.ErrorIs(t, err, models.ErrNoSeatsAvailable)

	mine, err := e.svc.List(ctx, customer(e.fx.Customer))
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCancel_Authorization(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	r, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, customer(e.fx.Stranger), r.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	got, err := e.svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusConfirmed, got.Status)
	assert.Nil(t, got.CancellationDate)

	_, err = e.svc.Cancel(ctx, auth.Identity{}, r.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.svc.Cancel(ctx, auth.Identity{CustomerID: e.fx.Admin.ID, Role: auth.RoleAdmin}, r.ID)
	assert.NoError(t, err)

	_, err = e.svc.Cancel(ctx, customer(e.fx.Customer), 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancel_TwiceRestampsTime(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	r, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	require.NoError(t, err)

	first, err := e.svc.Cancel(ctx, customer(e.fx.Customer), r.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := e.svc.Cancel(ctx, customer(e.fx.Customer), r.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ReservationStatusCancelled, second.Status)
	assert.True(t, second.CancellationDate.After(*first.CancellationDate))

	// only the first cancellation freed the seat
	freed := 0
	for _, ev := range e.notifier.events {
		if ev.Status == models.SeatStatusAvailable {
			freed++
		}
	}
	assert.Equal(t, 1, freed)
}

func TestList_Scopes(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	_, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	require.NoError(t, err)
	_, err = e.svc.Purchase(ctx, e.fx.Stranger.ID, e.fx.Flight.ID, e.fx.Seats[1].ID)
	require.NoError(t, err)

	all, err := e.svc.List(ctx, auth.Identity{CustomerID: e.fx.Admin.ID, Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := e.svc.List(ctx, customer(e.fx.Stranger))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, e.fx.Stranger.ID, mine[0].CustomerID)

	_, err = e.svc.List(ctx, auth.Identity{})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestGetOwned(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	r, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	require.NoError(t, err)

	got, err := e.svc.GetOwned(ctx, customer(e.fx.Customer), r.ReservationCode)
	require.NoError(t, err)
	require.NotNil(t, got.Seat)
	assert.Equal(t, "1A", got.Seat.SeatNumber)

	_, err = e.svc.GetOwned(ctx, customer(e.fx.Stranger), r.ReservationCode)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.svc.GetOwned(ctx, customer(e.fx.Customer), "R-NOPE0000")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdminCreate(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	r, err := e.svc.AdminCreate(ctx, models.ReservationInput{
		ReservationCode: " r-abcd1234 ",
		CustomerID:      e.fx.Customer.ID,
		FlightID:        e.fx.Flight.ID,
		SeatID:          e.fx.OtherSeat.ID, // admin bypasses the seat/flight check
	})
	require.NoError(t, err)
	assert.Equal(t, "R-ABCD1234", r.ReservationCode)
	assert.Equal(t, models.ReservationStatusConfirmed, r.Status)

	_, err = e.svc.AdminCreate(ctx, models.ReservationInput{
		ReservationCode: "R-ABCD1234",
		CustomerID:      e.fx.Customer.ID,
		FlightID:        e.fx.Flight.ID,
		SeatID:          e.fx.Seats[0].ID,
	})
	assert.ErrorIs(t, err, models.ErrDuplicateReservationCode)

	// generated code, but the storage guard still blocks a double booking
	_, err = e.svc.AdminCreate(ctx, models.ReservationInput{
		CustomerID: e.fx.Stranger.ID,
		FlightID:   e.fx.Flight.ID,
		SeatID:     e.fx.OtherSeat.ID,
	})
	assert.ErrorIs(t, err, models.ErrSeatUnavailable)

	cancelled, err := e.svc.AdminCreate(ctx, models.ReservationInput{
		CustomerID: e.fx.Stranger.ID,
		FlightID:   e.fx.Flight.ID,
		SeatID:     e.fx.OtherSeat.ID,
		Status:     models.ReservationStatusCancelled,
	})
	require.NoError(t, err)
	assert.NotNil(t, cancelled.CancellationDate)
}

func TestAdminCreate_FieldErrors(t *testing.T) {
	e := setup(t, nil)

	_, err := e.svc.AdminCreate(context.Background(), models.ReservationInput{
		ReservationCode: "bogus",
		CustomerID:      0,
		FlightID:        9999,
		SeatID:          9999,
		Status:          "Pending",
	})
	require.ErrorIs(t, err, models.ErrValidation)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"reservationCode", "customerId", "flightId", "seatId", "status"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestAdminUpdate(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	r, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	require.NoError(t, err)

	moved, err := e.svc.AdminUpdate(ctx, r.ID, models.ReservationInput{
		CustomerID: e.fx.Customer.ID,
		FlightID:   e.fx.Flight.ID,
		SeatID:     e.fx.Seats[1].ID,
	})
	require.NoError(t, err)
	assert.Equal(t, r.ReservationCode, moved.ReservationCode)
	assert.Equal(t, models.ReservationStatusConfirmed, moved.Status)

	seats, err := e.svc.AvailableSeats(ctx, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{e.fx.Seats[0].ID, e.fx.Seats[2].ID}, seatIDs(seats))

	cancelled, err := e.svc.AdminUpdate(ctx, r.ID, models.ReservationInput{
		CustomerID: e.fx.Customer.ID,
		FlightID:   e.fx.Flight.ID,
		SeatID:     e.fx.Seats[1].ID,
		Status:     models.ReservationStatusCancelled,
	})
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancellationDate)

	_, err = e.svc.AdminUpdate(ctx, r.ID, models.ReservationInput{
		CustomerID: e.fx.Customer.ID,
		FlightID:   e.fx.Flight.ID,
		SeatID:     e.fx.Seats[1].ID,
		Status:     models.ReservationStatusConfirmed,
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = e.svc.AdminUpdate(ctx, 9999, models.ReservationInput{CustomerID: 1, FlightID: 1, SeatID: 1})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdminUpdate_CancelAndMoveFreesOriginalSeat(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	s1, s2, s3 := e.fx.Seats[0], e.fx.Seats[1], e.fx.Seats[2]

	mine, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, s1.ID)
	require.NoError(t, err)
	_, err = e.svc.Purchase(ctx, e.fx.Stranger.ID, e.fx.Flight.ID, s2.ID)
	require.NoError(t, err)
	before := len(e.notifier.events)

	_, err = e.svc.AdminUpdate(ctx, mine.ID, models.ReservationInput{
		CustomerID: e.fx.Customer.ID,
		FlightID:   e.fx.Flight.ID,
		SeatID:     s2.ID,
		Status:     models.ReservationStatusCancelled,
	})
	require.NoError(t, err)

	seats, err := e.svc.AvailableSeats(ctx, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{s1.ID, s3.ID}, seatIDs(seats))

	emitted := e.notifier.events[before:]
	require.Len(t, emitted, 1)
	assert.Equal(t, s1.ID, emitted[0].SeatID)
	assert.Equal(t, e.fx.Flight.ID, emitted[0].FlightID)
	assert.Equal(t, models.SeatStatusAvailable, emitted[0].Status)
}

func TestDelete(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	r, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, r.ID))
	_, err = e.svc.Get(ctx, r.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, e.svc.Delete(ctx, r.ID), models.ErrNotFound)

	seats, err := e.svc.AvailableSeats(ctx, e.fx.Flight.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 3)
}

func TestEventsPublished(t *testing.T) {
	events := new(MockEvents)
	e := setup(t, events)
	ctx := context.Background()

	events.On("PublishReservationCreated", mock.Anything, mock.MatchedBy(func(r models.Reservation) bool {
		return r.SeatID == e.fx.Seats[0].ID && r.Status == models.ReservationStatusConfirmed
	})).Return(nil).Once()
	events.On("PublishReservationCancelled", mock.Anything, mock.MatchedBy(func(r models.Reservation) bool {
		return r.Status == models.ReservationStatusCancelled
	})).Return(errors.New("broker down")).Once()
	events.On("PublishSeatStatus", mock.Anything, mock.Anything).Return(nil).Twice()

	r, err := e.svc.Purchase(ctx, e.fx.Customer.ID, e.fx.Flight.ID, e.fx.Seats[0].ID)
	require.NoError(t, err)

	// a failed publish does not undo the cancellation
	_, err = e.svc.Cancel(ctx, customer(e.fx.Customer), r.ID)
	require.NoError(t, err)

	events.AssertExpectations(t)
}

func TestNewReservationCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		code := reservation.NewReservationCode()
		assert.Regexp(t, `^R-[0-9A-F]{8}$`, code)
		assert.True(t, reservation.ValidCode(code))
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.False(t, reservation.ValidCode("R-abc"))
}
