package reservation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"atlas-air/internal/auth"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	InsertReservation(ctx context.Context, r *models.Reservation) error
	GetReservationByID(ctx context.Context, id int64) (*models.Reservation, error)
	GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error)
	UpdateReservation(ctx context.Context, r *models.Reservation) error
	CancelReservation(ctx context.Context, id int64, at time.Time) error
	DeleteReservation(ctx context.Context, id int64) error
	ListReservations(ctx context.Context) ([]models.Reservation, error)
	ListReservationsByCustomer(ctx context.Context, customerID int64) ([]models.Reservation, error)
}

type SeatCatalog interface {
	GetAvailableSeatsByFlightID(ctx context.Context, flightID int64) ([]models.Seat, error)
	GetSeatByID(ctx context.Context, id int64) (*models.Seat, error)
	SeatServesFlight(ctx context.Context, flightID, seatID int64) (bool, error)
}

type FlightCatalog interface {
	GetFlightByID(ctx context.Context, id int64) (*models.Flight, error)
}

type SeatLock interface {
	IsSeatLocked(ctx context.Context, flightID, seatID int64) (bool, error)
	LockSeat(ctx context.Context, flightID, seatID int64, owner string) (bool, error)
	UnlockSeat(ctx context.Context, flightID, seatID int64, owner string) error
}

type EventPublisher interface {
	PublishReservationCreated(ctx context.Context, r models.Reservation) error
	PublishReservationCancelled(ctx context.Context, r models.Reservation) error
	PublishSeatStatus(ctx context.Context, ev models.SeatStatusEvent) error
}

type SeatNotifier interface {
	EmitSeatStatus(ev models.SeatStatusEvent)
}

// ReservationService owns the reservation lifecycle. Lock, Events and
// Notifier are optional.
type ReservationService struct {
	DB       DBLayer
	Seats    SeatCatalog
	Flights  FlightCatalog
	Lock     SeatLock
	Events   EventPublisher
	Notifier SeatNotifier
	Logger   *logger.Logger

	now     func() time.Time
	newCode func() string

	pickMu sync.Mutex
	pick   func(n int) int
}

func NewReservationService(db DBLayer, seats SeatCatalog, flights FlightCatalog, lock SeatLock, events EventPublisher, notifier SeatNotifier, log *logger.Logger) *ReservationService {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ReservationService{
		DB:       db,
		Seats:    seats,
		Flights:  flights,
		Lock:     lock,
		Events:   events,
		Notifier: notifier,
		Logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
		newCode:  NewReservationCode,
		pick:     rng.Intn,
	}
}

// ---------------- QUERIES ----------------

func (s *ReservationService) AvailableSeats(ctx context.Context, flightID int64) ([]models.Seat, error) {
	return s.Seats.GetAvailableSeatsByFlightID(ctx, flightID)
}

// SeatMap returns the flight and its available seats.
func (s *ReservationService) SeatMap(ctx context.Context, flightID int64) (*models.Flight, []models.Seat, error) {
	flight, err := s.Flights.GetFlightByID(ctx, flightID)
	if err != nil {
		return nil, nil, fmt.Errorf("flight %d: %w", flightID, err)
	}
	seats, err := s.Seats.GetAvailableSeatsByFlightID(ctx, flightID)
	if err != nil {
		return nil, nil, err
	}
	return flight, seats, nil
}

// List returns every reservation for admins and the caller's own otherwise.
func (s *ReservationService) List(ctx context.Context, caller auth.Identity) ([]models.Reservation, error) {
	switch {
	case caller.IsAdmin():
		return s.DB.ListReservations(ctx)
	case caller.Role == auth.RoleCustomer && caller.CustomerID != 0:
		return s.DB.ListReservationsByCustomer(ctx, caller.CustomerID)
	default:
		return nil, models.ErrUnauthenticated
	}
}

func (s *ReservationService) Get(ctx context.Context, id int64) (*models.Reservation, error) {
	r, err := s.DB.GetReservationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", id, err)
	}
	return r, nil
}

func (s *ReservationService) GetByCode(ctx context.Context, code string) (*models.Reservation, error) {
	r, err := s.DB.GetReservationByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", code, err)
	}
	return r, nil
}

// GetOwned returns the reservation only when caller owns it or is an admin.
func (s *ReservationService) GetOwned(ctx context.Context, caller auth.Identity, code string) (*models.Reservation, error) {
	r, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !auth.Authorize(caller, r.CustomerID) {
		return nil, models.ErrForbidden
	}
	return r, nil
}

// ---------------- CREATION ----------------

// Purchase books a specific seat for customerID, which must come from the
// authenticated identity.
func (s *ReservationService) Purchase(ctx context.Context, customerID, flightID, seatID int64) (*models.Reservation, error) {
	if _, err := s.Flights.GetFlightByID(ctx, flightID); err != nil {
		return nil, fmt.Errorf("flight %d: %w", flightID, err)
	}
	seat, err := s.Seats.GetSeatByID(ctx, seatID)
	if err != nil {
		return nil, fmt.Errorf("seat %d: %w", seatID, err)
	}
	serves, err := s.Seats.SeatServesFlight(ctx, flightID, seatID)
	if err != nil {
		return nil, err
	}
	if !serves {
		v := models.NewValidationError()
		v.Add("seatId", "seat is not on an aircraft serving this flight")
		return nil, v
	}
	return s.create(ctx, customerID, flightID, *seat)
}

// QuickReserve books a uniformly random available seat on the flight. Seats
// another purchase is locking right now are left out of the draw.
func (s *ReservationService) QuickReserve(ctx context.Context, customerID, flightID int64) (*models.QuickReserveResult, error) {
	if _, err := s.Flights.GetFlightByID(ctx, flightID); err != nil {
		return nil, fmt.Errorf("flight %d: %w", flightID, err)
	}
	seats, err := s.Seats.GetAvailableSeatsByFlightID(ctx, flightID)
	if err != nil {
		return nil, err
	}
	if len(seats) == 0 {
		return nil, models.ErrNoSeatsAvailable
	}

	seats = s.unlockedSeats(ctx, flightID, seats)

	s.pickMu.Lock()
	seat := seats[s.pick(len(seats))]
	s.pickMu.Unlock()

	r, err := s.create(ctx, customerID, flightID, seat)
	if err != nil {
		return nil, err
	}
	return &models.QuickReserveResult{Reservation: *r, Seat: seat}, nil
}

// unlockedSeats drops seats under a purchase lock. When every seat is locked,
// or the lock store cannot answer, the full list is kept and create decides.
func (s *ReservationService) unlockedSeats(ctx context.Context, flightID int64, seats []models.Seat) []models.Seat {
	if s.Lock == nil {
		return seats
	}
	free := make([]models.Seat, 0, len(seats))
	for _, seat := range seats {
		locked, err := s.Lock.IsSeatLocked(ctx, flightID, seat.ID)
		if err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Seat lock check failed on flight %d: %v", flightID, err))
			return seats
		}
		if !locked {
			free = append(free, seat)
		}
	}
	if len(free) == 0 {
		return seats
	}
	return free
}

func (s *ReservationService) create(ctx context.Context, customerID, flightID int64, seat models.Seat) (*models.Reservation, error) {
	if s.Lock != nil {
		owner := uuid.NewString()
		ok, err := s.Lock.LockSeat(ctx, flightID, seat.ID, owner)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.ErrSeatUnavailable
		}
		defer func() {
			if err := s.Lock.UnlockSeat(context.Background(), flightID, seat.ID, owner); err != nil {
				s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release seat lock %d/%d: %v", flightID, seat.ID, err))
			}
		}()
	}

	r := &models.Reservation{
		ReservationCode: s.newCode(),
		CustomerID:      customerID,
		FlightID:        flightID,
		SeatID:          seat.ID,
		Status:          models.ReservationStatusConfirmed,
		ReservationDate: s.now(),
	}
	if err := s.DB.CreateReservation(ctx, r); err != nil {
		if errors.Is(err, models.ErrSeatUnavailable) {
			s.Logger.LogReservation("CONFLICT", r.ReservationCode, fmt.Sprintf("seat %s on flight %d already taken", seat.SeatNumber, flightID))
		}
		return nil, err
	}

	s.Logger.LogReservation("CREATE", r.ReservationCode, fmt.Sprintf("customer %d flight %d seat %s", customerID, flightID, seat.SeatNumber))
	s.publishCreated(ctx, *r, seat.SeatNumber)
	return r, nil
}

// ---------------- CANCELLATION ----------------

// Cancel marks the reservation Cancelled when caller owns it or is an admin.
// Cancelling twice succeeds and re-stamps the cancellation time.
func (s *ReservationService) Cancel(ctx context.Context, caller auth.Identity, reservationID int64) (*models.Reservation, error) {
	r, err := s.DB.GetReservationByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", reservationID, err)
	}
	if !auth.Authorize(caller, r.CustomerID) {
		s.Logger.LogSecurity("CANCEL_DENIED", fmt.Sprintf("customer %d tried to cancel %s", caller.CustomerID, r.ReservationCode))
		return nil, models.ErrForbidden
	}

	at := s.now()
	if err := s.DB.CancelReservation(ctx, r.ID, at); err != nil {
		return nil, err
	}
	wasActive := r.Active()
	r.Status = models.ReservationStatusCancelled
	r.CancellationDate = &at

	s.Logger.LogReservation("CANCEL", r.ReservationCode, fmt.Sprintf("by customer %d", caller.CustomerID))
	s.publishCancelled(ctx, *r, wasActive)
	return r, nil
}

// ---------------- ADMIN ----------------

// AdminCreate stores a reservation as given, without the availability
// pre-check. The storage guard still rejects a second active booking.
func (s *ReservationService) AdminCreate(ctx context.Context, in models.ReservationInput) (*models.Reservation, error) {
	if err := s.validateAdminInput(ctx, &in); err != nil {
		return nil, err
	}
	if in.ReservationCode == "" {
		in.ReservationCode = s.newCode()
	}
	if in.Status == "" {
		in.Status = models.ReservationStatusConfirmed
	}

	r := &models.Reservation{
		ReservationCode: in.ReservationCode,
		CustomerID:      in.CustomerID,
		FlightID:        in.FlightID,
		SeatID:          in.SeatID,
		Status:          in.Status,
		ReservationDate: s.now(),
	}
	if r.Status == models.ReservationStatusCancelled {
		at := s.now()
		r.CancellationDate = &at
	}
	if err := s.DB.InsertReservation(ctx, r); err != nil {
		return nil, err
	}

	s.Logger.LogReservation("ADMIN_CREATE", r.ReservationCode, fmt.Sprintf("customer %d flight %d seat %d", r.CustomerID, r.FlightID, r.SeatID))
	if r.Active() {
		s.publishCreated(ctx, *r, "")
	}
	return r, nil
}

// AdminUpdate rewrites the editable fields. A Cancelled reservation cannot
// go back to Confirmed.
func (s *ReservationService) AdminUpdate(ctx context.Context, id int64, in models.ReservationInput) (*models.Reservation, error) {
	existing, err := s.DB.GetReservationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", id, err)
	}
	if err := s.validateAdminInput(ctx, &in); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = existing.Status
	}
	if !existing.Active() && in.Status == models.ReservationStatusConfirmed {
		return nil, models.ErrInvalidTransition
	}

	updated := *existing
	updated.Customer, updated.Flight, updated.Seat = nil, nil, nil
	if in.ReservationCode != "" {
		updated.ReservationCode = in.ReservationCode
	}
	updated.CustomerID = in.CustomerID
	updated.FlightID = in.FlightID
	updated.SeatID = in.SeatID
	updated.Status = in.Status
	if existing.Active() && !updated.Active() {
		at := s.now()
		updated.CancellationDate = &at
	}

	if err := s.DB.UpdateReservation(ctx, &updated); err != nil {
		return nil, err
	}

	s.Logger.LogReservation("ADMIN_UPDATE", updated.ReservationCode, fmt.Sprintf("status %s seat %d", updated.Status, updated.SeatID))

	moved := existing.FlightID != updated.FlightID || existing.SeatID != updated.SeatID
	switch {
	case existing.Active() && !updated.Active():
		// the freed seat is the one held before the edit
		s.publishCancelled(ctx, updated, false)
		s.notifySeat(ctx, existing.FlightID, existing.SeatID, "", models.SeatStatusAvailable)
	case existing.Active() && moved:
		s.notifySeat(ctx, existing.FlightID, existing.SeatID, "", models.SeatStatusAvailable)
		s.notifySeat(ctx, updated.FlightID, updated.SeatID, "", models.SeatStatusReserved)
	}
	return &updated, nil
}

// Delete removes a reservation. References from other rows surface as
// ErrStorageConflict.
func (s *ReservationService) Delete(ctx context.Context, id int64) error {
	existing, err := s.DB.GetReservationByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reservation %d: %w", id, err)
	}
	if err := s.DB.DeleteReservation(ctx, id); err != nil {
		return err
	}
	s.Logger.LogReservation("ADMIN_DELETE", existing.ReservationCode, "deleted")
	if existing.Active() {
		s.notifySeat(ctx, existing.FlightID, existing.SeatID, "", models.SeatStatusAvailable)
	}
	return nil
}

func (s *ReservationService) validateAdminInput(ctx context.Context, in *models.ReservationInput) error {
	in.ReservationCode = strings.ToUpper(strings.TrimSpace(in.ReservationCode))

	v := models.NewValidationError()
	if err := in.Validate(); err != nil {
		var fields *models.ValidationError
		if errors.As(err, &fields) {
			v = fields
		}
	}
	if in.ReservationCode != "" && !ValidCode(in.ReservationCode) {
		v.Add("reservationCode", "reservation code must look like R-1A2B3C4D")
	}
	if in.FlightID > 0 {
		if _, err := s.Flights.GetFlightByID(ctx, in.FlightID); errors.Is(err, models.ErrNotFound) {
			v.Add("flightId", "flight does not exist")
		} else if err != nil {
			return err
		}
	}
	if in.SeatID > 0 {
		if _, err := s.Seats.GetSeatByID(ctx, in.SeatID); errors.Is(err, models.ErrNotFound) {
			v.Add("seatId", "seat does not exist")
		} else if err != nil {
			return err
		}
	}
	return v.OrNil()
}

// ---------------- EVENTS ----------------

func (s *ReservationService) publishCreated(ctx context.Context, r models.Reservation, seatNumber string) {
	if s.Events != nil {
		if err := s.Events.PublishReservationCreated(ctx, r); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Kafka publish error (reservation created %s): %v", r.ReservationCode, err))
		}
	}
	s.notifySeat(ctx, r.FlightID, r.SeatID, seatNumber, models.SeatStatusReserved)
}

func (s *ReservationService) publishCancelled(ctx context.Context, r models.Reservation, seatFreed bool) {
	if s.Events != nil {
		if err := s.Events.PublishReservationCancelled(ctx, r); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Kafka publish error (reservation cancelled %s): %v", r.ReservationCode, err))
		}
	}
	if seatFreed {
		s.notifySeat(ctx, r.FlightID, r.SeatID, "", models.SeatStatusAvailable)
	}
}

func (s *ReservationService) notifySeat(ctx context.Context, flightID, seatID int64, seatNumber string, status models.SeatStatus) {
	ev := models.NewSeatStatusEvent(flightID, seatID, seatNumber, status)
	if s.Notifier != nil {
		s.Notifier.EmitSeatStatus(ev)
	}
	if s.Events != nil {
		if err := s.Events.PublishSeatStatus(ctx, ev); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Kafka publish error (seat %d %s): %v", seatID, status, err))
		}
	}
}
