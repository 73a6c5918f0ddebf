package reservation_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"atlas-air/internal/auth"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"
	"atlas-air/internal/reservation"
	"atlas-air/internal/utils"

	"github.com/go-chi/chi/v5"
)

type FlightLister interface {
	GetAllFlights(ctx context.Context) ([]models.Flight, error)
	GetFlightsByRoute(ctx context.Context, originID, destinationID int64) ([]models.Flight, error)
}

type SeatLister interface {
	GetAllSeats(ctx context.Context) ([]models.Seat, error)
}

type CustomerLister interface {
	List(ctx context.Context) ([]models.Customer, error)
}

type Handler struct {
	Service   *reservation.ReservationService
	Flights   FlightLister
	Seats     SeatLister
	Customers CustomerLister
	Logger    *logger.Logger
	LoginPath string
}

func NewHandler(service *reservation.ReservationService, flights FlightLister, seats SeatLister, customers CustomerLister, log *logger.Logger, loginPath string) *Handler {
	return &Handler{
		Service:   service,
		Flights:   flights,
		Seats:     seats,
		Customers: customers,
		Logger:    log,
		LoginPath: loginPath,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	toLogin := auth.RedirectToLogin(h.LoginPath, nil)

	r.Route("/Reservation", func(r chi.Router) {
		r.Get("/GetAvailableFlights", h.GetAvailableFlights)
		r.Get("/GetAvailableSeats", h.GetAvailableSeats)

		r.With(auth.Require(auth.Authenticated, toLogin)).Get("/", h.Index)
		r.With(auth.Require(auth.Authenticated, toLogin)).Get("/Index", h.Index)

		r.Group(func(r chi.Router) {
			r.Use(auth.Require(auth.AdminOnly, toLogin))
			r.Get("/Details/{id}", h.Details)
			r.Get("/Create", h.CreateForm)
			r.Post("/Create", h.Create)
			r.Get("/Edit/{id}", h.Details)
			r.Post("/Edit/{id}", h.Edit)
			r.Post("/Delete/{id}", h.Delete)
		})
	})
}

// GetAvailableFlights returns every flight on the route. Flights with no
// free seat are still listed.
func (h *Handler) GetAvailableFlights(w http.ResponseWriter, r *http.Request) {
	originID, err1 := strconv.ParseInt(r.URL.Query().Get("originId"), 10, 64)
	destinationID, err2 := strconv.ParseInt(r.URL.Query().Get("destinationId"), 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "originId and destinationId are required", http.StatusBadRequest)
		return
	}

	flights, err := h.Flights.GetFlightsByRoute(r.Context(), originID, destinationID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetAvailableFlights: %v", err))
		http.Error(w, "Could not load flights", http.StatusInternalServerError)
		return
	}

	out := make([]models.FlightSummary, 0, len(flights))
	for _, f := range flights {
		out = append(out, f.Summary())
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) GetAvailableSeats(w http.ResponseWriter, r *http.Request) {
	flightID, err := strconv.ParseInt(r.URL.Query().Get("flightId"), 10, 64)
	if err != nil {
		http.Error(w, "flightId is required", http.StatusBadRequest)
		return
	}

	seats, err := h.Service.AvailableSeats(r.Context(), flightID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetAvailableSeats: flight %d: %v", flightID, err))
		http.Error(w, "Could not load seats", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.SeatOptions(seats))
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	list, err := h.Service.List(r.Context(), caller)
	if err != nil {
		h.writeError(w, "Index", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "Details", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

type formOptions struct {
	Customers []models.Customer          `json:"customers"`
	Flights   []models.Flight            `json:"flights"`
	Seats     []models.Seat              `json:"seats"`
	Statuses  []models.ReservationStatus `json:"statuses"`
}

// CreateForm returns the option lists an admin form needs.
func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customers, err := h.Customers.List(ctx)
	if err != nil {
		h.writeError(w, "CreateForm", err)
		return
	}
	flights, err := h.Flights.GetAllFlights(ctx)
	if err != nil {
		h.writeError(w, "CreateForm", err)
		return
	}
	seats, err := h.Seats.GetAllSeats(ctx)
	if err != nil {
		h.writeError(w, "CreateForm", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, formOptions{
		Customers: customers,
		Flights:   flights,
		Seats:     seats,
		Statuses:  []models.ReservationStatus{models.ReservationStatusConfirmed, models.ReservationStatusCancelled},
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.Service.AdminCreate(r.Context(), in)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Reservation created by admin: %s", res.ReservationCode))
	utils.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, err := decodeInput(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.Service.AdminUpdate(r.Context(), id, in)
	if err != nil {
		h.writeError(w, "Edit", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.writeError(w, "Delete", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

// writeError maps service errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, action string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.WriteJSON(w, http.StatusBadRequest, utils.NewErrorResponse("Validation failed", verr.Fields))
	case errors.Is(err, models.ErrDuplicateReservationCode):
		utils.WriteJSON(w, http.StatusBadRequest, utils.NewErrorResponse("Validation failed", map[string]string{
			"reservationCode": "reservation code already in use",
		}))
	case errors.Is(err, models.ErrValidation):
		utils.WriteJSON(w, http.StatusBadRequest, utils.NewErrorResponse("A referenced record does not exist", nil))
	case errors.Is(err, models.ErrInvalidTransition):
		utils.WriteJSON(w, http.StatusBadRequest, utils.NewErrorResponse(err.Error(), nil))
	case errors.Is(err, models.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.NewErrorResponse("Reservation not found", nil))
	case errors.Is(err, models.ErrUnauthenticated), errors.Is(err, models.ErrForbidden):
		utils.WriteJSON(w, http.StatusForbidden, utils.NewErrorResponse("Not authorized", nil))
	case errors.Is(err, models.ErrSeatUnavailable):
		utils.WriteJSON(w, http.StatusConflict, utils.NewErrorResponse("Seat already has an active reservation on this flight", nil))
	case errors.Is(err, models.ErrStorageConflict):
		utils.WriteJSON(w, http.StatusConflict, utils.NewErrorResponse("Unable to complete the operation because related data exists", nil))
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", action, err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeInput accepts a JSON body or a urlencoded form.
func decodeInput(r *http.Request) (models.ReservationInput, error) {
	var in models.ReservationInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&in)
		return in, err
	}

	if err := r.ParseForm(); err != nil {
		return in, err
	}
	in.ReservationCode = r.PostForm.Get("reservationCode")
	in.Status = models.ReservationStatus(r.PostForm.Get("status"))
	var err error
	if in.CustomerID, err = formInt(r, "customerId"); err != nil {
		return in, err
	}
	if in.FlightID, err = formInt(r, "flightId"); err != nil {
		return in, err
	}
	if in.SeatID, err = formInt(r, "seatId"); err != nil {
		return in, err
	}
	return in, nil
}

// formInt treats a missing field as zero so that validation reports it.
func formInt(r *http.Request, key string) (int64, error) {
	v := strings.TrimSpace(r.PostForm.Get(key))
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid reservation ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
