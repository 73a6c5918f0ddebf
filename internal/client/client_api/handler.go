package client_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"atlas-air/internal/auth"
	"atlas-air/internal/boardingpass"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"
	"atlas-air/internal/reservation"
	"atlas-air/internal/sse"
	"atlas-air/internal/utils"

	"github.com/go-chi/chi/v5"
)

type FlightLister interface {
	GetAllFlights(ctx context.Context) ([]models.Flight, error)
	GetFlightsByRoute(ctx context.Context, originID, destinationID int64) ([]models.Flight, error)
	GetAirports(ctx context.Context) ([]models.Airport, error)
}

type Handler struct {
	Reservations *reservation.ReservationService
	Flights      FlightLister
	QR           *boardingpass.QRGenerator
	Emitter      *sse.SeatEventEmitter
	Logger       *logger.Logger
	LoginPath    string
}

func NewHandler(reservations *reservation.ReservationService, flights FlightLister, qr *boardingpass.QRGenerator, emitter *sse.SeatEventEmitter, log *logger.Logger, loginPath string) *Handler {
	return &Handler{
		Reservations: reservations,
		Flights:      flights,
		QR:           qr,
		Emitter:      emitter,
		Logger:       log,
		LoginPath:    loginPath,
	}
}

// RegisterRoutes mounts the customer-facing endpoints under /Client.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/Client", func(r chi.Router) {
		r.Get("/", h.Index)
		r.Get("/Index", h.Index)
		r.Get("/Search", h.Search)
		r.Get("/Airports", h.Airports)
		r.Get("/GetFlightsByRoute", h.GetFlightsByRoute)
		r.Get("/Seats", h.Seats)
		r.Get("/Seats/stream", h.StreamSeats)
		r.Get("/PaymentConfirmation", h.PaymentConfirmation)
		r.Post("/QuickReserve", h.QuickReserve)
		r.Post("/CancelReservation", h.CancelReservation)

		r.With(auth.Require(auth.CustomerOnly, auth.RedirectToLogin(h.LoginPath, seatsReturnURL))).
			Post("/Purchase", h.Purchase)
		r.With(auth.Require(auth.Authenticated, auth.RedirectToLogin(h.LoginPath, nil))).
			Get("/BoardingPass", h.BoardingPass)
		r.With(auth.Require(auth.AdminOnly, auth.RedirectToLogin(h.LoginPath, nil))).
			Get("/VerifyBoardingPass", h.VerifyBoardingPass)
	})
}

// seatsReturnURL sends a denied purchase back to the seat list of its flight.
func seatsReturnURL(r *http.Request) string {
	if id, err := strconv.ParseInt(r.FormValue("flightId"), 10, 64); err == nil && id > 0 {
		return fmt.Sprintf("/Client/Seats?id=%d", id)
	}
	return "/Client/Search"
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/Client/Search", http.StatusFound)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	flights, err := h.Flights.GetAllFlights(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Search: failed to list flights: %v", err))
		http.Error(w, "Could not load flights", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, summaries(flights))
}

// Airports feeds the origin and destination pickers of the route search.
func (h *Handler) Airports(w http.ResponseWriter, r *http.Request) {
	airports, err := h.Flights.GetAirports(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Airports: %v", err))
		http.Error(w, "Could not load airports", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, airports)
}

func (h *Handler) GetFlightsByRoute(w http.ResponseWriter, r *http.Request) {
	originID, err1 := positiveID(r.URL.Query().Get("originId"))
	destinationID, err2 := positiveID(r.URL.Query().Get("destinationId"))
	if err1 != nil || err2 != nil {
		http.Error(w, "originId and destinationId are required", http.StatusBadRequest)
		return
	}

	flights, err := h.Flights.GetFlightsByRoute(r.Context(), originID, destinationID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetFlightsByRoute: %v", err))
		http.Error(w, "Could not load flights", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, summaries(flights))
}

type seatsResponse struct {
	Flight models.FlightSummary `json:"flight"`
	Seats  []models.Seat        `json:"seats"`
}

// Seats lists the available seats of ?id=. A missing or malformed id goes
// back to the search page.
func (h *Handler) Seats(w http.ResponseWriter, r *http.Request) {
	flightID, err := positiveID(r.URL.Query().Get("id"))
	if err != nil {
		http.Redirect(w, r, "/Client/Search", http.StatusFound)
		return
	}

	flight, seats, err := h.Reservations.SeatMap(r.Context(), flightID)
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "Flight not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Seats: flight %d: %v", flightID, err))
		http.Error(w, "Could not load seats", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, seatsResponse{Flight: flight.Summary(), Seats: seats})
}

// Purchase books the posted seat for the signed-in customer and redirects to
// the confirmation page.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	flightID, err1 := positiveID(r.FormValue("flightId"))
	seatID, err2 := positiveID(r.FormValue("seatId"))
	if err1 != nil || err2 != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.NewErrorResponse("flightId and seatId are required", nil))
		return
	}

	res, err := h.Reservations.Purchase(r.Context(), caller.CustomerID, flightID, seatID)
	if err != nil {
		h.writeError(w, "Purchase", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Purchase: %s for customer %d", res.ReservationCode, caller.CustomerID))
	http.Redirect(w, r, "/Client/PaymentConfirmation?code="+url.QueryEscape(res.ReservationCode), http.StatusSeeOther)
}

func (h *Handler) PaymentConfirmation(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if !reservation.ValidCode(code) {
		http.Error(w, "A valid reservation code is required", http.StatusBadRequest)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"reservationCode": code,
		"message":         "Your reservation is confirmed",
	})
}

type quickReserveResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	NeedsLogin      bool   `json:"needsLogin,omitempty"`
	Redirect        string `json:"redirect,omitempty"`
	SeatNumber      string `json:"seatNumber,omitempty"`
	ReservationCode string `json:"reservationCode,omitempty"`
	ReservationID   int64  `json:"reservationId,omitempty"`
}

// QuickReserve answers in JSON for every outcome so the seat page can react
// without a reload.
func (h *Handler) QuickReserve(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	flightID, idErr := positiveID(r.FormValue("flightId"))

	switch {
	case ok && caller.IsAdmin():
		utils.WriteJSON(w, http.StatusOK, quickReserveResponse{Message: "Quick reserve is not available for administrators"})
		return
	case !ok:
		target := "/Client/Search"
		if idErr == nil {
			target = fmt.Sprintf("/Client/Seats?id=%d", flightID)
		}
		utils.WriteJSON(w, http.StatusOK, quickReserveResponse{
			NeedsLogin: true,
			Message:    "Please sign in to reserve a seat",
			Redirect:   h.LoginPath + "?returnUrl=" + url.QueryEscape(target),
		})
		return
	case idErr != nil:
		utils.WriteJSON(w, http.StatusBadRequest, quickReserveResponse{Message: "Invalid flight"})
		return
	}

	res, err := h.Reservations.QuickReserve(r.Context(), caller.CustomerID, flightID)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, quickReserveResponse{
			Success:         true,
			SeatNumber:      res.Seat.SeatNumber,
			ReservationCode: res.Reservation.ReservationCode,
			ReservationID:   res.Reservation.ID,
		})
	case errors.Is(err, models.ErrNoSeatsAvailable):
		utils.WriteJSON(w, http.StatusOK, quickReserveResponse{Message: "No seats available on this flight"})
	case errors.Is(err, models.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, quickReserveResponse{Message: "Flight not found"})
	case errors.Is(err, models.ErrSeatUnavailable):
		utils.WriteJSON(w, http.StatusConflict, quickReserveResponse{Message: "Seat no longer available, please try again"})
	default:
		h.Logger.Error("API", fmt.Sprintf("QuickReserve: flight %d: %v", flightID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, quickReserveResponse{Message: "Could not complete the reservation"})
	}
}

type cancelResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	ReservationCode string `json:"reservationCode,omitempty"`
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	id, err := positiveID(r.FormValue("reservationId"))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, cancelResponse{Message: "Invalid reservation"})
		return
	}

	res, err := h.Reservations.Cancel(r.Context(), caller, id)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, cancelResponse{Success: true, Message: "Reservation cancelled", ReservationCode: res.ReservationCode})
	case errors.Is(err, models.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, cancelResponse{Message: "Reservation not found"})
	case errors.Is(err, models.ErrForbidden):
		utils.WriteJSON(w, http.StatusForbidden, cancelResponse{Message: "You are not allowed to cancel this reservation"})
	default:
		h.Logger.Error("API", fmt.Sprintf("CancelReservation: %d: %v", id, err))
		utils.WriteJSON(w, http.StatusInternalServerError, cancelResponse{Message: "Could not cancel the reservation"})
	}
}

// BoardingPass renders the encrypted QR of one of the caller's reservations.
func (h *Handler) BoardingPass(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	code := r.URL.Query().Get("code")

	res, err := h.Reservations.GetOwned(r.Context(), caller, code)
	if err != nil {
		h.writeError(w, "BoardingPass", err)
		return
	}

	pass, err := boardingpass.PassFor(*res)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	png, err := h.QR.GenerateEncryptedQR(pass)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("BoardingPass: %s: %v", code, err))
		http.Error(w, "Could not render boarding pass", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

type passCheck struct {
	Valid  bool                     `json:"valid"`
	Status models.ReservationStatus `json:"status"`
	Pass   boardingpass.Pass        `json:"pass"`
}

// VerifyBoardingPass decrypts a scanned pass and checks it against the
// reservation as it stands now. Cancelled or reseated reservations fail.
func (h *Handler) VerifyBoardingPass(w http.ResponseWriter, r *http.Request) {
	scanned, err := h.QR.Open(r.URL.Query().Get("token"))
	if err != nil {
		h.Logger.LogSecurity("BOARDING_PASS_REJECTED", err.Error())
		http.Error(w, "Unreadable boarding pass", http.StatusBadRequest)
		return
	}

	res, err := h.Reservations.GetByCode(r.Context(), scanned.ReservationCode)
	if err != nil {
		h.writeError(w, "VerifyBoardingPass", err)
		return
	}

	current, err := boardingpass.PassFor(*res)
	valid := err == nil &&
		current.FlightNumber == scanned.FlightNumber &&
		current.SeatNumber == scanned.SeatNumber
	utils.WriteJSON(w, http.StatusOK, passCheck{Valid: valid, Status: res.Status, Pass: scanned})
}

func (h *Handler) writeError(w http.ResponseWriter, action string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.WriteJSON(w, http.StatusBadRequest, utils.NewErrorResponse("Validation failed", verr.Fields))
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, models.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, models.ErrSeatUnavailable):
		http.Error(w, "Seat no longer available", http.StatusConflict)
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", action, err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func summaries(flights []models.Flight) []models.FlightSummary {
	out := make([]models.FlightSummary, 0, len(flights))
	for _, f := range flights {
		out = append(out, f.Summary())
	}
	return out
}

func positiveID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive")
	}
	return id, nil
}
