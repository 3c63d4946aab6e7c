package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/libs/auth"
	"github.com/servihub/servihub/services/booking-service/internal/availability"
	"github.com/servihub/servihub/services/booking-service/internal/booking"
	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

type createBookingRequest struct {
	ProviderID    string `json:"provider_id"`
	Date          string `json:"date"`       // YYYY-MM-DD
	StartTime     string `json:"start_time"` // HH:MM
	EndTime       string `json:"end_time"`   // optional; defaults to service duration
	Address       string `json:"address"`
	PaymentMethod string `json:"payment_method"`
}

type bookingResponse struct {
	ID            string `json:"id"`
	ProviderID    string `json:"provider_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Address       string `json:"address,omitempty"`
	PriceCents    int64  `json:"price_cents"`
	PaymentMethod string `json:"payment_method,omitempty"`
	PaymentStatus string `json:"payment_status"`
	OTP           string `json:"otp,omitempty"`
}

// CreateBooking handles POST /api/v1/bookings. The caller must hold the
// customer role; admission re-validates conflicts under the provider lock.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.Role != auth.RoleCustomer {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: "booking requires a customer account"})
		return
	}
	customerID, err := uuid.Parse(claims.Sub)
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: "malformed subject"})
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "invalid json body"})
		return
	}
	providerID, err := uuid.Parse(strings.TrimSpace(req.ProviderID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "provider_id must be a uuid"})
		return
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "date must be YYYY-MM-DD"})
		return
	}
	start, err := timeutil.ParseClock(strings.TrimSpace(req.StartTime))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "start_time must be HH:MM"})
		return
	}
	end := 0
	if raw := strings.TrimSpace(req.EndTime); raw != "" {
		end, err = timeutil.ParseClock(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "end_time must be HH:MM"})
			return
		}
	}

	adm := booking.AdmitRequest{
		ProviderID:    providerID,
		CustomerID:    customerID,
		Date:          date,
		StartMinute:   start,
		EndMinute:     end,
		Address:       strings.TrimSpace(req.Address),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
	}

	// An unknown provider must read as not found, not as an empty schedule.
	if _, err := h.store.ProviderByID(r.Context(), providerID); err != nil {
		writeError(w, err)
		return
	}

	within, err := h.withinSchedule(r, providerID, date, adm)
	if err != nil {
		writeError(w, err)
		return
	}
	if !within {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:  "outside_availability",
			Detail: "requested time is outside the provider's schedule for that date",
		})
		return
	}

	b, err := h.admitter.Admit(r.Context(), adm)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := toBookingResponse(b)
	resp.OTP = b.OTP // returned once at creation for the in-person check
	writeJSON(w, http.StatusCreated, resp)
}

// withinSchedule checks the requested range against the provider's schedule
// intent for that date (rules or exception override), ignoring existing
// bookings. Conflicts are the admission transaction's job.
func (h *Handler) withinSchedule(r *http.Request, providerID uuid.UUID, date time.Time, adm booking.AdmitRequest) (bool, error) {
	ctx := r.Context()
	day := model.DateOnly(date)
	rules, err := h.store.RulesForProvider(ctx, providerID)
	if err != nil {
		return false, err
	}
	exceptions, err := h.store.ExceptionsInRange(ctx, providerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return false, err
	}
	var exc *model.DateException
	if len(exceptions) > 0 {
		exc = &exceptions[0]
	}
	var dayRules []timeutil.Interval
	for _, rule := range rules {
		if rule.Weekday == day.Weekday() {
			dayRules = append(dayRules, rule.Interval())
		}
	}
	base := timeutil.Merge(availability.FreeForDay(dayRules, exc, nil, 0))

	end := adm.EndMinute
	if end == 0 || end == adm.StartMinute {
		// Admission substitutes the service duration; approximate with the
		// minimum bookable unit for the schedule check.
		end = adm.StartMinute + 1
	}
	want := timeutil.Interval{Start: adm.StartMinute, End: end}
	for _, iv := range base {
		if want.Start >= iv.Start && want.End <= iv.End {
			return true, nil
		}
	}
	return false, nil
}

// UpdateBookingStatus handles POST /api/v1/bookings/status.
func (h *Handler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	actorID, err := uuid.Parse(claims.Sub)
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: "malformed subject"})
		return
	}

	var req struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"status"`
		OTP       string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "invalid json body"})
		return
	}
	bookingID, err := uuid.Parse(strings.TrimSpace(req.BookingID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "booking_id must be a uuid"})
		return
	}

	b, err := h.lifecycle.Transition(r.Context(), booking.TransitionRequest{
		BookingID: bookingID,
		ActorID:   actorID,
		ActorRole: claims.Role,
		Target:    model.Status(strings.TrimSpace(req.Status)),
		OTP:       strings.TrimSpace(req.OTP),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// ListBookings handles GET /api/v1/bookings for the calling customer or
// provider.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	actorID, err := uuid.Parse(claims.Sub)
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: "malformed subject"})
		return
	}
	column := "customer_id"
	if claims.Role == auth.RoleProvider {
		column = "provider_id"
	}

	bookings, err := h.store.ListBookings(r.Context(), column, actorID, 50)
	if err != nil {
		h.logger.Error("list bookings failed", "actor_id", actorID, "err", err)
		writeError(w, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func toBookingResponse(b *model.Booking) bookingResponse {
	return bookingResponse{
		ID:            b.ID.String(),
		ProviderID:    b.ProviderID.String(),
		Date:          b.Date.Format("2006-01-02"),
		StartTime:     timeutil.FormatClock(b.StartMinute),
		EndTime:       timeutil.FormatClock(b.EndMinute),
		Status:        string(b.Status),
		Address:       b.Address,
		PriceCents:    b.PriceCents,
		PaymentMethod: b.PaymentMethod,
		PaymentStatus: string(b.PaymentStatus),
	}
}
