package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/servihub/servihub/services/booking-service/internal/booking"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the core's error taxonomy onto HTTP statuses. A slot
// conflict is a normal branch of the booking flow, not a fault; clients get
// a machine-readable code to branch on.
func writeError(w http.ResponseWriter, err error) {
	var ite *booking.InvalidTransitionError
	switch {
	case errors.Is(err, booking.ErrSlotConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "slot_conflict", Detail: "the requested time was just booked; please pick another slot"})
	case errors.As(err, &ite):
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid_transition", Detail: ite.Reason})
	case errors.Is(err, booking.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid_transition"})
	case errors.Is(err, booking.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: err.Error()})
	case errors.Is(err, booking.ErrProviderNotFound), errors.Is(err, booking.ErrBookingNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Detail: err.Error()})
	case errors.Is(err, booking.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: err.Error()})
	case errors.Is(err, booking.ErrLockTimeout):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "busy", Detail: "could not serialize the booking attempt; retry shortly"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
	}
}
