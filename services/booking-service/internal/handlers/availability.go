package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/availability"
	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

type dayResponse struct {
	Date      string         `json:"date"`
	FreeSlots []slotResponse `json:"free_slots"`
}

type slotResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GetAvailability answers GET /api/v1/public/availability?provider_id&from&days.
// Slots already started "today" are filtered here; the materializer itself
// stays a pure function of stored state.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("provider_id")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "provider_id must be a uuid"})
		return
	}
	if _, err := h.store.ProviderByID(r.Context(), providerID); err != nil {
		writeError(w, err)
		return
	}

	now := h.clock.Now()
	from := now
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err = time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "from must be YYYY-MM-DD"})
			return
		}
	}
	days := 7
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "days must be a positive integer"})
			return
		}
	}

	window, err := h.windows.Window(r.Context(), providerID, from, days)
	if err != nil {
		h.logger.Error("materialize window failed", "provider_id", providerID, "err", err)
		writeError(w, err)
		return
	}

	out := make([]dayResponse, 0, len(window))
	for _, day := range window {
		day = availability.FilterStarted(day, now)
		out = append(out, toDayResponse(day))
	}
	writeJSON(w, http.StatusOK, out)
}

func toDayResponse(day model.DayAvailability) dayResponse {
	slots := make([]slotResponse, 0, len(day.Free))
	for _, iv := range day.Free {
		slots = append(slots, slotResponse{
			Start: timeutil.FormatClock(iv.Start),
			End:   timeutil.FormatClock(iv.End),
		})
	}
	return dayResponse{Date: day.Date.Format("2006-01-02"), FreeSlots: slots}
}
