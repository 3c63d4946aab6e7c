package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/libs/auth"
	"github.com/servihub/servihub/services/booking-service/internal/model"
	"github.com/servihub/servihub/services/booking-service/internal/timeutil"
)

type scheduleRuleRequest struct {
	Weekday   int    `json:"weekday"` // 0 = Sunday .. 6 = Saturday
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// SetSchedule handles PUT /api/v1/providers/schedule. The weekly rules
// replace the provider's previous set and the slot cache is rebuilt for the
// booking horizon.
func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, ok := h.providerFromClaims(w, r)
	if !ok {
		return
	}

	var req struct {
		Rules []scheduleRuleRequest `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "invalid json body"})
		return
	}

	rules := make([]model.ScheduleRule, 0, len(req.Rules))
	for _, in := range req.Rules {
		if in.Weekday < 0 || in.Weekday > 6 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "weekday must be 0..6"})
			return
		}
		iv, err := parseWindow(in.StartTime, in.EndTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: err.Error()})
			return
		}
		rules = append(rules, model.ScheduleRule{
			ProviderID:  providerID,
			Weekday:     time.Weekday(in.Weekday),
			StartMinute: iv.Start,
			EndMinute:   iv.End,
		})
	}

	if err := h.store.SetProviderSchedule(r.Context(), providerID, rules, h.clock.Now(), h.chunkMinutes); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("schedule replaced", "provider_id", providerID, "rules", len(rules))
	writeJSON(w, http.StatusOK, map[string]int{"rules": len(rules)})
}

// SetException handles PUT /api/v1/providers/exceptions: block a single date
// or override its windows.
func (h *Handler) SetException(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, ok := h.providerFromClaims(w, r)
	if !ok {
		return
	}

	var req struct {
		Date      string `json:"date"`
		Available bool   `json:"available"`
		Slots     []struct {
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "invalid json body"})
		return
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "date must be YYYY-MM-DD"})
		return
	}

	exc := model.DateException{
		ProviderID: providerID,
		Date:       model.DateOnly(date),
		Available:  req.Available,
	}
	for _, in := range req.Slots {
		iv, err := parseWindow(in.StartTime, in.EndTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: err.Error()})
			return
		}
		exc.OverrideSlots = append(exc.OverrideSlots, iv)
	}
	if !exc.Available && len(exc.OverrideSlots) > 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Detail: "a blocked date cannot carry override slots"})
		return
	}

	if err := h.store.SetDateException(r.Context(), exc); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("date exception set", "provider_id", providerID, "date", exc.Date.Format("2006-01-02"), "available", exc.Available)
	writeJSON(w, http.StatusOK, exc)
}

func (h *Handler) providerFromClaims(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.Role != auth.RoleProvider {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: "provider role required"})
		return uuid.Nil, false
	}
	providerID, err := uuid.Parse(claims.Sub)
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: "malformed subject"})
		return uuid.Nil, false
	}
	return providerID, true
}

func parseWindow(startTime, endTime string) (timeutil.Interval, error) {
	return timeutil.ParseInterval(strings.TrimSpace(startTime), strings.TrimSpace(endTime))
}
