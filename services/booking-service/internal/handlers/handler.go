// Package handlers is the HTTP surface of the booking core.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/services/booking-service/internal/availability"
	"github.com/servihub/servihub/services/booking-service/internal/booking"
	"github.com/servihub/servihub/services/booking-service/internal/model"
)

// Narrow dependency surfaces so handler tests can run on fakes.

type Admitter interface {
	Admit(ctx context.Context, req booking.AdmitRequest) (*model.Booking, error)
}

type Lifecycle interface {
	Transition(ctx context.Context, req booking.TransitionRequest) (*model.Booking, error)
}

type Windows interface {
	Window(ctx context.Context, providerID uuid.UUID, from time.Time, days int) ([]model.DayAvailability, error)
}

type ScheduleStore interface {
	availability.Source
	ProviderByID(ctx context.Context, providerID uuid.UUID) (*model.Provider, error)
	SetProviderSchedule(ctx context.Context, providerID uuid.UUID, rules []model.ScheduleRule, from time.Time, chunkMinutes int) error
	SetDateException(ctx context.Context, exc model.DateException) error
	ListBookings(ctx context.Context, column string, actorID uuid.UUID, limit int) ([]*model.Booking, error)
}

type Handler struct {
	admitter     Admitter
	lifecycle    Lifecycle
	windows      Windows
	store        ScheduleStore
	clock        booking.Clock
	chunkMinutes int
	logger       *slog.Logger
}

func New(admitter Admitter, lifecycle Lifecycle, windows Windows, store ScheduleStore, clock booking.Clock, chunkMinutes int, logger *slog.Logger) *Handler {
	return &Handler{
		admitter:     admitter,
		lifecycle:    lifecycle,
		windows:      windows,
		store:        store,
		clock:        clock,
		chunkMinutes: chunkMinutes,
		logger:       logger,
	}
}
