package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SlotState is the resolved bookability of one slot for one doctor.
type SlotState struct {
	Slot Slot
	// Open means the slot can be booked right now: no active appointment
	// occupies it and no override blocks it.
	Open bool
	// ExplicitlySet reports whether the doctor has an override row for the
	// slot; AvailableFlag is that override's value, or mirrors Open when no
	// override exists.
	ExplicitlySet bool
	AvailableFlag bool
	// Booked means an active appointment occupies the slot. The editing UI
	// renders booked slots read-only.
	Booked bool
}

// DaySchedule groups one day's resolved slots, template order.
type DaySchedule struct {
	Date  time.Time
	Slots []SlotState
}

// Resolver decides slot bookability from override + occupancy state. It is
// read-only: at most two lookups per slot, no writes.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve merges the doctor's override for the slot with appointment
// occupancy. Occupancy is authoritative: an override can narrow availability
// but never forces open a slot that already holds an active appointment,
// even if the doctor later flips the override to available.
// excludeAppointment, when not Nil, leaves that appointment out of the
// occupancy check so an edit can re-validate its own slot.
func (r *Resolver) Resolve(ctx context.Context, doctorID uuid.UUID, slot Slot, excludeAppointment uuid.UUID) (SlotState, error) {
	st := SlotState{Slot: slot}

	ov, err := r.repo.GetOverride(ctx, doctorID, slot.Date, slot.TimeOfDay)
	if err != nil && !errors.Is(err, ErrOverrideNotFound) {
		return SlotState{}, fmt.Errorf("load override: %w", err)
	}

	conflict, err := r.repo.FindConflictingAppointment(ctx, doctorID, slot.Date, slot.TimeOfDay, excludeAppointment)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return SlotState{}, fmt.Errorf("check occupancy: %w", err)
	}
	st.Booked = conflict != nil

	if ov != nil {
		st.Open = ov.Available && !st.Booked
		st.ExplicitlySet = true
		st.AvailableFlag = ov.Available
		return st, nil
	}

	st.Open = !st.Booked
	st.AvailableFlag = st.Open
	return st, nil
}

// ResolveWindow resolves every template slot in the 7-day window starting at
// today. Slots are independent, so the lookups run concurrently; results
// keep window order regardless of completion order.
func (r *Resolver) ResolveWindow(ctx context.Context, doctorID uuid.UUID, today time.Time) ([]DaySchedule, error) {
	slots := GenerateWindow(today)
	states := make([]SlotState, len(slots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, slot := range slots {
		g.Go(func() error {
			st, err := r.Resolve(gctx, doctorID, slot, uuid.Nil)
			if err != nil {
				return err
			}
			states[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	perDay := len(SlotTemplate)
	days := make([]DaySchedule, 0, WindowDays)
	for d := 0; d < WindowDays; d++ {
		days = append(days, DaySchedule{
			Date:  states[d*perDay].Slot.Date,
			Slots: states[d*perDay : (d+1)*perDay],
		})
	}
	return days, nil
}
