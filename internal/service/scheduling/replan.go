package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"physiofit/backend/internal/domain"
	"physiofit/backend/internal/store"
)

// TimeOfDay is a wall-clock slot time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// ReplanInput replaces a client's whole schedule with a fresh weekly
// template: one series per (weekday, time) pair.
type ReplanInput struct {
	ClientID          uuid.UUID
	PhysiotherapistID uuid.UUID
	Location          domain.Location
	Modality          domain.Modality
	Repeat            domain.RepeatPolicy
	DaysAndTimes      map[time.Weekday][]TimeOfDay
}

// Replan drops every appointment the client holds, along with any slot left
// empty by that removal, and books the template in the same transaction.
// Any conflict rolls the whole replan back, old schedule included.
func (s *Service) Replan(ctx context.Context, in ReplanInput) ([]domain.Appointment, error) {
	if in.ClientID == uuid.Nil {
		return nil, validationError("client_id is required")
	}
	if in.PhysiotherapistID == uuid.Nil {
		return nil, validationError("physiotherapist_id is required")
	}
	if !in.Modality.Valid() {
		return nil, validationError("invalid modality")
	}
	if !in.Location.Valid() {
		return nil, validationError("invalid location")
	}
	if err := in.Repeat.Validate(); err != nil {
		return nil, validationError(err.Error())
	}
	if len(in.DaysAndTimes) == 0 {
		return nil, validationError("at least one day and time is required")
	}
	for day, times := range in.DaysAndTimes {
		if day < time.Sunday || day > time.Saturday {
			return nil, validationError("invalid weekday")
		}
		if len(times) == 0 {
			return nil, validationError("each day needs at least one time")
		}
		for _, t := range times {
			if !t.valid() {
				return nil, validationError("invalid time of day")
			}
		}
	}

	if _, err := s.records.GetClient(ctx, in.ClientID); err != nil {
		return nil, err
	}
	if _, err := s.records.GetPhysiotherapist(ctx, in.PhysiotherapistID); err != nil {
		return nil, err
	}

	starts := templateStarts(s.now().UTC(), in.DaysAndTimes)

	var created []domain.Appointment
	err := s.sched.InSchedulingTx(ctx, store.LockKeys{
		PhysiotherapistID: in.PhysiotherapistID,
		ClientIDs:         []uuid.UUID{in.ClientID},
	}, func(ctx context.Context, tx store.SchedulingTx) error {
		if err := tx.DeleteClientSchedule(ctx, in.ClientID); err != nil {
			return err
		}
		for _, start := range starts {
			appts, err := createSeries(ctx, tx, seriesSpec{
				physiotherapistID: in.PhysiotherapistID,
				clientIDs:         []uuid.UUID{in.ClientID},
				location:          in.Location,
				modality:          in.Modality,
				candidates:        in.Repeat.Expand(start),
			})
			if err != nil {
				return err
			}
			created = append(created, appts...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// templateStarts maps each (weekday, time) pair to its next strictly future
// occurrence, sorted chronologically so the series order is deterministic.
func templateStarts(now time.Time, daysAndTimes map[time.Weekday][]TimeOfDay) []time.Time {
	var starts []time.Time
	for day, times := range daysAndTimes {
		for _, tod := range times {
			starts = append(starts, nextOccurrence(now, day, tod))
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	return starts
}

func nextOccurrence(now time.Time, day time.Weekday, tod TimeOfDay) time.Time {
	daysAhead := (int(day) - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour, tod.Minute, 0, 0, time.UTC).
		AddDate(0, 0, daysAhead)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
