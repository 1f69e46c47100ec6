package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"physiofit/backend/internal/domain"
	"physiofit/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Reason codes carried by every Decision.
const (
	ReasonCanReschedule             = "CLIENT_CAN_RESCHEDULE"
	ReasonMinNoticeReached          = "MIN_NOTICE_REACHED"
	ReasonMaxRescheduleLimitReached = "MAX_RESCHEDULE_LIMIT_REACHED"
	ReasonNoAppointmentToReschedule = "NO_APPOINTMENT_TO_RESCHEDULE"
)

// crossMonthRescheduleCap bounds the current-plus-next-month scan used by
// CanClientReschedule. It is a global ceiling, not a per-policy value.
const crossMonthRescheduleCap = 2

// Decision is the outcome of a reschedule eligibility check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type Service struct {
	sched   store.SchedulingRepository
	records store.RecordRepository
	now     func() time.Time
}

func NewService(sched store.SchedulingRepository, records store.RecordRepository) *Service {
	return &Service{
		sched:   sched,
		records: records,
		now:     time.Now,
	}
}

// wholeHoursUntil counts full hours between now and the slot, truncating
// toward zero. 23h59m of notice is 23 hours.
func wholeHoursUntil(now, at time.Time) int {
	return int(at.Sub(now) / time.Hour)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CanReschedule decides whether canceling the given booking would keep the
// client's right to rebook. Notice below the policy minimum or an exhausted
// monthly quota both forfeit that right.
func (s *Service) CanReschedule(ctx context.Context, clientID, appointmentID uuid.UUID) (Decision, error) {
	if clientID == uuid.Nil {
		return Decision{}, validationError("client_id is required")
	}
	if appointmentID == uuid.Nil {
		return Decision{}, validationError("appointment_id is required")
	}

	appt, err := s.sched.GetAppointment(ctx, appointmentID)
	if err != nil {
		return Decision{}, err
	}
	if _, err := s.records.GetClient(ctx, clientID); err != nil {
		return Decision{}, err
	}
	policy, err := s.records.GetRulesForClient(ctx, clientID)
	if err != nil {
		return Decision{}, err
	}

	now := s.now().UTC()
	if wholeHoursUntil(now, appt.DateTime) <= policy.ReschedulingMinHoursInAdvance {
		return Decision{
			Allowed: false,
			Reason:  ReasonMinNoticeReached,
			Message: fmt.Sprintf("This appointment is less than %d hours away. Canceling it now forfeits the right to reschedule.", policy.ReschedulingMinHoursInAdvance),
		}, nil
	}

	from := monthStart(now)
	used, err := s.sched.CountRescheduledBetween(ctx, clientID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return Decision{}, err
	}
	if used >= policy.ReschedulingLimit {
		return Decision{
			Allowed: false,
			Reason:  ReasonMaxRescheduleLimitReached,
			Message: fmt.Sprintf("Only %d reschedules are allowed per month and %d have already been used in %s.", policy.ReschedulingLimit, used, now.Month()),
		}, nil
	}

	return Decision{
		Allowed: true,
		Reason:  ReasonCanReschedule,
		Message: fmt.Sprintf("%d of %d reschedules used in %s.", used, policy.ReschedulingLimit, now.Month()),
	}, nil
}

// CanClientReschedule checks eligibility without reference to a particular
// booking: it scans the current and next calendar month. Two rescheduled
// slots in that window exhaust the allowance; with no pending cancellation
// there is nothing to rebook.
func (s *Service) CanClientReschedule(ctx context.Context, clientID uuid.UUID) (Decision, error) {
	if clientID == uuid.Nil {
		return Decision{}, validationError("client_id is required")
	}
	if _, err := s.records.GetClient(ctx, clientID); err != nil {
		return Decision{}, err
	}

	now := s.now().UTC()
	from := monthStart(now)
	attachments, err := s.sched.ListClientAttachmentsBetween(ctx, clientID, from, from.AddDate(0, 2, 0))
	if err != nil {
		return Decision{}, err
	}

	var rescheduled, canceledWith int
	for _, ac := range attachments {
		switch ac.Confirmation {
		case domain.ConfirmationRescheduled:
			rescheduled++
		case domain.ConfirmationCanceledWithRescheduling:
			canceledWith++
		}
	}

	if rescheduled >= crossMonthRescheduleCap {
		return Decision{
			Allowed: false,
			Reason:  ReasonMaxRescheduleLimitReached,
			Message: fmt.Sprintf("Only %d reschedules are allowed across the current and next month.", crossMonthRescheduleCap),
		}, nil
	}
	if canceledWith == 0 {
		return Decision{
			Allowed: false,
			Reason:  ReasonNoAppointmentToReschedule,
			Message: "To reschedule, first cancel the appointment you want to move.",
		}, nil
	}
	return Decision{
		Allowed: true,
		Reason:  ReasonCanReschedule,
		Message: fmt.Sprintf("%d of %d reschedules used across the current and next month.", rescheduled, crossMonthRescheduleCap),
	}, nil
}

// Cancel marks the client's attachment canceled. Whether the cancellation
// keeps the right to rebook follows the same policy checks as CanReschedule,
// evaluated inside the transaction.
func (s *Service) Cancel(ctx context.Context, clientID, appointmentID uuid.UUID) (domain.AppointmentClient, error) {
	if clientID == uuid.Nil {
		return domain.AppointmentClient{}, validationError("client_id is required")
	}
	if appointmentID == uuid.Nil {
		return domain.AppointmentClient{}, validationError("appointment_id is required")
	}

	policy, err := s.records.GetRulesForClient(ctx, clientID)
	if err != nil {
		return domain.AppointmentClient{}, err
	}

	var updated domain.AppointmentClient
	err = s.sched.InSchedulingTx(ctx, store.LockKeys{
		ClientIDs: []uuid.UUID{clientID},
	}, func(ctx context.Context, tx store.SchedulingTx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		ac, err := tx.GetAttachment(ctx, clientID, appointmentID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		outcome := domain.ConfirmationCanceledWithRescheduling
		if wholeHoursUntil(now, appt.DateTime) <= policy.ReschedulingMinHoursInAdvance {
			outcome = domain.ConfirmationCanceledWithoutRescheduling
		} else {
			from := monthStart(now)
			used, err := tx.CountRescheduledBetween(ctx, clientID, from, from.AddDate(0, 1, 0))
			if err != nil {
				return err
			}
			if used >= policy.ReschedulingLimit {
				outcome = domain.ConfirmationCanceledWithoutRescheduling
			}
		}

		ac.Confirmation = outcome
		updated, err = tx.UpdateAttachment(ctx, ac)
		return err
	})
	if err != nil {
		return domain.AppointmentClient{}, err
	}
	return updated, nil
}

// Reschedule books the client into an existing appointment as RESCHEDULED.
// The original canceled attachment is left as the audit trail; eligibility
// is the caller's concern via CanClientReschedule.
func (s *Service) Reschedule(ctx context.Context, clientID, appointmentID uuid.UUID) (domain.AppointmentClient, error) {
	if clientID == uuid.Nil {
		return domain.AppointmentClient{}, validationError("client_id is required")
	}
	if appointmentID == uuid.Nil {
		return domain.AppointmentClient{}, validationError("appointment_id is required")
	}
	if _, err := s.records.GetClient(ctx, clientID); err != nil {
		return domain.AppointmentClient{}, err
	}

	appt, err := s.sched.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.AppointmentClient{}, err
	}

	var attached domain.AppointmentClient
	err = s.sched.InSchedulingTx(ctx, store.LockKeys{
		PhysiotherapistID: appt.PhysiotherapistID,
		ClientIDs:         []uuid.UUID{clientID},
	}, func(ctx context.Context, tx store.SchedulingTx) error {
		if _, err := tx.GetAppointment(ctx, appointmentID); err != nil {
			return err
		}
		attached, err = tx.AttachClient(ctx, domain.AppointmentClient{
			AppointmentID: appointmentID,
			ClientID:      clientID,
			Confirmation:  domain.ConfirmationRescheduled,
			Attendance:    true,
		})
		return err
	})
	if err != nil {
		return domain.AppointmentClient{}, err
	}
	return attached, nil
}

type PolicyInput struct {
	Name                          string
	ReschedulingLimit             int
	ReschedulingMinHoursInAdvance int
	MaxClientsPerGroup            int
	Frequency                     domain.Frequency
}

func (s *Service) RegisterPolicy(ctx context.Context, in PolicyInput) (domain.AppointmentRules, error) {
	if in.Name == "" {
		return domain.AppointmentRules{}, validationError("name is required")
	}
	if in.ReschedulingLimit < 0 {
		return domain.AppointmentRules{}, validationError("rescheduling_limit must not be negative")
	}
	if in.ReschedulingMinHoursInAdvance < 0 {
		return domain.AppointmentRules{}, validationError("rescheduling_min_hours_in_advance must not be negative")
	}
	if in.MaxClientsPerGroup < 1 {
		return domain.AppointmentRules{}, validationError("max_clients_per_group must be at least 1")
	}
	if !in.Frequency.Valid() {
		return domain.AppointmentRules{}, validationError("invalid frequency")
	}
	return s.records.CreateRules(ctx, domain.AppointmentRules{
		Name:                          in.Name,
		ReschedulingLimit:             in.ReschedulingLimit,
		ReschedulingMinHoursInAdvance: in.ReschedulingMinHoursInAdvance,
		MaxClientsPerGroup:            in.MaxClientsPerGroup,
		Frequency:                     in.Frequency,
	})
}

func (s *Service) GetPolicy(ctx context.Context, id uuid.UUID) (domain.AppointmentRules, error) {
	if id == uuid.Nil {
		return domain.AppointmentRules{}, validationError("id is required")
	}
	return s.records.GetRules(ctx, id)
}
