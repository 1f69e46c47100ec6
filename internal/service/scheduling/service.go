package scheduling

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

// defaultGroupCap applies when a policy leaves max_clients_per_group unset.
const defaultGroupCap = 4

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

// normalize pins every stored timestamp to UTC at minute precision. Slots
// are compared by equality, so sub-minute noise would break conflict checks.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

type CreateInput struct {
	ClientIDs         []uuid.UUID
	PhysiotherapistID uuid.UUID
	StartTime         time.Time
	Location          domain.Location
	Modality          domain.Modality
	Repeat            domain.RepeatPolicy
}

// CreateAppointments books a slot, or a weekly series of slots, for the given
// clients. All conflict checks run before any write: either every occurrence
// books or none does. With no clients it creates a single open slot and the
// repeat policy is ignored.
func (s *Service) CreateAppointments(ctx context.Context, in CreateInput) ([]domain.Appointment, error) {
	if in.PhysiotherapistID == uuid.Nil {
		return nil, validationError("physiotherapist_id is required")
	}
	if !in.Modality.Valid() {
		return nil, validationError("invalid modality")
	}
	if !in.Location.Valid() {
		return nil, validationError("invalid location")
	}
	if in.StartTime.IsZero() {
		return nil, validationError("date_time is required")
	}
	if err := in.Repeat.Validate(); err != nil {
		return nil, validationError(err.Error())
	}

	if _, err := s.records.GetPhysiotherapist(ctx, in.PhysiotherapistID); err != nil {
		return nil, fmt.Errorf("resolve physiotherapist: %w", err)
	}
	for _, clientID := range in.ClientIDs {
		if _, err := s.records.GetClient(ctx, clientID); err != nil {
			return nil, fmt.Errorf("resolve client %s: %w", clientID, err)
		}
	}

	start := normalize(in.StartTime)
	candidates := []time.Time{start}
	if len(in.ClientIDs) > 0 {
		candidates = in.Repeat.Expand(start)
	}

	var created []domain.Appointment
	err := s.sched.InSchedulingTx(ctx, store.LockKeys{
		PhysiotherapistID: in.PhysiotherapistID,
		ClientIDs:         in.ClientIDs,
	}, func(ctx context.Context, tx store.SchedulingTx) error {
		var err error
		created, err = createSeries(ctx, tx, seriesSpec{
			physiotherapistID: in.PhysiotherapistID,
			clientIDs:         in.ClientIDs,
			location:          in.Location,
			modality:          in.Modality,
			candidates:        candidates,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

type seriesSpec struct {
	physiotherapistID uuid.UUID
	clientIDs         []uuid.UUID
	location          domain.Location
	modality          domain.Modality
	candidates        []time.Time
}

// createSeries checks every candidate slot for physiotherapist and client
// collisions, then writes appointments and attachments. Callers hold the
// relevant advisory locks.
func createSeries(ctx context.Context, tx store.SchedulingTx, spec seriesSpec) ([]domain.Appointment, error) {
	for _, at := range spec.candidates {
		booked, err := tx.PhysiotherapistBookedAt(ctx, spec.physiotherapistID, at)
		if err != nil {
			return nil, err
		}
		if booked {
			return nil, fmt.Errorf("physiotherapist at %s: %w", at.Format(time.RFC3339), store.ErrAlreadyBooked)
		}
		for _, clientID := range spec.clientIDs {
			booked, err := tx.ClientBookedAt(ctx, clientID, at)
			if err != nil {
				return nil, err
			}
			if booked {
				return nil, fmt.Errorf("client %s at %s: %w", clientID, at.Format(time.RFC3339), store.ErrAlreadyBooked)
			}
		}
	}

	created := make([]domain.Appointment, 0, len(spec.candidates))
	for _, at := range spec.candidates {
		appt, err := tx.CreateAppointment(ctx, domain.Appointment{
			PhysiotherapistID: spec.physiotherapistID,
			DateTime:          at,
			Location:          spec.location,
			Modality:          spec.modality,
		})
		if err != nil {
			return nil, err
		}
		for _, clientID := range spec.clientIDs {
			_, err := tx.AttachClient(ctx, domain.AppointmentClient{
				AppointmentID: appt.ID,
				ClientID:      clientID,
				Confirmation:  domain.ConfirmationConfirmed,
				Attendance:    true,
			})
			if err != nil {
				return nil, err
			}
		}
		created = append(created, appt)
	}
	return created, nil
}

type UpdateInput struct {
	AppointmentID uuid.UUID
	ClientID      uuid.UUID
	NewDateTime   time.Time
	NewModality   domain.Modality
}

// UpdateAppointment moves one client's booking to a new time and modality.
// If the client shares the slot with others, the client is split off into a
// fresh appointment and the rest of the group stays put. A sole occupant's
// appointment is edited in place.
func (s *Service) UpdateAppointment(ctx context.Context, in UpdateInput) (domain.Appointment, error) {
	if in.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if in.ClientID == uuid.Nil {
		return domain.Appointment{}, validationError("client_id is required")
	}
	if !in.NewModality.Valid() {
		return domain.Appointment{}, validationError("invalid modality")
	}
	if in.NewDateTime.IsZero() {
		return domain.Appointment{}, validationError("date_time is required")
	}
	newTime := normalize(in.NewDateTime)

	// Fetched outside the transaction only to learn the lock keys; re-read
	// inside once the locks are held.
	current, err := s.sched.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}

	var result domain.Appointment
	err = s.sched.InSchedulingTx(ctx, store.LockKeys{
		PhysiotherapistID: current.PhysiotherapistID,
		ClientIDs:         []uuid.UUID{in.ClientID},
	}, func(ctx context.Context, tx store.SchedulingTx) error {
		appt, err := tx.GetAppointment(ctx, in.AppointmentID)
		if err != nil {
			return err
		}
		if _, err := tx.GetAttachment(ctx, in.ClientID, in.AppointmentID); err != nil {
			return err
		}

		if !newTime.Equal(appt.DateTime) {
			booked, err := tx.PhysiotherapistBookedAt(ctx, appt.PhysiotherapistID, newTime)
			if err != nil {
				return err
			}
			if booked {
				return fmt.Errorf("physiotherapist at %s: %w", newTime.Format(time.RFC3339), store.ErrAlreadyBooked)
			}
			booked, err = tx.ClientBookedAt(ctx, in.ClientID, newTime)
			if err != nil {
				return err
			}
			if booked {
				return fmt.Errorf("client at %s: %w", newTime.Format(time.RFC3339), store.ErrAlreadyBooked)
			}
		}

		count, err := tx.CountAttachments(ctx, appt.ID)
		if err != nil {
			return err
		}
		if count > 1 {
			if err := tx.DetachClient(ctx, in.ClientID, appt.ID); err != nil {
				return err
			}
			moved, err := tx.CreateAppointment(ctx, domain.Appointment{
				PhysiotherapistID: appt.PhysiotherapistID,
				DateTime:          newTime,
				Location:          appt.Location,
				Modality:          in.NewModality,
			})
			if err != nil {
				return err
			}
			if _, err := tx.AttachClient(ctx, domain.AppointmentClient{
				AppointmentID: moved.ID,
				ClientID:      in.ClientID,
				Confirmation:  domain.ConfirmationConfirmed,
				Attendance:    true,
			}); err != nil {
				return err
			}
			result = moved
			return nil
		}

		appt.DateTime = newTime
		appt.Modality = in.NewModality
		result, err = tx.UpdateAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return result, nil
}

// AddClients attaches clients to an existing appointment one at a time. A
// failing client does not undo clients attached before it; the error names
// the client that failed. Each attachment respects the joining client's
// group cap.
func (s *Service) AddClients(ctx context.Context, appointmentID uuid.UUID, clientIDs []uuid.UUID) ([]domain.AppointmentClient, error) {
	if appointmentID == uuid.Nil {
		return nil, validationError("appointment_id is required")
	}
	if len(clientIDs) == 0 {
		return nil, validationError("at least one client_id is required")
	}

	appt, err := s.sched.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	attached := make([]domain.AppointmentClient, 0, len(clientIDs))
	for _, clientID := range clientIDs {
		if _, err := s.records.GetClient(ctx, clientID); err != nil {
			return attached, fmt.Errorf("client %s: %w", clientID, err)
		}
		groupCap, err := s.groupCapFor(ctx, clientID)
		if err != nil {
			return attached, fmt.Errorf("client %s: %w", clientID, err)
		}

		err = s.sched.InSchedulingTx(ctx, store.LockKeys{
			PhysiotherapistID: appt.PhysiotherapistID,
			ClientIDs:         []uuid.UUID{clientID},
		}, func(ctx context.Context, tx store.SchedulingTx) error {
			active, err := tx.CountActiveAttachments(ctx, appointmentID)
			if err != nil {
				return err
			}
			if active >= groupCap {
				return store.ErrGroupFull
			}
			ac, err := tx.AttachClient(ctx, domain.AppointmentClient{
				AppointmentID: appointmentID,
				ClientID:      clientID,
				Confirmation:  domain.ConfirmationConfirmed,
				Attendance:    true,
			})
			if err != nil {
				return err
			}
			attached = append(attached, ac)
			return nil
		})
		if err != nil {
			return attached, fmt.Errorf("client %s: %w", clientID, err)
		}
	}
	return attached, nil
}

// RemoveClient detaches a client from an appointment. The appointment itself
// is deleted when the removed client was its last attachment.
func (s *Service) RemoveClient(ctx context.Context, clientID, appointmentID uuid.UUID) error {
	if clientID == uuid.Nil {
		return validationError("client_id is required")
	}
	if appointmentID == uuid.Nil {
		return validationError("appointment_id is required")
	}

	appt, err := s.sched.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}

	return s.sched.InSchedulingTx(ctx, store.LockKeys{
		PhysiotherapistID: appt.PhysiotherapistID,
		ClientIDs:         []uuid.UUID{clientID},
	}, func(ctx context.Context, tx store.SchedulingTx) error {
		if _, err := tx.GetAttachment(ctx, clientID, appointmentID); err != nil {
			return err
		}
		if err := tx.DetachClient(ctx, clientID, appointmentID); err != nil {
			return err
		}
		count, err := tx.CountAttachments(ctx, appointmentID)
		if err != nil {
			return err
		}
		if count == 0 {
			return tx.DeleteAppointment(ctx, appointmentID)
		}
		return nil
	})
}

// MarkAbsent flags a client's attachment as a no-show. The attachment keeps
// its confirmation state.
func (s *Service) MarkAbsent(ctx context.Context, clientID, appointmentID uuid.UUID) (domain.AppointmentClient, error) {
	if clientID == uuid.Nil {
		return domain.AppointmentClient{}, validationError("client_id is required")
	}
	if appointmentID == uuid.Nil {
		return domain.AppointmentClient{}, validationError("appointment_id is required")
	}

	var updated domain.AppointmentClient
	err := s.sched.InSchedulingTx(ctx, store.LockKeys{
		ClientIDs: []uuid.UUID{clientID},
	}, func(ctx context.Context, tx store.SchedulingTx) error {
		ac, err := tx.GetAttachment(ctx, clientID, appointmentID)
		if err != nil {
			return err
		}
		ac.Attendance = false
		updated, err = tx.UpdateAttachment(ctx, ac)
		return err
	})
	if err != nil {
		return domain.AppointmentClient{}, err
	}
	return updated, nil
}

// FindAvailable lists future slots the client could join: slots they are not
// attached to whose active group is below the client's policy cap. Open
// slots with no clients qualify.
func (s *Service) FindAvailable(ctx context.Context, clientID uuid.UUID) ([]domain.AppointmentDetail, error) {
	if clientID == uuid.Nil {
		return nil, validationError("client_id is required")
	}
	if _, err := s.records.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	groupCap, err := s.groupCapFor(ctx, clientID)
	if err != nil {
		return nil, err
	}

	appts, err := s.sched.ListAvailable(ctx, clientID, s.now().UTC(), groupCap)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, appts)
}

func (s *Service) groupCapFor(ctx context.Context, clientID uuid.UUID) (int, error) {
	rules, err := s.records.GetRulesForClient(ctx, clientID)
	if err != nil {
		return 0, err
	}
	if rules.MaxClientsPerGroup < 1 {
		return defaultGroupCap, nil
	}
	return rules.MaxClientsPerGroup, nil
}

func (s *Service) Get(ctx context.Context, appointmentID uuid.UUID) (domain.AppointmentDetail, error) {
	if appointmentID == uuid.Nil {
		return domain.AppointmentDetail{}, validationError("appointment_id is required")
	}
	appt, err := s.sched.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.AppointmentDetail{}, err
	}
	details, err := s.detail(ctx, []domain.Appointment{appt})
	if err != nil {
		return domain.AppointmentDetail{}, err
	}
	return details[0], nil
}

func (s *Service) ListAll(ctx context.Context) ([]domain.AppointmentDetail, error) {
	appts, err := s.sched.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, appts)
}

func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID, futureOnly bool) ([]domain.AppointmentDetail, error) {
	if clientID == uuid.Nil {
		return nil, validationError("client_id is required")
	}
	var (
		appts []domain.Appointment
		err   error
	)
	if futureOnly {
		appts, err = s.sched.ListFutureByClient(ctx, clientID, s.now().UTC())
	} else {
		appts, err = s.sched.ListByClient(ctx, clientID)
	}
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, appts)
}

func (s *Service) ListByPhysiotherapist(ctx context.Context, physiotherapistID uuid.UUID) ([]domain.AppointmentDetail, error) {
	if physiotherapistID == uuid.Nil {
		return nil, validationError("physiotherapist_id is required")
	}
	appts, err := s.sched.ListByPhysiotherapist(ctx, physiotherapistID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, appts)
}

func (s *Service) ListByDate(ctx context.Context, day time.Time) ([]domain.AppointmentDetail, error) {
	if day.IsZero() {
		return nil, validationError("date is required")
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	appts, err := s.sched.ListByDate(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, appts)
}

type FilterInput struct {
	ClientID uuid.UUID
	Modality domain.Modality
	// Month narrows to the calendar month containing it; zero disables.
	Month time.Time
}

func (s *Service) Filter(ctx context.Context, in FilterInput) ([]domain.AppointmentDetail, error) {
	if in.ClientID == uuid.Nil {
		return nil, validationError("client_id is required")
	}
	if in.Modality != "" && !in.Modality.Valid() {
		return nil, validationError("invalid modality")
	}
	var monthStart, monthEnd time.Time
	if !in.Month.IsZero() {
		monthStart = time.Date(in.Month.Year(), in.Month.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthEnd = monthStart.AddDate(0, 1, 0)
	}
	appts, err := s.sched.ListFiltered(ctx, in.ClientID, in.Modality, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, appts)
}

// detail joins appointments with their attached groups and physiotherapist
// names. Physiotherapists repeat across slots, so lookups are memoized.
func (s *Service) detail(ctx context.Context, appts []domain.Appointment) ([]domain.AppointmentDetail, error) {
	physioNames := make(map[uuid.UUID]string)
	out := make([]domain.AppointmentDetail, 0, len(appts))
	for _, appt := range appts {
		name, ok := physioNames[appt.PhysiotherapistID]
		if !ok {
			physio, err := s.records.GetPhysiotherapist(ctx, appt.PhysiotherapistID)
			if err != nil {
				return nil, err
			}
			name = physio.Name
			physioNames[appt.PhysiotherapistID] = name
		}
		clients, err := s.sched.ListAttachedClients(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.AppointmentDetail{
			Appointment:         appt,
			PhysiotherapistName: name,
			Clients:             clients,
		})
	}
	return out, nil
}
