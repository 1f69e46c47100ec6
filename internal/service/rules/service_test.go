package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"physiofit/backend/internal/domain"
	"physiofit/backend/internal/store"
)

// fakeSched holds appointments and attachments in memory. It covers only
// the calls the rule engine makes; everything else panics.
type fakeSched struct {
	appts       map[uuid.UUID]domain.Appointment
	attachments map[uuid.UUID]domain.AppointmentClient
}

func newFakeSched() *fakeSched {
	return &fakeSched{
		appts:       make(map[uuid.UUID]domain.Appointment),
		attachments: make(map[uuid.UUID]domain.AppointmentClient),
	}
}

func (f *fakeSched) addAppointment(at time.Time) domain.Appointment {
	appt := domain.Appointment{
		ID:                uuid.New(),
		PhysiotherapistID: uuid.New(),
		DateTime:          at,
		Location:          domain.LocationClinic,
		Modality:          domain.ModalityGroupPilates,
	}
	f.appts[appt.ID] = appt
	return appt
}

func (f *fakeSched) attach(clientID, appointmentID uuid.UUID, confirmation domain.Confirmation) domain.AppointmentClient {
	ac := domain.AppointmentClient{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		ClientID:      clientID,
		Confirmation:  confirmation,
		Attendance:    true,
	}
	f.attachments[ac.ID] = ac
	return ac
}

func (f *fakeSched) InSchedulingTx(ctx context.Context, keys store.LockKeys, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	return fn(ctx, f)
}

func (f *fakeSched) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	appt, ok := f.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return appt, nil
}

func (f *fakeSched) GetAttachment(ctx context.Context, clientID, appointmentID uuid.UUID) (domain.AppointmentClient, error) {
	for _, ac := range f.attachments {
		if ac.ClientID == clientID && ac.AppointmentID == appointmentID {
			return ac, nil
		}
	}
	return domain.AppointmentClient{}, store.ErrNotFound
}

func (f *fakeSched) AttachClient(ctx context.Context, ac domain.AppointmentClient) (domain.AppointmentClient, error) {
	for _, existing := range f.attachments {
		if existing.ClientID == ac.ClientID && existing.AppointmentID == ac.AppointmentID {
			return domain.AppointmentClient{}, store.ErrAlreadyAssociated
		}
	}
	ac.ID = uuid.New()
	f.attachments[ac.ID] = ac
	return ac, nil
}

func (f *fakeSched) UpdateAttachment(ctx context.Context, ac domain.AppointmentClient) (domain.AppointmentClient, error) {
	if _, ok := f.attachments[ac.ID]; !ok {
		return domain.AppointmentClient{}, store.ErrNotFound
	}
	f.attachments[ac.ID] = ac
	return ac, nil
}

func (f *fakeSched) CountRescheduledBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) (int, error) {
	n := 0
	for _, ac := range f.attachments {
		if ac.ClientID != clientID || ac.Confirmation != domain.ConfirmationRescheduled {
			continue
		}
		appt, ok := f.appts[ac.AppointmentID]
		if ok && !appt.DateTime.Before(from) && appt.DateTime.Before(to) {
			n++
		}
	}
	return n, nil
}

func (f *fakeSched) ListClientAttachmentsBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]domain.AppointmentClient, error) {
	var out []domain.AppointmentClient
	for _, ac := range f.attachments {
		if ac.ClientID != clientID {
			continue
		}
		appt, ok := f.appts[ac.AppointmentID]
		if ok && !appt.DateTime.Before(from) && appt.DateTime.Before(to) {
			out = append(out, ac)
		}
	}
	return out, nil
}

func (f *fakeSched) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	panic("CreateAppointment not configured")
}

func (f *fakeSched) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	panic("UpdateAppointment not configured")
}

func (f *fakeSched) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	panic("DeleteAppointment not configured")
}

func (f *fakeSched) DetachClient(ctx context.Context, clientID, appointmentID uuid.UUID) error {
	panic("DetachClient not configured")
}

func (f *fakeSched) CountAttachments(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	panic("CountAttachments not configured")
}

func (f *fakeSched) CountActiveAttachments(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	panic("CountActiveAttachments not configured")
}

func (f *fakeSched) DeleteClientSchedule(ctx context.Context, clientID uuid.UUID) error {
	panic("DeleteClientSchedule not configured")
}

func (f *fakeSched) PhysiotherapistBookedAt(ctx context.Context, physiotherapistID uuid.UUID, at time.Time) (bool, error) {
	panic("PhysiotherapistBookedAt not configured")
}

func (f *fakeSched) ClientBookedAt(ctx context.Context, clientID uuid.UUID, at time.Time) (bool, error) {
	panic("ClientBookedAt not configured")
}

func (f *fakeSched) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	panic("ListAppointments not configured")
}

func (f *fakeSched) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Appointment, error) {
	panic("ListByClient not configured")
}

func (f *fakeSched) ListFutureByClient(ctx context.Context, clientID uuid.UUID, after time.Time) ([]domain.Appointment, error) {
	panic("ListFutureByClient not configured")
}

func (f *fakeSched) ListByPhysiotherapist(ctx context.Context, physiotherapistID uuid.UUID) ([]domain.Appointment, error) {
	panic("ListByPhysiotherapist not configured")
}

func (f *fakeSched) ListByDate(ctx context.Context, dayStart, dayEnd time.Time) ([]domain.Appointment, error) {
	panic("ListByDate not configured")
}

func (f *fakeSched) ListFiltered(ctx context.Context, clientID uuid.UUID, modality domain.Modality, monthStart, monthEnd time.Time) ([]domain.Appointment, error) {
	panic("ListFiltered not configured")
}

func (f *fakeSched) ListAvailable(ctx context.Context, clientID uuid.UUID, after time.Time, groupCap int) ([]domain.Appointment, error) {
	panic("ListAvailable not configured")
}

func (f *fakeSched) ListAttachedClients(ctx context.Context, appointmentID uuid.UUID) ([]domain.AttachedClient, error) {
	panic("ListAttachedClients not configured")
}

type fakeRecords struct {
	rules domain.AppointmentRules
}

func (f *fakeRecords) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	return domain.Client{ID: id, Name: "client"}, nil
}

func (f *fakeRecords) GetRulesForClient(ctx context.Context, clientID uuid.UUID) (domain.AppointmentRules, error) {
	return f.rules, nil
}

func (f *fakeRecords) GetRules(ctx context.Context, id uuid.UUID) (domain.AppointmentRules, error) {
	return f.rules, nil
}

func (f *fakeRecords) CreateRules(ctx context.Context, r domain.AppointmentRules) (domain.AppointmentRules, error) {
	r.ID = uuid.New()
	return r, nil
}

func (f *fakeRecords) CreateClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	panic("CreateClient not configured")
}

func (f *fakeRecords) ListClients(ctx context.Context) ([]domain.Client, error) {
	panic("ListClients not configured")
}

func (f *fakeRecords) ListClientsWithAppointments(ctx context.Context) ([]domain.Client, error) {
	panic("ListClientsWithAppointments not configured")
}

func (f *fakeRecords) CreatePhysiotherapist(ctx context.Context, p domain.Physiotherapist) (domain.Physiotherapist, error) {
	panic("CreatePhysiotherapist not configured")
}

func (f *fakeRecords) GetPhysiotherapist(ctx context.Context, id uuid.UUID) (domain.Physiotherapist, error) {
	panic("GetPhysiotherapist not configured")
}

func (f *fakeRecords) ListPhysiotherapists(ctx context.Context) ([]domain.Physiotherapist, error) {
	panic("ListPhysiotherapists not configured")
}

func (f *fakeRecords) CreatePayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	panic("CreatePayment not configured")
}

func (f *fakeRecords) LatestPayment(ctx context.Context, clientID uuid.UUID) (domain.Payment, error) {
	panic("LatestPayment not configured")
}

func (f *fakeRecords) CreateBusinessRule(ctx context.Context, b domain.BusinessRule) (domain.BusinessRule, error) {
	panic("CreateBusinessRule not configured")
}

func (f *fakeRecords) ListBusinessRules(ctx context.Context) ([]domain.BusinessRule, error) {
	panic("ListBusinessRules not configured")
}

var testNow = time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)

func newTestService(sched *fakeSched, limit, minHours int) *Service {
	svc := NewService(sched, &fakeRecords{rules: domain.AppointmentRules{
		ID:                            uuid.New(),
		Name:                          "standard",
		ReschedulingLimit:             limit,
		ReschedulingMinHoursInAdvance: minHours,
		MaxClientsPerGroup:            4,
		Frequency:                     domain.FrequencyWeekly2,
	}})
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestCancel_AmpleNoticeKeepsReschedulingRight(t *testing.T) {
	sched := newFakeSched()
	svc := newTestService(sched, 2, 24)
	clientID := uuid.New()
	appt := sched.addAppointment(testNow.Add(48 * time.Hour))
	sched.attach(clientID, appt.ID, domain.ConfirmationConfirmed)

	updated, err := svc.Cancel(context.Background(), clientID, appt.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if updated.Confirmation != domain.ConfirmationCanceledWithRescheduling {
		t.Fatalf("confirmation = %s, want CANCELED_WITH_RESCHEDULING", updated.Confirmation)
	}
}

func TestCancel_ShortNoticeForfeitsReschedulingRight(t *testing.T) {
	sched := newFakeSched()
	svc := newTestService(sched, 2, 24)
	clientID := uuid.New()
	appt := sched.addAppointment(testNow.Add(2 * time.Hour))
	sched.attach(clientID, appt.ID, domain.ConfirmationConfirmed)

	updated, err := svc.Cancel(context.Background(), clientID, appt.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if updated.Confirmation != domain.ConfirmationCanceledWithoutRescheduling {
		t.Fatalf("confirmation = %s, want CANCELED_WITHOUT_RESCHEDULING", updated.Confirmation)
	}
}

func TestCancel_NoticeExactlyAtMinimumForfeits(t *testing.T) {
	sched := newFakeSched()
	svc := newTestService(sched, 2, 24)
	clientID := uuid.New()
	// 24h59m away is 24 whole hours, which does not beat a 24 hour minimum.
	appt := sched.addAppointment(testNow.Add(24*time.Hour + 59*time.Minute))
	sched.attach(clientID, appt.ID, domain.ConfirmationConfirmed)

	updated, err := svc.Cancel(context.Background(), clientID, appt.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if updated.Confirmation != domain.ConfirmationCanceledWithoutRescheduling {
		t.Fatalf("confirmation = %s, want CANCELED_WITHOUT_RESCHEDULING", updated.Confirmation)
	}
}

func TestCancel_ExhaustedMonthlyQuotaForfeits(t *testing.T) {
	sched := newFakeSched()
	svc := newTestService(sched, 2, 24)
	clientID := uuid.New()

	// Two rescheduled bookings already sit in the current month.
	for i := 0; i < 2; i++ {
		used := sched.addAppointment(testNow.Add(time.Duration(72+i) * time.Hour))
		sched.attach(clientID, used.ID, domain.ConfirmationRescheduled)
	}

	appt := sched.addAppointment(testNow.Add(48 * time.Hour))
	sched.attach(clientID, appt.ID, domain.ConfirmationConfirmed)

	updated, err := svc.Cancel(context.Background(), clientID, appt.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if updated.Confirmation != domain.ConfirmationCanceledWithoutRescheduling {
		t.Fatalf("confirmation = %s, want CANCELED_WITHOUT_RESCHEDULING", updated.Confirmation)
	}
}

func TestCanReschedule_Decisions(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		sched := newFakeSched()
		svc := newTestService(sched, 2, 24)
		clientID := uuid.New()
		appt := sched.addAppointment(testNow.Add(48 * time.Hour))
		sched.attach(clientID, appt.ID, domain.ConfirmationConfirmed)

		decision, err := svc.CanReschedule(context.Background(), clientID, appt.ID)
		if err != nil {
			t.Fatalf("CanReschedule error: %v", err)
		}
		if !decision.Allowed || decision.Reason != ReasonCanReschedule {
			t.Fatalf("decision = %+v", decision)
		}
	})

	t.Run("min notice reached", func(t *testing.T) {
		sched := newFakeSched()
		svc := newTestService(sched, 2, 24)
		clientID := uuid.New()
		appt := sched.addAppointment(testNow.Add(3 * time.Hour))
		sched.attach(clientID, appt.ID, domain.ConfirmationConfirmed)

		decision, err := svc.CanReschedule(context.Background(), clientID, appt.ID)
		if err != nil {
			t.Fatalf("CanReschedule error: %v", err)
		}
		if decision.Allowed || decision.Reason != ReasonMinNoticeReached {
			t.Fatalf("decision = %+v", decision)
		}
	})

	t.Run("monthly limit reached", func(t *testing.T) {
		sched := newFakeSched()
		svc := newTestService(sched, 1, 24)
		clientID := uuid.New()
		used := sched.addAppointment(testNow.Add(72 * time.Hour))
		sched.attach(clientID, used.ID, domain.ConfirmationRescheduled)
		appt := sched.addAppointment(testNow.Add(48 * time.Hour))
		sched.attach(clientID, appt.ID, domain.ConfirmationConfirmed)

		decision, err := svc.CanReschedule(context.Background(), clientID, appt.ID)
		if err != nil {
			t.Fatalf("CanReschedule error: %v", err)
		}
		if decision.Allowed || decision.Reason != ReasonMaxRescheduleLimitReached {
			t.Fatalf("decision = %+v", decision)
		}
	})

	t.Run("unknown appointment", func(t *testing.T) {
		sched := newFakeSched()
		svc := newTestService(sched, 2, 24)

		_, err := svc.CanReschedule(context.Background(), uuid.New(), uuid.New())
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("error = %v, want %v", err, store.ErrNotFound)
		}
	})
}

func TestCanClientReschedule_Decisions(t *testing.T) {
	t.Run("nothing to rebook", func(t *testing.T) {
		sched := newFakeSched()
		svc := newTestService(sched, 2, 24)
		clientID := uuid.New()
		appt := sched.addAppointment(testNow.Add(48 * time.Hour))
		sched.attach(clientID, appt.ID, domain.ConfirmationConfirmed)

		decision, err := svc.CanClientReschedule(context.Background(), clientID)
		if err != nil {
			t.Fatalf("CanClientReschedule error: %v", err)
		}
		if decision.Allowed || decision.Reason != ReasonNoAppointmentToReschedule {
			t.Fatalf("decision = %+v", decision)
		}
	})

	t.Run("pending cancellation allows", func(t *testing.T) {
		sched := newFakeSched()
		svc := newTestService(sched, 2, 24)
		clientID := uuid.New()
		canceled := sched.addAppointment(testNow.Add(48 * time.Hour))
		sched.attach(clientID, canceled.ID, domain.ConfirmationCanceledWithRescheduling)

		decision, err := svc.CanClientReschedule(context.Background(), clientID)
		if err != nil {
			t.Fatalf("CanClientReschedule error: %v", err)
		}
		if !decision.Allowed || decision.Reason != ReasonCanReschedule {
			t.Fatalf("decision = %+v", decision)
		}
	})

	t.Run("two rescheduled slots exhaust the window", func(t *testing.T) {
		sched := newFakeSched()
		svc := newTestService(sched, 2, 24)
		clientID := uuid.New()
		canceled := sched.addAppointment(testNow.Add(48 * time.Hour))
		sched.attach(clientID, canceled.ID, domain.ConfirmationCanceledWithRescheduling)
		// One this month, one next month: the scan spans both.
		first := sched.addAppointment(testNow.Add(96 * time.Hour))
		sched.attach(clientID, first.ID, domain.ConfirmationRescheduled)
		second := sched.addAppointment(testNow.AddDate(0, 1, 0))
		sched.attach(clientID, second.ID, domain.ConfirmationRescheduled)

		decision, err := svc.CanClientReschedule(context.Background(), clientID)
		if err != nil {
			t.Fatalf("CanClientReschedule error: %v", err)
		}
		if decision.Allowed || decision.Reason != ReasonMaxRescheduleLimitReached {
			t.Fatalf("decision = %+v", decision)
		}
	})
}

func TestReschedule_AttachesAsRescheduled(t *testing.T) {
	sched := newFakeSched()
	svc := newTestService(sched, 2, 24)
	clientID := uuid.New()
	target := sched.addAppointment(testNow.Add(72 * time.Hour))

	attached, err := svc.Reschedule(context.Background(), clientID, target.ID)
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if attached.Confirmation != domain.ConfirmationRescheduled {
		t.Fatalf("confirmation = %s, want RESCHEDULED", attached.Confirmation)
	}
	if !attached.Attendance {
		t.Fatalf("attendance = false, want true")
	}

	_, err = svc.Reschedule(context.Background(), clientID, target.ID)
	if !errors.Is(err, store.ErrAlreadyAssociated) {
		t.Fatalf("second attach error = %v, want %v", err, store.ErrAlreadyAssociated)
	}
}

func TestWholeHoursUntil_TruncatesTowardZero(t *testing.T) {
	at := testNow.Add(23*time.Hour + 59*time.Minute)
	if got := wholeHoursUntil(testNow, at); got != 23 {
		t.Fatalf("wholeHoursUntil = %d, want 23", got)
	}
	if got := wholeHoursUntil(testNow, testNow.Add(24*time.Hour)); got != 24 {
		t.Fatalf("wholeHoursUntil = %d, want 24", got)
	}
}

func TestRegisterPolicy_Validation(t *testing.T) {
	svc := newTestService(newFakeSched(), 2, 24)

	_, err := svc.RegisterPolicy(context.Background(), PolicyInput{
		Name:               "bad",
		MaxClientsPerGroup: 0,
		Frequency:          domain.FrequencyWeekly1,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}

	policy, err := svc.RegisterPolicy(context.Background(), PolicyInput{
		Name:                          "standard",
		ReschedulingLimit:             2,
		ReschedulingMinHoursInAdvance: 24,
		MaxClientsPerGroup:            4,
		Frequency:                     domain.FrequencyWeekly2,
	})
	if err != nil {
		t.Fatalf("RegisterPolicy error: %v", err)
	}
	if policy.ID == uuid.Nil {
		t.Fatalf("expected assigned policy id")
	}
}
