package records

import (
	"context"
	"errors"
	"sort"
	"strings"
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

type Service struct {
	records store.RecordRepository
	sched   store.SchedulingRepository
	now     func() time.Time
}

func NewService(records store.RecordRepository, sched store.SchedulingRepository) *Service {
	return &Service{
		records: records,
		sched:   sched,
		now:     time.Now,
	}
}

type ClientInput struct {
	Name           string
	SignedContract *time.Time
	RulesID        uuid.UUID
}

func (s *Service) RegisterClient(ctx context.Context, in ClientInput) (domain.Client, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Client{}, validationError("name is required")
	}
	if in.RulesID == uuid.Nil {
		return domain.Client{}, validationError("appointment_rules_id is required")
	}
	if _, err := s.records.GetRules(ctx, in.RulesID); err != nil {
		return domain.Client{}, err
	}
	return s.records.CreateClient(ctx, domain.Client{
		Name:           name,
		SignedContract: in.SignedContract,
		RulesID:        in.RulesID,
	})
}

func (s *Service) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	if id == uuid.Nil {
		return domain.Client{}, validationError("id is required")
	}
	return s.records.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context, withAppointmentsOnly bool) ([]domain.Client, error) {
	if withAppointmentsOnly {
		return s.records.ListClientsWithAppointments(ctx)
	}
	return s.records.ListClients(ctx)
}

func (s *Service) RegisterPhysiotherapist(ctx context.Context, name string) (domain.Physiotherapist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Physiotherapist{}, validationError("name is required")
	}
	return s.records.CreatePhysiotherapist(ctx, domain.Physiotherapist{Name: name})
}

func (s *Service) ListPhysiotherapists(ctx context.Context) ([]domain.Physiotherapist, error) {
	return s.records.ListPhysiotherapists(ctx)
}

func (s *Service) RecordPayment(ctx context.Context, clientID uuid.UUID, confirmed time.Time) (domain.Payment, error) {
	if clientID == uuid.Nil {
		return domain.Payment{}, validationError("client_id is required")
	}
	if confirmed.IsZero() {
		return domain.Payment{}, validationError("confirmed date is required")
	}
	if _, err := s.records.GetClient(ctx, clientID); err != nil {
		return domain.Payment{}, err
	}
	return s.records.CreatePayment(ctx, domain.Payment{
		ClientID:  clientID,
		Confirmed: confirmed.UTC(),
	})
}

func (s *Service) CreateBusinessRule(ctx context.Context, title, body string) (domain.BusinessRule, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.BusinessRule{}, validationError("title is required")
	}
	if strings.TrimSpace(body) == "" {
		return domain.BusinessRule{}, validationError("body is required")
	}
	return s.records.CreateBusinessRule(ctx, domain.BusinessRule{Title: title, Body: body})
}

func (s *Service) ListBusinessRules(ctx context.Context) ([]domain.BusinessRule, error) {
	return s.records.ListBusinessRules(ctx)
}

// ClientSchedule is the client-facing summary: contract and payment status,
// the plan they are on, and their booked times grouped by modality and
// weekday.
type ClientSchedule struct {
	ClientID       uuid.UUID          `json:"client_id"`
	Name           string             `json:"name"`
	SignedContract *time.Time         `json:"signed_contract,omitempty"`
	LastPayment    *time.Time         `json:"last_payment,omitempty"`
	Plan           PlanSummary        `json:"plan"`
	Modalities     []ModalitySchedule `json:"modalities"`
}

type PlanSummary struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Frequency domain.Frequency `json:"frequency"`
}

type ModalitySchedule struct {
	Modality domain.Modality `json:"modality"`
	Days     []DaySchedule   `json:"days"`
}

type DaySchedule struct {
	Weekday time.Weekday `json:"weekday"`
	Times   []string     `json:"times"`
}

// ClientSchedule builds the summary from the client's future appointments.
// A client with no recorded payment still gets a summary.
func (s *Service) ClientSchedule(ctx context.Context, clientID uuid.UUID) (ClientSchedule, error) {
	if clientID == uuid.Nil {
		return ClientSchedule{}, validationError("client_id is required")
	}

	client, err := s.records.GetClient(ctx, clientID)
	if err != nil {
		return ClientSchedule{}, err
	}
	plan, err := s.records.GetRulesForClient(ctx, clientID)
	if err != nil {
		return ClientSchedule{}, err
	}

	out := ClientSchedule{
		ClientID:       client.ID,
		Name:           client.Name,
		SignedContract: client.SignedContract,
		Plan: PlanSummary{
			ID:        plan.ID,
			Name:      plan.Name,
			Frequency: plan.Frequency,
		},
	}

	payment, err := s.records.LatestPayment(ctx, clientID)
	switch {
	case err == nil:
		confirmed := payment.Confirmed
		out.LastPayment = &confirmed
	case !errors.Is(err, store.ErrNotFound):
		return ClientSchedule{}, err
	}

	appts, err := s.sched.ListFutureByClient(ctx, clientID, s.now().UTC())
	if err != nil {
		return ClientSchedule{}, err
	}
	out.Modalities = groupByModality(appts)
	return out, nil
}

func groupByModality(appts []domain.Appointment) []ModalitySchedule {
	type daySlot struct {
		modality domain.Modality
		weekday  time.Weekday
	}
	times := make(map[daySlot][]string)
	for _, appt := range appts {
		key := daySlot{modality: appt.Modality, weekday: appt.DateTime.UTC().Weekday()}
		hhmm := appt.DateTime.UTC().Format("15:04")
		found := false
		for _, existing := range times[key] {
			if existing == hhmm {
				found = true
				break
			}
		}
		if !found {
			times[key] = append(times[key], hhmm)
		}
	}

	byModality := make(map[domain.Modality]map[time.Weekday][]string)
	for key, tt := range times {
		if byModality[key.modality] == nil {
			byModality[key.modality] = make(map[time.Weekday][]string)
		}
		sort.Strings(tt)
		byModality[key.modality][key.weekday] = tt
	}

	modalities := make([]domain.Modality, 0, len(byModality))
	for m := range byModality {
		modalities = append(modalities, m)
	}
	sort.Slice(modalities, func(i, j int) bool { return modalities[i] < modalities[j] })

	out := make([]ModalitySchedule, 0, len(modalities))
	for _, m := range modalities {
		days := make([]DaySchedule, 0, len(byModality[m]))
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			if tt, ok := byModality[m][wd]; ok {
				days = append(days, DaySchedule{Weekday: wd, Times: tt})
			}
		}
		out = append(out, ModalitySchedule{Modality: m, Days: days})
	}
	return out
}
