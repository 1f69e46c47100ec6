package store

import (
	"context"

	"github.com/google/uuid"

	"physiofit/backend/internal/domain"
)

// RecordRepository covers the plain-record side of the system: clients,
// physiotherapists, scheduling policies, payment dates and business-rule
// text. All of it is simple CRUD.
type RecordRepository interface {
	CreateClient(ctx context.Context, c domain.Client) (domain.Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	// ListClientsWithAppointments returns clients holding at least one
	// attachment.
	ListClientsWithAppointments(ctx context.Context) ([]domain.Client, error)

	CreatePhysiotherapist(ctx context.Context, p domain.Physiotherapist) (domain.Physiotherapist, error)
	GetPhysiotherapist(ctx context.Context, id uuid.UUID) (domain.Physiotherapist, error)
	ListPhysiotherapists(ctx context.Context) ([]domain.Physiotherapist, error)

	CreateRules(ctx context.Context, r domain.AppointmentRules) (domain.AppointmentRules, error)
	GetRules(ctx context.Context, id uuid.UUID) (domain.AppointmentRules, error)
	// GetRulesForClient resolves the single policy attached to the client.
	GetRulesForClient(ctx context.Context, clientID uuid.UUID) (domain.AppointmentRules, error)

	CreatePayment(ctx context.Context, p domain.Payment) (domain.Payment, error)
	LatestPayment(ctx context.Context, clientID uuid.UUID) (domain.Payment, error)

	CreateBusinessRule(ctx context.Context, b domain.BusinessRule) (domain.BusinessRule, error)
	ListBusinessRules(ctx context.Context) ([]domain.BusinessRule, error)
}
