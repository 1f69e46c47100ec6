package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"physiofit/backend/internal/domain"
	"physiofit/backend/internal/store"
)

type RecordRepo struct {
	db *bun.DB
}

func NewRecordRepo(db *bun.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

func (r *RecordRepo) CreateClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	m := c
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Client{}, err
	}
	return m, nil
}

func (r *RecordRepo) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	var c domain.Client
	err := r.db.NewSelect().Model(&c).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Client{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (r *RecordRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	var rows []domain.Client
	err := r.db.NewSelect().Model(&rows).OrderExpr("c.name ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RecordRepo) ListClientsWithAppointments(ctx context.Context) ([]domain.Client, error) {
	var rows []domain.Client
	err := r.db.NewSelect().
		Model(&rows).
		Where("EXISTS (SELECT 1 FROM appointment_clients AS ac WHERE ac.client_id = c.id)").
		OrderExpr("c.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RecordRepo) CreatePhysiotherapist(ctx context.Context, p domain.Physiotherapist) (domain.Physiotherapist, error) {
	m := p
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Physiotherapist{}, err
	}
	return m, nil
}

func (r *RecordRepo) GetPhysiotherapist(ctx context.Context, id uuid.UUID) (domain.Physiotherapist, error) {
	var p domain.Physiotherapist
	err := r.db.NewSelect().Model(&p).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Physiotherapist{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Physiotherapist{}, err
	}
	return p, nil
}

func (r *RecordRepo) ListPhysiotherapists(ctx context.Context) ([]domain.Physiotherapist, error) {
	var rows []domain.Physiotherapist
	err := r.db.NewSelect().Model(&rows).OrderExpr("p.name ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RecordRepo) CreateRules(ctx context.Context, rules domain.AppointmentRules) (domain.AppointmentRules, error) {
	m := rules
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.AppointmentRules{}, err
	}
	return m, nil
}

func (r *RecordRepo) GetRules(ctx context.Context, id uuid.UUID) (domain.AppointmentRules, error) {
	var rules domain.AppointmentRules
	err := r.db.NewSelect().Model(&rules).Where("ar.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AppointmentRules{}, store.ErrNotFound
	}
	if err != nil {
		return domain.AppointmentRules{}, err
	}
	return rules, nil
}

func (r *RecordRepo) GetRulesForClient(ctx context.Context, clientID uuid.UUID) (domain.AppointmentRules, error) {
	var rules domain.AppointmentRules
	err := r.db.NewSelect().
		Model(&rules).
		Join("JOIN clients AS c ON c.appointment_rules_id = ar.id").
		Where("c.id = ?", clientID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AppointmentRules{}, store.ErrNotFound
	}
	if err != nil {
		return domain.AppointmentRules{}, err
	}
	return rules, nil
}

func (r *RecordRepo) CreatePayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	m := p
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Payment{}, err
	}
	return m, nil
}

func (r *RecordRepo) LatestPayment(ctx context.Context, clientID uuid.UUID) (domain.Payment, error) {
	var p domain.Payment
	err := r.db.NewSelect().
		Model(&p).
		Where("pay.client_id = ?", clientID).
		OrderExpr("pay.confirmed DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

func (r *RecordRepo) CreateBusinessRule(ctx context.Context, b domain.BusinessRule) (domain.BusinessRule, error) {
	m := b
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.BusinessRule{}, err
	}
	return m, nil
}

func (r *RecordRepo) ListBusinessRules(ctx context.Context) ([]domain.BusinessRule, error) {
	var rows []domain.BusinessRule
	err := r.db.NewSelect().Model(&rows).OrderExpr("br.title ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
