package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"physiofit/backend/internal/domain"
	"physiofit/backend/internal/store"
)

type SchedulingRepo struct {
	db *bun.DB
}

func NewSchedulingRepo(db *bun.DB) *SchedulingRepo {
	return &SchedulingRepo{db: db}
}

type schedTx struct {
	tx bun.Tx
}

func (r *SchedulingRepo) InSchedulingTx(ctx context.Context, keys store.LockKeys, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, key := range keys.Keys() {
			if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx); err != nil {
				return err
			}
		}
		return fn(ctx, schedTx{tx: tx})
	})
}

func (r *SchedulingRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("a.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *SchedulingRepo) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("a.date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Join("JOIN appointment_clients AS ac ON ac.appointment_id = a.id").
		Where("ac.client_id = ?", clientID).
		OrderExpr("a.date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListFutureByClient(ctx context.Context, clientID uuid.UUID, after time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Join("JOIN appointment_clients AS ac ON ac.appointment_id = a.id").
		Where("ac.client_id = ?", clientID).
		Where("a.date_time >= ?", after).
		OrderExpr("a.date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListByPhysiotherapist(ctx context.Context, physiotherapistID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("a.physiotherapist_id = ?", physiotherapistID).
		OrderExpr("a.date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListByDate(ctx context.Context, dayStart, dayEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("a.date_time >= ?", dayStart).
		Where("a.date_time < ?", dayEnd).
		OrderExpr("a.date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListFiltered(ctx context.Context, clientID uuid.UUID, modality domain.Modality, monthStart, monthEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Join("JOIN appointment_clients AS ac ON ac.appointment_id = a.id").
		Where("ac.client_id = ?", clientID)
	if modality != "" {
		q = q.Where("a.modality = ?", modality)
	}
	if !monthStart.IsZero() {
		q = q.Where("a.date_time >= ?", monthStart).Where("a.date_time < ?", monthEnd)
	}

	err := q.OrderExpr("a.date_time ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListAvailable(ctx context.Context, clientID uuid.UUID, after time.Time, groupCap int) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("a.date_time >= ?", after).
		Where("a.id NOT IN (SELECT ac.appointment_id FROM appointment_clients AS ac WHERE ac.client_id = ?)", clientID).
		Where("(SELECT COUNT(*) FROM appointment_clients AS ac2 WHERE ac2.appointment_id = a.id AND ac2.confirmation IN (?, ?)) < ?",
			domain.ConfirmationConfirmed, domain.ConfirmationRescheduled, groupCap).
		OrderExpr("a.date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListAttachedClients(ctx context.Context, appointmentID uuid.UUID) ([]domain.AttachedClient, error) {
	var rows []domain.AttachedClient
	err := r.db.NewSelect().
		Model((*domain.AppointmentClient)(nil)).
		ColumnExpr("ac.client_id, c.name, ac.confirmation, ac.attendance").
		Join("JOIN clients AS c ON c.id = ac.client_id").
		Where("ac.appointment_id = ?", appointmentID).
		OrderExpr("c.name ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) CountRescheduledBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) (int, error) {
	return countRescheduledBetween(ctx, r.db, clientID, from, to)
}

func (r *SchedulingRepo) ListClientAttachmentsBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]domain.AppointmentClient, error) {
	return listClientAttachmentsBetween(ctx, r.db, clientID, from, to)
}

func (t schedTx) PhysiotherapistBookedAt(ctx context.Context, physiotherapistID uuid.UUID, at time.Time) (bool, error) {
	n, err := t.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("a.physiotherapist_id = ?", physiotherapistID).
		Where("a.date_time = ?", at).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t schedTx) ClientBookedAt(ctx context.Context, clientID uuid.UUID, at time.Time) (bool, error) {
	n, err := t.tx.NewSelect().
		Model((*domain.AppointmentClient)(nil)).
		Join("JOIN appointments AS a ON a.id = ac.appointment_id").
		Where("ac.client_id = ?", clientID).
		Where("a.date_time = ?", at).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t schedTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := t.tx.NewSelect().
		Model(&appt).
		Where("a.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (t schedTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Appointment{}, store.ErrAlreadyBooked
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (t schedTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("date_time", "location", "modality", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Appointment{}, store.ErrAlreadyBooked
		}
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (t schedTx) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t schedTx) GetAttachment(ctx context.Context, clientID, appointmentID uuid.UUID) (domain.AppointmentClient, error) {
	var ac domain.AppointmentClient
	err := t.tx.NewSelect().
		Model(&ac).
		Where("ac.client_id = ?", clientID).
		Where("ac.appointment_id = ?", appointmentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AppointmentClient{}, store.ErrNotFound
	}
	if err != nil {
		return domain.AppointmentClient{}, err
	}
	return ac, nil
}

func (t schedTx) AttachClient(ctx context.Context, ac domain.AppointmentClient) (domain.AppointmentClient, error) {
	m := ac
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.AppointmentClient{}, store.ErrAlreadyAssociated
		}
		return domain.AppointmentClient{}, err
	}
	return m, nil
}

func (t schedTx) UpdateAttachment(ctx context.Context, ac domain.AppointmentClient) (domain.AppointmentClient, error) {
	m := ac
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("appointment_id", "confirmation", "attendance", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.AppointmentClient{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.AppointmentClient{}, err
	}
	if affected == 0 {
		return domain.AppointmentClient{}, store.ErrNotFound
	}
	return m, nil
}

func (t schedTx) DetachClient(ctx context.Context, clientID, appointmentID uuid.UUID) error {
	res, err := t.tx.NewDelete().
		Model((*domain.AppointmentClient)(nil)).
		Where("client_id = ?", clientID).
		Where("appointment_id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t schedTx) CountAttachments(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	return t.tx.NewSelect().
		Model((*domain.AppointmentClient)(nil)).
		Where("ac.appointment_id = ?", appointmentID).
		Count(ctx)
}

func (t schedTx) CountActiveAttachments(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	return t.tx.NewSelect().
		Model((*domain.AppointmentClient)(nil)).
		Where("ac.appointment_id = ?", appointmentID).
		Where("ac.confirmation IN (?, ?)", domain.ConfirmationConfirmed, domain.ConfirmationRescheduled).
		Count(ctx)
}

func (t schedTx) CountRescheduledBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) (int, error) {
	return countRescheduledBetween(ctx, t.tx, clientID, from, to)
}

func (t schedTx) ListClientAttachmentsBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]domain.AppointmentClient, error) {
	return listClientAttachmentsBetween(ctx, t.tx, clientID, from, to)
}

func countRescheduledBetween(ctx context.Context, db bun.IDB, clientID uuid.UUID, from, to time.Time) (int, error) {
	return db.NewSelect().
		Model((*domain.AppointmentClient)(nil)).
		Join("JOIN appointments AS a ON a.id = ac.appointment_id").
		Where("ac.client_id = ?", clientID).
		Where("ac.confirmation = ?", domain.ConfirmationRescheduled).
		Where("a.date_time >= ?", from).
		Where("a.date_time < ?", to).
		Count(ctx)
}

func listClientAttachmentsBetween(ctx context.Context, db bun.IDB, clientID uuid.UUID, from, to time.Time) ([]domain.AppointmentClient, error) {
	var rows []domain.AppointmentClient
	err := db.NewSelect().
		Model(&rows).
		Join("JOIN appointments AS a ON a.id = ac.appointment_id").
		Where("ac.client_id = ?", clientID).
		Where("a.date_time >= ?", from).
		Where("a.date_time < ?", to).
		OrderExpr("a.date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t schedTx) DeleteClientSchedule(ctx context.Context, clientID uuid.UUID) error {
	var apptIDs []uuid.UUID
	err := t.tx.NewSelect().
		Model((*domain.AppointmentClient)(nil)).
		Column("appointment_id").
		Where("ac.client_id = ?", clientID).
		Scan(ctx, &apptIDs)
	if err != nil {
		return err
	}
	if len(apptIDs) == 0 {
		return nil
	}

	_, err = t.tx.NewDelete().
		Model((*domain.AppointmentClient)(nil)).
		Where("client_id = ?", clientID).
		Exec(ctx)
	if err != nil {
		return err
	}

	// Only appointments left without any attachment go away; shared group
	// slots survive for the remaining clients.
	_, err = t.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id IN (?)", bun.In(apptIDs)).
		Where("NOT EXISTS (SELECT 1 FROM appointment_clients AS ac WHERE ac.appointment_id = a.id)").
		Exec(ctx)
	return err
}
