package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"physiofit/backend/internal/domain"
)

// SchedulingTx is the unit-of-work surface for appointment writes. Every
// check-then-write sequence (conflict checks, quota checks) runs against a
// SchedulingTx so that the repository can scope a transaction-and-lock
// boundary to the physiotherapist and client keys being written.
type SchedulingTx interface {
	// PhysiotherapistBookedAt reports an exact-timestamp collision for the
	// physiotherapist. A slot is a point in time, not an interval.
	PhysiotherapistBookedAt(ctx context.Context, physiotherapistID uuid.UUID, at time.Time) (bool, error)
	// ClientBookedAt reports an exact-timestamp collision for the client.
	ClientBookedAt(ctx context.Context, clientID uuid.UUID, at time.Time) (bool, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	GetAttachment(ctx context.Context, clientID, appointmentID uuid.UUID) (domain.AppointmentClient, error)
	AttachClient(ctx context.Context, ac domain.AppointmentClient) (domain.AppointmentClient, error)
	UpdateAttachment(ctx context.Context, ac domain.AppointmentClient) (domain.AppointmentClient, error)
	DetachClient(ctx context.Context, clientID, appointmentID uuid.UUID) error
	CountAttachments(ctx context.Context, appointmentID uuid.UUID) (int, error)
	// CountActiveAttachments counts CONFIRMED and RESCHEDULED rows only.
	CountActiveAttachments(ctx context.Context, appointmentID uuid.UUID) (int, error)

	// CountRescheduledBetween counts the client's RESCHEDULED attachments to
	// appointments dated within [from, to).
	CountRescheduledBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) (int, error)
	// ListClientAttachmentsBetween returns the client's attachments to
	// appointments dated within [from, to).
	ListClientAttachmentsBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]domain.AppointmentClient, error)

	// DeleteClientSchedule removes every attachment of the client and every
	// appointment left without attachments by that removal.
	DeleteClientSchedule(ctx context.Context, clientID uuid.UUID) error
}

// SchedulingRepository provides the transactional boundary plus the read
// paths that need no locking.
type SchedulingRepository interface {
	// InSchedulingTx runs fn in one transaction after serializing on the
	// given lock keys. Two requests writing the same physiotherapist or
	// client cannot interleave their conflict checks and writes.
	InSchedulingTx(ctx context.Context, keys LockKeys, fn func(ctx context.Context, tx SchedulingTx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context) ([]domain.Appointment, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Appointment, error)
	ListFutureByClient(ctx context.Context, clientID uuid.UUID, after time.Time) ([]domain.Appointment, error)
	ListByPhysiotherapist(ctx context.Context, physiotherapistID uuid.UUID) ([]domain.Appointment, error)
	ListByDate(ctx context.Context, dayStart, dayEnd time.Time) ([]domain.Appointment, error)
	// ListFiltered narrows a client's appointments by modality and/or the
	// [monthStart, monthEnd) window; zero values disable a filter.
	ListFiltered(ctx context.Context, clientID uuid.UUID, modality domain.Modality, monthStart, monthEnd time.Time) ([]domain.Appointment, error)
	// ListAvailable returns future appointments the client is not attached
	// to whose active group size is below cap.
	ListAvailable(ctx context.Context, clientID uuid.UUID, after time.Time, cap int) ([]domain.Appointment, error)
	ListAttachedClients(ctx context.Context, appointmentID uuid.UUID) ([]domain.AttachedClient, error)

	// Read-only counterparts of the SchedulingTx quota reads, for decision
	// paths that mutate nothing.
	CountRescheduledBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) (int, error)
	ListClientAttachmentsBetween(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]domain.AppointmentClient, error)
}

// LockKeys are the advisory-lock keys a scheduling transaction serializes
// on: the owning physiotherapist plus every client being written.
type LockKeys struct {
	PhysiotherapistID uuid.UUID
	ClientIDs         []uuid.UUID
}

// Keys returns the distinct, sorted lock key strings. Sorting keeps lock
// acquisition order stable across concurrent transactions.
func (k LockKeys) Keys() []string {
	seen := make(map[string]struct{}, len(k.ClientIDs)+1)
	out := make([]string, 0, len(k.ClientIDs)+1)
	if k.PhysiotherapistID != uuid.Nil {
		key := "physio:" + k.PhysiotherapistID.String()
		seen[key] = struct{}{}
		out = append(out, key)
	}
	for _, id := range k.ClientIDs {
		if id == uuid.Nil {
			continue
		}
		key := "client:" + id.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
