package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Modality string

const (
	ModalityGroupPilates      Modality = "GROUP_PILATES"
	ModalityIndividualPilates Modality = "INDIVIDUAL_PILATES"
	ModalityPhysiotherapy     Modality = "PHYSIOTHERAPY"
	ModalityEvaluation        Modality = "EVALUATION"
	ModalityRPG               Modality = "RPG"
	ModalityMackenzie         Modality = "MACKENZIE"
)

func (m Modality) Valid() bool {
	switch m {
	case ModalityGroupPilates, ModalityIndividualPilates, ModalityPhysiotherapy,
		ModalityEvaluation, ModalityRPG, ModalityMackenzie:
		return true
	}
	return false
}

type Location string

const (
	LocationClinic Location = "CLINIC"
	LocationHome   Location = "HOME"
	LocationOnline Location = "ONLINE"
)

func (l Location) Valid() bool {
	switch l {
	case LocationClinic, LocationHome, LocationOnline:
		return true
	}
	return false
}

// Confirmation is the per-client state of an attachment to an appointment.
type Confirmation string

const (
	ConfirmationConfirmed                   Confirmation = "CONFIRMED"
	ConfirmationCanceledWithRescheduling    Confirmation = "CANCELED_WITH_RESCHEDULING"
	ConfirmationCanceledWithoutRescheduling Confirmation = "CANCELED_WITHOUT_RESCHEDULING"
	ConfirmationRescheduled                 Confirmation = "RESCHEDULED"
)

// Appointment is a bookable slot owned by one physiotherapist. DateTime is
// a point in time, not an interval; a physiotherapist never holds two
// appointments at the same DateTime.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID                uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	PhysiotherapistID uuid.UUID `bun:"physiotherapist_id,notnull,type:uuid" json:"physiotherapist_id"`
	DateTime          time.Time `bun:"date_time,notnull" json:"date_time"`
	Location          Location  `bun:"location,notnull" json:"location"`
	Modality          Modality  `bun:"modality,notnull" json:"modality"`
	CreatedAt         time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// AppointmentClient binds one client to one appointment. At most one row
// exists per (client, appointment) pair.
type AppointmentClient struct {
	bun.BaseModel `bun:"table:appointment_clients,alias:ac"`

	ID            uuid.UUID    `bun:"id,pk,type:uuid" json:"id"`
	AppointmentID uuid.UUID    `bun:"appointment_id,notnull,type:uuid" json:"appointment_id"`
	ClientID      uuid.UUID    `bun:"client_id,notnull,type:uuid" json:"client_id"`
	Confirmation  Confirmation `bun:"confirmation,notnull" json:"confirmation"`
	Attendance    bool         `bun:"attendance,notnull" json:"attendance"`
	CreatedAt     time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}

func (c *AppointmentClient) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if c.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			c.ID = id
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		c.UpdatedAt = now
	}
	return nil
}

// AttachedClient is an attachment joined with the client's name, used by
// read paths that render an appointment with its group.
type AttachedClient struct {
	ClientID     uuid.UUID    `bun:"client_id" json:"client_id"`
	Name         string       `bun:"name" json:"name"`
	Confirmation Confirmation `bun:"confirmation" json:"confirmation"`
	Attendance   bool         `bun:"attendance" json:"attendance"`
}

// AppointmentDetail is a slot with its physiotherapist and attached group.
type AppointmentDetail struct {
	Appointment         Appointment      `json:"appointment"`
	PhysiotherapistName string           `json:"physiotherapist_name"`
	Clients             []AttachedClient `json:"clients"`
}
