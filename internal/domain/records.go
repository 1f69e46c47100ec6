package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Frequency is how often a client's plan schedules them.
type Frequency string

const (
	FrequencyWeekly1  Frequency = "WEEK_1"
	FrequencyWeekly2  Frequency = "WEEK_2"
	FrequencyWeekly3  Frequency = "WEEK_3"
	FrequencyMonthly1 Frequency = "MONTH_1"
	FrequencyMonthly2 Frequency = "MONTH_2"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly1, FrequencyWeekly2, FrequencyWeekly3,
		FrequencyMonthly1, FrequencyMonthly2:
		return true
	}
	return false
}

// AppointmentRules is a named scheduling policy. Policies are shared: many
// clients may reference the same row, so a policy is read per decision and
// never mutated by the scheduling paths.
type AppointmentRules struct {
	bun.BaseModel `bun:"table:appointment_rules,alias:ar"`

	ID                            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name                          string    `bun:"name,notnull" json:"name"`
	ReschedulingLimit             int       `bun:"rescheduling_limit,notnull" json:"rescheduling_limit"`
	ReschedulingMinHoursInAdvance int       `bun:"rescheduling_min_hours_in_advance,notnull" json:"rescheduling_min_hours_in_advance"`
	MaxClientsPerGroup            int       `bun:"max_clients_per_group,notnull" json:"max_clients_per_group"`
	Frequency                     Frequency `bun:"frequency,notnull" json:"frequency"`
	CreatedAt                     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt                     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (r *AppointmentRules) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

// Client has exactly one policy reference; appointments relate to a client
// only through AppointmentClient rows.
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:c"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name           string     `bun:"name,notnull" json:"name"`
	SignedContract *time.Time `bun:"signed_contract" json:"signed_contract,omitempty"`
	RulesID        uuid.UUID  `bun:"appointment_rules_id,notnull,type:uuid" json:"appointment_rules_id"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

func (c *Client) BeforeAppendModel(ctx context.Context, query bun.Query) error {
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

type Physiotherapist struct {
	bun.BaseModel `bun:"table:physiotherapists,alias:p"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (p *Physiotherapist) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

// Payment records a confirmed payment date for a client. Bookkeeping only.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:pay"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ClientID  uuid.UUID `bun:"client_id,notnull,type:uuid" json:"client_id"`
	Confirmed time.Time `bun:"confirmed,notnull" json:"confirmed"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

func (p *Payment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
	}
	return nil
}

// BusinessRule is a titled piece of display text shown to clients. Content
// management only; nothing in the scheduler reads these.
type BusinessRule struct {
	bun.BaseModel `bun:"table:business_rules,alias:br"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Title     string    `bun:"title,notnull" json:"title"`
	Body      string    `bun:"body,notnull" json:"body"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (b *BusinessRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}
