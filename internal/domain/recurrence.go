package domain

import (
	"errors"
	"time"
)

type RepeatKind string

const (
	RepeatOff    RepeatKind = "off"
	RepeatAlways RepeatKind = "always"
	RepeatCount  RepeatKind = "count"
)

// AlwaysOccurrences caps the "always" repeat at 26 weekly slots (~6 months).
// There is no open-ended recurrence.
const AlwaysOccurrences = 26

// RepeatPolicy describes how a requested slot expands into a weekly series.
// The zero value means no repetition.
type RepeatPolicy struct {
	Kind  RepeatKind
	Count int
}

func (p RepeatPolicy) Validate() error {
	switch p.Kind {
	case "", RepeatOff, RepeatAlways:
		return nil
	case RepeatCount:
		if p.Count < 1 {
			return errors.New("repeat count must be at least 1")
		}
		return nil
	default:
		return errors.New("unsupported repeat kind")
	}
}

// Occurrences is the number of weekly slots the policy expands to.
func (p RepeatPolicy) Occurrences() int {
	switch p.Kind {
	case RepeatAlways:
		return AlwaysOccurrences
	case RepeatCount:
		return p.Count
	default:
		return 1
	}
}

// Expand returns the candidate timestamps for a series starting at start:
// start plus an integer multiple of 7 days per occurrence, in order.
func (p RepeatPolicy) Expand(start time.Time) []time.Time {
	n := p.Occurrences()
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, start.AddDate(0, 0, 7*i))
	}
	return out
}
