// Package machine decides which action may follow which in a branch and
// assigns statutory deadlines. It is pure: all state comes in as arguments,
// time comes from the injected clock, and working-day arithmetic from the
// injected calendar.
package machine

import (
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/workdays"
)

// Default working-day deadlines per action type. Disclosure is special cased
// on its level; types absent from the table carry no deadline.
var defaultDeadlines = map[models.ActionType]int{
	models.ActionRequest:               8,
	models.ActionClarificationResponse: 8,
	models.ActionConfirmation:          8,
	models.ActionExtension:             10,
	models.ActionClarificationRequest:  7,
	models.ActionDisclosure:            15,
	models.ActionRefusal:               15,
	models.ActionAppeal:                30,
	models.ActionRemandment:            13,
	models.ActionAdvancedRequest:       13,
}

// Machine evaluates action legality and deadline state.
type Machine struct {
	cal       *workdays.Calendar
	clk       clock.Clock
	loc       *time.Location
	overrides map[models.ActionType]int

	// ClosureThresholdDays is how many working days past its deadline a
	// branch's last action must be before the inforequest may auto-close.
	ClosureThresholdDays int
	// ExpirationHalfThresholdDays is the earlier mark at which Expiration
	// actions are created eagerly.
	ExpirationHalfThresholdDays int
}

// New creates a machine over the given calendar and clock. overrides replaces
// default deadlines per action type; pass nil to keep the statutory table.
func New(cal *workdays.Calendar, clk clock.Clock, loc *time.Location, overrides map[models.ActionType]int) *Machine {
	return &Machine{
		cal:                         cal,
		clk:                         clk,
		loc:                         loc,
		overrides:                   overrides,
		ClosureThresholdDays:        100,
		ExpirationHalfThresholdDays: 30,
	}
}

// Calendar exposes the machine's working-day calendar.
func (m *Machine) Calendar() *workdays.Calendar {
	return m.cal
}

// Now returns the machine's current instant.
func (m *Machine) Now() time.Time {
	return m.clk.Now()
}

// Today returns the current local date.
func (m *Machine) Today() time.Time {
	return clock.LocalDate(m.clk.Now(), m.loc)
}

// LocalDate converts an instant to the engine's local date.
func (m *Machine) LocalDate(t time.Time) time.Time {
	return clock.LocalDate(t, m.loc)
}

// DeadlineFor returns the working-day deadline a freshly added action of the
// given type carries, or nil when the type has none. A full disclosure is
// terminal and carries no deadline.
func (m *Machine) DeadlineFor(t models.ActionType, level *models.DisclosureLevel) *int {
	if t == models.ActionDisclosure && level != nil && *level == models.DisclosureFull {
		return nil
	}
	if m.overrides != nil {
		if d, ok := m.overrides[t]; ok {
			return &d
		}
	}
	if d, ok := defaultDeadlines[t]; ok {
		d := d
		return &d
	}
	return nil
}

// DeadlineMissed reports whether the action's deadline had lapsed at instant
// t. An action with no deadline is never missed. The boundary day itself is
// still in time; only the working day after deadline+extension misses.
func (m *Machine) DeadlineMissed(a *models.Action, t time.Time) bool {
	if a.Deadline == nil {
		return false
	}
	return m.cal.DaysBetween(a.EffectiveDate, m.LocalDate(t)) > a.TotalDeadline()
}

// DeadlineRemaining returns how many working days remain until the action's
// deadline at instant t. Negative when the deadline was missed.
func (m *Machine) DeadlineRemaining(a *models.Action, t time.Time) int {
	return a.TotalDeadline() - m.cal.DaysBetween(a.EffectiveDate, m.LocalDate(t))
}

// DeadlineMissedBy returns by how many working days the deadline was missed
// at instant t; zero or negative when it was not.
func (m *Machine) DeadlineMissedBy(a *models.Action, t time.Time) int {
	return -m.DeadlineRemaining(a, t)
}

// BranchClosable reports whether a branch no longer blocks inforequest
// closure: its last action either carries no deadline or missed it by at
// least ClosureThresholdDays working days.
func (m *Machine) BranchClosable(b *models.Branch, t time.Time) bool {
	last := b.LastAction()
	if last == nil {
		return true
	}
	if last.Deadline == nil {
		return true
	}
	return m.DeadlineMissedBy(last, t) >= m.ClosureThresholdDays
}

// Closable reports whether every branch of the inforequest satisfies
// BranchClosable. Branches must be loaded with their actions ordered.
func (m *Machine) Closable(ir *models.Inforequest, t time.Time) bool {
	for i := range ir.Branches {
		if !m.BranchClosable(&ir.Branches[i], t) {
			return false
		}
	}
	return true
}
