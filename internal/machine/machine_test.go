package machine

import (
	"testing"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/workdays"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestMachine(now time.Time) *Machine {
	return New(workdays.NewCalendar(nil), clock.NewFixed(now), time.UTC, nil)
}

func intPtr(n int) *int { return &n }

func levelPtr(l models.DisclosureLevel) *models.DisclosureLevel { return &l }

func branchWith(main bool, actions ...models.Action) *models.Branch {
	b := &models.Branch{Actions: actions}
	if !main {
		id := uint(1)
		b.AdvancedByID = &id
	}
	return b
}

func TestDeadlineFor(t *testing.T) {
	m := newTestMachine(date(2026, time.March, 2))

	if d := m.DeadlineFor(models.ActionRequest, nil); d == nil || *d != 8 {
		t.Errorf("request deadline = %v, want 8", d)
	}
	if d := m.DeadlineFor(models.ActionAppeal, nil); d == nil || *d != 30 {
		t.Errorf("appeal deadline = %v, want 30", d)
	}
	if d := m.DeadlineFor(models.ActionConfirmation, nil); d == nil || *d != 8 {
		t.Errorf("confirmation deadline = %v, want 8", d)
	}
	if d := m.DeadlineFor(models.ActionAdvancement, nil); d != nil {
		t.Errorf("advancement deadline = %v, want nil", d)
	}
	// Partial disclosure keeps the appeal window open, full ends the branch.
	if d := m.DeadlineFor(models.ActionDisclosure, levelPtr(models.DisclosurePartial)); d == nil || *d != 15 {
		t.Errorf("partial disclosure deadline = %v, want 15", d)
	}
	if d := m.DeadlineFor(models.ActionDisclosure, levelPtr(models.DisclosureFull)); d != nil {
		t.Errorf("full disclosure deadline = %v, want nil", d)
	}

	override := New(workdays.NewCalendar(nil), clock.NewFixed(date(2026, time.March, 2)), time.UTC,
		map[models.ActionType]int{models.ActionRequest: 5})
	if d := override.DeadlineFor(models.ActionRequest, nil); d == nil || *d != 5 {
		t.Errorf("overridden request deadline = %v, want 5", d)
	}
}

func TestDeadlineMissedBoundary(t *testing.T) {
	m := newTestMachine(date(2026, time.March, 2))
	cal := m.Calendar()

	start := date(2026, time.March, 2) // Monday
	action := &models.Action{
		Type:          models.ActionRequest,
		EffectiveDate: start,
		Deadline:      intPtr(8),
	}

	onDeadline := cal.AddWorkdays(start, 8)
	dayAfter := cal.AddWorkdays(start, 9)

	if m.DeadlineMissed(action, onDeadline) {
		t.Error("deadline day itself should still be in time")
	}
	if !m.DeadlineMissed(action, dayAfter) {
		t.Error("first working day past the deadline should miss")
	}
	if got := m.DeadlineRemaining(action, onDeadline); got != 0 {
		t.Errorf("remaining on deadline day = %d, want 0", got)
	}
	if got := m.DeadlineMissedBy(action, dayAfter); got != 1 {
		t.Errorf("missed by on day after = %d, want 1", got)
	}
}

func TestExtensionMovesTheBoundary(t *testing.T) {
	m := newTestMachine(date(2026, time.March, 2))
	cal := m.Calendar()

	start := date(2026, time.March, 2)
	action := &models.Action{
		Type:          models.ActionRequest,
		EffectiveDate: start,
		Deadline:      intPtr(8),
		Extension:     intPtr(5),
	}

	if m.DeadlineMissed(action, cal.AddWorkdays(start, 13)) {
		t.Error("deadline+extension day should still be in time")
	}
	if !m.DeadlineMissed(action, cal.AddWorkdays(start, 14)) {
		t.Error("day after deadline+extension should miss")
	}
}

func TestNoDeadlineNeverMisses(t *testing.T) {
	m := newTestMachine(date(2026, time.March, 2))
	action := &models.Action{
		Type:          models.ActionAffirmation,
		EffectiveDate: date(2020, time.January, 2),
	}
	if m.DeadlineMissed(action, date(2026, time.March, 2)) {
		t.Error("action without a deadline never misses")
	}
}

func TestCanAdd(t *testing.T) {
	now := date(2026, time.March, 2)
	m := newTestMachine(now)
	cal := m.Calendar()

	afterRequestDeadline := cal.AddWorkdays(now, 9)
	afterAppealDeadline := cal.AddWorkdays(now, 31)

	request := models.Action{Type: models.ActionRequest, EffectiveDate: now, Deadline: intPtr(8)}
	refusal := models.Action{Type: models.ActionRefusal, EffectiveDate: now, Deadline: intPtr(15)}
	appeal := models.Action{Type: models.ActionAppeal, EffectiveDate: now, Deadline: intPtr(30)}
	fullDisclosure := models.Action{
		Type:            models.ActionDisclosure,
		EffectiveDate:   now,
		DisclosureLevel: levelPtr(models.DisclosureFull),
	}
	partialDisclosure := models.Action{
		Type:            models.ActionDisclosure,
		EffectiveDate:   now,
		Deadline:        intPtr(15),
		DisclosureLevel: levelPtr(models.DisclosurePartial),
	}
	affirmation := models.Action{Type: models.ActionAffirmation, EffectiveDate: now}
	clarificationReq := models.Action{
		Type:          models.ActionClarificationRequest,
		EffectiveDate: now,
		Deadline:      intPtr(7),
	}

	tests := []struct {
		name   string
		branch *models.Branch
		next   models.ActionType
		at     time.Time
		want   bool
	}{
		{"empty_main_accepts_request", branchWith(true), models.ActionRequest, now, true},
		{"empty_main_rejects_refusal", branchWith(true), models.ActionRefusal, now, false},
		{"empty_sub_accepts_advanced_request", branchWith(false), models.ActionAdvancedRequest, now, true},
		{"empty_sub_rejects_request", branchWith(false), models.ActionRequest, now, false},
		{"request_accepts_refusal", branchWith(true, request), models.ActionRefusal, now, true},
		{"request_accepts_extension", branchWith(true, request), models.ActionExtension, now, true},
		{"request_rejects_second_request", branchWith(true, request), models.ActionRequest, now, false},
		{"request_rejects_clarification_response", branchWith(true, request), models.ActionClarificationResponse, now, false},
		{"clarification_request_accepts_response", branchWith(true, request, clarificationReq), models.ActionClarificationResponse, now, true},
		{"refusal_accepts_appeal", branchWith(true, request, refusal), models.ActionAppeal, now, true},
		{"full_disclosure_is_terminal", branchWith(true, request, fullDisclosure), models.ActionAppeal, now, false},
		{"partial_disclosure_accepts_appeal", branchWith(true, request, partialDisclosure), models.ActionAppeal, now, true},
		{"affirmation_is_terminal", branchWith(true, request, refusal, appeal, affirmation), models.ActionAppeal, now, false},
		{"appeal_accepts_remandment", branchWith(true, request, refusal, appeal), models.ActionRemandment, now, true},
		{"appeal_rejects_refusal", branchWith(true, request, refusal, appeal), models.ActionRefusal, now, false},
		{"live_request_rejects_expiration", branchWith(true, request), models.ActionExpiration, now, false},
		{"expired_request_accepts_expiration", branchWith(true, request), models.ActionExpiration, afterRequestDeadline, true},
		{"live_appeal_rejects_appeal_expiration", branchWith(true, request, refusal, appeal), models.ActionAppealExpiration, now, false},
		{"expired_appeal_accepts_appeal_expiration", branchWith(true, request, refusal, appeal), models.ActionAppealExpiration, afterAppealDeadline, true},
		{"expired_appeal_rejects_plain_expiration", branchWith(true, request, refusal, appeal), models.ActionExpiration, afterAppealDeadline, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.CanAdd(tt.branch, tt.next, tt.at); got != tt.want {
				t.Errorf("CanAdd(%s) = %t, want %t", tt.next, got, tt.want)
			}
		})
	}
}

func TestClosableThreshold(t *testing.T) {
	base := date(2026, time.January, 5) // Monday
	m := newTestMachine(base)
	cal := m.Calendar()

	request := models.Action{
		Type:          models.ActionRequest,
		EffectiveDate: base,
		Deadline:      intPtr(8),
	}
	ir := &models.Inforequest{Branches: []models.Branch{{Actions: []models.Action{request}}}}

	// Missed by exactly 99 working days: not yet.
	at99 := cal.AddWorkdays(base, 8+99)
	if m.Closable(ir, at99) {
		t.Error("missed by 99 days should not be closable")
	}

	at100 := cal.AddWorkdays(base, 8+100)
	if !m.Closable(ir, at100) {
		t.Error("missed by 100 days should be closable")
	}

	// A deadline-free last action never blocks closing.
	terminal := models.Action{Type: models.ActionAffirmation, EffectiveDate: base}
	closed := &models.Inforequest{Branches: []models.Branch{{Actions: []models.Action{terminal}}}}
	if !m.Closable(closed, base) {
		t.Error("terminal branch should be closable")
	}

	// One live branch blocks the whole inforequest.
	live := models.Action{Type: models.ActionRequest, EffectiveDate: at100, Deadline: intPtr(8)}
	mixed := &models.Inforequest{Branches: []models.Branch{
		{Actions: []models.Action{request}},
		{Actions: []models.Action{live}},
	}}
	if m.Closable(mixed, at100) {
		t.Error("a live branch must block closing")
	}
}

func TestRequiredFields(t *testing.T) {
	if !RequiresDisclosureLevel(models.ActionDisclosure) {
		t.Error("disclosure requires a level")
	}
	if !RequiresDisclosureLevel(models.ActionAdvancement) {
		t.Error("advancement requires a level")
	}
	if RequiresDisclosureLevel(models.ActionRefusal) {
		t.Error("refusal carries a reason, not a level")
	}
	if !RequiresRefusalReason(models.ActionRefusal) || !RequiresRefusalReason(models.ActionAffirmation) {
		t.Error("refusal and affirmation require a reason")
	}
	if RequiresRefusalReason(models.ActionAppeal) {
		t.Error("appeal carries no refusal reason")
	}
}
