package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
)

func TestCreateInforequest(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry of Interior", "podatelna@minv.sk")
	ir := env.createInforequest(t, ob.ID, true)

	if !strings.HasSuffix(ir.UniqueEmail, "@mail.test") {
		t.Errorf("unique email %q does not use the template domain", ir.UniqueEmail)
	}
	if !ir.SubmissionDate.Equal(env.mach.Today()) {
		t.Errorf("submission date = %v, want today", ir.SubmissionDate)
	}
	if len(ir.Branches) != 1 {
		t.Fatalf("expected 1 branch, got %d", len(ir.Branches))
	}
	branch := ir.Branches[0]
	if !branch.IsMain() {
		t.Error("the first branch must be the main branch")
	}
	if branch.HistoricalName != "Ministry of Interior" {
		t.Errorf("frozen obligee name = %q", branch.HistoricalName)
	}
	if len(branch.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(branch.Actions))
	}
	action := branch.Actions[0]
	if action.Type != models.ActionRequest {
		t.Errorf("first action type = %s, want request", action.Type)
	}
	if action.Deadline == nil || *action.Deadline != 8 {
		t.Errorf("request deadline = %v, want 8", action.Deadline)
	}
	if action.EmailID == nil {
		t.Error("send_email should link the action to an outbound message")
	}
	if got := countOutbound(t, env.db); got != 1 {
		t.Errorf("outbound queue size = %d, want 1", got)
	}
}

func TestCreateInforequestWithoutEmail(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Town Hall")
	ir := env.createInforequest(t, ob.ID, false)

	if ir.Branches[0].Actions[0].EmailID != nil {
		t.Error("print-only request must not link a message")
	}
	if got := countOutbound(t, env.db); got != 0 {
		t.Errorf("outbound queue size = %d, want 0", got)
	}
}

func TestCreateInforequestInactiveObligee(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Defunct Office")
	if err := env.obligees.SetActive(ob.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	_, err := env.inforequests.CreateInforequest(CreateInforequestParams{
		Applicant: ApplicantIdentity{Ref: "someone@citizen.test"},
		ObligeeID: ob.ID,
		Subject:   "x",
	})
	if !errors.Is(err, ErrInvalidObligee) {
		t.Errorf("expected ErrInvalidObligee, got %v", err)
	}
}

func TestUniqueEmailsAreDistinct(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		ir := env.createInforequest(t, ob.ID, false)
		if seen[ir.UniqueEmail] {
			t.Fatalf("duplicate unique email %q", ir.UniqueEmail)
		}
		seen[ir.UniqueEmail] = true
	}
}

func TestAddApplicantActionIllegalTransition(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	ir := env.createInforequest(t, ob.ID, false)

	// A clarification response without a preceding clarification request.
	_, _, err := env.inforequests.AddApplicantAction(AddActionParams{
		InforequestID: ir.ID,
		BranchID:      ir.Branches[0].ID,
		Type:          models.ActionClarificationResponse,
		Subject:       "clarifying",
		Button:        ButtonEmail,
	})
	if !errors.Is(err, ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed, got %v", err)
	}
}

func TestAppealAgainstSilentObligeeInsertsExpiration(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	ir := env.createInforequest(t, ob.ID, false)
	branchID := ir.Branches[0].ID

	// Past the request's 8-day deadline.
	env.advanceWorkdays(9)

	action, _, err := env.inforequests.AddApplicantAction(AddActionParams{
		InforequestID: ir.ID,
		BranchID:      branchID,
		Type:          models.ActionAppeal,
		Subject:       "Appeal against silence",
		Button:        ButtonPrint,
	})
	if err != nil {
		t.Fatalf("AddApplicantAction failed: %v", err)
	}
	if action.Type != models.ActionAppeal {
		t.Fatalf("action type = %s, want appeal", action.Type)
	}

	got, err := env.inforequests.Get(ir.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	actions := got.Branches[0].Actions
	if len(actions) != 3 {
		t.Fatalf("expected request, expiration, appeal; got %d actions", len(actions))
	}
	if actions[1].Type != models.ActionExpiration {
		t.Errorf("middle action = %s, want expiration", actions[1].Type)
	}
	if actions[2].Type != models.ActionAppeal {
		t.Errorf("last action = %s, want appeal", actions[2].Type)
	}
}

func TestAppealBeforeDeadlineNeedsRefusal(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	ir := env.createInforequest(t, ob.ID, false)

	// The obligee still has time; an appeal is premature.
	_, _, err := env.inforequests.AddApplicantAction(AddActionParams{
		InforequestID: ir.ID,
		BranchID:      ir.Branches[0].ID,
		Type:          models.ActionAppeal,
		Subject:       "too early",
		Button:        ButtonPrint,
	})
	if !errors.Is(err, ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed, got %v", err)
	}
}

func TestExtendDeadline(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	ir := env.createInforequest(t, ob.ID, false)
	branchID := ir.Branches[0].ID

	if err := env.inforequests.ExtendDeadline(ir.ID, branchID, 5); err != nil {
		t.Fatalf("ExtendDeadline failed: %v", err)
	}

	got, _ := env.inforequests.Get(ir.ID)
	last := got.Branches[0].LastAction()
	if last.Extension == nil || *last.Extension != 5 {
		t.Errorf("extension = %v, want 5", last.Extension)
	}
	if last.TotalDeadline() != 13 {
		t.Errorf("total deadline = %d, want 13", last.TotalDeadline())
	}

	if err := env.inforequests.ExtendDeadline(ir.ID, branchID, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("zero extension: expected ErrValidation, got %v", err)
	}
}

func TestCloseRequiresThreshold(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	ir := env.createInforequest(t, ob.ID, false)

	if err := env.inforequests.Close(ir.ID); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("fresh inforequest: expected ErrNotAllowed, got %v", err)
	}

	// Past deadline plus the closure threshold.
	env.advanceWorkdays(8 + 100)

	if err := env.inforequests.Close(ir.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, _ := env.inforequests.Get(ir.ID)
	if !got.Closed {
		t.Error("inforequest should be closed")
	}
	// The silent branch got its Expiration on close.
	if last := got.Branches[0].LastAction(); last.Type != models.ActionExpiration {
		t.Errorf("last action = %s, want expiration", last.Type)
	}

	// Closing again is a no-op.
	if err := env.inforequests.Close(ir.ID); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	got2, _ := env.inforequests.Get(ir.ID)
	if len(got2.Branches[0].Actions) != len(got.Branches[0].Actions) {
		t.Error("second close must not append more actions")
	}
}

func TestAddExpirationIdempotent(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	ir := env.createInforequest(t, ob.ID, false)
	branchID := ir.Branches[0].ID

	env.advanceWorkdays(9)

	action, err := env.inforequests.AddExpiration(ir.ID, branchID)
	if err != nil {
		t.Fatalf("AddExpiration failed: %v", err)
	}
	if action.Type != models.ActionExpiration {
		t.Errorf("action type = %s, want expiration", action.Type)
	}

	// An expiration carries no obligee deadline, so a second one is illegal.
	if _, err := env.inforequests.AddExpiration(ir.ID, branchID); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("second expiration: expected ErrNotAllowed, got %v", err)
	}
}

func TestDraftLifecycle(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	ir := env.createInforequest(t, ob.ID, false)

	_, draft, err := env.inforequests.AddApplicantAction(AddActionParams{
		InforequestID: ir.ID,
		BranchID:      ir.Branches[0].ID,
		Type:          models.ActionAppeal,
		Subject:       "draft appeal",
		Content:       "work in progress",
		Button:        ButtonDraft,
	})
	if err != nil {
		t.Fatalf("saving draft failed: %v", err)
	}
	if draft == nil {
		t.Fatal("expected a draft")
	}

	got, err := env.inforequests.GetDraft(draft.ID)
	if err != nil {
		t.Fatalf("GetDraft failed: %v", err)
	}
	if got.Subject != "draft appeal" {
		t.Errorf("draft subject = %q", got.Subject)
	}

	if err := env.inforequests.DeleteDraft(draft.ID); err != nil {
		t.Fatalf("DeleteDraft failed: %v", err)
	}
	if _, err := env.inforequests.GetDraft(draft.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestValidationOfRequiredAttributes(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	ir := env.createInforequest(t, ob.ID, false)

	// An appeal on a live branch would be rejected later; field validation
	// fires first for a disclosure-level carrying type.
	_, _, err := env.inforequests.AddApplicantAction(AddActionParams{
		InforequestID: ir.ID,
		BranchID:      ir.Branches[0].ID,
		Type:          models.ActionType("made_up"),
		Button:        ButtonPrint,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unknown type: expected ErrValidation, got %v", err)
	}

	_, _, err = env.inforequests.AddApplicantAction(AddActionParams{
		InforequestID: ir.ID,
		BranchID:      ir.Branches[0].ID,
		Type:          models.ActionConfirmation,
		Button:        ButtonPrint,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("obligee type via applicant operation: expected ErrValidation, got %v", err)
	}
}

func TestListByApplicant(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry")
	env.createInforequest(t, ob.ID, false)
	env.createInforequest(t, ob.ID, false)

	irs, err := env.inforequests.ListByApplicant("applicant@citizen.test")
	if err != nil {
		t.Fatalf("ListByApplicant failed: %v", err)
	}
	if len(irs) != 2 {
		t.Errorf("expected 2 inforequests, got %d", len(irs))
	}

	none, err := env.inforequests.ListByApplicant("other@citizen.test")
	if err != nil {
		t.Fatalf("ListByApplicant failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no inforequests for another applicant, got %d", len(none))
	}
}
