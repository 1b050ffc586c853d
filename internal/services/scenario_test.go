package services

import (
	"testing"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
)

// TestFullAppealLifecycle walks one inforequest from creation through a
// clarification round, a refusal, an appeal, a remandment and the final
// closure of the silent case.
func TestFullAppealLifecycle(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ob := env.createObligee(t, "Ministry of Interior")
	ir := env.createInforequest(t, ob.ID, true)
	branchID := ir.Branches[0].ID

	decide := func(p AddActionParams) *models.Action {
		t.Helper()
		msg := ingestMessage(t, env, ir.UniqueEmail)
		ie, err := env.router.AssignMessage(msg)
		if err != nil || ie == nil {
			t.Fatalf("AssignMessage failed: %v", err)
		}
		p.InforequestID = ir.ID
		p.BranchID = branchID
		action, err := env.router.DecideEmail(ie.ID, p)
		if err != nil {
			t.Fatalf("DecideEmail(%s) failed: %v", p.Type, err)
		}
		return action
	}

	// The obligee asks for clarification two working days in.
	env.advanceWorkdays(2)
	decide(AddActionParams{Type: models.ActionClarificationRequest})

	// The applicant answers within their seven-day window.
	env.advanceWorkdays(2)
	_, _, err := env.inforequests.AddApplicantAction(AddActionParams{
		InforequestID: ir.ID,
		BranchID:      branchID,
		Type:          models.ActionClarificationResponse,
		Content:       "We mean the records of 2025.",
		Button:        ButtonEmail,
	})
	if err != nil {
		t.Fatalf("clarification response failed: %v", err)
	}

	// The obligee refuses.
	env.advanceWorkdays(4)
	reason := models.RefusalDoesNotHave
	refusal := decide(AddActionParams{Type: models.ActionRefusal, RefusalReason: &reason})
	if refusal.Deadline == nil || *refusal.Deadline != 15 {
		t.Fatalf("refusal deadline = %v, want 15", refusal.Deadline)
	}

	// The applicant appeals inside the fifteen-day window; the refusal was
	// answered in time, so no expiration is inserted.
	env.advanceWorkdays(4)
	_, _, err = env.inforequests.AddApplicantAction(AddActionParams{
		InforequestID: ir.ID,
		BranchID:      branchID,
		Type:          models.ActionAppeal,
		Content:       "We appeal the refusal.",
		Button:        ButtonEmail,
	})
	if err != nil {
		t.Fatalf("appeal failed: %v", err)
	}

	// The superior authority remands the case back to the obligee.
	env.advanceWorkdays(8)
	level := models.DisclosureNone
	remandment := decide(AddActionParams{Type: models.ActionRemandment, DisclosureLevel: &level})
	if remandment.Deadline == nil || *remandment.Deadline != 13 {
		t.Fatalf("remandment deadline = %v, want 13", remandment.Deadline)
	}

	// The obligee never answers again; once the silence crosses the closure
	// threshold the case can be closed.
	if err := env.inforequests.Close(ir.ID); err == nil {
		t.Fatal("close before the threshold must fail")
	}
	env.advanceWorkdays(13 + 100)
	if err := env.inforequests.Close(ir.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, err := env.inforequests.Get(ir.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Closed {
		t.Error("inforequest should be closed")
	}
	wantTypes := []models.ActionType{
		models.ActionRequest,
		models.ActionClarificationRequest,
		models.ActionClarificationResponse,
		models.ActionRefusal,
		models.ActionAppeal,
		models.ActionRemandment,
		models.ActionExpiration,
	}
	actions := got.Branches[0].Actions
	if len(actions) != len(wantTypes) {
		t.Fatalf("got %d actions, want %d", len(actions), len(wantTypes))
	}
	for i, want := range wantTypes {
		if actions[i].Type != want {
			t.Errorf("action[%d] = %s, want %s", i, actions[i].Type, want)
		}
	}

	// Every email ended up decided; nothing waits for review.
	undecided, err := env.router.ListUndecided(ir.ID)
	if err != nil {
		t.Fatalf("ListUndecided failed: %v", err)
	}
	if len(undecided) != 0 {
		t.Errorf("%d emails left undecided", len(undecided))
	}
}
