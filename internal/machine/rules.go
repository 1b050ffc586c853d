package machine

import (
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
)

// respondable lists the last-action types an obligee response may follow.
var respondable = map[models.ActionType]bool{
	models.ActionRequest:               true,
	models.ActionClarificationResponse: true,
	models.ActionAdvancedRequest:       true,
	models.ActionRemandment:            true,
	models.ActionExtension:             true,
}

// terminal marks last-action states that close the branch for good. A full
// disclosure is handled separately because only its level makes it terminal.
var terminal = map[models.ActionType]bool{
	models.ActionAffirmation: true,
	models.ActionReversion:   true,
}

// isTerminal reports whether nothing may follow the given last action.
func isTerminal(last *models.Action) bool {
	if terminal[last.Type] {
		return true
	}
	if last.Type == models.ActionDisclosure &&
		last.DisclosureLevel != nil && *last.DisclosureLevel == models.DisclosureFull {
		return true
	}
	return false
}

// CanAdd decides from the branch's last action whether the proposed next
// action type is admissible at instant t. The branch's actions must be loaded
// in chronological order.
func (m *Machine) CanAdd(b *models.Branch, next models.ActionType, t time.Time) bool {
	last := b.LastAction()

	// An empty branch starts with Request on the main branch and with
	// AdvancedRequest on a sub-branch.
	if last == nil {
		if b.IsMain() {
			return next == models.ActionRequest
		}
		return next == models.ActionAdvancedRequest
	}

	if isTerminal(last) {
		return false
	}

	switch next {
	case models.ActionRequest, models.ActionAdvancedRequest:
		// Only ever legal as the first action of a branch.
		return false

	case models.ActionConfirmation, models.ActionExtension, models.ActionAdvancement,
		models.ActionClarificationRequest, models.ActionDisclosure, models.ActionRefusal:
		return respondable[last.Type]

	case models.ActionClarificationResponse:
		return last.Type == models.ActionClarificationRequest

	case models.ActionAppeal:
		switch last.Type {
		case models.ActionDisclosure:
			return last.DisclosureLevel != nil && *last.DisclosureLevel != models.DisclosureFull
		case models.ActionRefusal, models.ActionExpiration:
			return true
		}
		return false

	case models.ActionAffirmation, models.ActionReversion, models.ActionRemandment:
		return last.Type == models.ActionAppeal || last.Type == models.ActionAppealExpiration

	case models.ActionExpiration:
		// A silent appeal expires as AppealExpiration, never as Expiration.
		if last.Type == models.ActionAppeal {
			return false
		}
		return last.DeadlineSide() == models.DeadlineSideObligee && m.DeadlineMissed(last, t)

	case models.ActionAppealExpiration:
		return last.Type == models.ActionAppeal && m.DeadlineMissed(last, t)
	}

	return false
}

// RequiresDisclosureLevel reports whether the action type must carry a
// disclosure level.
func RequiresDisclosureLevel(t models.ActionType) bool {
	switch t {
	case models.ActionAdvancement, models.ActionDisclosure,
		models.ActionReversion, models.ActionRemandment:
		return true
	}
	return false
}

// RequiresRefusalReason reports whether the action type must carry a refusal
// reason.
func RequiresRefusalReason(t models.ActionType) bool {
	return t == models.ActionRefusal || t == models.ActionAffirmation
}
