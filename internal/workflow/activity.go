// Package workflow holds the activity lifecycle and review state machines.
// It is storage agnostic; callers persist the states it returns.
package workflow

import (
	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// Policy captures the configurable parts of the workflow.
type Policy struct {
	// TicketReviewRequired gates ticket issuance behind a second review of
	// the activity (Approved -> TicketPending -> TicketApproved).
	TicketReviewRequired bool
	// AllowResubmission lets Rejected and TicketRejected activities re-enter
	// review with a fresh review record.
	AllowResubmission bool
}

// DefaultPolicy is used when no configuration is supplied.
func DefaultPolicy() Policy {
	return Policy{AllowResubmission: true}
}

type edge struct {
	from models.ActivityState
	to   models.ActivityState
}

// CanTransition reports whether the activity graph has an edge from -> to
// under the policy.
func (p Policy) CanTransition(from, to models.ActivityState) bool {
	switch (edge{from, to}) {
	case edge{models.ActivityDraft, models.ActivityPending},
		edge{models.ActivityPending, models.ActivityApproved},
		edge{models.ActivityPending, models.ActivityRejected}:
		return true
	case edge{models.ActivityRejected, models.ActivityPending}:
		return p.AllowResubmission
	case edge{models.ActivityApproved, models.ActivityTicketPending}:
		return p.TicketReviewRequired
	case edge{models.ActivityTicketPending, models.ActivityTicketApproved},
		edge{models.ActivityTicketPending, models.ActivityTicketRejected}:
		return p.TicketReviewRequired
	case edge{models.ActivityTicketRejected, models.ActivityTicketPending}:
		return p.TicketReviewRequired && p.AllowResubmission
	}
	return false
}

// Transition validates from -> to and returns to.
func (p Policy) Transition(from, to models.ActivityState) (models.ActivityState, error) {
	if !from.Valid() || !to.Valid() || !p.CanTransition(from, to) {
		return from, apperror.ErrInvalidTransition.Detail("activity can not move from %s to %s", from, to)
	}
	return to, nil
}

// Conclude validates the edge a finished review moves its activity along.
// Unlike Transition it ignores TicketReviewRequired, so a ticket review opened
// before the flag was switched off can still be decided.
func (p Policy) Conclude(from, to models.ActivityState) (models.ActivityState, error) {
	switch (edge{from, to}) {
	case edge{models.ActivityPending, models.ActivityApproved},
		edge{models.ActivityPending, models.ActivityRejected},
		edge{models.ActivityTicketPending, models.ActivityTicketApproved},
		edge{models.ActivityTicketPending, models.ActivityTicketRejected}:
		return to, nil
	}
	return from, apperror.ErrInvalidTransition.Detail("a review can not move an activity from %s to %s", from, to)
}

// SubmissionType infers which review a submission from state opens.
func (p Policy) SubmissionType(state models.ActivityState) (models.ReviewType, error) {
	switch state {
	case models.ActivityDraft, models.ActivityRejected:
		return models.ReviewActivity, nil
	case models.ActivityApproved, models.ActivityTicketRejected:
		if p.TicketReviewRequired {
			return models.ReviewTicket, nil
		}
	}
	return 0, apperror.ErrInvalidTransition.Detail("activity in state %s can not be submitted for review", state)
}

// PendingStateFor is the activity state while a review of reviewType is open.
func PendingStateFor(reviewType models.ReviewType) models.ActivityState {
	if reviewType == models.ReviewTicket {
		return models.ActivityTicketPending
	}
	return models.ActivityPending
}

// Submit returns the activity state after submitting a review of reviewType.
func (p Policy) Submit(state models.ActivityState, reviewType models.ReviewType) (models.ActivityState, error) {
	if !reviewType.Valid() {
		return state, apperror.ErrValidation.Detail("unknown review type %d", reviewType)
	}
	return p.Transition(state, PendingStateFor(reviewType))
}

// IssuanceOpen reports whether tickets may be issued, updated or deleted.
// Without ticket review an activity that already passed one stays open.
func (p Policy) IssuanceOpen(state models.ActivityState) bool {
	if p.TicketReviewRequired {
		return state == models.ActivityTicketApproved
	}
	return state == models.ActivityApproved || state == models.ActivityTicketApproved
}

// Editable reports whether an activity and its details may be changed by the owner.
func Editable(state models.ActivityState) bool {
	return state == models.ActivityDraft || state == models.ActivityRejected
}
