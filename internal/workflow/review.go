package workflow

import (
	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// Stage identifies which reviewer is acting on a review.
type Stage int

const (
	StageInstructor Stage = iota
	StageCommittee
)

func (s Stage) String() string {
	if s == StageCommittee {
		return "committee"
	}
	return "instructor"
}

// Decision is a reviewer verdict.
type Decision int

const (
	Approve Decision = iota
	Reject
)

func (d Decision) String() string {
	if d == Reject {
		return "reject"
	}
	return "approve"
}

// StageFor resolves the stage actorID acts on. The activity owner never
// reviews their own submission, and an actor holding both stages is refused
// so the two approvals stay independent.
func StageFor(review models.Review, actorID string) (Stage, error) {
	if actorID == "" || actorID == review.Owner {
		return 0, apperror.ErrNotReviewer
	}
	isInstructor := actorID == review.Instructor
	isCommittee := actorID == review.Committee

	switch {
	case isInstructor && isCommittee:
		return 0, apperror.ErrNotReviewer.Detail("actor holds both review stages")
	case isInstructor:
		return StageInstructor, nil
	case isCommittee:
		return StageCommittee, nil
	}
	return 0, apperror.ErrNotReviewer
}

// Decide applies decision at stage to a review in state.
func Decide(state models.ReviewState, stage Stage, decision Decision) (models.ReviewState, error) {
	switch stage {
	case StageInstructor:
		if state != models.ReviewInstructorPending {
			return state, apperror.ErrAlreadyDecided.Detail("instructor stage already decided (%s)", state)
		}
		if decision == Approve {
			return models.ReviewCommitteePending, nil
		}
		return models.ReviewInstructorRejected, nil
	case StageCommittee:
		switch state {
		case models.ReviewCommitteePending:
			if decision == Approve {
				return models.ReviewCommitteeApproved, nil
			}
			return models.ReviewCommitteeRejected, nil
		case models.ReviewCommitteeApproved, models.ReviewCommitteeRejected:
			return state, apperror.ErrAlreadyDecided.Detail("committee stage already decided (%s)", state)
		default:
			return state, apperror.ErrInvalidTransition.Detail("committee can not act on a review in %s", state)
		}
	}
	return state, apperror.ErrInvalidTransition.Detail("unknown review stage")
}

// ActivityOutcome returns the activity state implied by a review reaching
// state, or false when the activity stays where it is.
func ActivityOutcome(reviewType models.ReviewType, state models.ReviewState) (models.ActivityState, bool) {
	ticket := reviewType == models.ReviewTicket
	switch state {
	case models.ReviewCommitteeApproved:
		if ticket {
			return models.ActivityTicketApproved, true
		}
		return models.ActivityApproved, true
	case models.ReviewInstructorRejected, models.ReviewCommitteeRejected:
		if ticket {
			return models.ActivityTicketRejected, true
		}
		return models.ActivityRejected, true
	}
	return 0, false
}
