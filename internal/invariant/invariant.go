// Package invariant holds the pure business-rule predicates shared by the
// enrollment, grading and graduation workflows. Every function here operates
// on already-fetched aggregate state and performs no I/O; callers run them
// inside the transaction that protects the state they were fetched under.
package invariant

import (
	"fmt"
	"time"

	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// WeightTolerance absorbs float drift when summing assessment weights.
const WeightTolerance = 0.01

// Capacity fails when a section can no longer seat another active enrollment.
func Capacity(enrollmentCount, capacity int) error {
	if enrollmentCount >= capacity {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrCapacityExceeded, fmt.Sprintf("section holds %d of %d seats", enrollmentCount, capacity)),
			map[string]interface{}{"enrollment_count": enrollmentCount, "capacity": capacity},
		)
	}
	return nil
}

// SectionAcceptsEnrollment verifies a section is admissible at all: open,
// unlocked, grades not yet posted, deadline not passed. A DEADLINE_PASSED
// result instructs the caller to close the section as a side effect.
func SectionAcceptsEnrollment(section *models.Section, now time.Time) error {
	if section.IsLocked {
		return appErrors.Clone(appErrors.ErrEnrollmentClosed, "section is locked")
	}
	if section.FinalGradesPosted {
		return appErrors.Clone(appErrors.ErrEnrollmentClosed, "final grades already posted for section")
	}
	if !section.IsOpenForEnrollment {
		return appErrors.ErrEnrollmentClosed
	}
	if section.EnrollmentDeadline != nil && now.After(*section.EnrollmentDeadline) {
		return appErrors.WithDetails(appErrors.ErrDeadlinePassed, map[string]interface{}{
			"deadline": section.EnrollmentDeadline.UTC(),
		})
	}
	return nil
}

// DecideAdmission resolves the seat decision for an admissible section. A
// full section yields WAITLISTED when the caller opted in, SECTION_FULL
// otherwise; an open seat yields ACTIVE.
func DecideAdmission(section *models.Section, joinWaitlist bool) (models.EnrollmentStatus, error) {
	if section.EnrollmentCount < section.Capacity {
		return models.EnrollmentStatusActive, nil
	}
	if joinWaitlist {
		return models.EnrollmentStatusWaitlisted, nil
	}
	return "", appErrors.WithDetails(appErrors.ErrSectionFull, map[string]interface{}{
		"enrollment_count": section.EnrollmentCount,
		"capacity":         section.Capacity,
	})
}

// WeightTotal guards a single assessment create/update: the sum of all
// weights after the change must not exceed 100 (+tolerance).
func WeightTotal(existingWeights []float64, candidateWeight float64) error {
	if candidateWeight < 0 || candidateWeight > 100 {
		return appErrors.FieldInvalid("weight", "weight must be between 0 and 100")
	}
	sum := candidateWeight
	for _, w := range existingWeights {
		sum += w
	}
	if sum > 100+WeightTolerance {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrWeightOverflow, fmt.Sprintf("assessment weights would total %.2f", sum)),
			map[string]interface{}{"total": sum},
		)
	}
	return nil
}

// WeightsComplete guards final-grade computation: weights must sum to
// exactly 100 within tolerance.
func WeightsComplete(weights []float64) error {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum > 100+WeightTolerance || sum < 100-WeightTolerance {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrWeightIncomplete, fmt.Sprintf("assessment weights total %.2f, expected 100", sum)),
			map[string]interface{}{"total": sum},
		)
	}
	return nil
}

// ValidSlot rejects slots whose start does not precede their end or that
// fall outside a day.
func ValidSlot(slot models.ScheduleSlot) error {
	if slot.StartMin < 0 || slot.EndMin > 24*60 {
		return appErrors.FieldInvalid("slot", "slot must fall within a single day")
	}
	if slot.StartMin >= slot.EndMin {
		return appErrors.FieldInvalid("slot", "slot start must precede its end")
	}
	return nil
}

// Unique fails when key is already present among existing keys. Used for
// course codes, student numbers and the (student, section) enrollment pair.
func Unique(key string, existing map[string]struct{}) error {
	if _, ok := existing[key]; ok {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%q already exists", key)),
			map[string]interface{}{"key": key},
		)
	}
	return nil
}

var studentTransitions = map[models.StudentStatus]map[models.StudentStatus]struct{}{
	models.StudentStatusActive: {
		models.StudentStatusSuspended: {},
		models.StudentStatusGraduated: {},
		models.StudentStatusInactive:  {},
	},
	models.StudentStatusSuspended: {
		models.StudentStatusActive:   {},
		models.StudentStatusInactive: {},
	},
	models.StudentStatusInactive: {
		models.StudentStatusActive: {},
	},
}

// StudentTransition validates a student-level status move. GRADUATED is a
// sink: no edges lead out of it.
func StudentTransition(current, next models.StudentStatus) error {
	if current == next {
		return nil
	}
	if allowed, ok := studentTransitions[current]; ok {
		if _, ok := allowed[next]; ok {
			return nil
		}
	}
	return appErrors.Violation(
		appErrors.ErrIllegalTransition.Code,
		"student",
		"statusTransition",
		fmt.Sprintf("student cannot move from %s to %s", current, next),
	)
}

// EnrollmentTransition validates an enrollment status move. Any live
// status may drop or withdraw; COMPLETED/FAILED are reachable only from
// ACTIVE via the grading path (viaGrading) and are immutable afterwards
// unless an explicit appeal overrides them.
func EnrollmentTransition(current, next models.EnrollmentStatus, viaGrading, allowAppealOverride bool) error {
	illegal := func(msg string) error {
		return appErrors.Violation(appErrors.ErrIllegalTransition.Code, "enrollment", "statusTransition", msg)
	}

	if current.IsTerminal() {
		if allowAppealOverride {
			return nil
		}
		return illegal(fmt.Sprintf("enrollment is %s and immutable outside an appeal", current))
	}

	switch next {
	case models.EnrollmentStatusDropped, models.EnrollmentStatusWithdrawn:
		if !current.IsLive() {
			return illegal(fmt.Sprintf("cannot drop a %s enrollment", current))
		}
		return nil
	case models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed:
		if !viaGrading {
			return illegal("terminal grades are assigned only by final-grade posting")
		}
		if current != models.EnrollmentStatusActive {
			return illegal(fmt.Sprintf("cannot grade a %s enrollment", current))
		}
		return nil
	case models.EnrollmentStatusActive:
		// Waitlist promotion.
		if current == models.EnrollmentStatusWaitlisted {
			return nil
		}
		return illegal(fmt.Sprintf("cannot move %s enrollment to ACTIVE", current))
	default:
		return illegal(fmt.Sprintf("unknown target status %s", next))
	}
}
