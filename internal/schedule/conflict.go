package schedule

import (
	"fmt"
	"strings"

	"github.com/sisforge/sis-core-api/internal/models"
)

// Conflict identifies one colliding slot pair within a scope.
type Conflict struct {
	SectionID  string `json:"section_id"`
	CourseCode string `json:"course_code"`
	Day        string `json:"day"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Room       string `json:"room,omitempty"`
}

// Message renders the conflict for user display.
func (c Conflict) Message() string {
	return fmt.Sprintf("%s on %s %s-%s", c.CourseCode, c.Day, c.Start, c.End)
}

// SlotsOverlap reports whether two slots collide: same day and intersecting
// minute ranges.
func SlotsOverlap(a, b models.ScheduleSlot) bool {
	if !strings.EqualFold(a.Day, b.Day) {
		return false
	}
	return RangesOverlap(a.StartMin, a.EndMin, b.StartMin, b.EndMin)
}

// FindConflicts checks every candidate slot against every slot of every
// in-scope section and returns all collisions. The scan is
// O(sections x slots x candidates), which is fine for per-term section
// counts; swap in a sweep line or interval tree behind this signature if
// that ever changes.
func FindConflicts(candidate []models.ScheduleSlot, existing []models.SectionSchedule) []Conflict {
	var conflicts []Conflict
	for _, section := range existing {
		for _, have := range section.Slots {
			for _, want := range candidate {
				if !SlotsOverlap(want, have) {
					continue
				}
				conflicts = append(conflicts, Conflict{
					SectionID:  section.SectionID,
					CourseCode: section.CourseCode,
					Day:        have.Day,
					Start:      FormatClock(have.StartMin),
					End:        FormatClock(have.EndMin),
					Room:       have.Room,
				})
			}
		}
	}
	return conflicts
}

// ConflictMessages flattens conflicts into display strings.
func ConflictMessages(conflicts []Conflict) []string {
	msgs := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		msgs = append(msgs, c.Message())
	}
	return msgs
}
