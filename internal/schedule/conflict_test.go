package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisforge/sis-core-api/internal/models"
)

func slot(day string, start, end int) models.ScheduleSlot {
	return models.ScheduleSlot{Day: day, StartMin: start, EndMin: end}
}

func TestSlotsOverlap(t *testing.T) {
	assert.True(t, SlotsOverlap(slot("MON", 600, 660), slot("MON", 630, 690)))
	assert.True(t, SlotsOverlap(slot("MON", 600, 660), slot("mon", 630, 690)))
	assert.False(t, SlotsOverlap(slot("MON", 600, 660), slot("TUE", 600, 660)))
	assert.False(t, SlotsOverlap(slot("MON", 600, 660), slot("MON", 660, 720)))
}

func TestFindConflictsNamesTheCollision(t *testing.T) {
	existing := []models.SectionSchedule{
		{
			SectionID:  "sec-1",
			CourseCode: "CS101",
			Slots:      []models.ScheduleSlot{slot("MON", 600, 660), slot("WED", 600, 660)},
		},
		{
			SectionID:  "sec-2",
			CourseCode: "MATH201",
			Slots:      []models.ScheduleSlot{slot("FRI", 480, 540)},
		},
	}

	conflicts := FindConflicts([]models.ScheduleSlot{slot("MON", 630, 690)}, existing)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "sec-1", conflicts[0].SectionID)
	assert.Equal(t, "CS101", conflicts[0].CourseCode)
	assert.Equal(t, "CS101 on MON 10:00-11:00", conflicts[0].Message())
}

func TestFindConflictsSameInstructorSameSlot(t *testing.T) {
	// Two sections sharing instructor and the Mon 10:00-11:00 slot must collide.
	existing := []models.SectionSchedule{
		{SectionID: "sec-a", CourseCode: "PHYS1", Slots: []models.ScheduleSlot{slot("MON", 600, 660)}},
	}
	conflicts := FindConflicts([]models.ScheduleSlot{slot("MON", 600, 660)}, existing)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"PHYS1 on MON 10:00-11:00"}, ConflictMessages(conflicts))
}

func TestFindConflictsNone(t *testing.T) {
	existing := []models.SectionSchedule{
		{SectionID: "sec-1", CourseCode: "CS101", Slots: []models.ScheduleSlot{slot("MON", 600, 660)}},
	}
	assert.Empty(t, FindConflicts([]models.ScheduleSlot{slot("MON", 660, 720)}, existing))
	assert.Empty(t, FindConflicts(nil, existing))
	assert.Empty(t, FindConflicts([]models.ScheduleSlot{slot("MON", 600, 660)}, nil))
}
