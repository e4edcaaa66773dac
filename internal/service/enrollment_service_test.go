package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// mockEnrollmentRepo keeps a single section in memory and mimics the
// transactional admit/drop semantics closely enough for orchestration
// tests.
type mockEnrollmentRepo struct {
	capacity    int
	count       int
	nextSeq     int64
	enrollments map[string]models.Enrollment
	order       []string
}

func newMockEnrollmentRepo(capacity int) *mockEnrollmentRepo {
	return &mockEnrollmentRepo{capacity: capacity, enrollments: map[string]models.Enrollment{}}
}

func (m *mockEnrollmentRepo) Admit(ctx context.Context, params models.AdmitParams) (*models.AdmitOutcome, error) {
	enrollment := models.Enrollment{
		ID:        "enr-" + params.StudentID,
		StudentID: params.StudentID,
		SectionID: params.SectionID,
		Status:    models.EnrollmentStatusActive,
	}
	if m.count >= m.capacity {
		if !params.JoinWaitlist {
			return nil, appErrors.ErrSectionFull
		}
		m.nextSeq++
		seq := m.nextSeq
		enrollment.Status = models.EnrollmentStatusWaitlisted
		enrollment.QueueSeq = &seq
	} else {
		m.count++
	}
	m.enrollments[enrollment.ID] = enrollment
	m.order = append(m.order, enrollment.ID)
	return &models.AdmitOutcome{Enrollment: enrollment, EnrollmentCount: m.count}, nil
}

func (m *mockEnrollmentRepo) Drop(ctx context.Context, enrollmentID string, next models.EnrollmentStatus) (*models.DropOutcome, error) {
	enrollment, ok := m.enrollments[enrollmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if !enrollment.Status.IsLive() {
		return nil, appErrors.ErrIllegalTransition
	}
	wasActive := enrollment.Status == models.EnrollmentStatusActive
	enrollment.Status = next
	m.enrollments[enrollmentID] = enrollment

	outcome := &models.DropOutcome{Enrollment: enrollment, EnrollmentCount: m.count}
	if wasActive {
		m.count--
		for _, id := range m.order {
			candidate := m.enrollments[id]
			if candidate.Status == models.EnrollmentStatusWaitlisted {
				candidate.Status = models.EnrollmentStatusActive
				m.enrollments[id] = candidate
				m.count++
				promotedID := id
				outcome.PromotedEnrollmentID = &promotedID
				break
			}
		}
		outcome.EnrollmentCount = m.count
	}
	return outcome, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

type mockStudentReader struct {
	students map[string]models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockSectionReader struct {
	sections map[string]models.Section
}

func (m *mockSectionReader) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func newTestEnrollmentService(repo enrollmentRepository) *EnrollmentService {
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-a": {ID: "stu-a", Status: models.StudentStatusActive},
		"stu-b": {ID: "stu-b", Status: models.StudentStatusActive},
		"stu-x": {ID: "stu-x", Status: models.StudentStatusSuspended},
	}}
	sections := &mockSectionReader{sections: map[string]models.Section{
		"sec-1": {ID: "sec-1", Capacity: 1},
	}}
	return NewEnrollmentService(repo, students, sections, nil, nil, nil, nil, nil, nil,
		EnrollmentConfig{WaitlistEnabled: true, MaxWaitlistDepth: 50})
}

func TestEnrollmentServiceAdmitValidation(t *testing.T) {
	svc := newTestEnrollmentService(newMockEnrollmentRepo(1))

	_, err := svc.Admit(context.Background(), AdmitRequest{}, "usr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceAdmitUnknownStudent(t *testing.T) {
	svc := newTestEnrollmentService(newMockEnrollmentRepo(1))

	_, err := svc.Admit(context.Background(), AdmitRequest{StudentID: "stu-missing", SectionID: "sec-1"}, "usr-1")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEnrollmentServiceAdmitSuspendedStudent(t *testing.T) {
	svc := newTestEnrollmentService(newMockEnrollmentRepo(1))

	_, err := svc.Admit(context.Background(), AdmitRequest{StudentID: "stu-x", SectionID: "sec-1"}, "usr-1")
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}

func TestEnrollmentServiceCapacityOneWaitlistCycle(t *testing.T) {
	repo := newMockEnrollmentRepo(1)
	svc := newTestEnrollmentService(repo)
	ctx := context.Background()

	first, err := svc.Admit(ctx, AdmitRequest{StudentID: "stu-a", SectionID: "sec-1"}, "stu-a")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, first.Enrollment.Status)
	assert.Equal(t, 1, first.EnrollmentCount)

	second, err := svc.Admit(ctx, AdmitRequest{StudentID: "stu-b", SectionID: "sec-1", JoinWaitlist: true}, "stu-b")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, second.Enrollment.Status)
	require.NotNil(t, second.Enrollment.QueueSeq)

	outcome, err := svc.Drop(ctx, first.Enrollment.ID, DropRequest{ActorID: "stu-a", ActorRole: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, outcome.Enrollment.Status)
	require.NotNil(t, outcome.PromotedEnrollmentID)
	assert.Equal(t, second.Enrollment.ID, *outcome.PromotedEnrollmentID)
	assert.Equal(t, 1, outcome.EnrollmentCount)

	promoted, err := svc.Get(ctx, second.Enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, promoted.Status)
}

func TestEnrollmentServiceAdmitFullWithoutWaitlist(t *testing.T) {
	repo := newMockEnrollmentRepo(1)
	svc := newTestEnrollmentService(repo)
	ctx := context.Background()

	_, err := svc.Admit(ctx, AdmitRequest{StudentID: "stu-a", SectionID: "sec-1"}, "stu-a")
	require.NoError(t, err)

	_, err = svc.Admit(ctx, AdmitRequest{StudentID: "stu-b", SectionID: "sec-1"}, "stu-b")
	require.ErrorIs(t, err, appErrors.ErrSectionFull)
}

func TestEnrollmentServiceDropActorSemantics(t *testing.T) {
	repo := newMockEnrollmentRepo(5)
	svc := newTestEnrollmentService(repo)
	ctx := context.Background()

	a, err := svc.Admit(ctx, AdmitRequest{StudentID: "stu-a", SectionID: "sec-1"}, "stu-a")
	require.NoError(t, err)
	b, err := svc.Admit(ctx, AdmitRequest{StudentID: "stu-b", SectionID: "sec-1"}, "stu-b")
	require.NoError(t, err)

	// A student dropping someone else's enrollment is refused.
	_, err = svc.Drop(ctx, b.Enrollment.ID, DropRequest{ActorID: "stu-a", ActorRole: models.RoleStudent})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	// Self-drop ends DROPPED.
	selfDrop, err := svc.Drop(ctx, a.Enrollment.ID, DropRequest{ActorID: "stu-a", ActorRole: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, selfDrop.Enrollment.Status)

	// Staff drop ends WITHDRAWN.
	staffDrop, err := svc.Drop(ctx, b.Enrollment.ID, DropRequest{ActorID: "usr-registrar", ActorRole: models.RoleRegistrar})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, staffDrop.Enrollment.Status)
}

func TestEnrollmentServiceDropTerminalTwice(t *testing.T) {
	repo := newMockEnrollmentRepo(5)
	svc := newTestEnrollmentService(repo)
	ctx := context.Background()

	a, err := svc.Admit(ctx, AdmitRequest{StudentID: "stu-a", SectionID: "sec-1"}, "stu-a")
	require.NoError(t, err)

	_, err = svc.Drop(ctx, a.Enrollment.ID, DropRequest{ActorID: "stu-a", ActorRole: models.RoleStudent})
	require.NoError(t, err)

	_, err = svc.Drop(ctx, a.Enrollment.ID, DropRequest{ActorID: "stu-a", ActorRole: models.RoleStudent})
	require.ErrorIs(t, err, appErrors.ErrIllegalTransition)
}
