package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

type mockGraduationRepo struct {
	audits     map[string]models.DegreeAuditResult
	records    map[string]models.GraduationRecord
	auditCalls int
	processed  []string
}

func (m *mockGraduationRepo) Audit(ctx context.Context, studentID string) (*models.DegreeAuditResult, error) {
	m.auditCalls++
	if audit, ok := m.audits[studentID]; ok {
		return &audit, nil
	}
	return nil, appErrors.NotFoundEntity("student", studentID)
}

func (m *mockGraduationRepo) Process(ctx context.Context, studentID, approverID string) (*models.GraduationRecord, error) {
	audit, ok := m.audits[studentID]
	if !ok {
		return nil, appErrors.NotFoundEntity("student", studentID)
	}
	if !audit.Eligible {
		return nil, appErrors.ErrNotEligible
	}
	if _, exists := m.records[studentID]; exists {
		return nil, appErrors.ErrAlreadyGraduated
	}
	record := models.GraduationRecord{
		ID: "grad-" + studentID, StudentID: studentID, ApproverID: approverID,
		GPA: audit.GPA, Credits: audit.TotalCredits, GraduatedAt: time.Now(),
	}
	if m.records == nil {
		m.records = map[string]models.GraduationRecord{}
	}
	m.records[studentID] = record
	m.processed = append(m.processed, studentID)
	return &record, nil
}

func (m *mockGraduationRepo) FindRecordByStudent(ctx context.Context, studentID string) (*models.GraduationRecord, error) {
	if record, ok := m.records[studentID]; ok {
		return &record, nil
	}
	return nil, appErrors.NotFoundEntity("graduation record", studentID)
}

func TestGraduationServiceDegreeAuditCaches(t *testing.T) {
	repo := &mockGraduationRepo{audits: map[string]models.DegreeAuditResult{
		"stu-1": {StudentID: "stu-1", Eligible: true, GPA: 4.5, TotalCredits: 120},
	}}
	cache := &mockCache{}
	svc := NewGraduationService(repo, cache, nil, nil, nil, nil, time.Minute)
	ctx := context.Background()

	first, err := svc.DegreeAudit(ctx, "stu-1")
	require.NoError(t, err)
	second, err := svc.DegreeAudit(ctx, "stu-1")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.auditCalls)
	assert.Equal(t, first.GPA, second.GPA)
}

func TestGraduationServiceGraduateInvalidatesCache(t *testing.T) {
	repo := &mockGraduationRepo{audits: map[string]models.DegreeAuditResult{
		"stu-1": {StudentID: "stu-1", Eligible: true, GPA: 4.5, TotalCredits: 120},
	}}
	cache := &mockCache{}
	svc := NewGraduationService(repo, cache, nil, nil, nil, nil, time.Minute)
	ctx := context.Background()

	_, err := svc.DegreeAudit(ctx, "stu-1")
	require.NoError(t, err)
	require.NotEmpty(t, cache.store)

	record, err := svc.Graduate(ctx, "stu-1", "usr-registrar")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", record.StudentID)
	assert.Empty(t, cache.store)
}

func TestGraduationServiceGraduateTwice(t *testing.T) {
	repo := &mockGraduationRepo{audits: map[string]models.DegreeAuditResult{
		"stu-1": {StudentID: "stu-1", Eligible: true, GPA: 4.5, TotalCredits: 120},
	}}
	svc := NewGraduationService(repo, nil, nil, nil, nil, nil, time.Minute)
	ctx := context.Background()

	_, err := svc.Graduate(ctx, "stu-1", "usr-registrar")
	require.NoError(t, err)
	_, err = svc.Graduate(ctx, "stu-1", "usr-registrar")
	require.ErrorIs(t, err, appErrors.ErrAlreadyGraduated)
}

func TestGraduationServiceGraduateIneligible(t *testing.T) {
	repo := &mockGraduationRepo{audits: map[string]models.DegreeAuditResult{
		"stu-1": {StudentID: "stu-1", Eligible: false, MissingRequirements: []string{"credits: 90.0 of 120.0 earned"}},
	}}
	svc := NewGraduationService(repo, nil, nil, nil, nil, nil, time.Minute)

	_, err := svc.Graduate(context.Background(), "stu-1", "usr-registrar")
	require.ErrorIs(t, err, appErrors.ErrNotEligible)
}
