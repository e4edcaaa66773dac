package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sisforge/sis-core-api/internal/grading"
	"github.com/sisforge/sis-core-api/internal/models"
	"github.com/sisforge/sis-core-api/internal/repository"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

type transcriptReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.TranscriptEntry, error)
}

type transcriptCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// TranscriptService serves transcripts. The GPA is derived on every read
// from the immutable entries, never stored; the assembled payload is
// cached and invalidated whenever a posting or graduation touches the
// student.
type TranscriptService struct {
	repo     transcriptReader
	students studentReader
	cache    transcriptCache
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewTranscriptService constructs a TranscriptService.
func NewTranscriptService(repo transcriptReader, students studentReader, cache transcriptCache, metrics *MetricsService, logger *zap.Logger, cacheTTL time.Duration) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{repo: repo, students: students, cache: cache, metrics: metrics, logger: logger, cacheTTL: cacheTTL}
}

// Get assembles a student's transcript with recomputed GPA and credits.
func (s *TranscriptService) Get(ctx context.Context, studentID string) (*models.Transcript, error) {
	key := repository.TranscriptKey(studentID)
	if s.cache != nil {
		var cached models.Transcript
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return nil, appErrors.NotFoundEntity("student", studentID)
	}

	entries, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transcript")
	}

	transcript := &models.Transcript{
		StudentID: studentID,
		Entries:   entries,
		GPA:       grading.GPA(entries),
		Credits:   grading.TotalCredits(entries),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, transcript, s.cacheTTL); err != nil {
			s.logger.Warn("cache transcript", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return transcript, nil
}
