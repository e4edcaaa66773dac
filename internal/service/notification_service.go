package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sisforge/sis-core-api/pkg/jobs"
)

// Notification job types.
const (
	NotifyWaitlistPromoted  = "waitlist.promoted"
	NotifyFinalGradesPosted = "grades.final_posted"
	NotifyGraduated         = "student.graduated"
)

// NotificationPayload carries the subject of a notification job.
type NotificationPayload struct {
	StudentID    string `json:"student_id,omitempty"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	SectionID    string `json:"section_id,omitempty"`
}

// NotificationService dispatches domain events to the background queue.
// Delivery is best effort; a full queue drops the event and the caller is
// never blocked or failed.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(queue *jobs.Queue, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, logger: logger}
}

// Dispatch enqueues a notification job.
func (s *NotificationService) Dispatch(jobType string, payload NotificationPayload) {
	if s == nil || s.queue == nil {
		return
	}
	job := jobs.Job{
		ID:       uuid.NewString(),
		Type:     jobType,
		Payload:  payload,
		Enqueued: time.Now().UTC(),
	}
	if !s.queue.Enqueue(job) {
		s.logger.Warn("notification dropped", zap.String("type", jobType))
	}
}
