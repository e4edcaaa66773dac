package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionAdmit          = "ENROLLMENT_ADMIT"
	AuditActionWaitlist       = "ENROLLMENT_WAITLIST"
	AuditActionDrop           = "ENROLLMENT_DROP"
	AuditActionPromote        = "WAITLIST_PROMOTE"
	AuditActionGradeRecord    = "GRADE_RECORD"
	AuditActionFinalPosting   = "FINAL_GRADES_POST"
	AuditActionGraduation     = "GRADUATION_PROCESS"
	AuditActionSectionManage  = "SECTION_MANAGE"
	AuditActionAssessmentEdit = "ASSESSMENT_EDIT"
)

// AuditLog represents an audit trail record. Appends are fire-and-forget;
// a failed append never rolls back the operation it describes.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
