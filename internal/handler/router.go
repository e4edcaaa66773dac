package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sisforge/sis-core-api/internal/middleware"
	"github.com/sisforge/sis-core-api/internal/models"
	"github.com/sisforge/sis-core-api/internal/service"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth        *AuthHandler
	Enrollments *EnrollmentHandler
	Grades      *GradeHandler
	Students    *StudentHandler
	Sections    *SectionHandler
	Assessments *AssessmentHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the API under prefix. Observability endpoints stay
// at the root so probes and scrapers bypass auth.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)

	api.POST("/auth/login", h.Auth.Login)
	api.GET("/auth/me", middleware.JWT(auth), h.Auth.Me)

	authed := api.Group("", middleware.JWT(auth))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	graders := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleInstructor)
	readers := middleware.RBAC(string(models.RoleAdmin), string(models.RoleRegistrar), string(models.RoleInstructor), "SELF")

	enrollments := authed.Group("/enrollments")
	{
		enrollments.POST("/admit", h.Enrollments.Admit)
		enrollments.POST("/:id/drop", h.Enrollments.Drop)
		enrollments.GET("/:id", h.Enrollments.Get)
		enrollments.GET("", graders, h.Enrollments.List)
	}

	grades := authed.Group("/grades", graders)
	{
		grades.PUT("", h.Grades.Record)
		grades.POST("/bulk", h.Grades.BulkRecord)
		grades.GET("", h.Grades.List)
	}

	students := authed.Group("/students")
	{
		students.GET("/:id/transcript", readers, h.Students.Transcript)
		students.GET("/:id/degree-audit", readers, h.Students.DegreeAudit)
		students.GET("/:id/graduation", readers, h.Students.GraduationRecord)
		students.POST("/:id/graduate", staff, h.Students.Graduate)
	}

	sections := authed.Group("/sections")
	{
		sections.GET("", h.Sections.List)
		sections.GET("/:id", h.Sections.Get)
		sections.POST("", staff, h.Sections.Create)
		sections.PUT("/:id/schedule", staff, h.Sections.UpdateSchedule)
		sections.PUT("/:id/open", staff, h.Sections.SetOpen)
		sections.GET("/:id/assessments", h.Assessments.ListBySection)
		sections.POST("/:id/post-final-grades", graders, h.Grades.PostFinalGrades)
	}

	assessments := authed.Group("/assessments", graders)
	{
		assessments.POST("", h.Assessments.Create)
		assessments.GET("/:id", h.Assessments.Get)
		assessments.PUT("/:id", h.Assessments.Update)
		assessments.DELETE("/:id", h.Assessments.Delete)
	}
}
