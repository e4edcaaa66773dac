package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sisforge/sis-core-api/internal/service"
	"github.com/sisforge/sis-core-api/pkg/response"
)

// StudentHandler exposes the student-scoped academic record endpoints:
// transcript, degree audit and graduation processing.
type StudentHandler struct {
	transcripts *service.TranscriptService
	graduations *service.GraduationService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(transcripts *service.TranscriptService, graduations *service.GraduationService) *StudentHandler {
	return &StudentHandler{transcripts: transcripts, graduations: graduations}
}

// Transcript godoc
// @Summary Get a student's transcript
// @Description Returns the append-only transcript entries with GPA recomputed on read
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/transcript [get]
func (h *StudentHandler) Transcript(c *gin.Context) {
	transcript, err := h.transcripts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// DegreeAudit godoc
// @Summary Run a degree audit
// @Description Reports eligibility and every unmet requirement; ineligibility is data, not an error
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/degree-audit [get]
func (h *StudentHandler) DegreeAudit(c *gin.Context) {
	audit, err := h.graduations.DegreeAudit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audit, nil)
}

// Graduate godoc
// @Summary Process a graduation
// @Description Creates the graduation record and alumni profile when the audit passes
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/graduate [post]
func (h *StudentHandler) Graduate(c *gin.Context) {
	record, err := h.graduations.Graduate(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// GraduationRecord godoc
// @Summary Get a student's graduation record
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/graduation [get]
func (h *StudentHandler) GraduationRecord(c *gin.Context) {
	record, err := h.graduations.Record(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
