package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prepwise/mockexam-backend/internal/middleware"
	"github.com/prepwise/mockexam-backend/internal/model"
	"github.com/prepwise/mockexam-backend/internal/response"
	"github.com/prepwise/mockexam-backend/internal/service"
	"github.com/prepwise/mockexam-backend/internal/session"
	"github.com/prepwise/mockexam-backend/internal/validator"
)

// PortalHandler handles the exam taker's endpoints: lobby, session
// lifecycle, and history.
type PortalHandler struct {
	examService    *service.MockExamService
	sessionService *service.SessionService
	historyService *service.HistoryService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(
	examService *service.MockExamService,
	sessionService *service.SessionService,
	historyService *service.HistoryService,
) *PortalHandler {
	return &PortalHandler{
		examService:    examService,
		sessionService: sessionService,
		historyService: historyService,
	}
}

// failSession maps session domain errors onto response codes.
func failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrEmptySession):
		response.Fail(c, http.StatusConflict, response.ErrEmptySession)
	case errors.Is(err, session.ErrSessionSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrSessionSubmitted)
	case errors.Is(err, session.ErrScoringUnavailable):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrScoringUnavailable)
	case errors.Is(err, session.ErrIndexOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionOutOfRange)
	case errors.Is(err, service.ErrNoActiveSession):
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// Lobby godoc
// GET /api/v1/portal/exams?page=&per_page=
// Lists published exams overlaid with the caller's attempt status.
func (h *PortalHandler) Lobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "per_page", 10)

	exams, pagination, err := h.examService.List(c.Request.Context(), 0, model.ExamStatusPublished, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	summaries, err := h.historyService.SummaryByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	lobby := make([]model.LobbyExam, len(exams))
	for i, exam := range exams {
		lobby[i] = model.LobbyExam{
			MockExam: exam,
			Live:     h.sessionService.IsLive(claims.UserID, exam.ID),
		}
		if sum, ok := summaries[exam.ID]; ok {
			lobby[i].History = &sum
		}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": lobby}, pagination)
}

// GetPaper godoc
// GET /api/v1/portal/exams/:exam_id/paper
// Returns the exam questions without correct answers.
func (h *PortalHandler) GetPaper(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	payload, err := h.examService.GetExamPayload(c.Request.Context(), examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": payload})
}

// StartSession godoc
// POST /api/v1/portal/exams/:exam_id/session
// Starts a session or rejoins the live one.
func (h *PortalHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	state, err := h.sessionService.Start(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": state})
}

// GetState godoc
// GET /api/v1/portal/exams/:exam_id/session
// Returns the current session snapshot.
func (h *PortalHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	state, err := h.sessionService.State(claims.UserID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// RecordAnswer godoc
// PUT /api/v1/portal/exams/:exam_id/session/answers
// Records one answer; re-answering overwrites.
func (h *PortalHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.Record(c.Request.Context(), claims.UserID, examID, req.QuestionIndex, req.Choice); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_index": req.QuestionIndex,
		"choice":         req.Choice,
	})
}

// Navigate godoc
// PUT /api/v1/portal/exams/:exam_id/session/position
// Moves the current-question pointer (goto/next/prev, clamped).
func (h *PortalHandler) Navigate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.sessionService.Navigate(claims.UserID, examID, req.Op, req.Index)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// SubmitSession godoc
// POST /api/v1/portal/exams/:exam_id/session/submit
// Terminates and scores the session. Retryable when scoring is
// temporarily unavailable.
func (h *PortalHandler) SubmitSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// RetakeSession godoc
// POST /api/v1/portal/exams/:exam_id/session/retake
// Starts a fresh attempt; prior attempts stay in history.
func (h *PortalHandler) RetakeSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	state, err := h.sessionService.Retake(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": state})
}

// DiscardSession godoc
// DELETE /api/v1/portal/exams/:exam_id/session
// Abandons the session without grading.
func (h *PortalHandler) DiscardSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	if err := h.sessionService.Discard(c.Request.Context(), claims.UserID, examID); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// History godoc
// GET /api/v1/portal/history
// Lists the user's past attempts, newest first.
func (h *PortalHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)

	attempts, err := h.historyService.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
