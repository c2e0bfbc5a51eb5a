package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/dispatch_coordination_system/internal/config"
	"github.com/shenikar/dispatch_coordination_system/internal/eventbus"
	"github.com/shenikar/dispatch_coordination_system/internal/service"
)

const (
	commandConfirmed = "confirmed"
	commandPending   = "pending"
)

type Handler struct {
	reports      service.ReportService
	dispatch     service.DispatchService
	availability service.AvailabilityService
	bus          *eventbus.Bus[service.LiveEvent]
	logger       *logrus.Logger
	validate     *validator.Validate
	cfg          *config.Config
}

func NewHandler(
	reports service.ReportService,
	dispatch service.DispatchService,
	availability service.AvailabilityService,
	bus *eventbus.Bus[service.LiveEvent],
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		reports:      reports,
		dispatch:     dispatch,
		availability: availability,
		bus:          bus,
		logger:       logger,
		validate:     validator.New(),
		cfg:          cfg,
	}
}

// bindJSON разбирает и валидирует тело запроса; при ошибке ответ уже отправлен
func (h *Handler) bindJSON(c *gin.Context, log *logrus.Entry, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError отображает ошибки сервиса на HTTP-статусы
func (h *Handler) respondError(c *gin.Context, log *logrus.Entry, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, service.ErrPersistenceFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	log.WithError(err).Warn("Request rejected")
	c.JSON(status, gin.H{"error": err.Error()})
}

// await ждет подтверждения команды не дольше COMMAND_TIMEOUT.
// confirmed=false без ошибки значит, что подтверждение еще не пришло.
func (h *Handler) await(c *gin.Context, p *service.Pending) (confirmed bool, err error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.CommandTimeout)
	defer cancel()
	_ = p.Wait(ctx)

	err = p.Err()
	if errors.Is(err, service.ErrPending) {
		return false, nil
	}
	return err == nil, err
}

// respondCommand отправляет результат команды: 200 при подтверждении, 202 пока оно не пришло
func (h *Handler) respondCommand(c *gin.Context, log *logrus.Entry, p *service.Pending, err error) {
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	confirmed, err := h.await(c, p)
	switch {
	case err != nil:
		h.respondError(c, log, err)
	case !confirmed:
		log.Info("Command accepted, confirmation pending")
		c.JSON(http.StatusAccepted, commandResponse(p.ID(), commandPending))
	default:
		c.JSON(http.StatusOK, commandResponse(p.ID(), commandConfirmed))
	}
}

// @Summary Report an accident
// @Description Store a new accident report with status PENDING. The report is returned once the change feed confirms it. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param report body CreateReportRequest true "Accident report"
// @Success 201 {object} ReportResponse
// @Success 202 {object} CommandResponse "Stored, confirmation pending"
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 502 {object} map[string]string "Storage rejected the write"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /reports [post]
func (h *Handler) createReport(c *gin.Context) {
	var input CreateReportRequest
	log := h.logger.WithField("method", "createReport")
	if !h.bindJSON(c, log, &input) {
		return
	}

	p, err := h.reports.CreateReport(c.Request.Context(), DTOToReportModel(input))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("report_id", p.ID())

	confirmed, err := h.await(c, p)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	if !confirmed {
		c.JSON(http.StatusAccepted, commandResponse(p.ID(), commandPending))
		return
	}
	report, err := h.reports.GetReport(p.ID())
	if err != nil {
		c.JSON(http.StatusCreated, commandResponse(p.ID(), commandConfirmed))
		return
	}
	c.JSON(http.StatusCreated, ModelToReportResponse(report))
}

// @Summary List accident reports
// @Description Snapshot of all reports from the synchronized view. Requires API key.
// @Tags Reports
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} ReportResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /reports [get]
func (h *Handler) listReports(c *gin.Context) {
	log := h.logger.WithField("method", "listReports")
	reports, err := h.reports.ListReports()
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToReportResponses(reports))
}

// @Summary List report groups
// @Description Reports sharing one location merged into a single map marker. Requires API key.
// @Tags Reports
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} ReportGroupResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /reports/groups [get]
func (h *Handler) listGroups(c *gin.Context) {
	log := h.logger.WithField("method", "listGroups")
	groups, err := h.reports.Groups()
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, GroupsToResponses(groups))
}

// @Summary Get report by ID
// @Description Get a single report by its ID. Requires API key.
// @Tags Reports
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Success 200 {object} ReportResponse
// @Failure 400 {object} map[string]string "Invalid report ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report not found"
// @Router /reports/{id} [get]
func (h *Handler) getReport(c *gin.Context) {
	id, ok := parseID(c, "report")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getReport").WithField("id", id)

	report, err := h.reports.GetReport(id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToReportResponse(report))
}

// @Summary Get dispatch status of a report
// @Description Derived status (idle, waiting, accepted) and the governing assignment. Requires API key.
// @Tags Dispatch
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Success 200 {object} DispatchStatusResponse
// @Failure 400 {object} map[string]string "Invalid report ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /reports/{id}/dispatch-status [get]
func (h *Handler) getDispatchStatus(c *gin.Context) {
	id, ok := parseID(c, "report")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getDispatchStatus").WithField("id", id)

	status, err := h.dispatch.Status(id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, DispatchToStatusResponse(status))
}

// @Summary Dispatch a responder
// @Description Assign an available responder to a report. Requires API key.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param dispatch body DispatchRequest true "Report and responder"
// @Success 200 {object} CommandResponse
// @Success 202 {object} CommandResponse "Stored, confirmation pending"
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report or responder not found"
// @Failure 409 {object} map[string]string "Report already has an active assignment"
// @Failure 502 {object} map[string]string "Storage rejected the write"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /dispatches [post]
func (h *Handler) createDispatch(c *gin.Context) {
	var input DispatchRequest
	log := h.logger.WithField("method", "createDispatch")
	if !h.bindJSON(c, log, &input) {
		return
	}
	reportID := uuid.MustParse(input.ReportID)
	responderID := uuid.MustParse(input.ResponderID)
	log = log.WithFields(logrus.Fields{"report_id": reportID, "responder_id": responderID})

	p, err := h.dispatch.Dispatch(c.Request.Context(), reportID, responderID)
	h.respondCommand(c, log, p, err)
}

// @Summary List assignments
// @Description Snapshot of all assignments from the synchronized view. Requires API key.
// @Tags Dispatch
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} AssignmentResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /assignments [get]
func (h *Handler) listAssignments(c *gin.Context) {
	log := h.logger.WithField("method", "listAssignments")
	assignments, err := h.dispatch.ListAssignments()
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToAssignmentResponses(assignments))
}

type transitionFunc func(ctx context.Context, assignmentID uuid.UUID) (*service.Pending, error)

func (h *Handler) transition(c *gin.Context, method string, fn transitionFunc) {
	id, ok := parseID(c, "assignment")
	if !ok {
		return
	}
	log := h.logger.WithField("method", method).WithField("assignment_id", id)

	p, err := fn(c.Request.Context(), id)
	h.respondCommand(c, log, p, err)
}

// @Summary Accept an assignment
// @Description Responder accepts a dispatched assignment. Requires API key.
// @Tags Dispatch
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Assignment ID"
// @Success 200 {object} CommandResponse
// @Success 202 {object} CommandResponse "Stored, confirmation pending"
// @Failure 400 {object} map[string]string "Invalid assignment ID"
// @Failure 404 {object} map[string]string "Assignment not found"
// @Failure 409 {object} map[string]string "Assignment is not dispatched"
// @Failure 502 {object} map[string]string "Storage rejected the write"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /assignments/{id}/accept [post]
func (h *Handler) acceptAssignment(c *gin.Context) {
	h.transition(c, "acceptAssignment", h.dispatch.Accept)
}

// @Summary Reject an assignment
// @Description Responder rejects a dispatched assignment; the report returns to PENDING. Requires API key.
// @Tags Dispatch
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Assignment ID"
// @Success 200 {object} CommandResponse
// @Success 202 {object} CommandResponse "Stored, confirmation pending"
// @Failure 400 {object} map[string]string "Invalid assignment ID"
// @Failure 404 {object} map[string]string "Assignment not found"
// @Failure 409 {object} map[string]string "Assignment is not dispatched"
// @Failure 502 {object} map[string]string "Storage rejected the write"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /assignments/{id}/reject [post]
func (h *Handler) rejectAssignment(c *gin.Context) {
	h.transition(c, "rejectAssignment", h.dispatch.Reject)
}

// @Summary Resolve an assignment
// @Description Close an accepted assignment; the report becomes RESOLVED. Requires API key.
// @Tags Dispatch
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Assignment ID"
// @Success 200 {object} CommandResponse
// @Success 202 {object} CommandResponse "Stored, confirmation pending"
// @Failure 400 {object} map[string]string "Invalid assignment ID"
// @Failure 404 {object} map[string]string "Assignment not found"
// @Failure 409 {object} map[string]string "Assignment is not accepted"
// @Failure 502 {object} map[string]string "Storage rejected the write"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /assignments/{id}/resolve [post]
func (h *Handler) resolveAssignment(c *gin.Context) {
	h.transition(c, "resolveAssignment", h.dispatch.Resolve)
}

// @Summary List responders
// @Description All responders with their availability. Requires API key.
// @Tags Responders
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} ResponderResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /responders [get]
func (h *Handler) listResponders(c *gin.Context) {
	log := h.logger.WithField("method", "listResponders")
	responders, err := h.availability.ListResponders()
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToResponderResponses(responders))
}

// @Summary List available responders
// @Description Responders that can be dispatched right now, ordered by name. Requires API key.
// @Tags Responders
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} ResponderResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /responders/available [get]
func (h *Handler) listAvailable(c *gin.Context) {
	log := h.logger.WithField("method", "listAvailable")
	responders, err := h.availability.ListAvailable()
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToResponderResponses(responders))
}

// @Summary Toggle responder availability
// @Description Set the availability flag of a responder. Requires API key.
// @Tags Responders
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Responder ID"
// @Param availability body AvailabilityRequest true "New availability"
// @Success 200 {object} CommandResponse
// @Success 202 {object} CommandResponse "Stored, confirmation pending"
// @Failure 400 {object} map[string]string "Invalid responder ID or request body"
// @Failure 404 {object} map[string]string "Responder not found"
// @Failure 409 {object} map[string]string "Responder holds an active assignment"
// @Failure 502 {object} map[string]string "Storage rejected the write"
// @Failure 503 {object} map[string]string "Change feed unavailable"
// @Router /responders/{id}/availability [put]
func (h *Handler) setAvailability(c *gin.Context) {
	id, ok := parseID(c, "responder")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "setAvailability").WithField("responder_id", id)

	var input AvailabilityRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	p, err := h.availability.SetAvailability(c.Request.Context(), id, *input.IsAvailable)
	h.respondCommand(c, log, p, err)
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
