package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shenikar/dispatch_coordination_system/internal/config"
	"github.com/shenikar/dispatch_coordination_system/internal/eventbus"
	"github.com/shenikar/dispatch_coordination_system/internal/geogroup"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/shenikar/dispatch_coordination_system/internal/service"
	"github.com/shenikar/dispatch_coordination_system/internal/service/mocks"
)

var apiKey = map[string]string{"X-API-Key": "test-api-key"}

type testDeps struct {
	reports      *mocks.MockReportService
	dispatch     *mocks.MockDispatchService
	availability *mocks.MockAvailabilityService
	bus          *eventbus.Bus[service.LiveEvent]
}

// newTestHandler создает Handler с мокированными сервисами
func newTestHandler(t *testing.T) (*testDeps, *gin.Engine) {
	ctrl := gomock.NewController(t)
	deps := &testDeps{
		reports:      mocks.NewMockReportService(ctrl),
		dispatch:     mocks.NewMockDispatchService(ctrl),
		availability: mocks.NewMockAvailabilityService(ctrl),
		bus:          eventbus.New[service.LiveEvent](),
	}
	t.Cleanup(deps.bus.Close)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		APIKeys:        []string{"test-api-key"},
		CommandTimeout: 50 * time.Millisecond,
	}

	handler := NewHandler(deps.reports, deps.dispatch, deps.availability, deps.bus, logger, cfg)

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return deps, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeCommand(t *testing.T, w *httptest.ResponseRecorder) CommandResponse {
	t.Helper()
	var resp CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateReport_Confirmed(t *testing.T) {
	deps, router := newTestHandler(t)
	reportID := uuid.New()
	reqBody := CreateReportRequest{
		Severity:  "high",
		Latitude:  14.5995,
		Longitude: 120.9842,
		Barangay:  "Ermita",
	}

	deps.reports.EXPECT().
		CreateReport(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r models.AccidentReport) (*service.Pending, error) {
			assert.Equal(t, models.SeverityHigh, r.Severity)
			assert.Equal(t, "Ermita", r.Barangay)
			return service.ResolvedPending(reportID, nil), nil
		})
	deps.reports.EXPECT().GetReport(reportID).Return(models.AccidentReport{
		ID:       reportID,
		Severity: models.SeverityHigh,
		Status:   models.StatusPending,
		Version:  1,
	}, nil)

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, reqBody), apiKey)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, reportID, resp.ID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, []string{}, resp.Images)
}

func TestCreateReport_PendingConfirmation(t *testing.T) {
	deps, router := newTestHandler(t)
	reportID := uuid.New()

	deps.reports.EXPECT().CreateReport(gomock.Any(), gomock.Any()).Return(service.NewPending(reportID), nil)
	deps.reports.EXPECT().GetReport(gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, CreateReportRequest{Severity: "minor"}), apiKey)

	assert.Equal(t, http.StatusAccepted, w.Code)
	resp := decodeCommand(t, w)
	assert.Equal(t, reportID, resp.ID)
	assert.Equal(t, "pending", resp.Status)
}

func TestCreateReport_InvalidJSON(t *testing.T) {
	deps, router := newTestHandler(t)

	deps.reports.EXPECT().CreateReport(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/v1/reports", bytes.NewBufferString(`{"severity": "high"`), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestCreateReport_ValidationError(t *testing.T) {
	deps, router := newTestHandler(t)

	deps.reports.EXPECT().CreateReport(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, CreateReportRequest{Severity: "extreme"}), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Error:Field validation for 'Severity' failed on the 'oneof' tag")
}

func TestCreateReport_ServiceErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"unavailable", service.ErrUnavailable, http.StatusServiceUnavailable},
		{"invalid input", fmt.Errorf("latitude out of range: %w", service.ErrInvalidInput), http.StatusBadRequest},
		{"persistence", &service.PersistenceError{Message: "relation \"accidents\" does not exist"}, http.StatusBadGateway},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps, router := newTestHandler(t)
			deps.reports.EXPECT().CreateReport(gomock.Any(), gomock.Any()).Return(nil, tc.err)

			w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, CreateReportRequest{Severity: "minor"}), apiKey)

			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestCreateReport_PersistenceMessagePassedThrough(t *testing.T) {
	deps, router := newTestHandler(t)
	deps.reports.EXPECT().CreateReport(gomock.Any(), gomock.Any()).
		Return(nil, &service.PersistenceError{Message: "permission denied for table accidents"})

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, CreateReportRequest{Severity: "minor"}), apiKey)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "permission denied for table accidents")
}

func TestListReports_Success(t *testing.T) {
	deps, router := newTestHandler(t)
	reports := []models.AccidentReport{
		{ID: uuid.New(), Severity: models.SeverityMinor},
		{ID: uuid.New(), Severity: models.SeverityCritical},
	}
	deps.reports.EXPECT().ListReports().Return(reports, nil)

	w := makeRequest(router, "GET", "/api/v1/reports", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, reports[1].ID, resp[1].ID)
}

func TestListReports_Unavailable(t *testing.T) {
	deps, router := newTestHandler(t)
	deps.reports.EXPECT().ListReports().Return(nil, service.ErrUnavailable)

	w := makeRequest(router, "GET", "/api/v1/reports", nil, apiKey)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListGroups_Success(t *testing.T) {
	deps, router := newTestHandler(t)
	a := models.AccidentReport{ID: uuid.New(), Severity: models.SeverityHigh, Latitude: 10, Longitude: 20}
	b := models.AccidentReport{ID: uuid.New(), Severity: models.SeverityMinor, Latitude: 10, Longitude: 20}
	deps.reports.EXPECT().Groups().Return([]geogroup.ReportGroup{{
		Latitude:  10,
		Longitude: 20,
		Severity:  models.SeverityHigh,
		Count:     2,
		Primary:   a,
		Members:   []models.AccidentReport{a, b},
	}}, nil)

	w := makeRequest(router, "GET", "/api/v1/reports/groups", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []ReportGroupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, 2, resp[0].Count)
	assert.Equal(t, "high", resp[0].Severity)
	assert.Equal(t, a.ID, resp[0].Primary.ID)
	assert.Len(t, resp[0].Members, 2)
}

func TestGetReport_InvalidID(t *testing.T) {
	deps, router := newTestHandler(t)
	deps.reports.EXPECT().GetReport(gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/reports/not-a-uuid", nil, apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid report ID")
}

func TestGetReport_NotFound(t *testing.T) {
	deps, router := newTestHandler(t)
	id := uuid.New()
	deps.reports.EXPECT().GetReport(id).Return(models.AccidentReport{}, fmt.Errorf("report %s: %w", id, service.ErrNotFound))

	w := makeRequest(router, "GET", "/api/v1/reports/"+id.String(), nil, apiKey)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetDispatchStatus_Waiting(t *testing.T) {
	deps, router := newTestHandler(t)
	reportID := uuid.New()
	assignment := models.DispatchAssignment{
		ID:           uuid.New(),
		AccidentID:   reportID,
		ResponderID:  uuid.New(),
		ResponseType: models.ResponseDispatched,
	}
	deps.dispatch.EXPECT().Status(reportID).Return(service.ReportDispatch{
		ReportID:   reportID,
		Status:     service.StatusWaiting,
		Assignment: &assignment,
	}, nil)

	w := makeRequest(router, "GET", "/api/v1/reports/"+reportID.String()+"/dispatch-status", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp DispatchStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "waiting", resp.Status)
	require.NotNil(t, resp.Assignment)
	assert.Equal(t, assignment.ID, resp.Assignment.ID)
	assert.Equal(t, "dispatched", resp.Assignment.ResponseType)
}

func TestGetDispatchStatus_IdleHasNoAssignment(t *testing.T) {
	deps, router := newTestHandler(t)
	reportID := uuid.New()
	deps.dispatch.EXPECT().Status(reportID).Return(service.ReportDispatch{ReportID: reportID, Status: service.StatusIdle}, nil)

	w := makeRequest(router, "GET", "/api/v1/reports/"+reportID.String()+"/dispatch-status", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "assignment")
}

func TestDispatch_Confirmed(t *testing.T) {
	deps, router := newTestHandler(t)
	reportID, responderID, assignmentID := uuid.New(), uuid.New(), uuid.New()
	deps.dispatch.EXPECT().Dispatch(gomock.Any(), reportID, responderID).Return(service.ResolvedPending(assignmentID, nil), nil)

	w := makeRequest(router, "POST", "/api/v1/dispatches", jsonBody(t, DispatchRequest{
		ReportID:    reportID.String(),
		ResponderID: responderID.String(),
	}), apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeCommand(t, w)
	assert.Equal(t, assignmentID, resp.ID)
	assert.Equal(t, "confirmed", resp.Status)
}

func TestDispatch_ConfirmationResolvesConflict(t *testing.T) {
	deps, router := newTestHandler(t)
	reportID, responderID := uuid.New(), uuid.New()
	deps.dispatch.EXPECT().Dispatch(gomock.Any(), reportID, responderID).
		Return(service.ResolvedPending(uuid.New(), fmt.Errorf("report %s already has an active assignment: %w", reportID, service.ErrConflict)), nil)

	w := makeRequest(router, "POST", "/api/v1/dispatches", jsonBody(t, DispatchRequest{
		ReportID:    reportID.String(),
		ResponderID: responderID.String(),
	}), apiKey)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already has an active assignment")
}

func TestDispatch_ValidationError(t *testing.T) {
	deps, router := newTestHandler(t)
	deps.dispatch.EXPECT().Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/dispatches", jsonBody(t, DispatchRequest{
		ReportID:    "42",
		ResponderID: uuid.NewString(),
	}), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'ReportID' failed on the 'uuid' tag")
}

func TestDispatch_SynchronousErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"conflict", service.ErrConflict, http.StatusConflict},
		{"unavailable", service.ErrUnavailable, http.StatusServiceUnavailable},
		{"persistence", &service.PersistenceError{Message: "insert failed"}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps, router := newTestHandler(t)
			deps.dispatch.EXPECT().Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tc.err)

			w := makeRequest(router, "POST", "/api/v1/dispatches", jsonBody(t, DispatchRequest{
				ReportID:    uuid.NewString(),
				ResponderID: uuid.NewString(),
			}), apiKey)

			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestListAssignments_Success(t *testing.T) {
	deps, router := newTestHandler(t)
	a := models.DispatchAssignment{ID: uuid.New(), AccidentID: uuid.New(), ResponseType: models.ResponseAccepted}
	deps.dispatch.EXPECT().ListAssignments().Return([]models.DispatchAssignment{a}, nil)

	w := makeRequest(router, "GET", "/api/v1/assignments", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []AssignmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, a.AccidentID, resp[0].ReportID)
	assert.Equal(t, "accepted", resp[0].ResponseType)
}

func TestAssignmentTransitions(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		action string
		expect func(d *testDeps) *gomock.Call
	}{
		{"accept", func(d *testDeps) *gomock.Call { return d.dispatch.EXPECT().Accept(gomock.Any(), id) }},
		{"reject", func(d *testDeps) *gomock.Call { return d.dispatch.EXPECT().Reject(gomock.Any(), id) }},
		{"resolve", func(d *testDeps) *gomock.Call { return d.dispatch.EXPECT().Resolve(gomock.Any(), id) }},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			deps, router := newTestHandler(t)
			tc.expect(deps).Return(service.ResolvedPending(id, nil), nil)

			w := makeRequest(router, "POST", "/api/v1/assignments/"+id.String()+"/"+tc.action, nil, apiKey)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, id, decodeCommand(t, w).ID)
		})
	}
}

func TestAcceptAssignment_InvalidID(t *testing.T) {
	deps, router := newTestHandler(t)
	deps.dispatch.EXPECT().Accept(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/assignments/abc/accept", nil, apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid assignment ID")
}

func TestResolveAssignment_Conflict(t *testing.T) {
	deps, router := newTestHandler(t)
	id := uuid.New()
	deps.dispatch.EXPECT().Resolve(gomock.Any(), id).Return(nil, fmt.Errorf("assignment %s is dispatched: %w", id, service.ErrConflict))

	w := makeRequest(router, "POST", "/api/v1/assignments/"+id.String()+"/resolve", nil, apiKey)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRejectAssignment_PendingConfirmation(t *testing.T) {
	deps, router := newTestHandler(t)
	id := uuid.New()
	deps.dispatch.EXPECT().Reject(gomock.Any(), id).Return(service.NewPending(id), nil)

	w := makeRequest(router, "POST", "/api/v1/assignments/"+id.String()+"/reject", nil, apiKey)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestListAvailable_Success(t *testing.T) {
	deps, router := newTestHandler(t)
	responder := models.ResponderAvailability{
		ResponderID: uuid.New(),
		IsAvailable: true,
		Profile:     models.Profile{FullName: "Ana Reyes", Role: "responder"},
	}
	deps.availability.EXPECT().ListAvailable().Return([]models.ResponderAvailability{responder}, nil)

	w := makeRequest(router, "GET", "/api/v1/responders/available", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []ResponderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "Ana Reyes", resp[0].FullName)
	assert.True(t, resp[0].IsAvailable)
}

func TestListResponders_Unavailable(t *testing.T) {
	deps, router := newTestHandler(t)
	deps.availability.EXPECT().ListResponders().Return(nil, service.ErrUnavailable)

	w := makeRequest(router, "GET", "/api/v1/responders", nil, apiKey)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSetAvailability_Success(t *testing.T) {
	deps, router := newTestHandler(t)
	id := uuid.New()
	deps.availability.EXPECT().SetAvailability(gomock.Any(), id, false).Return(service.ResolvedPending(id, nil), nil)

	w := makeRequest(router, "PUT", "/api/v1/responders/"+id.String()+"/availability", bytes.NewBufferString(`{"is_available": false}`), apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", decodeCommand(t, w).Status)
}

func TestSetAvailability_MissingFlag(t *testing.T) {
	deps, router := newTestHandler(t)
	deps.availability.EXPECT().SetAvailability(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "PUT", "/api/v1/responders/"+uuid.NewString()+"/availability", bytes.NewBufferString(`{}`), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'IsAvailable' failed on the 'required' tag")
}

func TestSetAvailability_ActiveAssignmentConflict(t *testing.T) {
	deps, router := newTestHandler(t)
	id := uuid.New()
	deps.availability.EXPECT().SetAvailability(gomock.Any(), id, true).Return(nil, service.ErrConflict)

	w := makeRequest(router, "PUT", "/api/v1/responders/"+id.String()+"/availability", bytes.NewBufferString(`{"is_available": true}`), apiKey)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestProtectedRoutes_RequireAPIKey(t *testing.T) {
	_, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/reports", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "API key required")
}

func TestHealthCheck_Success(t *testing.T) {
	_, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/system/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
