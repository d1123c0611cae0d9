package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/model"
	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock PeriodService ──

type mockPeriodService struct {
	createResult  *dto.PeriodResponse
	createErr     error
	getResult     *dto.PeriodResponse
	getErr        error
	listResult    []dto.PeriodResponse
	cancelResult  *dto.PeriodResponse
	cancelErr     error
	reconcile     *dto.ReconcileResponse
	conflicts     []dto.PeriodConflict
	lastCaller    service.Caller
	lastCancelReq *dto.CancelPeriodRequest
}

func (m *mockPeriodService) Reconcile(_ context.Context) (*dto.ReconcileResponse, error) {
	return m.reconcile, nil
}
func (m *mockPeriodService) CanTransition(_ context.Context, _ *model.Period, _ string) error {
	return nil
}
func (m *mockPeriodService) Create(_ context.Context, _ *dto.CreatePeriodRequest, caller service.Caller) (*dto.PeriodResponse, error) {
	m.lastCaller = caller
	return m.createResult, m.createErr
}
func (m *mockPeriodService) GetByID(_ context.Context, _ string) (*dto.PeriodResponse, error) {
	return m.getResult, m.getErr
}
func (m *mockPeriodService) GetCurrent(_ context.Context) (*dto.PeriodResponse, error) {
	return m.getResult, m.getErr
}
func (m *mockPeriodService) List(_ context.Context, _ *dto.PeriodListRequest) ([]dto.PeriodResponse, error) {
	return m.listResult, nil
}
func (m *mockPeriodService) Update(_ context.Context, _ string, _ *dto.UpdatePeriodRequest, _ service.Caller) (*dto.PeriodResponse, error) {
	return m.createResult, m.createErr
}
func (m *mockPeriodService) Cancel(_ context.Context, _ string, req *dto.CancelPeriodRequest, _ service.Caller) (*dto.PeriodResponse, error) {
	m.lastCancelReq = req
	return m.cancelResult, m.cancelErr
}
func (m *mockPeriodService) Delete(_ context.Context, _ string, _ service.Caller) error {
	return m.getErr
}
func (m *mockPeriodService) Conflicts(_ context.Context, _ *dto.PeriodConflictQuery) ([]dto.PeriodConflict, error) {
	return m.conflicts, nil
}
func (m *mockPeriodService) Anomalies(_ context.Context) ([]dto.PeriodAnomaly, error) {
	return nil, nil
}

// ── Mock EvaluationService ──

type mockEvaluationService struct {
	result    *dto.EvaluationResponse
	err       error
	list      []dto.EvaluationResponse
	listTotal int64
}

func (m *mockEvaluationService) Create(_ context.Context, _ *dto.CreateEvaluationRequest, _ service.Caller) (*dto.EvaluationResponse, error) {
	return m.result, m.err
}
func (m *mockEvaluationService) Assign(_ context.Context, _ *dto.AssignEvaluationRequest, _ service.Caller) (*dto.EvaluationResponse, error) {
	return m.result, m.err
}
func (m *mockEvaluationService) GetByID(_ context.Context, _ string, _ service.Caller) (*dto.EvaluationResponse, error) {
	return m.result, m.err
}
func (m *mockEvaluationService) List(_ context.Context, _ *dto.EvaluationListRequest, _ service.Caller) ([]dto.EvaluationResponse, int64, error) {
	return m.list, m.listTotal, m.err
}
func (m *mockEvaluationService) Update(_ context.Context, _ string, _ *dto.UpdateEvaluationRequest, _ service.Caller) (*dto.EvaluationResponse, error) {
	return m.result, m.err
}
func (m *mockEvaluationService) Cancel(_ context.Context, _ string, _ *dto.CancelEvaluationRequest, _ service.Caller) (*dto.EvaluationResponse, error) {
	return m.result, m.err
}
func (m *mockEvaluationService) Delete(_ context.Context, _ string, _ service.Caller) error {
	return m.err
}

// ── Mock ReminderService ──

type mockReminderService struct {
	result *dto.ReminderResponse
	err    error
	purged int64
}

func (m *mockReminderService) List(_ context.Context, _ *dto.ReminderListRequest, _ service.Caller) ([]dto.ReminderResponse, int64, error) {
	return nil, 0, m.err
}
func (m *mockReminderService) Resend(_ context.Context, _ string, _ service.Caller) (*dto.ReminderResponse, error) {
	return m.result, m.err
}
func (m *mockReminderService) Reschedule(_ context.Context, _ string, _ *dto.RescheduleReminderRequest, _ service.Caller) (*dto.ReminderResponse, error) {
	return m.result, m.err
}
func (m *mockReminderService) RescheduleEvaluation(_ context.Context, _ string, _ service.Caller) (*dto.RescheduleEvaluationResponse, error) {
	return &dto.RescheduleEvaluationResponse{}, m.err
}
func (m *mockReminderService) PurgeSent(_ context.Context, _ int, _ service.Caller) (int64, error) {
	return m.purged, m.err
}

// ── Mock SchedulerService / ReminderConfigService ──

type mockSchedulerService struct {
	report   *dto.SweepReport
	startErr error
}

func (m *mockSchedulerService) Start(_ service.Caller) error { return m.startErr }
func (m *mockSchedulerService) Stop(_ service.Caller) error  { return nil }
func (m *mockSchedulerService) Shutdown(_ context.Context) error {
	return nil
}
func (m *mockSchedulerService) Sweep(_ context.Context, _ service.Caller) (*dto.SweepReport, error) {
	return m.report, nil
}
func (m *mockSchedulerService) Status(_ context.Context, _ service.Caller) (*dto.SchedulerStatusResponse, error) {
	return &dto.SchedulerStatusResponse{}, nil
}

type mockConfigService struct {
	result    *dto.ReminderConfigResponse
	updateErr error
}

func (m *mockConfigService) Get(_ context.Context) (*dto.ReminderConfigResponse, error) {
	return m.result, nil
}
func (m *mockConfigService) Update(_ context.Context, _ *dto.UpdateReminderConfigRequest, _ service.Caller) (*dto.ReminderConfigResponse, error) {
	return m.result, m.updateErr
}
func (m *mockConfigService) Current(_ context.Context) (*model.ReminderConfig, error) {
	return &model.ReminderConfig{}, nil
}

// ── Mock NotificationService ──

type mockNotificationService struct {
	markErr     error
	markAll     int64
	lastMarkReq *dto.MarkAllReadRequest
}

func (m *mockNotificationService) Generate(_ context.Context) (int, error) { return 0, nil }
func (m *mockNotificationService) List(_ context.Context, _ *dto.NotificationListRequest, _ service.Caller) ([]dto.NotificationResponse, int64, error) {
	return []dto.NotificationResponse{}, 0, nil
}
func (m *mockNotificationService) UnreadCount(_ context.Context, _ service.Caller) (*dto.UnreadCountResponse, error) {
	return &dto.UnreadCountResponse{Count: 3}, nil
}
func (m *mockNotificationService) MarkRead(_ context.Context, _ string, _ service.Caller) error {
	return m.markErr
}
func (m *mockNotificationService) MarkAllRead(_ context.Context, req *dto.MarkAllReadRequest, _ service.Caller) (int64, error) {
	m.lastMarkReq = req
	return m.markAll, nil
}
func (m *mockNotificationService) Cleanup(_ context.Context, _ int, _ service.Caller) (int64, error) {
	return 0, nil
}

// ── Mock HolidayService ──

type mockHolidayService struct {
	imported []byte
	err      error
}

func (m *mockHolidayService) List(_ context.Context, _ *dto.HolidayListRequest) ([]dto.HolidayResponse, error) {
	return nil, m.err
}
func (m *mockHolidayService) Add(_ context.Context, _ *dto.CreateHolidayRequest, _ service.Caller) (*dto.HolidayResponse, error) {
	return &dto.HolidayResponse{}, m.err
}
func (m *mockHolidayService) Delete(_ context.Context, _ string, _ service.Caller) error {
	return m.err
}
func (m *mockHolidayService) Import(_ context.Context, reader io.Reader, _ service.Caller) (*dto.ImportHolidaysResponse, error) {
	b, _ := io.ReadAll(reader)
	m.imported = b
	return &dto.ImportHolidaysResponse{Imported: 1}, m.err
}
func (m *mockHolidayService) ImportURL(_ context.Context, _ string, _ service.Caller) (*dto.ImportHolidaysResponse, error) {
	return &dto.ImportHolidaysResponse{}, m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

func setupGin() (*gin.Engine, *gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)
	return r, c, w
}

func setAuth(c *gin.Context) {
	c.Set("user_id", "test-user-id")
	c.Set("role", model.RoleAdmin)
	c.Set("token_jti", "test-jti")
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

// ═══════════════════════════════════════════════════════════
// PeriodHandler Tests
// ═══════════════════════════════════════════════════════════

func TestPeriodHandler_CreatePeriod_Success(t *testing.T) {
	mock := &mockPeriodService{createResult: &dto.PeriodResponse{ID: "p1", Status: model.PeriodPlanned}}
	h := NewPeriodHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/periods", jsonBody(dto.CreatePeriodRequest{
		Name:     "2024 Q1",
		StartsAt: "2024-01-01",
		EndsAt:   "2024-03-31",
	}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/periods", func(c *gin.Context) {
		setAuth(c)
		h.CreatePeriod(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}
	if mock.lastCaller.UserID != "test-user-id" {
		t.Errorf("expected caller test-user-id, got %s", mock.lastCaller.UserID)
	}
	if !mock.lastCaller.Can(service.CapManagePeriods) {
		t.Error("expected ADMIN caller to manage periods")
	}
}

func TestPeriodHandler_CreatePeriod_BadJSON(t *testing.T) {
	h := NewPeriodHandler(&mockPeriodService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/periods", bytes.NewReader([]byte("bad")))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/periods", func(c *gin.Context) {
		setAuth(c)
		h.CreatePeriod(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestPeriodHandler_CreatePeriod_Unauthenticated(t *testing.T) {
	h := NewPeriodHandler(&mockPeriodService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/periods", jsonBody(dto.CreatePeriodRequest{
		Name:     "2024 Q1",
		StartsAt: "2024-01-01",
		EndsAt:   "2024-03-31",
	}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/periods", h.CreatePeriod)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestPeriodHandler_CreatePeriod_OverlapReturnsConflicts(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock := &mockPeriodService{createErr: &service.ConflictError{
		Reason: "周期时间窗口与现有周期重叠",
		Periods: []model.Period{
			{PeriodID: "p0", Name: "2023 Q4", StartsAt: start.AddDate(0, -3, 0), EndsAt: start, Status: model.PeriodActive},
			{PeriodID: "p2", Name: "2024 Q1 bis", StartsAt: start, EndsAt: start.AddDate(0, 3, 0), Status: model.PeriodPlanned},
		},
	}}
	h := NewPeriodHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/periods", jsonBody(dto.CreatePeriodRequest{
		Name:     "2024 Q1",
		StartsAt: "2024-01-01",
		EndsAt:   "2024-03-31",
	}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/periods", func(c *gin.Context) {
		setAuth(c)
		h.CreatePeriod(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != 20004 {
		t.Errorf("expected code 20004, got %d", resp.Code)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %T", resp.Data)
	}
	conflicts, ok := data["conflicts"].([]interface{})
	if !ok || len(conflicts) != 2 {
		t.Errorf("expected 2 conflicts, got %v", data["conflicts"])
	}
}

func TestPeriodHandler_CancelPeriod_EmptyBody(t *testing.T) {
	mock := &mockPeriodService{cancelResult: &dto.PeriodResponse{ID: "p1", Status: model.PeriodCanceled}}
	h := NewPeriodHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("PUT", "/periods/p1/cancel", nil)

	r := gin.New()
	r.PUT("/periods/:id/cancel", func(c *gin.Context) {
		setAuth(c)
		h.CancelPeriod(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.lastCancelReq == nil || mock.lastCancelReq.Reason != "" {
		t.Errorf("expected empty cancel request, got %+v", mock.lastCancelReq)
	}
}

func TestPeriodHandler_CheckConflicts_MissingQuery(t *testing.T) {
	h := NewPeriodHandler(&mockPeriodService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("GET", "/periods/conflicts?starts_at=2024-01-01", nil)

	r := gin.New()
	r.GET("/periods/conflicts", h.CheckConflicts)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestPeriodHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"NotFound", service.ErrPeriodNotFound, 404, 20001},
		{"NoActive", service.ErrNoActivePeriod, 404, 20002},
		{"WindowInvalid", service.ErrPeriodWindowInvalid, 400, 20003},
		{"Terminal", service.ErrPeriodTerminal, 409, 20005},
		{"Transition", service.ErrPeriodTransition, 409, 20006},
		{"HasCompleted", service.ErrPeriodHasCompleted, 409, 20007},
		{"HasEvaluations", service.ErrPeriodHasEvaluations, 409, 20008},
		{"Version", service.ErrPeriodVersion, 409, 20009},
		{"Validation", &service.ValidationError{Field: "starts_at", Reason: "时间格式无效"}, 400, 20000},
		{"Forbidden", service.ErrForbidden, 403, 10003},
		{"InternalError", errors.New("unknown"), 500, 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPeriodHandler(&mockPeriodService{getErr: tt.err})

			_, _, w := setupGin()
			req := httptest.NewRequest("GET", "/periods/p1", nil)

			r := gin.New()
			r.GET("/periods/:id", h.GetPeriod)
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			resp := parseResponse(w)
			if resp.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, resp.Code)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════
// EvaluationHandler Tests
// ═══════════════════════════════════════════════════════════

func TestEvaluationHandler_CreateEvaluation_Duplicate(t *testing.T) {
	mock := &mockEvaluationService{err: &service.ConflictError{Reason: "已在该周期评估过该对象"}}
	h := NewEvaluationHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/evaluations", jsonBody(dto.CreateEvaluationRequest{
		EvaluatedID: "u-bruno",
		PeriodID:    "p1",
		Score:       4,
	}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/evaluations", func(c *gin.Context) {
		setAuth(c)
		h.CreateEvaluation(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != 21006 {
		t.Errorf("expected code 21006, got %d", resp.Code)
	}
	if resp.Message != "已在该周期评估过该对象" {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestEvaluationHandler_CreateEvaluation_MissingFields(t *testing.T) {
	h := NewEvaluationHandler(&mockEvaluationService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/evaluations", jsonBody(map[string]interface{}{"score": 3}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/evaluations", func(c *gin.Context) {
		setAuth(c)
		h.CreateEvaluation(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestEvaluationHandler_ListEvaluations_Page(t *testing.T) {
	mock := &mockEvaluationService{
		list:      []dto.EvaluationResponse{{ID: "e1"}, {ID: "e2"}},
		listTotal: 45,
	}
	h := NewEvaluationHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("GET", "/evaluations?page=2&page_size=20", nil)

	r := gin.New()
	r.GET("/evaluations", func(c *gin.Context) {
		setAuth(c)
		h.ListEvaluations(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := parseResponse(w)
	data := resp.Data.(map[string]interface{})
	pagination := data["pagination"].(map[string]interface{})
	if pagination["total_pages"].(float64) != 3 {
		t.Errorf("expected 3 pages, got %v", pagination["total_pages"])
	}
}

func TestEvaluationHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"NotFound", service.ErrEvaluationNotFound, 404, 21001},
		{"EvaluatedNotFound", service.ErrEvaluatedNotFound, 404, 21002},
		{"Inactive", service.ErrEvaluatedInactive, 400, 21003},
		{"PeriodNotActive", service.ErrPeriodNotActive, 400, 21004},
		{"OutsideWindow", service.ErrEvaluationOutsideWindow, 400, 21005},
		{"Canceled", service.ErrEvaluationCanceled, 409, 21007},
		{"Locked", service.ErrEvaluationLocked, 403, 10003},
		{"PeriodNotFound", service.ErrPeriodNotFound, 404, 20001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewEvaluationHandler(&mockEvaluationService{err: tt.err})

			_, _, w := setupGin()
			req := httptest.NewRequest("GET", "/evaluations/e1", nil)

			r := gin.New()
			r.GET("/evaluations/:id", func(c *gin.Context) {
				setAuth(c)
				h.GetEvaluation(c)
			})
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			resp := parseResponse(w)
			if resp.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, resp.Code)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════
// Reminder / Scheduler Tests
// ═══════════════════════════════════════════════════════════

func TestReminderHandler_Resend_Busy(t *testing.T) {
	h := NewReminderHandler(&mockReminderService{err: service.ErrReminderBusy})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/reminders/r1/resend", nil)

	r := gin.New()
	r.POST("/reminders/:id/resend", func(c *gin.Context) {
		setAuth(c)
		h.ResendReminder(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 22004 {
		t.Errorf("expected code 22004, got %d", resp.Code)
	}
}

func TestReminderHandler_Purge_InvalidDays(t *testing.T) {
	h := NewReminderHandler(&mockReminderService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("DELETE", "/reminders/purge?days=0", nil)

	r := gin.New()
	r.DELETE("/reminders/purge", func(c *gin.Context) {
		setAuth(c)
		h.PurgeReminders(c)
	})
	r.ServeHTTP(w, req)

	// days=0 视为未填写，使用默认保留期
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	_, _, w = setupGin()
	req = httptest.NewRequest("DELETE", "/reminders/purge?days=-3", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSchedulerHandler_UpdateConfig_Fatal(t *testing.T) {
	mock := &mockConfigService{updateErr: &service.FatalConfigError{Field: "horario_envio", Reason: "格式应为 HH:mm"}}
	h := NewSchedulerHandler(&mockSchedulerService{}, mock)

	bad := "25:00"
	_, _, w := setupGin()
	req := httptest.NewRequest("PUT", "/scheduler/config", jsonBody(dto.UpdateReminderConfigRequest{HorarioEnvio: &bad}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.PUT("/scheduler/config", func(c *gin.Context) {
		setAuth(c)
		h.UpdateConfig(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != 23003 {
		t.Errorf("expected code 23003, got %d", resp.Code)
	}
	if resp.Details == "" {
		t.Error("expected details with offending field")
	}
}

func TestSchedulerHandler_Start_AlreadyRunning(t *testing.T) {
	h := NewSchedulerHandler(&mockSchedulerService{startErr: service.ErrSchedulerRunning}, &mockConfigService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/scheduler/start", nil)

	r := gin.New()
	r.POST("/scheduler/start", func(c *gin.Context) {
		setAuth(c)
		h.Start(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestSchedulerHandler_Sweep_ReportsStepErrors(t *testing.T) {
	mock := &mockSchedulerService{report: &dto.SweepReport{Forced: true, Errors: []string{"投递: smtp timeout"}}}
	h := NewSchedulerHandler(mock, &mockConfigService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/scheduler/sweep", nil)

	r := gin.New()
	r.POST("/scheduler/sweep", func(c *gin.Context) {
		setAuth(c)
		h.Sweep(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// Notification / Holiday Tests
// ═══════════════════════════════════════════════════════════

func TestNotificationHandler_MarkRead_NotFound(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{markErr: service.ErrNotificationNotFound})

	_, _, w := setupGin()
	req := httptest.NewRequest("PUT", "/notifications/n1/read", nil)

	r := gin.New()
	r.PUT("/notifications/:id/read", func(c *gin.Context) {
		setAuth(c)
		h.MarkRead(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 24001 {
		t.Errorf("expected code 24001, got %d", resp.Code)
	}
}

func TestNotificationHandler_MarkAllRead_Filter(t *testing.T) {
	mock := &mockNotificationService{markAll: 2}
	h := NewNotificationHandler(mock)

	_, _, w := setupGin()
	req := httptest.NewRequest("PUT", "/notifications/read-all", jsonBody(dto.MarkAllReadRequest{Urgency: model.UrgencyHigh}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.PUT("/notifications/read-all", func(c *gin.Context) {
		setAuth(c)
		h.MarkAllRead(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.lastMarkReq == nil || mock.lastMarkReq.Urgency != model.UrgencyHigh {
		t.Errorf("expected urgency filter high, got %+v", mock.lastMarkReq)
	}
	data := parseResponse(w).Data.(map[string]interface{})
	if data["affected"].(float64) != 2 {
		t.Errorf("expected 2 affected, got %v", data["affected"])
	}
}

func TestNotificationHandler_MarkAllRead_InvalidUrgency(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("PUT", "/notifications/read-all", jsonBody(map[string]string{"urgency": "critical"}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.PUT("/notifications/read-all", func(c *gin.Context) {
		setAuth(c)
		h.MarkAllRead(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHolidayHandler_Import_File(t *testing.T) {
	mock := &mockHolidayService{}
	h := NewHolidayHandler(mock)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, _ := mw.CreateFormFile("file", "feriados.ics")
	part.Write([]byte("BEGIN:VCALENDAR\nEND:VCALENDAR"))
	mw.Close()

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/holidays/import", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	r := gin.New()
	r.POST("/holidays/import", func(c *gin.Context) {
		setAuth(c)
		h.ImportHolidays(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}
	if string(mock.imported) != "BEGIN:VCALENDAR\nEND:VCALENDAR" {
		t.Errorf("unexpected file content %q", mock.imported)
	}
}

func TestHolidayHandler_Import_NoSource(t *testing.T) {
	h := NewHolidayHandler(&mockHolidayService{})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/holidays/import", jsonBody(map[string]string{}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/holidays/import", func(c *gin.Context) {
		setAuth(c)
		h.ImportHolidays(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 25000 {
		t.Errorf("expected code 25000, got %d", resp.Code)
	}
}

func TestHolidayHandler_Add_Exists(t *testing.T) {
	h := NewHolidayHandler(&mockHolidayService{err: service.ErrHolidayExists})

	_, _, w := setupGin()
	req := httptest.NewRequest("POST", "/holidays", jsonBody(dto.CreateHolidayRequest{Date: "2024-12-25", Name: "Natal"}))
	req.Header.Set("Content-Type", "application/json")

	r := gin.New()
	r.POST("/holidays", func(c *gin.Context) {
		setAuth(c)
		h.AddHoliday(c)
	})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

