package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"SOSRadar/pkg/config"
	"SOSRadar/pkg/database"
	"SOSRadar/pkg/engine"
	"SOSRadar/pkg/metrics"
	"SOSRadar/pkg/model"
	"SOSRadar/pkg/monitor"
	"SOSRadar/pkg/notifier"
)

const userHeader = "X-User-ID"

type testEnv struct {
	store   *database.Store
	manager *engine.Manager
	monitor *monitor.Monitor
	router  *gin.Engine
}

func newTestEnv(t *testing.T, limit gin.HandlerFunc) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := database.Open(config.DatabaseConfig{Driver: "sqlite"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.NewMetrics()
	dispatcher := engine.NewDispatcher(engine.DispatcherDeps{
		Contacts:      store.Contact(),
		Users:         store.User(),
		Recipients:    store.Recipient(),
		Notifications: store.Notification(),
		Notifier:      notifier.NewLogNotifier(zap.NewNop()),
		Metrics:       m,
	}, engine.DispatcherConfig{SendTimeout: time.Second, Concurrency: 2, MaxAttempts: 3})
	manager := engine.NewManager(engine.ManagerDeps{
		Alerts:        store.Alert(),
		Notifications: store.Notification(),
		Dispatcher:    dispatcher,
		Metrics:       m,
	})
	// 先于关闭数据库执行
	t.Cleanup(manager.Wait)

	mon := monitor.NewMonitor(zap.NewNop())
	server := NewServer(ServerOptions{Port: "0"}, m, zap.NewNop())
	handlers := NewHandlers(manager, store, mon, m, zap.NewNop())
	server.SetupRoutes(handlers, NewHeaderAuthenticator(userHeader, store.User()), limit)

	return &testEnv{store: store, manager: manager, monitor: mon, router: server.Router()}
}

func (e *testEnv) user(t *testing.T, email, role string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: "Test " + role, Role: role}
	require.NoError(t, e.store.User().Create(context.Background(), u))
	return u
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(userHeader, userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestReadinessReflectsComponents(t *testing.T) {
	env := newTestEnv(t, nil)
	env.monitor.RegisterCheck("database", func(context.Context) error { return nil })
	env.monitor.RegisterCheck("nats", func(context.Context) error { return errors.New("disconnected") })
	env.monitor.RunChecks(context.Background())

	w := env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "not_ready", body["status"])
	assert.Len(t, body["components"], 2)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/sos/active", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/sos/active", uuid.NewString(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/sos/active", "not-a-uuid", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSOSLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	employee := env.user(t, "emp@example.com", model.RoleEmployee)

	w := env.do(t, http.MethodGet, "/api/sos/active", employee.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	w = env.do(t, http.MethodPost, "/api/sos/start", employee.ID, map[string]float64{
		"latitude": 37.7749, "longitude": -122.4194,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	raw := decode[map[string]interface{}](t, w)
	assert.Contains(t, raw, "user_id")
	assert.Contains(t, raw, "started_at")
	assert.Contains(t, raw, "latitude")
	assert.NotContains(t, raw, "location")
	started := decode[model.SOSAlert](t, w)
	assert.Equal(t, model.AlertStatusActive, started.Status)
	require.NotNil(t, started.Latitude)
	assert.InDelta(t, 37.7749, *started.Latitude, 1e-9)

	w = env.do(t, http.MethodPost, "/api/sos/start", employee.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SOS already active", decode[map[string]string](t, w)["error"])

	w = env.do(t, http.MethodGet, "/api/sos/active", employee.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, started.ID, decode[model.SOSAlert](t, w).ID)

	w = env.do(t, http.MethodPost, "/api/sos/cancel", employee.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AlertStatusCancelled, decode[model.SOSAlert](t, w).Status)

	w = env.do(t, http.MethodPost, "/api/sos/cancel", employee.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No active SOS", decode[map[string]string](t, w)["error"])

	w = env.do(t, http.MethodGet, "/api/sos/history", employee.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]model.SOSAlert](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, model.AlertStatusCancelled, history[0].Status)
}

func TestStartWithoutBodyAndValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	employee := env.user(t, "emp@example.com", model.RoleEmployee)

	w := env.do(t, http.MethodPost, "/api/sos/start", employee.ID, map[string]float64{"latitude": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/sos/start", employee.ID, map[string]float64{"latitude": 91, "longitude": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/sos/start", employee.ID, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	alert := decode[model.SOSAlert](t, w)
	assert.Nil(t, alert.Latitude)
	assert.Nil(t, alert.Address)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	employee := env.user(t, "emp@example.com", model.RoleEmployee)

	for _, path := range []string{"/api/admin/stats", "/api/admin/sos-alerts", "/api/admin/users"} {
		w := env.do(t, http.MethodGet, path, employee.ID, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestAdminResolveAndList(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.user(t, "admin@example.com", model.RoleAdmin)
	employee := env.user(t, "emp@example.com", model.RoleEmployee)

	w := env.do(t, http.MethodPost, "/api/sos/start", employee.ID, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	alert := decode[model.SOSAlert](t, w)
	env.manager.Wait()

	w = env.do(t, http.MethodGet, "/api/admin/sos-alerts?status=active", admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]model.SOSAlert](t, w)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].User)
	assert.Equal(t, employee.ID, list[0].User.ID)

	w = env.do(t, http.MethodGet, "/api/admin/sos-alerts?status=bogus", admin.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/api/admin/sos-alerts?limit=-1", admin.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/sos-alerts/not-a-uuid/resolve", admin.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, "/api/admin/sos-alerts/"+uuid.NewString()+"/resolve", admin.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/sos-alerts/"+alert.ID+"/resolve", admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resolved := decode[model.SOSAlert](t, w)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, admin.ID, *resolved.ResolvedBy)

	// 已处理的告警不能再次处理
	w = env.do(t, http.MethodPost, "/api/admin/sos-alerts/"+alert.ID+"/resolve", admin.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/sos-alerts/"+alert.ID, admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AlertStatusResolved, decode[model.SOSAlert](t, w).Status)

	w = env.do(t, http.MethodGet, "/api/admin/stats", admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]float64](t, w)
	assert.Equal(t, float64(2), stats["total_users"])
	assert.Equal(t, float64(0), stats["active_sos"])
	assert.Equal(t, float64(1), stats["total_sos"])
	assert.Contains(t, stats, "recent_sos")
	assert.Contains(t, stats, "emergency_contacts")
	assert.Equal(t, float64(0), stats["pending_deliveries"])
}

func TestAdminEmergencyContactsCRUD(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.user(t, "admin@example.com", model.RoleAdmin)

	w := env.do(t, http.MethodPost, "/api/admin/emergency-contacts", admin.ID, map[string]string{"name": "Desk"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/emergency-contacts", admin.ID, map[string]string{
		"name": "Security Desk", "role": "security", "email": "desk@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[model.EmergencyContact](t, w)
	assert.True(t, created.IsActive)

	w = env.do(t, http.MethodPut, "/api/admin/emergency-contacts/"+created.ID, admin.ID, map[string]bool{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[model.EmergencyContact](t, w).IsActive)

	active, err := env.store.Contact().ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	w = env.do(t, http.MethodGet, "/api/admin/emergency-contacts", admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.EmergencyContact](t, w), 1)

	w = env.do(t, http.MethodDelete, "/api/admin/emergency-contacts/"+created.ID, admin.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/api/admin/emergency-contacts/"+created.ID, admin.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.user(t, "admin@example.com", model.RoleAdmin)
	employee := env.user(t, "emp@example.com", model.RoleEmployee)

	w := env.do(t, http.MethodGet, "/api/admin/users", admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.User](t, w), 2)

	w = env.do(t, http.MethodPut, "/api/admin/users/"+employee.ID, admin.ID, map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/admin/users/"+employee.ID, admin.ID, map[string]string{"email": "admin@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPut, "/api/admin/users/"+employee.ID, admin.ID, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.RoleAdmin, decode[model.User](t, w).Role)

	w = env.do(t, http.MethodGet, "/api/admin/users/"+uuid.NewString(), admin.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/admin/users/"+employee.ID, admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User deleted successfully", decode[map[string]string](t, w)["message"])
}

func TestProfileAndPersonalContacts(t *testing.T) {
	env := newTestEnv(t, nil)
	employee := env.user(t, "emp@example.com", model.RoleEmployee)
	other := env.user(t, "other@example.com", model.RoleEmployee)

	w := env.do(t, http.MethodPut, "/api/profile", employee.ID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No fields to update", decode[map[string]string](t, w)["error"])

	w = env.do(t, http.MethodPut, "/api/profile", employee.ID, map[string]string{"name": "Alice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice", decode[model.User](t, w).Name)

	w = env.do(t, http.MethodPost, "/api/profile/emergency-contacts", employee.ID, map[string]interface{}{"phone": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/profile/emergency-contacts", employee.ID, map[string]interface{}{
		"name": "Mom", "is_primary": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	mom := decode[model.UserEmergencyContact](t, w)

	w = env.do(t, http.MethodPost, "/api/profile/emergency-contacts", employee.ID, map[string]interface{}{
		"name": "Dad", "is_primary": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	dad := decode[model.UserEmergencyContact](t, w)

	w = env.do(t, http.MethodGet, "/api/profile/emergency-contacts", employee.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	contacts := decode[[]model.UserEmergencyContact](t, w)
	require.Len(t, contacts, 2)
	assert.Equal(t, dad.ID, contacts[0].ID)
	assert.True(t, contacts[0].IsPrimary)
	assert.False(t, contacts[1].IsPrimary)

	w = env.do(t, http.MethodPut, "/api/profile/emergency-contacts/"+mom.ID, other.ID, map[string]string{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/profile/emergency-contacts/"+mom.ID, employee.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotificationsOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	employee := env.user(t, "emp@example.com", model.RoleEmployee)
	other := env.user(t, "other@example.com", model.RoleEmployee)

	w := env.do(t, http.MethodPost, "/api/sos/start", employee.ID, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	env.manager.Wait()

	w = env.do(t, http.MethodGet, "/api/notifications?unread=true", employee.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]model.Notification](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "SOS Activated", list[0].Title)

	w = env.do(t, http.MethodPost, "/api/notifications/"+list[0].ID+"/read", other.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/notifications/"+list[0].ID+"/read", employee.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/notifications?unread=true", employee.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]model.Notification](t, w))
}

func TestRateLimit(t *testing.T) {
	limit, err := RateLimit("2-M", memory.NewStore())
	require.NoError(t, err)
	env := newTestEnv(t, limit)
	employee := env.user(t, "emp@example.com", model.RoleEmployee)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/api/sos/active", employee.ID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := env.do(t, http.MethodGet, "/api/sos/active", employee.ID, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitConfig(t *testing.T) {
	_, err := RateLimit("fast", memory.NewStore())
	assert.Error(t, err)

	store, err := NewLimiterStore("memory", nil)
	require.NoError(t, err)
	assert.NotNil(t, store)

	_, err = NewLimiterStore("redis", nil)
	assert.Error(t, err)
	_, err = NewLimiterStore("etcd", nil)
	assert.Error(t, err)
}

type failingLookup struct{}

func (failingLookup) GetByID(context.Context, string) (*model.User, error) {
	return nil, errors.New("connection refused")
}

func TestAuthStoreFailureIsUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", AuthRequired(NewHeaderAuthenticator(userHeader, failingLookup{}), zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(userHeader, uuid.NewString())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type notFoundLifecycle struct{}

func (notFoundLifecycle) Start(context.Context, string, engine.Location) (*model.SOSAlert, error) {
	return nil, database.ErrNotFound
}

func (notFoundLifecycle) Cancel(context.Context, string) (*model.SOSAlert, error) {
	return nil, database.ErrNotFound
}

func (notFoundLifecycle) Resolve(context.Context, string, string) (*model.SOSAlert, error) {
	return nil, database.ErrNotFound
}

func (notFoundLifecycle) GetActive(context.Context, string) (*model.SOSAlert, error) {
	return nil, database.ErrNotFound
}

func TestStartNotFoundHasNoCancelMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handlers := NewHandlers(notFoundLifecycle{}, nil, nil, nil, zap.NewNop())
	router := gin.New()
	withUser := func(c *gin.Context) { c.Set("user_id", uuid.NewString()) }
	router.POST("/start", withUser, handlers.StartSOS)
	router.POST("/cancel", withUser, handlers.CancelSOS)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/start", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "", decode[map[string]string](t, w)["error"])

	// 取消没有进行中的告警时才提示 No active SOS
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cancel", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No active SOS", decode[map[string]string](t, w)["error"])
}
