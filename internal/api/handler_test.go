package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-subscription/internal/database"
	"meal-subscription/internal/metrics"
	"meal-subscription/internal/storage"
	"meal-subscription/internal/subscription"
)

type testEnv struct {
	router   *gin.Engine
	registry *subscription.Registry
}

func newTestEnv(t *testing.T, withMetrics bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	kv, err := storage.NewFileStore(filepath.Join(dir, "state"))
	require.NoError(t, err)

	var opts []subscription.Option
	var ms *metrics.Store
	if withMetrics {
		db, err := database.NewDB(filepath.Join(dir, "ledger.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		ms = metrics.NewStore(db.SQL)
		opts = append(opts, subscription.WithImpactRecorder(ms))
	}

	registry := subscription.NewRegistry(kv, logger, opts...)
	t.Cleanup(registry.Close)

	h := NewHandler(registry, nil, ms, dir, logger)
	return &testEnv{router: NewRouter(h, RouterConfig{}), registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
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

func TestSubscriptionRoutes(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/users/alice/subscription", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sub := decode[subscription.Subscription](t, w)
	assert.Equal(t, "sub_001", sub.ID)
	assert.Equal(t, subscription.PlanWeekly, sub.PlanType)

	w = env.do(t, http.MethodPut, "/api/users/alice/subscription/plan", map[string]any{"portionSize": "large"})
	require.Equal(t, http.StatusOK, w.Code)
	sub = decode[subscription.Subscription](t, w)
	assert.Equal(t, subscription.PortionLarge, sub.PortionSize)
	assert.Equal(t, 1330.0, sub.Price)

	w = env.do(t, http.MethodPut, "/api/users/alice/subscription/auto-renew", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/users/alice/subscription/auto-renew", map[string]any{"autoRenew": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[subscription.Subscription](t, w).AutoRenew)

	w = env.do(t, http.MethodPost, "/api/users/alice/subscription/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[subscription.Subscription](t, w).IsActive)

	w = env.do(t, http.MethodPut, "/api/users/alice/subscription/plan", map[string]any{"mealsPerDay": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Other users are unaffected.
	w = env.do(t, http.MethodGet, "/api/users/bob/subscription", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[subscription.Subscription](t, w).IsActive)
}

func TestOnboarding(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/api/users/carol/onboarding", map[string]any{
		"planType":     "daily",
		"mealsPerDay":  1,
		"portionSize":  "small",
		"deliveryTime": "12:00",
		"startDate":    "2024-05-01",
		"vendorId":     "vendor_009",
		"vendorName":   "Soup Co",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := decode[subscription.Subscription](t, w)
	assert.Equal(t, "2024-05-01", sub.StartDate.String())
	assert.Equal(t, "2024-05-01", sub.EndDate.String())
	assert.Equal(t, 60.0, sub.Price)

	w = env.do(t, http.MethodPost, "/api/users/carol/onboarding", map[string]any{"planType": "yearly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/users/carol/onboarding", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMenuRoute(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/users/alice/menu", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]subscription.DailyMenu](t, w), len(subscription.DefaultWeeklyMenu()))

	w = env.do(t, http.MethodGet, "/api/users/alice/menu?date=2024-01-20", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-01-20", decode[subscription.DailyMenu](t, w).Date.String())

	w = env.do(t, http.MethodGet, "/api/users/alice/menu?date=2030-01-01", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/users/alice/menu?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImpactRoutes(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/api/users/alice/pause", map[string]any{
		"dates":  []string{"2024-02-01", "2024-02-02", "2024-02-01"},
		"donate": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	impact := decode[subscription.CommunityImpact](t, w)
	assert.Equal(t, 2, impact.MealsDonated)
	assert.Equal(t, 20, impact.LoyaltyPoints)

	w = env.do(t, http.MethodPost, "/api/users/alice/pause", map[string]any{"dates": []string{}, "donate": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/users/alice/pause", map[string]any{"dates": []string{"02/01/2024"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/users/alice/health-streak", map[string]any{"points": 15})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 15, decode[subscription.CommunityImpact](t, w).HealthStreakPoints)

	w = env.do(t, http.MethodPost, "/api/users/alice/health-streak", map[string]any{"points": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/users/alice/coach/follow", map[string]any{"action": "hydrate"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, decode[subscription.CommunityImpact](t, w).HealthStreakPoints)

	w = env.do(t, http.MethodPost, "/api/users/alice/coach/follow", map[string]any{"action": "nap"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/users/alice/impact", nil)
	require.Equal(t, http.StatusOK, w.Code)
	impact = decode[subscription.CommunityImpact](t, w)
	assert.Equal(t, subscription.CommunityImpact{MealsDonated: 2, LoyaltyPoints: 20, HealthStreakPoints: 20}, impact)

	w = env.do(t, http.MethodGet, "/api/vendor/impact?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[struct {
		Days   int                   `json:"days"`
		Impact []metrics.DailyImpact `json:"impact"`
	}](t, w)
	require.NotEmpty(t, report.Impact)
	var meals, events int
	for _, d := range report.Impact {
		meals += d.MealsDonated
		events += d.Events
	}
	assert.Equal(t, 2, meals)
	assert.Equal(t, 3, events)

	w = env.do(t, http.MethodGet, "/api/vendor/impact?days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVendorImpactWithoutLedger(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/api/vendor/impact", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDeliveryRoutes(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/users/alice/delivery", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/users/alice/delivery", map[string]any{"orderId": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/users/alice/delivery", map[string]any{"orderId": "order_7"})
	require.Equal(t, http.StatusAccepted, w.Code)
	d := decode[subscription.DeliveryTracking](t, w)
	assert.Equal(t, "order_7", d.OrderID)
	assert.Equal(t, subscription.StatusPreparing, d.Status)

	w = env.do(t, http.MethodGet, "/api/users/alice/delivery", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order_7", decode[subscription.DeliveryTracking](t, w).OrderID)
}

func TestCoachRoute(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/users/alice/coach?tips=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "tip")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestUnknownUserIDIsRejected(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/api/users/%20/subscription", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
