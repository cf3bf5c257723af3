package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"meal-subscription/internal/coach"
	"meal-subscription/internal/metrics"
	"meal-subscription/internal/subscription"
)

// Handler serves the subscription API.
type Handler struct {
	registry     *subscription.Registry
	coach        *coach.Coach
	metricsStore *metrics.Store
	dataDir      string
	logger       *slog.Logger
}

// NewHandler creates a Handler. advisor and metricsStore may be nil.
func NewHandler(registry *subscription.Registry, advisor *coach.Coach, metricsStore *metrics.Store, dataDir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if advisor == nil {
		advisor = coach.New(nil, nil, logger)
	}
	return &Handler{
		registry:     registry,
		coach:        advisor,
		metricsStore: metricsStore,
		dataDir:      dataDir,
		logger:       logger,
	}
}

type pauseRequest struct {
	Dates  []string `json:"dates"`
	Donate bool     `json:"donate"`
}

type healthStreakRequest struct {
	Points int `json:"points"`
}

type deliveryRequest struct {
	OrderID string `json:"orderId"`
}

type autoRenewRequest struct {
	AutoRenew *bool `json:"autoRenew" binding:"required"`
}

type followRequest struct {
	Action string `json:"action" binding:"required"`
}

type coachResponse struct {
	coach.Report
	Tip string `json:"tip,omitempty"`
}

// store resolves the user's store or writes an error response.
func (h *Handler) store(c *gin.Context) (*subscription.Store, bool) {
	s, err := h.registry.Get(c.Request.Context(), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return false
	}
	return true
}

// respondError maps domain errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var ve *subscription.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, subscription.ErrNotInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case subscription.IsPersistence(err):
		h.logger.Error("persistence failure", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state changed but could not be saved"})
	case errors.Is(err, subscription.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) GetSubscription(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Subscription())
}

func (h *Handler) CompleteOnboarding(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	var req subscription.OnboardingRequest
	if !h.bind(c, &req) {
		return
	}
	sub, err := s.CompleteOnboarding(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) ChangePlan(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	var req subscription.PlanChange
	if !h.bind(c, &req) {
		return
	}
	sub, err := s.ChangePlan(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) SetAutoRenew(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	var req autoRenewRequest
	if !h.bind(c, &req) {
		return
	}
	sub, err := s.SetAutoRenew(c.Request.Context(), *req.AutoRenew)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) Deactivate(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	sub, err := s.Deactivate(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// GetMenu returns the weekly menu, or a single day with ?date=YYYY-MM-DD.
func (h *Handler) GetMenu(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	raw := c.Query("date")
	if raw == "" {
		c.JSON(http.StatusOK, s.WeeklyMenu())
		return
	}
	date, err := civil.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	m, found := s.MenuFor(date)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no menu for " + date.String()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) Pause(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	var req pauseRequest
	if !h.bind(c, &req) {
		return
	}
	dates, err := subscription.ParseDates(req.Dates)
	if err != nil {
		h.respondError(c, err)
		return
	}
	impact, err := s.PauseSubscription(c.Request.Context(), dates, req.Donate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, impact)
}

func (h *Handler) GetDelivery(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	d := s.CurrentDelivery()
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no delivery in progress"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) StartDelivery(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	var req deliveryRequest
	if !h.bind(c, &req) {
		return
	}
	d, err := s.StartDeliveryTracking(req.OrderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, d)
}

func (h *Handler) GetImpact(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.CommunityImpact())
}

func (h *Handler) UpdateHealthStreak(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	var req healthStreakRequest
	if !h.bind(c, &req) {
		return
	}
	impact, err := s.UpdateHealthStreak(c.Request.Context(), req.Points)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, impact)
}

// GetCoach analyses the weekly menu. ?tips=true adds a generated tip when available.
func (h *Handler) GetCoach(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	menu := s.WeeklyMenu()
	resp := coachResponse{Report: coach.Analyze(menu)}
	if c.Query("tips") == "true" && h.coach.TipsEnabled() {
		tip, err := h.coach.Tips(c.Request.Context(), menu)
		if err != nil {
			h.logger.Warn("coach tip unavailable", "error", err)
		}
		resp.Tip = tip
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) FollowCoach(c *gin.Context) {
	s, ok := h.store(c)
	if !ok {
		return
	}
	var req followRequest
	if !h.bind(c, &req) {
		return
	}
	impact, err := h.coach.Follow(c.Request.Context(), s, req.Action)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, impact)
}

// GetVendorImpact returns daily impact totals for ?days=N (default 7).
func (h *Handler) GetVendorImpact(c *gin.Context) {
	if h.metricsStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics are not enabled"})
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 || days > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
		return
	}
	report, err := h.metricsStore.GetDailyImpact(c.Request.Context(), days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if report == nil {
		report = []metrics.DailyImpact{}
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "impact": report})
}

// Health reports process stats. A degraded data directory still answers 200.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.GetSysHealth(h.dataDir))
}
