package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"meal-subscription/internal/storage"
)

// MenuSource supplies the weekly menu when none is persisted.
type MenuSource interface {
	WeeklyMenu(ctx context.Context) ([]DailyMenu, error)
}

// ImpactEvent describes one accrual applied to CommunityImpact.
type ImpactEvent struct {
	UserID             string
	Kind               string // "donation" or "health_streak"
	MealsDonated       int
	LoyaltyPoints      int
	HealthStreakPoints int
	At                 time.Time
}

// ImpactRecorder receives every successful accrual.
type ImpactRecorder interface {
	RecordImpact(ctx context.Context, ev ImpactEvent) error
}

// DeliveryListener is called with a copy of the tracking record after each change.
type DeliveryListener func(DeliveryTracking)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithScheduler replaces the wall-clock scheduler used for delivery simulation.
func WithScheduler(sched Scheduler) Option {
	return func(s *Store) { s.sched = sched }
}

// WithMenuSource sets where the default weekly menu comes from.
func WithMenuSource(src MenuSource) Option {
	return func(s *Store) { s.menuSource = src }
}

// WithImpactRecorder sets the ledger that receives accruals.
func WithImpactRecorder(r ImpactRecorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithDeliveryListener adds a listener for delivery updates.
func WithDeliveryListener(fn DeliveryListener) Option {
	return func(s *Store) { s.listeners = append(s.listeners, fn) }
}

// WithOwner tags logs and impact events with a user id.
func WithOwner(userID string) Option {
	return func(s *Store) { s.owner = userID }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store owns subscription, menu, delivery and impact state for one user.
// It is safe for concurrent use.
type Store struct {
	kv         storage.Store
	sched      Scheduler
	logger     *slog.Logger
	menuSource MenuSource
	recorder   ImpactRecorder
	listeners  []DeliveryListener
	owner      string
	now        func() time.Time
	newID      func() string

	// writeMu serialises mutate-then-persist so snapshots reach storage in order.
	writeMu sync.Mutex
	// notifyMu orders listener calls; a snapshot from a replaced session is dropped.
	notifyMu sync.Mutex

	mu          sync.RWMutex
	initialized bool
	closed      bool
	sub         Subscription
	menu        []DailyMenu
	impact      CommunityImpact
	delivery    *DeliveryTracking
	epoch       uint64
	timers      []Timer
}

// NewStore creates a Store backed by kv. Call Init before reading state.
func NewStore(kv storage.Store, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		sched: WallScheduler(),
		now:   time.Now,
		newID: func() string { return "sub_" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.owner != "" {
		s.logger = s.logger.With("user_id", s.owner)
	}
	return s
}

// Init loads persisted state, populating and persisting defaults for missing
// or unreadable keys. It runs once; later calls are no-ops.
func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	done := s.initialized
	s.mu.RUnlock()
	if done {
		return nil
	}

	sub := loadKey(ctx, s, KeySubscription, validateSubscription, func(context.Context) Subscription {
		return DefaultSubscription()
	})
	menu := loadKey(ctx, s, KeyWeeklyMenu, validateMenu, s.defaultMenu)
	impact := loadKey(ctx, s, KeyCommunityImpact, validateImpact, func(context.Context) CommunityImpact {
		return DefaultCommunityImpact()
	})

	s.mu.Lock()
	s.sub = sub
	s.menu = menu
	s.impact = impact
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("subscription state loaded",
		"subscription_id", sub.ID,
		"menu_days", len(menu),
		"meals_donated", impact.MealsDonated,
	)
	return nil
}

func loadKey[T any](ctx context.Context, s *Store, key string, validate func(T) error, fallback func(context.Context) T) T {
	raw, err := s.kv.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			s.logger.Warn("stored value unreadable, using default", "key", key, "error", err)
		} else if err := validate(v); err != nil {
			s.logger.Warn("stored value invalid, using default", "key", key, "error", err)
		} else {
			return v
		}
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Debug("no stored value, using default", "key", key)
	default:
		s.logger.Warn("failed to read stored value, using default", "key", key,
			"error", &PersistenceError{Op: "read", Key: key, Err: err})
	}

	v := fallback(ctx)
	if err := s.persist(ctx, key, v); err != nil {
		s.logger.Warn("failed to persist default", "key", key, "error", err)
	}
	return v
}

func (s *Store) defaultMenu(ctx context.Context) []DailyMenu {
	if s.menuSource != nil {
		menu, err := s.menuSource.WeeklyMenu(ctx)
		if err == nil {
			err = validateMenu(menu)
		}
		if err == nil {
			return menu
		}
		s.logger.Warn("menu source unavailable, using mock menu", "error", err)
	}
	return DefaultWeeklyMenu()
}

func (s *Store) persist(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &PersistenceError{Op: "write", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return &PersistenceError{Op: "write", Key: key, Err: err}
	}
	return nil
}

// Initialized reports whether Init has completed.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Subscription returns the current subscription.
func (s *Store) Subscription() Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sub
}

// WeeklyMenu returns a copy of the weekly menu, ordered as stored.
func (s *Store) WeeklyMenu() []DailyMenu {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.menu)
}

// MenuFor returns the menu for date, if one exists.
func (s *Store) MenuFor(date civil.Date) (DailyMenu, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.menu {
		if m.Date == date {
			return m, true
		}
	}
	return DailyMenu{}, false
}

// CommunityImpact returns the current counters.
func (s *Store) CommunityImpact() CommunityImpact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.impact
}

// PauseSubscription records skipped dates. With donate set, each distinct date
// adds one donated meal and ten loyalty points, and the counters are persisted.
// Menu entries are not touched.
func (s *Store) PauseSubscription(ctx context.Context, dates []civil.Date, donate bool) (CommunityImpact, error) {
	if len(dates) == 0 {
		return CommunityImpact{}, invalid("dates", "must not be empty")
	}
	distinct := make(map[civil.Date]struct{}, len(dates))
	for _, d := range dates {
		if !d.IsValid() {
			return CommunityImpact{}, invalid("dates", "%s is not a calendar date", d)
		}
		distinct[d] = struct{}{}
	}
	n := len(distinct)

	s.mu.RLock()
	sub, ready := s.sub, s.initialized
	s.mu.RUnlock()
	if !ready {
		return CommunityImpact{}, ErrNotInitialized
	}
	for d := range distinct {
		if !sub.Covers(d) {
			s.logger.Warn("pause date outside subscription window",
				"date", d.String(), "start", sub.StartDate.String(), "end", sub.EndDate.String())
		}
	}

	if !donate {
		s.logger.Info("subscription paused", "days", n, "donate", false)
		return s.CommunityImpact(), nil
	}

	ev := ImpactEvent{Kind: "donation", MealsDonated: n, LoyaltyPoints: 10 * n}
	impact, err := s.accrue(ctx, ev)
	if err != nil {
		return impact, err
	}
	s.logger.Info("subscription paused", "days", n, "donate", true,
		"meals_donated", impact.MealsDonated, "loyalty_points", impact.LoyaltyPoints)
	return impact, nil
}

// UpdateHealthStreak adds points to the health streak and persists the counters.
func (s *Store) UpdateHealthStreak(ctx context.Context, points int) (CommunityImpact, error) {
	if points <= 0 {
		return CommunityImpact{}, invalid("points", "must be positive, got %d", points)
	}
	impact, err := s.accrue(ctx, ImpactEvent{Kind: "health_streak", HealthStreakPoints: points})
	if err != nil {
		return impact, err
	}
	s.logger.Info("health streak updated", "added", points, "total", impact.HealthStreakPoints)
	return impact, nil
}

// accrue applies ev to the counters from the latest in-memory value, then persists.
// The in-memory change stays even when the write fails.
func (s *Store) accrue(ctx context.Context, ev ImpactEvent) (CommunityImpact, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return CommunityImpact{}, ErrNotInitialized
	}
	s.impact.MealsDonated += ev.MealsDonated
	s.impact.LoyaltyPoints += ev.LoyaltyPoints
	s.impact.HealthStreakPoints += ev.HealthStreakPoints
	impact := s.impact
	s.mu.Unlock()

	if err := s.persist(ctx, KeyCommunityImpact, impact); err != nil {
		return impact, err
	}

	if s.recorder != nil {
		ev.UserID = s.owner
		ev.At = s.now().UTC()
		if err := s.recorder.RecordImpact(ctx, ev); err != nil {
			s.logger.Warn("failed to record impact event", "kind", ev.Kind, "error", err)
		}
	}
	return impact, nil
}

// Close cancels pending delivery advances. State stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	s.epoch++
	s.closed = true
}

func validateImpact(c CommunityImpact) error {
	if c.MealsDonated < 0 || c.LoyaltyPoints < 0 || c.HealthStreakPoints < 0 {
		return invalid("communityImpact", "counters must be non-negative")
	}
	return nil
}

func validateMenu(menu []DailyMenu) error {
	seen := make(map[civil.Date]struct{}, len(menu))
	for _, m := range menu {
		if !m.Date.IsValid() {
			return invalid("weeklyMenu", "invalid date %s", m.Date)
		}
		if _, dup := seen[m.Date]; dup {
			return invalid("weeklyMenu", "duplicate date %s", m.Date)
		}
		seen[m.Date] = struct{}{}
		n := m.NutritionInfo
		if n.Calories < 0 || n.Protein < 0 || n.Carbs < 0 || n.Fat < 0 {
			return invalid("weeklyMenu", "negative nutrition on %s", m.Date)
		}
	}
	return nil
}

func validateSubscription(sub Subscription) error {
	switch {
	case sub.ID == "":
		return invalid("id", "must not be empty")
	case !sub.PlanType.Valid():
		return invalid("planType", "unknown plan %q", sub.PlanType)
	case !sub.PortionSize.Valid():
		return invalid("portionSize", "unknown portion %q", sub.PortionSize)
	case sub.MealsPerDay <= 0:
		return invalid("mealsPerDay", "must be positive, got %d", sub.MealsPerDay)
	case sub.Price <= 0:
		return invalid("price", "must be positive")
	case !sub.StartDate.IsValid() || !sub.EndDate.IsValid():
		return invalid("dates", "start and end must be calendar dates")
	case sub.StartDate.After(sub.EndDate):
		return invalid("dates", "start %s is after end %s", sub.StartDate, sub.EndDate)
	}
	return validateDeliveryTime(sub.DeliveryTime)
}

func validateDeliveryTime(v string) error {
	if _, err := time.Parse("15:04", v); err != nil {
		return invalid("deliveryTime", "%q is not HH:MM", v)
	}
	return nil
}
