package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestQuotePrice(t *testing.T) {
	tests := []struct {
		name    string
		plan    PlanType
		meals   int
		portion PortionSize
		want    float64
	}{
		{"daily small", PlanDaily, 1, PortionSmall, 60},
		{"weekly medium", PlanWeekly, 2, PortionMedium, 1064},
		{"monthly large", PlanMonthly, 1, PortionLarge, 2700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuotePrice(tt.plan, tt.meals, tt.portion)
			if err != nil {
				t.Fatalf("QuotePrice failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %.2f, got %.2f", tt.want, got)
			}
		})
	}

	if _, err := QuotePrice("yearly", 1, PortionSmall); !IsValidation(err) {
		t.Errorf("Expected ValidationError for unknown plan, got %v", err)
	}
	if _, err := QuotePrice(PlanDaily, 0, PortionSmall); !IsValidation(err) {
		t.Errorf("Expected ValidationError for zero meals, got %v", err)
	}
}

func TestPeriodEnd(t *testing.T) {
	tests := []struct {
		plan  PlanType
		start civil.Date
		want  civil.Date
	}{
		{PlanDaily, civil.Date{Year: 2024, Month: 3, Day: 5}, civil.Date{Year: 2024, Month: 3, Day: 5}},
		{PlanWeekly, civil.Date{Year: 2024, Month: 2, Day: 26}, civil.Date{Year: 2024, Month: 3, Day: 3}},
		{PlanMonthly, civil.Date{Year: 2024, Month: 1, Day: 15}, civil.Date{Year: 2024, Month: 2, Day: 14}},
		{PlanMonthly, civil.Date{Year: 2024, Month: 1, Day: 31}, civil.Date{Year: 2024, Month: 2, Day: 28}},
		{PlanMonthly, civil.Date{Year: 2024, Month: 12, Day: 10}, civil.Date{Year: 2025, Month: 1, Day: 9}},
	}
	for _, tt := range tests {
		if got := periodEnd(tt.plan, tt.start); got != tt.want {
			t.Errorf("periodEnd(%s, %s) = %s, want %s", tt.plan, tt.start, got, tt.want)
		}
	}
}

func TestCompleteOnboarding(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }

	t.Run("CreatesActiveSubscription", func(t *testing.T) {
		kv := newMemKV()
		s := newTestStore(t, kv, WithClock(clock))
		mustInit(t, s)

		sub, err := s.CompleteOnboarding(ctx, OnboardingRequest{
			PlanType:     PlanWeekly,
			MealsPerDay:  2,
			PortionSize:  PortionMedium,
			DeliveryTime: "13:00",
			AutoRenew:    true,
			VendorID:     "vendor_002",
			VendorName:   "Green Bowl",
		})
		if err != nil {
			t.Fatalf("CompleteOnboarding failed: %v", err)
		}
		if sub.ID == "" || sub.ID == "sub_001" {
			t.Errorf("Expected a fresh id, got %q", sub.ID)
		}
		if sub.StartDate != (civil.Date{Year: 2024, Month: 3, Day: 10}) || sub.EndDate != (civil.Date{Year: 2024, Month: 3, Day: 16}) {
			t.Errorf("Unexpected window %s..%s", sub.StartDate, sub.EndDate)
		}
		if !sub.IsActive || sub.Price != 1064 {
			t.Errorf("Expected active subscription priced 1064, got %+v", sub)
		}

		raw, _ := kv.raw(KeySubscription)
		var persisted Subscription
		if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
			t.Fatalf("Persisted subscription unreadable: %v", err)
		}
		if persisted != sub {
			t.Errorf("Expected persisted %+v, got %+v", sub, persisted)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		s := newTestStore(t, newMemKV(), WithClock(clock))
		mustInit(t, s)

		bad := []OnboardingRequest{
			{PlanType: PlanWeekly, MealsPerDay: 1, PortionSize: PortionSmall, DeliveryTime: "12:00"},
			{PlanType: "yearly", MealsPerDay: 1, PortionSize: PortionSmall, DeliveryTime: "12:00", VendorID: "v"},
			{PlanType: PlanDaily, MealsPerDay: 1, PortionSize: PortionSmall, DeliveryTime: "noon", VendorID: "v"},
		}
		for _, req := range bad {
			if _, err := s.CompleteOnboarding(ctx, req); !IsValidation(err) {
				t.Errorf("Expected ValidationError for %+v, got %v", req, err)
			}
		}
		if got := s.Subscription(); got != DefaultSubscription() {
			t.Errorf("Expected subscription untouched, got %+v", got)
		}
	})
}

func TestChangePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("RequotesPrice", func(t *testing.T) {
		s := newTestStore(t, newMemKV())
		mustInit(t, s)

		flexible := false
		sub, err := s.ChangePlan(ctx, PlanChange{PortionSize: PortionLarge, IsFlexible: &flexible})
		if err != nil {
			t.Fatalf("ChangePlan failed: %v", err)
		}
		if sub.PortionSize != PortionLarge || sub.IsFlexible || sub.MealsPerDay != 2 {
			t.Errorf("Unexpected plan: %+v", sub)
		}
		if sub.Price != 1330 {
			t.Errorf("Expected price 1330, got %.2f", sub.Price)
		}
	})

	t.Run("InactiveIsRejected", func(t *testing.T) {
		s := newTestStore(t, newMemKV())
		mustInit(t, s)
		if _, err := s.Deactivate(ctx); err != nil {
			t.Fatalf("Deactivate failed: %v", err)
		}
		if _, err := s.ChangePlan(ctx, PlanChange{MealsPerDay: 3}); !IsValidation(err) {
			t.Errorf("Expected ValidationError, got %v", err)
		}
	})

	t.Run("PersistenceFailure", func(t *testing.T) {
		kv := newMemKV()
		s := newTestStore(t, kv)
		mustInit(t, s)
		kv.setErr[KeySubscription] = errBoom

		sub, err := s.ChangePlan(ctx, PlanChange{MealsPerDay: 3})
		if !IsPersistence(err) {
			t.Fatalf("Expected PersistenceError, got %v", err)
		}
		if sub.MealsPerDay != 3 || s.Subscription().MealsPerDay != 3 {
			t.Errorf("Expected in-memory change to remain, got %+v", s.Subscription())
		}
	})

	t.Run("NotInitialized", func(t *testing.T) {
		s := newTestStore(t, newMemKV())
		if _, err := s.ChangePlan(ctx, PlanChange{MealsPerDay: 3}); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("Expected ErrNotInitialized, got %v", err)
		}
	})
}

func TestAutoRenewAndDeactivate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemKV())
	mustInit(t, s)

	sub, err := s.SetAutoRenew(ctx, false)
	if err != nil || sub.AutoRenew {
		t.Fatalf("Expected auto-renew off, got %+v (%v)", sub, err)
	}
	sub, err = s.Deactivate(ctx)
	if err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if sub.IsActive || sub.ID != "sub_001" {
		t.Errorf("Expected sub_001 inactive, got %+v", sub)
	}
}

func TestRenew(t *testing.T) {
	ctx := context.Background()
	feb20 := civil.Date{Year: 2024, Month: 2, Day: 20}

	t.Run("RollsWindowForward", func(t *testing.T) {
		s := newTestStore(t, newMemKV())
		mustInit(t, s)

		sub, changed, err := s.Renew(ctx, feb20)
		if err != nil || !changed {
			t.Fatalf("Expected renewal, got changed=%v err=%v", changed, err)
		}
		if sub.StartDate != (civil.Date{Year: 2024, Month: 2, Day: 16}) || sub.EndDate != (civil.Date{Year: 2024, Month: 2, Day: 22}) {
			t.Errorf("Unexpected window %s..%s", sub.StartDate, sub.EndDate)
		}
		if !sub.Covers(feb20) || !sub.IsActive {
			t.Errorf("Expected active window covering %s, got %+v", feb20, sub)
		}
	})

	t.Run("DeactivatesWithoutAutoRenew", func(t *testing.T) {
		s := newTestStore(t, newMemKV())
		mustInit(t, s)
		s.SetAutoRenew(ctx, false)

		sub, changed, err := s.Renew(ctx, feb20)
		if err != nil || !changed {
			t.Fatalf("Expected change, got changed=%v err=%v", changed, err)
		}
		if sub.IsActive {
			t.Error("Expected subscription to be inactive")
		}
	})

	t.Run("NoopWithinWindow", func(t *testing.T) {
		kv := newMemKV()
		s := newTestStore(t, kv)
		mustInit(t, s)
		before := kv.writes(KeySubscription)

		_, changed, err := s.Renew(ctx, civil.Date{Year: 2024, Month: 2, Day: 15})
		if err != nil || changed {
			t.Errorf("Expected no change, got changed=%v err=%v", changed, err)
		}
		if kv.writes(KeySubscription) != before {
			t.Error("Expected no write")
		}
	})
}
