package subscription

import (
	"context"
	"strings"

	"cloud.google.com/go/civil"
)

// OnboardingRequest is what the onboarding flow collects before the first subscription.
type OnboardingRequest struct {
	PlanType     PlanType    `json:"planType"`
	MealsPerDay  int         `json:"mealsPerDay"`
	PortionSize  PortionSize `json:"portionSize"`
	DeliveryTime string      `json:"deliveryTime"`
	IsFlexible   bool        `json:"isFlexible"`
	AutoRenew    bool        `json:"autoRenew"`
	StartDate    civil.Date  `json:"startDate"`
	VendorID     string      `json:"vendorId"`
	VendorName   string      `json:"vendorName"`
}

// PlanChange lists plan fields to change. Zero values leave a field as is.
type PlanChange struct {
	PlanType     PlanType    `json:"planType,omitempty"`
	MealsPerDay  int         `json:"mealsPerDay,omitempty"`
	PortionSize  PortionSize `json:"portionSize,omitempty"`
	DeliveryTime string      `json:"deliveryTime,omitempty"`
	IsFlexible   *bool       `json:"isFlexible,omitempty"`
}

// CompleteOnboarding replaces the current subscription with a new active one.
// A zero StartDate means today.
func (s *Store) CompleteOnboarding(ctx context.Context, req OnboardingRequest) (Subscription, error) {
	if strings.TrimSpace(req.VendorID) == "" {
		return Subscription{}, invalid("vendorId", "must not be empty")
	}
	start := req.StartDate
	if start.IsZero() {
		start = civil.DateOf(s.now())
	}
	price, err := QuotePrice(req.PlanType, req.MealsPerDay, req.PortionSize)
	if err != nil {
		return Subscription{}, err
	}

	sub := Subscription{
		ID:           s.newID(),
		PlanType:     req.PlanType,
		MealsPerDay:  req.MealsPerDay,
		PortionSize:  req.PortionSize,
		DeliveryTime: req.DeliveryTime,
		IsFlexible:   req.IsFlexible,
		StartDate:    start,
		EndDate:      periodEnd(req.PlanType, start),
		IsActive:     true,
		AutoRenew:    req.AutoRenew,
		Price:        price,
		VendorID:     req.VendorID,
		VendorName:   req.VendorName,
	}
	if err := validateSubscription(sub); err != nil {
		return Subscription{}, err
	}

	updated, err := s.updateSubscription(ctx, func(cur *Subscription) error {
		*cur = sub
		return nil
	})
	if err != nil {
		return updated, err
	}
	s.logger.Info("onboarding completed", "subscription_id", updated.ID, "plan", updated.PlanType)
	return updated, nil
}

// ChangePlan applies change to the active subscription and re-quotes its price.
func (s *Store) ChangePlan(ctx context.Context, change PlanChange) (Subscription, error) {
	updated, err := s.updateSubscription(ctx, func(cur *Subscription) error {
		if !cur.IsActive {
			return invalid("subscription", "%s is not active", cur.ID)
		}
		if change.PlanType != "" {
			cur.PlanType = change.PlanType
		}
		if change.MealsPerDay != 0 {
			cur.MealsPerDay = change.MealsPerDay
		}
		if change.PortionSize != "" {
			cur.PortionSize = change.PortionSize
		}
		if change.DeliveryTime != "" {
			cur.DeliveryTime = change.DeliveryTime
		}
		if change.IsFlexible != nil {
			cur.IsFlexible = *change.IsFlexible
		}
		price, err := QuotePrice(cur.PlanType, cur.MealsPerDay, cur.PortionSize)
		if err != nil {
			return err
		}
		cur.Price = price
		return nil
	})
	if err != nil {
		return updated, err
	}
	s.logger.Info("plan changed", "subscription_id", updated.ID, "plan", updated.PlanType, "price", updated.Price)
	return updated, nil
}

// SetAutoRenew toggles renewal at the end of the window.
func (s *Store) SetAutoRenew(ctx context.Context, on bool) (Subscription, error) {
	return s.updateSubscription(ctx, func(cur *Subscription) error {
		cur.AutoRenew = on
		return nil
	})
}

// Deactivate marks the subscription inactive. Subscriptions are never deleted.
func (s *Store) Deactivate(ctx context.Context) (Subscription, error) {
	updated, err := s.updateSubscription(ctx, func(cur *Subscription) error {
		cur.IsActive = false
		cur.AutoRenew = false
		return nil
	})
	if err == nil {
		s.logger.Info("subscription deactivated", "subscription_id", updated.ID)
	}
	return updated, err
}

// Renew rolls an expired auto-renewing subscription forward by whole periods
// until its window covers today, and deactivates an expired one otherwise.
// It reports whether anything changed.
func (s *Store) Renew(ctx context.Context, today civil.Date) (Subscription, bool, error) {
	s.mu.RLock()
	cur := s.sub
	ready := s.initialized
	s.mu.RUnlock()
	if !ready {
		return Subscription{}, false, ErrNotInitialized
	}
	if !cur.IsActive || !cur.EndDate.Before(today) {
		return cur, false, nil
	}

	updated, err := s.updateSubscription(ctx, func(sub *Subscription) error {
		if !sub.IsActive || !sub.EndDate.Before(today) {
			return nil
		}
		if !sub.AutoRenew {
			sub.IsActive = false
			return nil
		}
		for sub.EndDate.Before(today) {
			sub.StartDate = sub.EndDate.AddDays(1)
			sub.EndDate = periodEnd(sub.PlanType, sub.StartDate)
		}
		return nil
	})
	if err != nil {
		return updated, false, err
	}
	s.logger.Info("subscription renewal processed",
		"subscription_id", updated.ID, "active", updated.IsActive, "end", updated.EndDate.String())
	return updated, true, nil
}

func (s *Store) updateSubscription(ctx context.Context, fn func(*Subscription) error) (Subscription, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return Subscription{}, ErrNotInitialized
	}
	cur := s.sub
	next := cur
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return cur, err
	}
	if err := validateSubscription(next); err != nil {
		s.mu.Unlock()
		return cur, err
	}
	s.sub = next
	s.mu.Unlock()

	if err := s.persist(ctx, KeySubscription, next); err != nil {
		return next, err
	}
	return next, nil
}
