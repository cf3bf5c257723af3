package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"meal-subscription/internal/coach"
	"meal-subscription/internal/subscription"
)

// ErrMenuFeedDisabled is returned by PublishMenu without Ghost credentials.
var ErrMenuFeedDisabled = errors.New("vendor menu feed is not configured")

// Status prints the user's subscription, impact and current delivery.
func (a *App) Status(ctx context.Context, w io.Writer, userID string) error {
	s, err := a.registry.Get(ctx, userID)
	if err != nil {
		return err
	}
	sub := s.Subscription()
	state := "active"
	if !sub.IsActive {
		state = "inactive"
	}
	fmt.Fprintf(w, "Subscription %s (%s)\n", sub.ID, state)
	fmt.Fprintf(w, "  Vendor:   %s\n", sub.VendorName)
	fmt.Fprintf(w, "  Plan:     %s, %d meal(s)/day, %s portion at %s\n", sub.PlanType, sub.MealsPerDay, sub.PortionSize, sub.DeliveryTime)
	fmt.Fprintf(w, "  Window:   %s to %s (auto-renew: %t)\n", sub.StartDate, sub.EndDate, sub.AutoRenew)
	fmt.Fprintf(w, "  Price:    %.2f\n", sub.Price)

	impact := s.CommunityImpact()
	fmt.Fprintf(w, "Impact: %d meals donated, %d loyalty points, %d streak points\n",
		impact.MealsDonated, impact.LoyaltyPoints, impact.HealthStreakPoints)

	if d := s.CurrentDelivery(); d != nil {
		fmt.Fprintf(w, "Delivery %s: %s (ETA %s)\n", d.OrderID, d.Status, d.EstimatedTime)
	}
	return nil
}

// Pause skips the given YYYY-MM-DD dates, optionally donating the meals.
func (a *App) Pause(ctx context.Context, w io.Writer, userID string, rawDates []string, donate bool) error {
	dates, err := subscription.ParseDates(rawDates)
	if err != nil {
		return err
	}
	s, err := a.registry.Get(ctx, userID)
	if err != nil {
		return err
	}
	impact, err := s.PauseSubscription(ctx, dates, donate)
	if err != nil {
		return err
	}
	if donate {
		fmt.Fprintf(w, "Paused %d day(s) and donated the meals. Total donated: %d, loyalty points: %d\n",
			len(dates), impact.MealsDonated, impact.LoyaltyPoints)
	} else {
		fmt.Fprintf(w, "Paused %d day(s).\n", len(dates))
	}
	return nil
}

// Streak adds health-streak points.
func (a *App) Streak(ctx context.Context, w io.Writer, userID string, points int) error {
	s, err := a.registry.Get(ctx, userID)
	if err != nil {
		return err
	}
	impact, err := s.UpdateHealthStreak(ctx, points)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Health streak: %d points\n", impact.HealthStreakPoints)
	return nil
}

// Track starts a delivery simulation and prints every update until the
// order is delivered or ctx ends.
func (a *App) Track(ctx context.Context, w io.Writer, userID, orderID string) error {
	updates := make(chan subscription.DeliveryTracking, 8)
	a.registry.OnDelivery(func(id string, d subscription.DeliveryTracking) {
		if id != userID || d.OrderID != orderID {
			return
		}
		select {
		case updates <- d:
		default:
		}
	})

	s, err := a.registry.Get(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.StartDeliveryTracking(orderID); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-updates:
			fmt.Fprintf(w, "[%s] %s, ETA %s\n", d.OrderID, d.Status, d.EstimatedTime)
			if d.Status.Terminal() {
				return nil
			}
		}
	}
}

// Coach prints the menu analysis. A non-empty follow accrues that action's
// points; withTip asks the language model for a tip when one is configured.
func (a *App) Coach(ctx context.Context, w io.Writer, userID, follow string, withTip bool) error {
	s, err := a.registry.Get(ctx, userID)
	if err != nil {
		return err
	}
	if follow != "" {
		impact, err := a.coach.Follow(ctx, s, follow)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Nice work! Health streak: %d points\n", impact.HealthStreakPoints)
		return nil
	}

	menu := s.WeeklyMenu()
	report := coach.Analyze(menu)
	fmt.Fprintf(w, "Average over %d day(s): %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat\n",
		report.Days, report.Average.Calories, report.Average.Protein, report.Average.Carbs, report.Average.Fat)
	for _, r := range report.Recommendations {
		fmt.Fprintf(w, "- %s\n  %s (+%d points: follow %s)\n", r.Detail, r.Action.Label, r.Action.Points, r.Action.ID)
	}

	if withTip && a.coach.TipsEnabled() {
		tip, err := a.coach.Tips(ctx, menu)
		if err != nil {
			a.logger.Warn("coach tip unavailable", "error", err)
			return nil
		}
		fmt.Fprintf(w, "\nTip: %s\n", strings.TrimSpace(tip))
	}
	return nil
}

// PublishMenu posts the user's weekly menu to the vendor blog.
func (a *App) PublishMenu(ctx context.Context, w io.Writer, userID string, publish bool) error {
	if a.feed == nil {
		return ErrMenuFeedDisabled
	}
	s, err := a.registry.Get(ctx, userID)
	if err != nil {
		return err
	}
	post, err := a.feed.Publish(ctx, s.Subscription().VendorName, s.WeeklyMenu(), publish)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Created post %s: %q (%s)\n", post.ID, post.Title, post.Status)
	return nil
}

// ImpactReport prints daily community impact totals.
func (a *App) ImpactReport(ctx context.Context, w io.Writer, days int) error {
	rows, err := a.metricsStore.GetDailyImpact(ctx, days)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(w, "No impact recorded in the last %d day(s).\n", days)
		return nil
	}
	fmt.Fprintf(w, "%-10s  %6s  %7s  %6s  %5s\n", "DATE", "MEALS", "LOYALTY", "STREAK", "USERS")
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s  %6d  %7d  %6d  %5d\n", r.Date, r.MealsDonated, r.LoyaltyPoints, r.HealthStreakPoints, r.Users)
	}
	return nil
}

// CleanupMetrics removes ledger rows older than days.
func (a *App) CleanupMetrics(ctx context.Context, w io.Writer, days int) error {
	n, err := a.metricsStore.Cleanup(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Successfully removed %d old records.\n", n)
	return nil
}
