package telegram

import (
	"fmt"
	"strings"
	"time"

	"meal-subscription/internal/coach"
	"meal-subscription/internal/metrics"
	"meal-subscription/internal/subscription"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `*Commands*
/plan - your subscription
/menu - this week's menu
/pause 2024-02-01 2024-02-02 donate - skip days (add "donate" to give the meals away)
/track <order-id> - follow a delivery
/impact - meals donated and points
/coach - nutrition tips
/follow <action> - log a coach action`

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func formatSubscription(sub subscription.Subscription) string {
	var sb strings.Builder
	sb.WriteString("🍱 *Your Subscription*\n\n")
	sb.WriteString(fmt.Sprintf("*Vendor:* %s\n", escape(sub.VendorName)))
	sb.WriteString(fmt.Sprintf("*Plan:* %s, %d meal(s)/day, %s portion\n", sub.PlanType, sub.MealsPerDay, sub.PortionSize))
	sb.WriteString(fmt.Sprintf("*Delivery:* %s", sub.DeliveryTime))
	if sub.IsFlexible {
		sb.WriteString(" (flexible)")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("*Period:* %s → %s\n", sub.StartDate, sub.EndDate))
	sb.WriteString(fmt.Sprintf("*Price:* ₹%.2f\n", sub.Price))

	status := "✅ Active"
	if !sub.IsActive {
		status = "⛔ Inactive"
	}
	if sub.IsActive && sub.AutoRenew {
		status += ", auto-renews"
	}
	sb.WriteString(fmt.Sprintf("*Status:* %s", status))
	return sb.String()
}

func formatMenu(menu []subscription.DailyMenu) string {
	if len(menu) == 0 {
		return "📅 No menu published yet."
	}
	var sb strings.Builder
	sb.WriteString("📅 *This Week's Menu*\n")
	for _, m := range menu {
		sb.WriteString(fmt.Sprintf("\n*%s*\n", m.Date.In(time.UTC).Format("Mon, 2 Jan")))
		sb.WriteString(fmt.Sprintf("🥗 %s\n", escape(m.VegOption)))
		if m.NonVegOption != "" {
			sb.WriteString(fmt.Sprintf("🍗 %s\n", escape(m.NonVegOption)))
		}
		if m.SpecialDish != "" {
			sb.WriteString(fmt.Sprintf("⭐ %s\n", escape(m.SpecialDish)))
		}
		n := m.NutritionInfo
		sb.WriteString(fmt.Sprintf("%.0f kcal • P %.0fg • C %.0fg • F %.0fg\n", n.Calories, n.Protein, n.Carbs, n.Fat))
	}
	return sb.String()
}

var statusLabels = map[subscription.DeliveryStatus]string{
	subscription.StatusPreparing:      "👩‍🍳 Preparing",
	subscription.StatusOutForDelivery: "🛵 Out for delivery",
	subscription.StatusArrivingSoon:   "📍 Arriving soon",
	subscription.StatusDelivered:      "✅ Delivered",
}

func formatDelivery(d subscription.DeliveryTracking) string {
	label, ok := statusLabels[d.Status]
	if !ok {
		label = string(d.Status)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Order %s*: %s\n", escape(d.OrderID), label))
	if d.Status != subscription.StatusDelivered {
		sb.WriteString(fmt.Sprintf("ETA: %s\n", d.EstimatedTime))
	}
	sb.WriteString(fmt.Sprintf("Courier: %s (%s)", escape(d.DeliveryPersonName), d.DeliveryPersonPhone))
	return sb.String()
}

func formatImpact(c subscription.CommunityImpact) string {
	return fmt.Sprintf("🌍 *Community Impact*\n\n🍛 Meals donated: *%d*\n🎁 Loyalty points: *%d*\n💪 Health streak: *%d*",
		c.MealsDonated, c.LoyaltyPoints, c.HealthStreakPoints)
}

func formatReport(r coach.Report) string {
	var sb strings.Builder
	sb.WriteString("🥦 *Nutrition Coach*\n\n")
	if r.Days > 0 {
		sb.WriteString(fmt.Sprintf("Average over %d day(s): %.0f kcal • P %.0fg • C %.0fg • F %.0fg\n\n",
			r.Days, r.Average.Calories, r.Average.Protein, r.Average.Carbs, r.Average.Fat))
	}
	for _, rec := range r.Recommendations {
		sb.WriteString(fmt.Sprintf("*%s*: %s\n", rec.Title, escape(rec.Detail)))
		sb.WriteString(fmt.Sprintf("→ %s (+%d) `/follow %s`\n\n", rec.Action.Label, rec.Action.Points, rec.Action.ID))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatMetrics(usage []metrics.DailyUsage, impact []metrics.DailyImpact, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution))
	}

	sb.WriteString("\n🌍 *Community Impact*\n")
	if len(impact) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range impact {
		sb.WriteString(fmt.Sprintf("• *%s*: %d meals donated, %d streak points (%d users)\n",
			d.Date, d.MealsDonated, d.HealthStreakPoints, d.Users))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))
	return sb.String()
}
