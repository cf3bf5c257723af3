package subscription

import (
	"math"
	"time"

	"cloud.google.com/go/civil"
)

// Keys owned by the store inside its storage namespace.
const (
	KeySubscription    = "subscription"
	KeyWeeklyMenu      = "weeklyMenu"
	KeyCommunityImpact = "communityImpact"
)

// Demo courier shown for every simulated delivery.
const (
	DemoCourierName  = "Rajesh Kumar"
	DemoCourierPhone = "+91 98765 43210"
)

var demoCourierLocation = Location{Latitude: 28.6139, Longitude: 77.2090}

// DefaultSubscription is the canonical mock subscription used when nothing is persisted.
func DefaultSubscription() Subscription {
	return Subscription{
		ID:           "sub_001",
		PlanType:     PlanWeekly,
		MealsPerDay:  2,
		PortionSize:  PortionMedium,
		DeliveryTime: "12:30",
		IsFlexible:   true,
		StartDate:    civil.Date{Year: 2024, Month: 1, Day: 15},
		EndDate:      civil.Date{Year: 2024, Month: 2, Day: 15},
		IsActive:     true,
		AutoRenew:    true,
		Price:        1299,
		VendorID:     "vendor_001",
		VendorName:   "Healthy Bites Kitchen",
	}
}

// DefaultWeeklyMenu is the mock menu used when neither storage nor a MenuSource provides one.
func DefaultWeeklyMenu() []DailyMenu {
	return []DailyMenu{
		{
			Date:         civil.Date{Year: 2024, Month: 1, Day: 20},
			VegOption:    "Paneer Butter Masala with Jeera Rice",
			NonVegOption: "Chicken Curry with Jeera Rice",
			SpecialDish:  "Gulab Jamun",
			NutritionInfo: NutritionInfo{
				Calories: 650, Protein: 25, Carbs: 75, Fat: 22,
			},
		},
		{
			Date:         civil.Date{Year: 2024, Month: 1, Day: 21},
			VegOption:    "Rajma Chawal with Salad",
			NonVegOption: "Fish Curry with Steamed Rice",
			NutritionInfo: NutritionInfo{
				Calories: 580, Protein: 22, Carbs: 80, Fat: 15,
			},
		},
		{
			Date:        civil.Date{Year: 2024, Month: 1, Day: 22},
			VegOption:   "Mixed Veg Pulao with Raita",
			SpecialDish: "Fruit Custard",
			NutritionInfo: NutritionInfo{
				Calories: 520, Protein: 15, Carbs: 82, Fat: 12,
			},
		},
	}
}

// DefaultCommunityImpact is the zeroed counter set.
func DefaultCommunityImpact() CommunityImpact {
	return CommunityImpact{}
}

// Per-meal base price by portion, before plan discounts.
var portionPrice = map[PortionSize]float64{
	PortionSmall:  60,
	PortionMedium: 80,
	PortionLarge:  100,
}

// PlanDays is the length of one billing period in days. Monthly plans use 30 days for pricing.
func PlanDays(p PlanType) int {
	switch p {
	case PlanDaily:
		return 1
	case PlanWeekly:
		return 7
	case PlanMonthly:
		return 30
	}
	return 0
}

// QuotePrice returns the price of one billing period.
func QuotePrice(plan PlanType, mealsPerDay int, portion PortionSize) (float64, error) {
	if !plan.Valid() {
		return 0, invalid("planType", "unknown plan %q", plan)
	}
	if !portion.Valid() {
		return 0, invalid("portionSize", "unknown portion %q", portion)
	}
	if mealsPerDay <= 0 {
		return 0, invalid("mealsPerDay", "must be positive, got %d", mealsPerDay)
	}

	total := portionPrice[portion] * float64(mealsPerDay) * float64(PlanDays(plan))
	switch plan {
	case PlanWeekly:
		total *= 0.95
	case PlanMonthly:
		total *= 0.90
	}
	return math.Round(total*100) / 100, nil
}

// periodEnd returns the inclusive last day of a period that begins on start.
func periodEnd(plan PlanType, start civil.Date) civil.Date {
	switch plan {
	case PlanDaily:
		return start
	case PlanWeekly:
		return start.AddDays(6)
	case PlanMonthly:
		return sameDayNextMonth(start).AddDays(-1)
	}
	return start
}

// sameDayNextMonth clamps to the last day of a shorter month.
func sameDayNextMonth(d civil.Date) civil.Date {
	year, month := d.Year, d.Month+1
	if month > time.December {
		year, month = year+1, time.January
	}
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := d.Day
	if day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}
