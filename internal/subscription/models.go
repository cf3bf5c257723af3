package subscription

import (
	"cloud.google.com/go/civil"
)

// PlanType is the billing cadence of a subscription.
type PlanType string

const (
	PlanDaily   PlanType = "daily"
	PlanWeekly  PlanType = "weekly"
	PlanMonthly PlanType = "monthly"
)

// Valid reports whether p is a known plan type.
func (p PlanType) Valid() bool {
	switch p {
	case PlanDaily, PlanWeekly, PlanMonthly:
		return true
	}
	return false
}

// PortionSize is the size of every meal in a subscription.
type PortionSize string

const (
	PortionSmall  PortionSize = "small"
	PortionMedium PortionSize = "medium"
	PortionLarge  PortionSize = "large"
)

// Valid reports whether p is a known portion size.
func (p PortionSize) Valid() bool {
	switch p {
	case PortionSmall, PortionMedium, PortionLarge:
		return true
	}
	return false
}

// Subscription is a user's meal plan with a single vendor.
type Subscription struct {
	ID           string      `json:"id"`
	PlanType     PlanType    `json:"planType"`
	MealsPerDay  int         `json:"mealsPerDay"`
	PortionSize  PortionSize `json:"portionSize"`
	DeliveryTime string      `json:"deliveryTime"`
	IsFlexible   bool        `json:"isFlexible"`
	StartDate    civil.Date  `json:"startDate"`
	EndDate      civil.Date  `json:"endDate"`
	IsActive     bool        `json:"isActive"`
	AutoRenew    bool        `json:"autoRenew"`
	Price        float64     `json:"price"`
	VendorID     string      `json:"vendorId"`
	VendorName   string      `json:"vendorName"`
}

// Covers reports whether d falls inside the subscription window, inclusive.
func (s Subscription) Covers(d civil.Date) bool {
	return !d.Before(s.StartDate) && !d.After(s.EndDate)
}

// NutritionInfo holds per-meal macro values.
type NutritionInfo struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// DailyMenu is the vendor's menu for a single date.
type DailyMenu struct {
	Date          civil.Date    `json:"date"`
	VegOption     string        `json:"vegOption"`
	NonVegOption  string        `json:"nonVegOption,omitempty"`
	SpecialDish   string        `json:"specialDish,omitempty"`
	NutritionInfo NutritionInfo `json:"nutritionInfo"`
}

// DeliveryStatus is a step in the delivery progression.
type DeliveryStatus string

const (
	StatusPreparing      DeliveryStatus = "preparing"
	StatusOutForDelivery DeliveryStatus = "out-for-delivery"
	StatusArrivingSoon   DeliveryStatus = "arriving-soon"
	StatusDelivered      DeliveryStatus = "delivered"
)

// statusOrder is the only legal progression; index is the rank.
var statusOrder = []DeliveryStatus{
	StatusPreparing,
	StatusOutForDelivery,
	StatusArrivingSoon,
	StatusDelivered,
}

func (s DeliveryStatus) rank() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further transition exists.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered
}

// Location is a geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DeliveryTracking is the in-memory state of one simulated delivery.
type DeliveryTracking struct {
	OrderID             string         `json:"orderId"`
	Status              DeliveryStatus `json:"status"`
	DeliveryPersonName  string         `json:"deliveryPersonName"`
	DeliveryPersonPhone string         `json:"deliveryPersonPhone"`
	EstimatedTime       string         `json:"estimatedTime"`
	CurrentLocation     Location       `json:"currentLocation"`
}

// CommunityImpact holds the user's monotonic counters.
type CommunityImpact struct {
	MealsDonated       int `json:"mealsDonated"`
	LoyaltyPoints      int `json:"loyaltyPoints"`
	HealthStreakPoints int `json:"healthStreakPoints"`
}
