package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"meal-subscription/internal/llm"
	"meal-subscription/internal/subscription"
)

// Action is something the user can do to earn streak points.
type Action struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// Recommendation is one piece of advice derived from the weekly menu.
type Recommendation struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Action Action `json:"action"`
}

// Report summarises the weekly menu's nutrition.
type Report struct {
	Days            int                        `json:"days"`
	Average         subscription.NutritionInfo `json:"average"`
	Recommendations []Recommendation           `json:"recommendations"`
}

var (
	actionProteinSide  = Action{ID: "protein-side", Label: "Add a protein side (curd, sprouts or eggs)", Points: 10}
	actionHealthySnack = Action{ID: "healthy-snack", Label: "Have a fruit or nut snack mid-afternoon", Points: 5}
	actionWalk         = Action{ID: "post-meal-walk", Label: "Take a 20 minute walk after lunch", Points: 15}
	actionSaladSwap    = Action{ID: "salad-swap", Label: "Swap fried sides for a salad", Points: 10}
	actionHalfRice     = Action{ID: "half-rice", Label: "Ask for a half portion of rice", Points: 5}
	actionHydrate      = Action{ID: "hydrate", Label: "Drink eight glasses of water today", Points: 5}
)

// Actions lists every action the coach can suggest.
var Actions = []Action{
	actionProteinSide,
	actionHealthySnack,
	actionWalk,
	actionSaladSwap,
	actionHalfRice,
	actionHydrate,
}

// ActionByID looks up an action.
func ActionByID(id string) (Action, bool) {
	for _, a := range Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// Analyze averages nutrition across menu and derives recommendations.
func Analyze(menu []subscription.DailyMenu) Report {
	r := Report{Days: len(menu)}
	if len(menu) == 0 {
		r.Recommendations = []Recommendation{{
			Title:  "No menu yet",
			Detail: "Your vendor has not published this week's menu.",
			Action: actionHydrate,
		}}
		return r
	}

	for _, m := range menu {
		r.Average.Calories += m.NutritionInfo.Calories
		r.Average.Protein += m.NutritionInfo.Protein
		r.Average.Carbs += m.NutritionInfo.Carbs
		r.Average.Fat += m.NutritionInfo.Fat
	}
	n := float64(len(menu))
	r.Average.Calories /= n
	r.Average.Protein /= n
	r.Average.Carbs /= n
	r.Average.Fat /= n

	avg := r.Average
	if avg.Protein < 20 {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Title:  "Boost your protein",
			Detail: fmt.Sprintf("Meals average %.0fg of protein; aim for at least 20g.", avg.Protein),
			Action: actionProteinSide,
		})
	}
	switch {
	case avg.Calories < 400:
		r.Recommendations = append(r.Recommendations, Recommendation{
			Title:  "Eat enough",
			Detail: fmt.Sprintf("Meals average %.0f kcal, which is light for a main meal.", avg.Calories),
			Action: actionHealthySnack,
		})
	case avg.Calories > 700:
		r.Recommendations = append(r.Recommendations, Recommendation{
			Title:  "Balance heavy meals",
			Detail: fmt.Sprintf("Meals average %.0f kcal.", avg.Calories),
			Action: actionWalk,
		})
	}
	if avg.Fat > 25 {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Title:  "Watch the fat",
			Detail: fmt.Sprintf("Meals average %.0fg of fat.", avg.Fat),
			Action: actionSaladSwap,
		})
	}
	if avg.Carbs > 80 {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Title:  "Go easy on carbs",
			Detail: fmt.Sprintf("Meals average %.0fg of carbohydrates.", avg.Carbs),
			Action: actionHalfRice,
		})
	}
	if len(r.Recommendations) == 0 {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Title:  "Keep it up",
			Detail: "This week's menu is well balanced.",
			Action: actionHydrate,
		})
	}
	return r
}

// StreakUpdater accrues health streak points.
type StreakUpdater interface {
	UpdateHealthStreak(ctx context.Context, points int) (subscription.CommunityImpact, error)
}

// UsageRecorder stores LLM token usage.
type UsageRecorder interface {
	RecordCall(ctx context.Context, call llm.Call) error
}

// Coach turns menus into advice and followed advice into streak points.
type Coach struct {
	gen    llm.TextGenerator
	usage  UsageRecorder
	logger *slog.Logger
}

// New creates a Coach. gen and usage may be nil.
func New(gen llm.TextGenerator, usage UsageRecorder, logger *slog.Logger) *Coach {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coach{gen: gen, usage: usage, logger: logger}
}

// Follow credits the points of actionID to the user's health streak.
func (c *Coach) Follow(ctx context.Context, store StreakUpdater, actionID string) (subscription.CommunityImpact, error) {
	action, ok := ActionByID(strings.TrimSpace(actionID))
	if !ok {
		return subscription.CommunityImpact{}, &subscription.ValidationError{
			Field:  "action",
			Reason: fmt.Sprintf("unknown action %q", actionID),
		}
	}
	impact, err := store.UpdateHealthStreak(ctx, action.Points)
	if err != nil {
		return impact, err
	}
	c.logger.Info("coach action followed", "action", action.ID, "points", action.Points)
	return impact, nil
}

// TipsEnabled reports whether Tips can call a language model.
func (c *Coach) TipsEnabled() bool {
	return c.gen != nil
}

// Tips asks the language model for a short personalised tip for the week.
func (c *Coach) Tips(ctx context.Context, menu []subscription.DailyMenu) (string, error) {
	if c.gen == nil {
		return "", fmt.Errorf("no text generator configured")
	}

	start := time.Now()
	resp, err := c.gen.GenerateContent(ctx, buildPrompt(menu, Analyze(menu)))
	if err != nil {
		return "", fmt.Errorf("failed to generate tips: %w", err)
	}

	if c.usage != nil {
		call := llm.Call{Caller: "coach", Usage: resp.Usage, Latency: time.Since(start)}
		if err := c.usage.RecordCall(ctx, call); err != nil {
			c.logger.Warn("failed to record coach usage", "error", err)
		}
	}
	return strings.TrimSpace(resp.Content), nil
}

func buildPrompt(menu []subscription.DailyMenu, r Report) string {
	var sb strings.Builder
	sb.WriteString("You are a friendly nutrition coach for an Indian home-style meal subscription.\n")
	sb.WriteString("Give one short, practical tip (at most three sentences) for this week's menu.\n\n")
	sb.WriteString("Menu:\n")
	for _, m := range menu {
		fmt.Fprintf(&sb, "- %s: %s", m.Date, m.VegOption)
		if m.NonVegOption != "" {
			fmt.Fprintf(&sb, " / %s", m.NonVegOption)
		}
		if m.SpecialDish != "" {
			fmt.Fprintf(&sb, " (special: %s)", m.SpecialDish)
		}
		fmt.Fprintf(&sb, " [%.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat]\n",
			m.NutritionInfo.Calories, m.NutritionInfo.Protein, m.NutritionInfo.Carbs, m.NutritionInfo.Fat)
	}
	fmt.Fprintf(&sb, "\nAverages: %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat.\n",
		r.Average.Calories, r.Average.Protein, r.Average.Carbs, r.Average.Fat)
	return sb.String()
}
