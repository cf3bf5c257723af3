// Package menu converts weekly menus to and from the HTML published on the
// vendor's Ghost blog.
package menu

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/PuerkitoBio/goquery"

	"meal-subscription/internal/subscription"
)

// ParseHTML extracts one DailyMenu per section.menu-day[data-date] block,
// ordered by date. Blocks with a bad date or no veg option are skipped.
func ParseHTML(content string) ([]subscription.DailyMenu, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse menu html: %w", err)
	}

	seen := make(map[civil.Date]bool)
	var days []subscription.DailyMenu
	doc.Find("section.menu-day[data-date]").Each(func(_ int, s *goquery.Selection) {
		date, err := civil.ParseDate(strings.TrimSpace(s.AttrOr("data-date", "")))
		if err != nil || seen[date] {
			return
		}
		veg := text(s, ".veg")
		if veg == "" {
			return
		}
		seen[date] = true

		n := s.Find(".nutrition").First()
		days = append(days, subscription.DailyMenu{
			Date:         date,
			VegOption:    veg,
			NonVegOption: text(s, ".non-veg"),
			SpecialDish:  text(s, ".special"),
			NutritionInfo: subscription.NutritionInfo{
				Calories: number(n, "data-calories"),
				Protein:  number(n, "data-protein"),
				Carbs:    number(n, "data-carbs"),
				Fat:      number(n, "data-fat"),
			},
		})
	})

	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

func text(s *goquery.Selection, selector string) string {
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func number(s *goquery.Selection, attr string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.AttrOr(attr, "")), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// RenderHTML renders menu in the format ParseHTML reads.
func RenderHTML(menu []subscription.DailyMenu) string {
	var sb strings.Builder
	for _, m := range menu {
		fmt.Fprintf(&sb, "<section class=\"menu-day\" data-date=\"%s\">\n", m.Date)
		fmt.Fprintf(&sb, "<h3>%s</h3>\n", m.Date.In(time.UTC).Format("Monday, 2 January"))
		fmt.Fprintf(&sb, "<p class=\"veg\">%s</p>\n", html.EscapeString(m.VegOption))
		if m.NonVegOption != "" {
			fmt.Fprintf(&sb, "<p class=\"non-veg\">%s</p>\n", html.EscapeString(m.NonVegOption))
		}
		if m.SpecialDish != "" {
			fmt.Fprintf(&sb, "<p class=\"special\">%s</p>\n", html.EscapeString(m.SpecialDish))
		}
		n := m.NutritionInfo
		fmt.Fprintf(&sb,
			"<p class=\"nutrition\" data-calories=\"%s\" data-protein=\"%s\" data-carbs=\"%s\" data-fat=\"%s\">%s kcal, %sg protein, %sg carbs, %sg fat</p>\n",
			num(n.Calories), num(n.Protein), num(n.Carbs), num(n.Fat),
			num(n.Calories), num(n.Protein), num(n.Carbs), num(n.Fat))
		sb.WriteString("</section>\n")
	}
	return sb.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
