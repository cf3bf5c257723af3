package subscription

import (
	"strings"

	"cloud.google.com/go/civil"
)

// ParseDates parses YYYY-MM-DD strings. Blank entries are skipped.
func ParseDates(values []string) ([]civil.Date, error) {
	dates := make([]civil.Date, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		d, err := civil.ParseDate(v)
		if err != nil {
			return nil, invalid("dates", "%q is not a YYYY-MM-DD date", v)
		}
		dates = append(dates, d)
	}
	return dates, nil
}
