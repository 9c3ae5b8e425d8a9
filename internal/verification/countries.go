package verification

import (
	"strings"

	"moment-mint/internal/model"
)

// FilterCountries returns the countries whose name contains query, case
// insensitively. An empty query returns the full list.
func FilterCountries(countries []model.Country, query string) []model.Country {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return append([]model.Country(nil), countries...)
	}
	var out []model.Country
	for _, c := range countries {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}

// pickDefault returns the index of the preferred country, falling back to
// the first entry, or -1 for an empty list.
func pickDefault(countries []model.Country, preferred string) int {
	if len(countries) == 0 {
		return -1
	}
	if i := indexOfCountry(countries, preferred); i >= 0 {
		return i
	}
	return 0
}

func indexOfCountry(countries []model.Country, code string) int {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return -1
	}
	for i, c := range countries {
		if c.Code == code {
			return i
		}
	}
	return -1
}
