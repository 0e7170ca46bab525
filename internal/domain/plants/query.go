package plants

import (
	"net/url"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// FilterAll is the sentinel that disables a categorical filter.
const FilterAll = "all"

// SortKey enum
type SortKey string

const (
	SortByDate       SortKey = "date"
	SortByName       SortKey = "name"
	SortByHealth     SortKey = "health"
	SortByConfidence SortKey = "confidence"
)

// Query describes a library view: search text, categorical filters and a
// sort key. The zero value matches everything and keeps storage order.
type Query struct {
	Search   string  `json:"search,omitempty"`
	Health   string  `json:"health,omitempty"`
	Severity string  `json:"severity,omitempty"`
	SortBy   SortKey `json:"sort,omitempty"`
}

// Summary rekap hasil filter
type Summary struct {
	Total        int `json:"total"`
	Healthy      int `json:"healthy"`
	HighSeverity int `json:"high_severity"`
}

// ParseQuery reads search, health, severity and sort from URL values.
func ParseQuery(v url.Values) Query {
	return Query{
		Search:   v.Get("search"),
		Health:   normalizeFilter(v.Get("health")),
		Severity: normalizeFilter(v.Get("severity")),
		SortBy:   SortKey(strings.ToLower(strings.TrimSpace(v.Get("sort")))),
	}
}

// IsZero is true when the query neither filters nor sorts.
func (q Query) IsZero() bool {
	return q.Search == "" && isAll(q.Health) && isAll(q.Severity) && q.SortBy == ""
}

// Apply filters and sorts records into a new slice; the input is untouched.
func Apply(records []Plant, q Query) []Plant {
	out := make([]Plant, 0, len(records))
	for _, p := range records {
		if q.Matches(p) {
			out = append(out, p)
		}
	}
	Sort(out, q.SortBy)
	return out
}

// Matches combines the search, health and severity predicates.
func (q Query) Matches(p Plant) bool {
	return matchesSearch(p, q.Search) &&
		matchesHealth(p, q.Health) &&
		matchesSeverity(p, q.Severity)
}

func matchesSearch(p Plant, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(p.Species), term) ||
		strings.Contains(strings.ToLower(p.Diagnosis), term)
}

func matchesHealth(p Plant, filter string) bool {
	return isAll(filter) || string(p.PlantHealth) == filter
}

func matchesSeverity(p Plant, filter string) bool {
	return isAll(filter) || string(p.Severity) == filter
}

// Sort orders records in place. Unknown keys keep the current order; ties
// keep their relative order.
func Sort(records []Plant, key SortKey) {
	switch key {
	case SortByDate:
		slices.SortStableFunc(records, func(a, b Plant) int {
			return b.Date.Compare(a.Date)
		})
	case SortByName:
		// Collator keeps internal buffers and is not safe to share.
		c := collate.New(language.English)
		slices.SortStableFunc(records, func(a, b Plant) int {
			return c.CompareString(a.DisplayName(), b.DisplayName())
		})
	case SortByHealth:
		slices.SortStableFunc(records, func(a, b Plant) int {
			return b.PlantHealth.Rank() - a.PlantHealth.Rank()
		})
	case SortByConfidence:
		slices.SortStableFunc(records, func(a, b Plant) int {
			switch {
			case a.Confidence > b.Confidence:
				return -1
			case a.Confidence < b.Confidence:
				return 1
			}
			return 0
		})
	}
}

// Summarize counts totals over an already filtered set.
func Summarize(records []Plant) Summary {
	s := Summary{Total: len(records)}
	for _, p := range records {
		if p.PlantHealth.Healthy() {
			s.Healthy++
		}
		if p.Severity == SeverityHigh {
			s.HighSeverity++
		}
	}
	return s
}

func isAll(filter string) bool {
	return filter == "" || filter == FilterAll
}

func normalizeFilter(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
