package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bryanwahyu/leaflens/internal/domain/ai"
)

var fenceRx = regexp.MustCompile("(?is)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeFences removes a surrounding ```json ... ``` block if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRx.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// RawAnalysis mirrors what models and the analysis service actually emit:
// confidence and plant_health may be numbers or strings such as "85%".
type RawAnalysis struct {
	PlantSpecies    string          `json:"plant_species"`
	DiseaseDetected string          `json:"disease_detected"`
	Recommendations []string        `json:"recommendations"`
	Confidence      json.RawMessage `json:"confidence"`
	Severity        string          `json:"severity"`
	PlantHealth     json.RawMessage `json:"plant_health"`
	ExtraInfo       string          `json:"extra_info"`
}

// ParseAnalysis decodes a model response into a normalized Analysis.
func ParseAnalysis(content string) (*ai.Analysis, error) {
	var raw RawAnalysis
	if err := json.Unmarshal([]byte(StripCodeFences(content)), &raw); err != nil {
		return nil, fmt.Errorf("decode analysis json: %w", err)
	}
	return raw.Normalize()
}

// Normalize converts loose field formats into the canonical Analysis.
func (r RawAnalysis) Normalize() (*ai.Analysis, error) {
	conf, err := parsePercent(r.Confidence)
	if err != nil {
		return nil, fmt.Errorf("confidence: %w", err)
	}
	health, err := parseHealth(r.PlantHealth)
	if err != nil {
		return nil, fmt.Errorf("plant_health: %w", err)
	}
	recs := make([]string, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		if rec = strings.TrimSpace(rec); rec != "" {
			recs = append(recs, rec)
		}
	}
	return &ai.Analysis{
		PlantSpecies:    strings.TrimSpace(r.PlantSpecies),
		DiseaseDetected: strings.TrimSpace(r.DiseaseDetected),
		Recommendations: recs,
		Confidence:      conf,
		Severity:        strings.ToLower(strings.TrimSpace(r.Severity)),
		PlantHealth:     health,
		ExtraInfo:       strings.TrimSpace(r.ExtraInfo),
	}, nil
}

// parsePercent accepts 87, 87.5, "87", "87%" and fractions below 1.
func parsePercent(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var (
		v       float64
		percent bool
	)
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("unsupported value %s", raw)
		}
		s = strings.TrimSpace(s)
		percent = strings.HasSuffix(s, "%")
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		if v, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, fmt.Errorf("not a percentage: %q", s)
		}
	}
	// bare fractions such as 0.87
	if !percent && v > 0 && v < 1 {
		v *= 100
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("out of range: %v", v)
	}
	return v, nil
}

// parseHealth accepts a health label or a percentage that is bucketed.
func parseHealth(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case "excellent", "good", "fair", "poor", "critical":
			return s, nil
		}
		if !strings.HasSuffix(s, "%") {
			return s, nil
		}
	}
	pct, err := parsePercent(raw)
	if err != nil {
		return "", err
	}
	return HealthFromPercent(pct), nil
}

// HealthFromPercent buckets a 0..100 health score.
func HealthFromPercent(pct float64) string {
	switch {
	case pct >= 80:
		return "excellent"
	case pct >= 60:
		return "good"
	case pct >= 40:
		return "fair"
	case pct >= 20:
		return "poor"
	default:
		return "critical"
	}
}
