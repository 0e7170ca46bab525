package plants

import (
	"fmt"
	"strings"
	"time"
)

// PlantID tipe untuk Plant
type PlantID string

// Severity enum
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Health enum
type Health string

const (
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthFair      Health = "fair"
	HealthPoor      Health = "poor"
	HealthCritical  Health = "critical"
)

// Rank maps health onto 5 (excellent) .. 1 (critical); unknown values rank 0.
func (h Health) Rank() int {
	switch h {
	case HealthExcellent:
		return 5
	case HealthGood:
		return 4
	case HealthFair:
		return 3
	case HealthPoor:
		return 2
	case HealthCritical:
		return 1
	}
	return 0
}

func (h Health) Valid() bool { return h.Rank() > 0 }

// Healthy is true for excellent and good.
func (h Health) Healthy() bool {
	return h == HealthExcellent || h == HealthGood
}

// Aggregate Root: Plant
type Plant struct {
	ID          PlantID   `json:"id"`
	Name        string    `json:"name,omitempty"`
	Species     string    `json:"species"`
	Diagnosis   string    `json:"diagnosis"`
	Treatments  []string  `json:"treatments"`
	Confidence  float64   `json:"confidence"`
	Severity    Severity  `json:"severity"`
	PlantHealth Health    `json:"plant_health"`
	Date        time.Time `json:"date"`
	Notes       string    `json:"notes,omitempty"`
	Image       string    `json:"image"`
	ReportURL   string    `json:"report_url,omitempty"`
}

// DisplayName is the name used for sorting and listing; species stands in
// when no common name was recorded.
func (p Plant) DisplayName() string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	return p.Species
}

// Validate checks the field invariants of a record. Uniqueness of the ID is
// a property of the whole collection and is checked by the service.
func (p Plant) Validate() error {
	if strings.TrimSpace(string(p.ID)) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if !p.Severity.Valid() {
		return &ValidationError{Field: "severity", Reason: fmt.Sprintf("must be one of low, medium, high (got %q)", p.Severity)}
	}
	if !p.PlantHealth.Valid() {
		return &ValidationError{Field: "plant_health", Reason: fmt.Sprintf("must be one of excellent, good, fair, poor, critical (got %q)", p.PlantHealth)}
	}
	if p.Confidence < 0 || p.Confidence > 100 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be between 0 and 100 (got %v)", p.Confidence)}
	}
	if p.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "must be a valid timestamp"}
	}
	for i, t := range p.Treatments {
		if strings.TrimSpace(t) == "" {
			return &ValidationError{Field: "treatments", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	if p.Image != "" && !IsImageDataURI(p.Image) {
		return &ValidationError{Field: "image", Reason: "must be a data:image/...;base64, URI"}
	}
	return nil
}

// IsImageDataURI reports whether s looks like data:image/<type>;base64,<payload>.
func IsImageDataURI(s string) bool {
	if !strings.HasPrefix(s, "data:image/") {
		return false
	}
	header, payload, ok := strings.Cut(s, ",")
	return ok && payload != "" && strings.HasSuffix(header, ";base64")
}
