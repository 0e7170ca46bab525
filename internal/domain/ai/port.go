package ai

import "context"

// AnalyzeRequest is the uploaded photo plus the form metadata sent with it.
type AnalyzeRequest struct {
	PlantType    string
	PlantSpecies string
	Prompt       string
	Image        []byte
	Filename     string
	ContentType  string
}

// Analysis is the normalized diagnosis returned by an Analyzer.
type Analysis struct {
	PlantSpecies    string   `json:"plant_species"`
	DiseaseDetected string   `json:"disease_detected"`
	Recommendations []string `json:"recommendations"`
	Confidence      float64  `json:"confidence"`
	Severity        string   `json:"severity"`
	PlantHealth     string   `json:"plant_health"`
	ExtraInfo       string   `json:"extra_info,omitempty"`
	// ReportTimestamp identifies a report generated by the collaborator, if any.
	ReportTimestamp string `json:"timestamp,omitempty"`
}

type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error)
}

type Chatter interface {
	Chat(ctx context.Context, message string) (string, error)
}

// ReportSource downloads a report generated during analysis.
type ReportSource interface {
	DownloadReport(ctx context.Context, timestamp string) ([]byte, error)
}
