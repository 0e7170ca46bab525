package plants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/leaflens/internal/application"
	"github.com/bryanwahyu/leaflens/internal/domain/ai"
	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

// Service implements use-cases untuk Plant records.
// Safe for concurrent use.
//
// Reports, Renderer and Archive are optional; without Archive no report is
// produced at all.
type Service struct {
	Store    domain.Store
	Analyzer ai.Analyzer
	Reports  ai.ReportSource
	Renderer domain.ReportRenderer
	Archive  domain.ReportStore
	Clock    application.Clock
	Log      *zap.Logger

	// mu spans the duplicate check and the append.
	mu sync.Mutex
}

//
// ==== USE CASES ====
//

// List returns stored records filtered and sorted by q. A zero query keeps
// storage order.
func (s *Service) List(ctx context.Context, q domain.Query) ([]domain.Plant, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if q.IsZero() {
		return all, nil
	}
	return domain.Apply(all, q), nil
}

// Stats summarizes the records matching q.
func (s *Service) Stats(ctx context.Context, q domain.Query) (domain.Summary, error) {
	all, err := s.load(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summarize(domain.Apply(all, q)), nil
}

// Add validates and stores a record. A missing id is generated; an id that
// is already stored yields ErrDuplicateID.
func (s *Service) Add(ctx context.Context, p domain.Plant) (domain.Plant, error) {
	if err := s.Store.Initialize(ctx); err != nil {
		return domain.Plant{}, err
	}
	if strings.TrimSpace(string(p.ID)) == "" {
		p.ID = domain.PlantID(uuid.NewString())
	}
	if p.Treatments == nil {
		p.Treatments = []string{}
	}
	if err := p.Validate(); err != nil {
		return domain.Plant{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.Store.Exists(ctx, p.ID)
	if err != nil {
		return domain.Plant{}, err
	}
	if exists {
		return domain.Plant{}, domain.ErrDuplicateID
	}
	if err := s.Store.Append(ctx, p); err != nil {
		return domain.Plant{}, err
	}
	s.logger().Info("plant added",
		zap.String("id", string(p.ID)),
		zap.String("species", p.Species),
		zap.String("severity", string(p.Severity)),
	)
	return p, nil
}

// Command untuk diagnosa foto tanaman
type DiagnoseCommand struct {
	Image        []byte
	Filename     string
	ContentType  string
	PlantType    string
	PlantSpecies string
	Prompt       string
	Name         string
	Notes        string
}

// Diagnose analyze foto → build record → archive report → simpan ke store
func (s *Service) Diagnose(ctx context.Context, cmd DiagnoseCommand) (domain.Plant, error) {
	if len(cmd.Image) == 0 {
		return domain.Plant{}, &domain.ValidationError{Field: "image", Reason: "is required"}
	}
	if s.Analyzer == nil {
		return domain.Plant{}, &ai.ExternalServiceError{Service: "analyzer", Err: errors.New("no analyzer configured")}
	}

	analysis, err := s.Analyzer.Analyze(ctx, ai.AnalyzeRequest{
		PlantType:    cmd.PlantType,
		PlantSpecies: cmd.PlantSpecies,
		Prompt:       cmd.Prompt,
		Image:        cmd.Image,
		Filename:     cmd.Filename,
		ContentType:  cmd.ContentType,
	})
	if err != nil {
		return domain.Plant{}, asExternal(err)
	}
	if analysis == nil {
		return domain.Plant{}, &ai.ExternalServiceError{Service: "analyzer", Err: errors.New("empty analysis")}
	}

	rec := s.buildRecord(cmd, analysis)
	if err := rec.Validate(); err != nil {
		return domain.Plant{}, &ai.ExternalServiceError{Service: "analyzer", Err: fmt.Errorf("unusable analysis: %w", err)}
	}

	// report_url is stored with the record; the report is removed again
	// when the record did not make it into the store.
	if url := s.archiveReport(ctx, rec, analysis.ReportTimestamp); url != "" {
		rec.ReportURL = url
	}
	stored, err := s.Add(ctx, rec)
	if err != nil {
		if rec.ReportURL != "" && !domain.IsRetained(err) {
			s.discardReport(ctx, rec.ID)
		}
		return domain.Plant{}, err
	}
	return stored, nil
}

// discardReport removes an archived report whose record was never stored.
// It runs on a fresh context so a cancelled request still cleans up.
func (s *Service) discardReport(ctx context.Context, id domain.PlantID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Archive.Delete(ctx, ReportKey(id)); err != nil {
		s.logger().Warn("remove orphaned report failed", zap.String("id", string(id)), zap.Error(err))
	}
}

func (s *Service) buildRecord(cmd DiagnoseCommand, a *ai.Analysis) domain.Plant {
	species := firstNonEmpty(a.PlantSpecies, cmd.PlantSpecies, cmd.PlantType, "Unknown")
	treatments := make([]string, 0, len(a.Recommendations))
	for _, r := range a.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			treatments = append(treatments, r)
		}
	}
	return domain.Plant{
		ID:          domain.PlantID(uuid.NewString()),
		Name:        strings.TrimSpace(cmd.Name),
		Species:     species,
		Diagnosis:   firstNonEmpty(a.DiseaseDetected, "No disease detected"),
		Treatments:  treatments,
		Confidence:  a.Confidence,
		Severity:    domain.Severity(strings.ToLower(strings.TrimSpace(a.Severity))),
		PlantHealth: domain.Health(strings.ToLower(strings.TrimSpace(a.PlantHealth))),
		Date:        s.now().UTC(),
		Notes:       firstNonEmpty(cmd.Notes, a.ExtraInfo),
		Image:       domain.EncodeDataURI(cmd.ContentType, cmd.Image),
	}
}

// archiveReport uploads a report for rec and returns its URL, or "" when no
// report could be produced. Failures are logged only.
func (s *Service) archiveReport(ctx context.Context, rec domain.Plant, timestamp string) string {
	if s.Archive == nil {
		return ""
	}
	log := s.logger().With(zap.String("id", string(rec.ID)))

	var data []byte
	if s.Reports != nil && timestamp != "" {
		b, err := s.Reports.DownloadReport(ctx, timestamp)
		if err != nil {
			log.Warn("download report failed, rendering locally", zap.String("timestamp", timestamp), zap.Error(err))
		} else {
			data = b
		}
	}
	if len(data) == 0 && s.Renderer != nil {
		b, err := s.Renderer.Render(rec)
		if err != nil {
			log.Warn("render report failed", zap.Error(err))
			return ""
		}
		data = b
	}
	if len(data) == 0 {
		return ""
	}

	url, err := s.Archive.Put(ctx, ReportKey(rec.ID), data, "application/pdf")
	if err != nil {
		log.Warn("archive report failed", zap.Error(err))
		return ""
	}
	return url
}

// ReportKey is the archive object key of a record's report.
func ReportKey(id domain.PlantID) string {
	return fmt.Sprintf("reports/%s.pdf", id)
}

// load initializes the store and lists it, logging records that no longer
// pass validation. Those records are still returned.
func (s *Service) load(ctx context.Context) ([]domain.Plant, error) {
	if err := s.Store.Initialize(ctx); err != nil {
		return nil, err
	}
	all, err := s.Store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if err := p.Validate(); err != nil {
			s.logger().Warn("stored plant fails validation", zap.String("id", string(p.ID)), zap.Error(err))
		}
	}
	if all == nil {
		all = []domain.Plant{}
	}
	return all, nil
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// asExternal keeps quota and typed collaborator errors, and tags anything
// else as an analyzer failure.
func asExternal(err error) error {
	var ext *ai.ExternalServiceError
	if errors.Is(err, ai.ErrQuotaExceeded) || errors.As(err, &ext) {
		return err
	}
	return &ai.ExternalServiceError{Service: "analyzer", Err: err}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
