package plants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/leaflens/internal/application"
	"github.com/bryanwahyu/leaflens/internal/domain/ai"
	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

var testNow = time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)

// memStore is an in-memory domain.Store with injectable failures.
type memStore struct {
	mu        sync.Mutex
	plants    []domain.Plant
	initCalls int
	initErr   error
	listErr   error
	appendErr error
	existsErr error
	listCalls int
}

func (m *memStore) Initialize(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCalls++
	return m.initErr
}

func (m *memStore) ListAll(context.Context) ([]domain.Plant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.Plant(nil), m.plants...), nil
}

func (m *memStore) Append(_ context.Context, p domain.Plant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.plants = append(m.plants, p)
	return nil
}

func (m *memStore) Exists(_ context.Context, id domain.PlantID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, p := range m.plants {
		if p.ID == id {
			return true, nil
		}
	}
	return false, nil
}

type analyzerFunc func(ctx context.Context, req ai.AnalyzeRequest) (*ai.Analysis, error)

func (f analyzerFunc) Analyze(ctx context.Context, req ai.AnalyzeRequest) (*ai.Analysis, error) {
	return f(ctx, req)
}

type fakeReports struct {
	data []byte
	err  error
	got  string
}

func (f *fakeReports) DownloadReport(_ context.Context, ts string) ([]byte, error) {
	f.got = ts
	return f.data, f.err
}

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(p domain.Plant) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-render-" + string(p.ID)), nil
}

type fakeArchive struct {
	keys    map[string][]byte
	err     error
	deleted []string
}

func (f *fakeArchive) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.keys, key)
	return nil
}

func (f *fakeArchive) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.keys == nil {
		f.keys = map[string][]byte{}
	}
	f.keys[key] = data
	return "http://minio.local/leaflens/" + key, nil
}

func validPlant(id string) domain.Plant {
	return domain.Plant{
		ID:          domain.PlantID(id),
		Name:        "Fiddle Leaf Fig",
		Species:     "Ficus lyrata",
		Diagnosis:   "Healthy - Minor Leaf Dust",
		Treatments:  []string{"Clean leaves with damp cloth"},
		Confidence:  92,
		Severity:    domain.SeverityLow,
		PlantHealth: domain.HealthGood,
		Date:        time.Date(2024, 1, 14, 11, 0, 0, 0, time.UTC),
	}
}

func newService(store domain.Store) *Service {
	return &Service{Store: store, Clock: application.FixedClock(testNow)}
}

func TestService_AddThenList(t *testing.T) {
	store := &memStore{}
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.Add(ctx, validPlant("1"))
	require.NoError(t, err)
	_, err = svc.Add(ctx, validPlant("2"))
	require.NoError(t, err)

	list, err := svc.List(ctx, domain.Query{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.PlantID("1"), list[0].ID)
	assert.Equal(t, domain.PlantID("2"), list[1].ID)
}

func TestService_ListEmptyIsNotNil(t *testing.T) {
	list, err := newService(&memStore{}).List(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestService_ListAppliesQuery(t *testing.T) {
	store := &memStore{}
	a := validPlant("a")
	b := validPlant("b")
	b.Species = "Monstera deliciosa"
	b.Diagnosis = "Early Root Rot"
	b.Severity = domain.SeverityMedium
	b.PlantHealth = domain.HealthFair
	b.Date = a.Date.Add(24 * time.Hour)
	store.plants = []domain.Plant{a, b}

	list, err := newService(store).List(context.Background(), domain.Query{Search: "ROT", SortBy: domain.SortByDate})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.PlantID("b"), list[0].ID)

	list, err = newService(store).List(context.Background(), domain.Query{SortBy: domain.SortByDate})
	require.NoError(t, err)
	assert.Equal(t, []domain.PlantID{"b", "a"}, []domain.PlantID{list[0].ID, list[1].ID})
}

func TestService_ListKeepsInvalidStoredRecords(t *testing.T) {
	bad := validPlant("bad")
	bad.Severity = "urgent"
	store := &memStore{plants: []domain.Plant{bad}}

	list, err := newService(store).List(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_Stats(t *testing.T) {
	high := validPlant("h")
	high.Severity = domain.SeverityHigh
	high.PlantHealth = domain.HealthPoor
	store := &memStore{plants: []domain.Plant{validPlant("g"), high}}

	sum, err := newService(store).Stats(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Total: 2, Healthy: 1, HighSeverity: 1}, sum)

	sum, err = newService(store).Stats(context.Background(), domain.Query{Severity: "high"})
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Total: 1, Healthy: 0, HighSeverity: 1}, sum)
}

func TestService_AddGeneratesMissingID(t *testing.T) {
	store := &memStore{}
	p := validPlant("")
	p.Treatments = nil

	got, err := newService(store).Add(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, []string{}, got.Treatments)
	assert.Equal(t, got.ID, store.plants[0].ID)
}

func TestService_AddRejects(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*domain.Plant)
		field string
	}{
		{"severity", func(p *domain.Plant) { p.Severity = "urgent" }, "severity"},
		{"health", func(p *domain.Plant) { p.PlantHealth = "" }, "plant_health"},
		{"confidence", func(p *domain.Plant) { p.Confidence = 120 }, "confidence"},
		{"date", func(p *domain.Plant) { p.Date = time.Time{} }, "date"},
		{"image", func(p *domain.Plant) { p.Image = "https://example.com/a.png" }, "image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			p := validPlant("x")
			tt.mod(&p)

			_, err := newService(store).Add(context.Background(), p)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, store.plants)
		})
	}
}

func TestService_AddDuplicate(t *testing.T) {
	store := &memStore{plants: []domain.Plant{validPlant("1")}}

	_, err := newService(store).Add(context.Background(), validPlant("1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
	assert.Len(t, store.plants, 1)
}

func TestService_StoreErrorsPropagate(t *testing.T) {
	initErr := &domain.InitializationError{Path: "db.json", Err: errors.New("boom")}
	_, err := newService(&memStore{initErr: initErr}).List(context.Background(), domain.Query{})
	assert.ErrorIs(t, err, initErr)

	perr := &domain.PersistenceError{Path: "db.json", Err: errors.New("disk full")}
	_, err = newService(&memStore{appendErr: perr}).Add(context.Background(), validPlant("1"))
	assert.ErrorIs(t, err, perr)
}

func TestService_ConcurrentAddsKeepEveryRecord(t *testing.T) {
	store := &memStore{}
	svc := newService(store)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Add(ctx, validPlant(fmt.Sprintf("c-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := svc.List(ctx, domain.Query{})
	require.NoError(t, err)
	assert.Len(t, list, n)
}

func TestService_ConcurrentDuplicateAddsStoreOnce(t *testing.T) {
	store := &memStore{}
	svc := newService(store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	dups := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Add(context.Background(), validPlant("same"))
			if errors.Is(err, domain.ErrDuplicateID) {
				mu.Lock()
				dups++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, store.plants, 1)
	assert.Equal(t, 9, dups)
}

func sampleAnalysis() *ai.Analysis {
	return &ai.Analysis{
		PlantSpecies:    "Solanum lycopersicum",
		DiseaseDetected: "Early Blight",
		Recommendations: []string{"Remove affected leaves", " ", "Apply copper fungicide"},
		Confidence:      89,
		Severity:        "Medium",
		PlantHealth:     "FAIR",
		ExtraInfo:       "Spots on lower leaves.",
	}
}

func TestService_Diagnose(t *testing.T) {
	store := &memStore{}
	var gotReq ai.AnalyzeRequest
	svc := newService(store)
	svc.Analyzer = analyzerFunc(func(_ context.Context, req ai.AnalyzeRequest) (*ai.Analysis, error) {
		gotReq = req
		return sampleAnalysis(), nil
	})
	img := []byte("\x89PNG\r\n\x1a\n0000")

	rec, err := svc.Diagnose(context.Background(), DiagnoseCommand{
		Image:        img,
		Filename:     "leaf.png",
		ContentType:  "image/png",
		PlantType:    "vegetable",
		PlantSpecies: "tomato",
		Name:         "Backyard tomato",
	})
	require.NoError(t, err)

	assert.Equal(t, "tomato", gotReq.PlantSpecies)
	assert.Equal(t, img, gotReq.Image)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Backyard tomato", rec.Name)
	assert.Equal(t, "Solanum lycopersicum", rec.Species)
	assert.Equal(t, "Early Blight", rec.Diagnosis)
	assert.Equal(t, []string{"Remove affected leaves", "Apply copper fungicide"}, rec.Treatments)
	assert.Equal(t, 89.0, rec.Confidence)
	assert.Equal(t, domain.SeverityMedium, rec.Severity)
	assert.Equal(t, domain.HealthFair, rec.PlantHealth)
	assert.Equal(t, testNow, rec.Date)
	assert.Equal(t, "Spots on lower leaves.", rec.Notes)
	assert.True(t, strings.HasPrefix(rec.Image, "data:image/png;base64,"))
	assert.Empty(t, rec.ReportURL)

	require.Len(t, store.plants, 1)
	assert.Equal(t, rec, store.plants[0])
}

func TestService_DiagnoseErrors(t *testing.T) {
	ctx := context.Background()
	cmd := DiagnoseCommand{Image: []byte("img"), ContentType: "image/jpeg"}

	t.Run("missing image", func(t *testing.T) {
		_, err := newService(&memStore{}).Diagnose(ctx, DiagnoseCommand{})
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("no analyzer", func(t *testing.T) {
		_, err := newService(&memStore{}).Diagnose(ctx, cmd)
		var ext *ai.ExternalServiceError
		assert.True(t, errors.As(err, &ext))
	})

	t.Run("quota", func(t *testing.T) {
		svc := newService(&memStore{})
		svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
			return nil, ai.ErrQuotaExceeded
		})
		_, err := svc.Diagnose(ctx, cmd)
		assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
	})

	t.Run("plain error becomes external", func(t *testing.T) {
		svc := newService(&memStore{})
		svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
			return nil, errors.New("connection refused")
		})
		_, err := svc.Diagnose(ctx, cmd)
		var ext *ai.ExternalServiceError
		require.True(t, errors.As(err, &ext))
		assert.Equal(t, "analyzer", ext.Service)
	})

	t.Run("unusable analysis", func(t *testing.T) {
		store := &memStore{}
		svc := newService(store)
		svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
			a := sampleAnalysis()
			a.Severity = "catastrophic"
			return a, nil
		})
		_, err := svc.Diagnose(ctx, cmd)
		var ext *ai.ExternalServiceError
		require.True(t, errors.As(err, &ext))
		assert.True(t, domain.IsValidation(err))
		assert.Empty(t, store.plants)
	})
}

func TestService_DiagnoseArchivesDownloadedReport(t *testing.T) {
	store := &memStore{}
	reports := &fakeReports{data: []byte("%PDF-remote")}
	renderer := &fakeRenderer{}
	archive := &fakeArchive{}
	svc := newService(store)
	svc.Reports, svc.Renderer, svc.Archive = reports, renderer, archive
	svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
		a := sampleAnalysis()
		a.ReportTimestamp = "20240120_080000"
		return a, nil
	})

	rec, err := svc.Diagnose(context.Background(), DiagnoseCommand{Image: []byte("img")})
	require.NoError(t, err)

	assert.Equal(t, "20240120_080000", reports.got)
	assert.Zero(t, renderer.calls)
	key := ReportKey(rec.ID)
	assert.Equal(t, []byte("%PDF-remote"), archive.keys[key])
	assert.Equal(t, "http://minio.local/leaflens/"+key, rec.ReportURL)
	assert.Equal(t, rec.ReportURL, store.plants[0].ReportURL)
}

func TestService_DiagnoseFallsBackToRenderer(t *testing.T) {
	renderer := &fakeRenderer{}
	archive := &fakeArchive{}
	svc := newService(&memStore{})
	svc.Reports = &fakeReports{err: errors.New("404")}
	svc.Renderer, svc.Archive = renderer, archive
	svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
		a := sampleAnalysis()
		a.ReportTimestamp = "ts"
		return a, nil
	})

	rec, err := svc.Diagnose(context.Background(), DiagnoseCommand{Image: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, 1, renderer.calls)
	assert.NotEmpty(t, rec.ReportURL)
}

func TestService_DiagnoseReportFailureIsNotFatal(t *testing.T) {
	store := &memStore{}
	svc := newService(store)
	svc.Renderer = &fakeRenderer{}
	svc.Archive = &fakeArchive{err: errors.New("bucket gone")}
	svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
		return sampleAnalysis(), nil
	})

	rec, err := svc.Diagnose(context.Background(), DiagnoseCommand{Image: []byte("img")})
	require.NoError(t, err)
	assert.Empty(t, rec.ReportURL)
	assert.Len(t, store.plants, 1)
}

func TestService_AddChecksDuplicatesWithoutListing(t *testing.T) {
	store := &memStore{plants: []domain.Plant{validPlant("1")}}
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.Add(ctx, validPlant("2"))
	require.NoError(t, err)
	_, err = svc.Add(ctx, validPlant("1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
	assert.Zero(t, store.listCalls)

	existsErr := errors.New("db gone")
	store.existsErr = existsErr
	_, err = svc.Add(ctx, validPlant("3"))
	assert.ErrorIs(t, err, existsErr)
	assert.Len(t, store.plants, 2)
}

func TestService_DiagnoseRemovesReportWhenRecordIsNotStored(t *testing.T) {
	store := &memStore{appendErr: &domain.PersistenceError{Path: "mysql:plants", Err: errors.New("connection reset")}}
	archive := &fakeArchive{}
	svc := newService(store)
	svc.Renderer, svc.Archive = &fakeRenderer{}, archive
	svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
		return sampleAnalysis(), nil
	})

	_, err := svc.Diagnose(context.Background(), DiagnoseCommand{Image: []byte("img")})
	require.Error(t, err)
	require.Len(t, archive.deleted, 1)
	assert.Empty(t, archive.keys)
}

func TestService_DiagnoseKeepsReportOfRetainedRecord(t *testing.T) {
	// the file store keeps the record in memory after a failed write
	store := &memStore{appendErr: &domain.PersistenceError{Path: "db.json", Err: errors.New("disk full"), Retained: true}}
	archive := &fakeArchive{}
	svc := newService(store)
	svc.Renderer, svc.Archive = &fakeRenderer{}, archive
	svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
		return sampleAnalysis(), nil
	})

	_, err := svc.Diagnose(context.Background(), DiagnoseCommand{Image: []byte("img")})
	require.Error(t, err)
	assert.Empty(t, archive.deleted)
	assert.Len(t, archive.keys, 1)
}

func TestService_DiagnoseWithoutReportDeletesNothing(t *testing.T) {
	store := &memStore{appendErr: &domain.PersistenceError{Path: "mysql:plants", Err: errors.New("connection reset")}}
	archive := &fakeArchive{err: errors.New("bucket gone")}
	svc := newService(store)
	svc.Renderer, svc.Archive = &fakeRenderer{}, archive
	svc.Analyzer = analyzerFunc(func(context.Context, ai.AnalyzeRequest) (*ai.Analysis, error) {
		return sampleAnalysis(), nil
	})

	_, err := svc.Diagnose(context.Background(), DiagnoseCommand{Image: []byte("img")})
	require.Error(t, err)
	assert.Empty(t, archive.deleted)
}
