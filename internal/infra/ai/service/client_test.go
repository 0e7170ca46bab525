package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/leaflens/internal/domain/ai"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second, nil)
}

func TestAnalyze_SendsMultipartAndParsesNested(t *testing.T) {
	img := []byte("\xff\xd8\xff\xe0fakejpeg")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "vegetable", r.FormValue("plant_type"))
		assert.Equal(t, "tomato", r.FormValue("plant_species"))
		assert.Equal(t, "spots on leaves", r.FormValue("prompt"))

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		got, _ := io.ReadAll(f)
		assert.Equal(t, img, got)
		assert.Equal(t, "leaf.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"analysis": {
				"plant_species": "Solanum lycopersicum",
				"disease_detected": "Early Blight",
				"confidence": "89%",
				"severity": "MEDIUM",
				"recommendations": ["Remove affected leaves"],
				"plant_health": "fair"
			},
			"timestamp": "20240115_103000"
		}`)
	})

	a, err := c.Analyze(context.Background(), ai.AnalyzeRequest{
		PlantType:    "vegetable",
		PlantSpecies: "tomato",
		Prompt:       "spots on leaves",
		Image:        img,
		Filename:     "leaf.jpg",
		ContentType:  "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "Early Blight", a.DiseaseDetected)
	assert.Equal(t, 89.0, a.Confidence)
	assert.Equal(t, "medium", a.Severity)
	assert.Equal(t, "fair", a.PlantHealth)
	assert.Equal(t, "20240115_103000", a.ReportTimestamp)
}

func TestAnalyze_FlatBodyAndNumericTimestamp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"plant_species":"Ficus lyrata","disease_detected":"Healthy","confidence":0.95,"severity":"low","recommendations":[],"plant_health":"85%","timestamp":1705314600}`)
	})

	a, err := c.Analyze(context.Background(), ai.AnalyzeRequest{Image: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "Ficus lyrata", a.PlantSpecies)
	assert.InDelta(t, 95.0, a.Confidence, 1e-9)
	assert.Equal(t, "excellent", a.PlantHealth)
	assert.Equal(t, "1705314600", a.ReportTimestamp)
}

func TestAnalyze_Errors(t *testing.T) {
	t.Run("server error with json message", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":"model not loaded"}`)
		})
		_, err := c.Analyze(context.Background(), ai.AnalyzeRequest{Image: []byte("x")})
		var ext *ai.ExternalServiceError
		require.True(t, errors.As(err, &ext))
		assert.Equal(t, http.StatusInternalServerError, ext.StatusCode)
		assert.Contains(t, ext.Error(), "model not loaded")
	})

	t.Run("html error page is truncated", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "<html>"+strings.Repeat("x", 1000)+"</html>")
		})
		_, err := c.Analyze(context.Background(), ai.AnalyzeRequest{Image: []byte("x")})
		var ext *ai.ExternalServiceError
		require.True(t, errors.As(err, &ext))
		assert.Less(t, len(ext.Err.Error()), 250)
	})

	t.Run("quota", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		_, err := c.Analyze(context.Background(), ai.AnalyzeRequest{Image: []byte("x")})
		assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
	})

	t.Run("garbage body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "not json")
		})
		_, err := c.Analyze(context.Background(), ai.AnalyzeRequest{Image: []byte("x")})
		var ext *ai.ExternalServiceError
		assert.True(t, errors.As(err, &ext))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		_, err := NewClient(srv.URL, time.Second, nil).Analyze(context.Background(), ai.AnalyzeRequest{Image: []byte("x")})
		var ext *ai.ExternalServiceError
		require.True(t, errors.As(err, &ext))
		assert.Zero(t, ext.StatusCode)
	})
}

func TestDownloadReport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/download-pdf/20240115_103000", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4")
	})

	data, err := c.DownloadReport(context.Background(), "20240115_103000")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	_, err = c.DownloadReport(context.Background(), "")
	assert.ErrorIs(t, err, ai.ErrNoReport)
}

func TestChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "why are my leaves yellow?", body["message"])
		_, _ = io.WriteString(w, `{"response":"Likely overwatering."}`)
	})

	resp, err := c.Chat(context.Background(), "why are my leaves yellow?")
	require.NoError(t, err)
	assert.Equal(t, "Likely overwatering.", resp)
}
