package plants

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() Plant {
	return Plant{
		ID:          "p-1",
		Species:     "Ficus lyrata",
		Diagnosis:   "Healthy",
		Treatments:  []string{"Clean leaves"},
		Confidence:  92,
		Severity:    SeverityLow,
		PlantHealth: HealthGood,
		Date:        time.Date(2024, 1, 14, 11, 0, 0, 0, time.UTC),
		Image:       "data:image/jpeg;base64,/9j/4AAQ",
	}
}

func TestPlant_Validate(t *testing.T) {
	assert.NoError(t, validRecord().Validate())

	noImage := validRecord()
	noImage.Image, noImage.Treatments = "", nil
	assert.NoError(t, noImage.Validate())

	edges := validRecord()
	edges.Confidence = 0
	assert.NoError(t, edges.Validate())
	edges.Confidence = 100
	assert.NoError(t, edges.Validate())

	tests := map[string]struct {
		mutate func(*Plant)
		field  string
	}{
		"missing id":       {func(p *Plant) { p.ID = "  " }, "id"},
		"unknown severity": {func(p *Plant) { p.Severity = "critical" }, "severity"},
		"upper severity":   {func(p *Plant) { p.Severity = "HIGH" }, "severity"},
		"unknown health":   {func(p *Plant) { p.PlantHealth = "radiant" }, "plant_health"},
		"empty health":     {func(p *Plant) { p.PlantHealth = "" }, "plant_health"},
		"negative conf":    {func(p *Plant) { p.Confidence = -1 }, "confidence"},
		"conf over 100":    {func(p *Plant) { p.Confidence = 100.5 }, "confidence"},
		"zero date":        {func(p *Plant) { p.Date = time.Time{} }, "date"},
		"blank treatment":  {func(p *Plant) { p.Treatments = []string{"Prune", " "} }, "treatments"},
		"image url":        {func(p *Plant) { p.Image = "https://example.com/leaf.jpg" }, "image"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p := validRecord()
			tt.mutate(&p)
			err := p.Validate()

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestPlant_ValidateInfiniteConfidence(t *testing.T) {
	p := validRecord()
	p.Confidence = math.Inf(1)
	assert.Error(t, p.Validate())
}

func TestHealth_Rank(t *testing.T) {
	assert.Equal(t, 5, HealthExcellent.Rank())
	assert.Equal(t, 4, HealthGood.Rank())
	assert.Equal(t, 3, HealthFair.Rank())
	assert.Equal(t, 2, HealthPoor.Rank())
	assert.Equal(t, 1, HealthCritical.Rank())
	assert.Zero(t, Health("unknown").Rank())

	assert.True(t, HealthGood.Healthy())
	assert.True(t, HealthExcellent.Healthy())
	assert.False(t, HealthFair.Healthy())
}

func TestPlant_DisplayName(t *testing.T) {
	p := validRecord()
	assert.Equal(t, "Ficus lyrata", p.DisplayName())
	p.Name = " Fiddle "
	assert.Equal(t, "Fiddle", p.DisplayName())
}

func TestIsImageDataURI(t *testing.T) {
	tests := map[string]bool{
		"data:image/png;base64,iVBORw0KGgo=": true,
		"data:image/webp;base64,UklGR":       true,
		"data:image/png;base64,":             false,
		"data:image/png,iVBORw0KGgo=":        false,
		"data:text/plain;base64,aGVsbG8=":    false,
		"image/png;base64,iVBORw0KGgo=":      false,
		"":                                   false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsImageDataURI(in), in)
	}
}

func TestEncodeDataURI(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	assert.Equal(t, "data:image/jpeg;base64,AQI=", EncodeDataURI("image/jpeg", []byte{1, 2}))
	// non-image types are sniffed from the bytes
	got := EncodeDataURI("application/octet-stream", png)
	assert.True(t, IsImageDataURI(got))
	assert.Contains(t, got, "data:image/png;base64,")
}

func TestPlant_JSONDateIsRFC3339(t *testing.T) {
	b, err := json.Marshal(validRecord())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"date":"2024-01-14T11:00:00Z"`)

	var p Plant
	err = json.Unmarshal([]byte(`{"id":"x","date":"2024-01-14"}`), &p)
	assert.Error(t, err)
}
