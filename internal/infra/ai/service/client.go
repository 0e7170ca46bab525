// Package service is the adapter for the external analysis microservice
// reached over plain HTTP.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/leaflens/internal/domain/ai"
	"github.com/bryanwahyu/leaflens/internal/infra/ai/prompt"
)

const (
	serviceName = "analysis-service"
	// matches the collaborator's own processing ceiling
	DefaultTimeout = 180 * time.Second
	maxSnippet     = 200
)

var (
	_ ai.Analyzer     = (*Client)(nil)
	_ ai.Chatter      = (*Client)(nil)
	_ ai.ReportSource = (*Client)(nil)
)

type Client struct {
	http    *http.Client
	baseURL string
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With(zap.String("component", "analysis_client")),
	}
}

type analyzeResponse struct {
	Analysis  *prompt.RawAnalysis `json:"analysis"`
	Timestamp json.RawMessage     `json:"timestamp"`
	Error     string              `json:"error"`
}

// Analyze posts the image and form fields to /analyze.
func (c *Client) Analyze(ctx context.Context, in ai.AnalyzeRequest) (*ai.Analysis, error) {
	body, contentType, err := encodeForm(in)
	if err != nil {
		return nil, fmt.Errorf("build analyze form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp analyzeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ai.ExternalServiceError{Service: serviceName, Err: fmt.Errorf("decode analyze response: %w: %s", err, snippet(raw))}
	}
	analysis := resp.Analysis
	if analysis == nil {
		// flat body: the analysis fields sit at the top level
		var flat prompt.RawAnalysis
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, &ai.ExternalServiceError{Service: serviceName, Err: err}
		}
		analysis = &flat
	}
	out, err := analysis.Normalize()
	if err != nil {
		return nil, &ai.ExternalServiceError{Service: serviceName, Err: err}
	}
	out.ReportTimestamp = timestampString(resp.Timestamp)

	c.log.Debug("analysis received",
		zap.String("disease", out.DiseaseDetected),
		zap.Float64("confidence", out.Confidence),
		zap.String("report_timestamp", out.ReportTimestamp),
	)
	return out, nil
}

// DownloadReport fetches the PDF generated for an analysis.
func (c *Client) DownloadReport(ctx context.Context, timestamp string) ([]byte, error) {
	if timestamp == "" {
		return nil, ai.ErrNoReport
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download-pdf/"+url.PathEscape(timestamp), nil)
	if err != nil {
		return nil, fmt.Errorf("build report request: %w", err)
	}
	return c.do(req)
}

// Chat posts {message} to /chat and returns the response text.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return "", err
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &ai.ExternalServiceError{Service: serviceName, Err: fmt.Errorf("decode chat response: %w: %s", err, snippet(raw))}
	}
	return resp.Response, nil
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ai.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ai.ExternalServiceError{Service: serviceName, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ai.ErrQuotaExceeded
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ai.ExternalServiceError{Service: serviceName, StatusCode: resp.StatusCode, Err: errors.New(errorMessage(raw))}
	}
	return raw, nil
}

func encodeForm(in ai.AnalyzeRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"plant_type", in.PlantType},
		{"plant_species", in.PlantSpecies},
		{"prompt", in.Prompt},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	filename := in.Filename
	if filename == "" {
		filename = "image.jpg"
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(in.Image)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(in.Image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// errorMessage prefers the server's {"error": "..."} and falls back to a
// truncated snippet of a non-JSON body.
func errorMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return snippet(raw)
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	r := []rune(s)
	if len(r) > maxSnippet {
		return string(r[:maxSnippet]) + "..."
	}
	return s
}

// timestampString accepts the timestamp as either a JSON string or number.
func timestampString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
