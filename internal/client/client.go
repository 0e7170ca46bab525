// Package client is an HTTP client for the LeafLens record service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

const userAgent = "leafctl/1.0"

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	http    *http.Client
	baseURL string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ListPlants fetches records; q is sent as query parameters.
func (c *Client) ListPlants(ctx context.Context, q domain.Query) ([]domain.Plant, error) {
	var out []domain.Plant
	if err := c.getJSON(ctx, "/api/plants", queryValues(q), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats fetches the summary for q.
func (c *Client) Stats(ctx context.Context, q domain.Query) (domain.Summary, error) {
	var out domain.Summary
	err := c.getJSON(ctx, "/api/plants/stats", queryValues(q), &out)
	return out, err
}

func (c *Client) AddPlant(ctx context.Context, p domain.Plant) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plant: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/plants", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// DiagnoseInput is a photo plus optional context for the analyzer.
type DiagnoseInput struct {
	Image        []byte
	Filename     string
	ContentType  string
	PlantType    string
	PlantSpecies string
	Prompt       string
	Name         string
	Notes        string
}

func (c *Client) Diagnose(ctx context.Context, in DiagnoseInput) (domain.Plant, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"plant_type":    in.PlantType,
		"plant_species": in.PlantSpecies,
		"prompt":        in.Prompt,
		"name":          in.Name,
		"notes":         in.Notes,
	} {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return domain.Plant{}, err
		}
	}
	ct := in.ContentType
	if ct == "" {
		ct = http.DetectContentType(in.Image)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(in.Filename)))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return domain.Plant{}, err
	}
	if _, err := part.Write(in.Image); err != nil {
		return domain.Plant{}, err
	}
	if err := w.Close(); err != nil {
		return domain.Plant{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/diagnose", &buf)
	if err != nil {
		return domain.Plant{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out domain.Plant
	err = c.do(req, &out)
	return out, err
}

func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	body, _ := json.Marshal(map[string]string{"message": message})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Response string `json:"response"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func queryValues(q domain.Query) url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Health != "" {
		v.Set("health", q.Health)
	}
	if q.Severity != "" {
		v.Set("severity", q.Severity)
	}
	if q.SortBy != "" {
		v.Set("sort", string(q.SortBy))
	}
	return v
}
