package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appai "github.com/bryanwahyu/leaflens/internal/application/ai"
	appplants "github.com/bryanwahyu/leaflens/internal/application/plants"
	domai "github.com/bryanwahyu/leaflens/internal/domain/ai"
	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
	"github.com/bryanwahyu/leaflens/internal/middleware"
)

const (
	msgFetchFailed    = "Failed to fetch plants"
	msgAddFailed      = "Failed to add plant"
	msgAdded          = "Plant added successfully"
	msgDuplicate      = "Plant already exists"
	msgAnalyzeFailed  = "Failed to analyze plant"
	msgChatFailed     = "Failed to get chat response"
	msgQuotaExceeded  = "AI quota exceeded, please try again later"
	msgStatsFailed    = "Failed to compute stats"
	maxPlantBodyBytes = 16 << 20
	maxChatBodyBytes  = 64 << 10
)

type Options struct {
	Log         *zap.Logger
	CORSOrigins []string
	// Limiter guards the AI endpoints; nil disables limiting.
	Limiter *middleware.RateLimiter
	Checks  map[string]middleware.HealthChecker
}

type Router struct {
	plantsSvc *appplants.Service
	chatSvc   *appai.Service
	log       *zap.Logger
}

func NewRouter(plantsSvc *appplants.Service, chatSvc *appai.Service, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{plantsSvc: plantsSvc, chatSvc: chatSvc, log: log.With(zap.String("component", "router"))}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(log))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.Checks))
	mux.Get("/ready", middleware.ReadinessHandler(opts.Checks, "store"))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/api", func(rt chi.Router) {
		rt.Get("/plants", r.wrap(msgFetchFailed, r.handleList))
		rt.Post("/plants", r.wrap(msgAddFailed, r.handleAdd))
		rt.Get("/plants/stats", r.wrap(msgStatsFailed, r.handleStats))

		rt.Group(func(ai chi.Router) {
			ai.Use(middleware.RateLimit(opts.Limiter))
			ai.Post("/diagnose", r.wrap(msgAnalyzeFailed, r.handleDiagnose))
			ai.Post("/chat", r.wrap(msgChatFailed, r.handleChat))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries a status and a client-safe message.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// wrap maps handler errors onto JSON error responses. fallback is the
// message for every failure that is not the client's fault.
func (r *Router) wrap(fallback string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		status, msg := http.StatusInternalServerError, fallback
		var (
			he  *httpError
			ext *domai.ExternalServiceError
		)
		switch {
		case errors.As(err, &he):
			status, msg = he.status, he.msg
		case errors.Is(err, domain.ErrDuplicateID):
			status, msg = http.StatusConflict, msgDuplicate
		case errors.Is(err, domai.ErrQuotaExceeded):
			status, msg = http.StatusTooManyRequests, msgQuotaExceeded
		case errors.As(err, &ext):
			status = http.StatusBadGateway
		}

		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", status),
			zap.String("request_id", chimw.GetReqID(req.Context())),
			zap.Error(err),
		}
		if status >= 500 {
			r.log.Error("request failed", fields...)
		} else {
			r.log.Info("request rejected", fields...)
		}
		writeJSON(w, status, map[string]string{"error": msg})
	}
}

// GET /api/plants?search=&health=&severity=&sort=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	list, err := r.plantsSvc.List(req.Context(), domain.ParseQuery(req.URL.Query()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /api/plants/stats?search=&health=&severity=
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	sum, err := r.plantsSvc.Stats(req.Context(), domain.ParseQuery(req.URL.Query()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sum)
	return nil
}

// POST /api/plants
// Body: a Plant record as JSON.
func (r *Router) handleAdd(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxPlantBodyBytes)
	var p domain.Plant
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		return badRequest("Invalid plant: %s", decodeReason(err))
	}

	if _, err := r.plantsSvc.Add(req.Context(), p); err != nil {
		if domain.IsValidation(err) {
			return badRequest("Invalid plant: %s", err.Error())
		}
		return err
	}
	middleware.IncrementPlantsAdded()
	writeJSON(w, http.StatusOK, map[string]string{"message": msgAdded})
	return nil
}

// POST /api/diagnose
// Multipart: image (required), plant_type, plant_species, prompt, name, notes.
func (r *Router) handleDiagnose(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, middleware.MaxImageBytes+1<<20)
	if err := req.ParseMultipartForm(middleware.MaxImageBytes); err != nil {
		return badRequest("Invalid upload: %s", decodeReason(err))
	}
	if req.MultipartForm != nil {
		defer req.MultipartForm.RemoveAll()
	}

	file, header, err := req.FormFile("image")
	if err != nil {
		return badRequest("Invalid upload: image is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, middleware.MaxImageBytes+1))
	if err != nil {
		return badRequest("Invalid upload: %s", err.Error())
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if err := middleware.ValidateImageUpload(contentType, int64(len(data))); err != nil {
		return badRequest("Invalid upload: %s", err.Error())
	}

	rec, err := r.plantsSvc.Diagnose(req.Context(), appplants.DiagnoseCommand{
		Image:        data,
		Filename:     header.Filename,
		ContentType:  contentType,
		PlantType:    middleware.SanitizeString(req.FormValue("plant_type")),
		PlantSpecies: middleware.SanitizeString(req.FormValue("plant_species")),
		Prompt:       middleware.SanitizeString(req.FormValue("prompt")),
		Name:         middleware.SanitizeString(req.FormValue("name")),
		Notes:        middleware.SanitizeString(req.FormValue("notes")),
	})
	middleware.IncrementDiagnoses(err != nil)
	if err != nil {
		if domain.IsValidation(err) && !isExternal(err) {
			return badRequest("Invalid upload: %s", err.Error())
		}
		return err
	}
	middleware.IncrementPlantsAdded()
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// POST /api/chat
// Body: {"message": "..."}
func (r *Router) handleChat(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxChatBodyBytes)
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("Invalid message: %s", decodeReason(err))
	}
	msg := middleware.SanitizeString(body.Message)
	if err := middleware.ValidateMessage(msg); err != nil {
		return badRequest("Invalid message: %s", err.Error())
	}

	middleware.IncrementChats()
	resp, err := r.chatSvc.Chat(req.Context(), msg)
	if err != nil {
		if errors.Is(err, appai.ErrEmptyMessage) {
			return badRequest("Invalid message: %s", err.Error())
		}
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
	return nil
}

func isExternal(err error) bool {
	var ext *domai.ExternalServiceError
	return errors.As(err, &ext)
}

// decodeReason shortens body decoding errors for clients.
func decodeReason(err error) string {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Sprintf("body exceeds %d bytes", mbe.Limit)
	}
	if errors.Is(err, io.EOF) {
		return "empty body"
	}
	return strings.TrimPrefix(err.Error(), "json: ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
