// Package api provides HTTP handlers for the SDL builder API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/artpar/sdlbuilder/internal/core/compose"
	"github.com/artpar/sdlbuilder/internal/core/sdl"
	"github.com/artpar/sdlbuilder/internal/core/transform"
	"github.com/artpar/sdlbuilder/internal/shell/api/openapi"
	"github.com/artpar/sdlbuilder/internal/shell/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxBodyBytes limits request bodies when Config.MaxBodyBytes is 0.
const DefaultMaxBodyBytes = 1 << 20

// Operation names used for metrics labels.
const (
	opExport  = "export"
	opImport  = "import"
	opCompose = "compose"
)

// =============================================================================
// Handler
// =============================================================================

// Config holds the dependencies of a Handler.
type Config struct {
	Transformer  *transform.Transformer
	Metrics      *metrics.Metrics // optional
	Logger       *slog.Logger
	Version      string
	MaxBodyBytes int64
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	t            *transform.Transformer
	metrics      *metrics.Metrics
	logger       *slog.Logger
	openapi      *openapi.Generator
	version      string
	maxBodyBytes int64
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		t:            cfg.Transformer,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		version:      cfg.Version,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if h.t == nil {
		h.t = transform.New()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}
	if h.version == "" {
		h.version = "dev"
	}
	h.openapi = newOpenAPI(h.version)
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)
	r.Use(h.logRequests)

	r.Get("/openapi.json", h.openapi.Handler())
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		r.Get("/health", h.handleHealth)

		r.Route("/api/v1/sdl", func(r chi.Router) {
			r.Get("/defaults", h.handleDefaults)
			r.Post("/export", h.handleExport)
			r.Post("/import", h.handleImport)
			r.Post("/compose", h.handleCompose)
		})
	})

	return r
}

func newOpenAPI(version string) *openapi.Generator {
	g := openapi.NewGenerator(
		openapi.WithVersion(version),
		openapi.WithServer("/"),
	)
	g.RegisterEndpoint(openapi.Endpoint{
		Method: http.MethodGet, Path: "/health", OperationID: "health",
		Summary: "Liveness check", Tag: "System", Response: HealthResponse{},
	})
	g.RegisterEndpoint(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/sdl/defaults", OperationID: "getDefaults",
		Summary: "Default service of a profile", Tag: "SDL",
		Query: []string{"profile"}, Response: ServiceResponse{},
	})
	g.RegisterEndpoint(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/sdl/export", OperationID: "exportSDL",
		Summary: "Generate SDL from services", Tag: "SDL",
		Request: ExportRequest{}, Response: ExportResponse{},
		Errors: []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	})
	g.RegisterEndpoint(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/sdl/import", OperationID: "importSDL",
		Summary: "Parse SDL into services", Tag: "SDL",
		Request: ImportRequest{}, Response: ServicesResponse{},
		Errors: []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	})
	g.RegisterEndpoint(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/sdl/compose", OperationID: "convertCompose",
		Summary: "Convert a Docker Compose file into services and SDL", Tag: "SDL",
		Request: ComposeRequest{}, Response: ComposeResponse{},
		Errors: []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	})
	return g
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

// =============================================================================
// SDL Handlers
// =============================================================================

func (h *Handler) handleDefaults(w http.ResponseWriter, r *http.Request) {
	profile := sdl.ParseProfile(r.URL.Query().Get("profile"))
	h.writeJSON(w, http.StatusOK, ServiceResponse{Service: h.t.Defaults(profile)})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !h.decode(w, r, &req) {
		return
	}

	start := time.Now()
	text, err := h.t.Export(req.Services, sdl.NormalizeOptions{
		WithSSH:      req.WithSSH,
		SSHPublicKey: req.SSHPublicKey,
	})
	h.observe(opExport, start, err)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ExportResponse{SDL: text})
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !h.decode(w, r, &req) {
		return
	}

	start := time.Now()
	services, err := h.t.Import(req.SDL, sdl.ParseProfile(req.Profile))
	h.observe(opImport, start, err)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ServicesResponse{Services: services})
}

func (h *Handler) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req ComposeRequest
	if !h.decode(w, r, &req) {
		return
	}

	start := time.Now()
	resp, err := h.convertCompose(req)
	h.observe(opCompose, start, err)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) convertCompose(req ComposeRequest) (ComposeResponse, error) {
	profile := sdl.ParseProfile(req.Profile)

	services, err := compose.Convert(req.Compose, profile)
	if err != nil {
		return ComposeResponse{}, err
	}

	opts := sdl.NormalizeOptions{
		WithSSH:      profile == sdl.ProfileSSH,
		SSHPublicKey: req.SSHPublicKey,
	}
	normalized, err := h.t.Normalize(services, opts)
	if err != nil {
		return ComposeResponse{}, err
	}
	text, err := h.t.Export(normalized, opts)
	if err != nil {
		return ComposeResponse{}, err
	}

	variables := compose.ExtractVariablesFromYAML(req.Compose)
	if variables == nil {
		variables = []string{}
	}
	return ComposeResponse{Services: normalized, SDL: text, Variables: variables}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_request")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_request")
		return false
	}
	return true
}

func (h *Handler) observe(op string, start time.Time, err error) {
	if h.metrics != nil {
		h.metrics.Observe(op, start, err)
	}
}

// writeFailure maps transform failures to 422 (500 when unexpected) and
// compose conversion errors to 422 compose_error.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	if f, ok := transform.AsFailure(err); ok {
		status := http.StatusUnprocessableEntity
		if f.Kind == transform.KindUnexpected {
			status = http.StatusInternalServerError
		}
		h.writeError(w, status, f.Message, f.Kind.Code())
		return
	}

	var parseErr *compose.ParseError
	if errors.As(err, &parseErr) || isComposeSentinel(err) {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "compose_error")
		return
	}

	h.logger.Error("unhandled error", "error", err)
	h.writeError(w, http.StatusInternalServerError, transform.UnexpectedMessage, transform.KindUnexpected.Code())
}

func isComposeSentinel(err error) bool {
	for _, target := range []error{
		compose.ErrEmptyInput,
		compose.ErrNoServices,
		compose.ErrCircularDependency,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
