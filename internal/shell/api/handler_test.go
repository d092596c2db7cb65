package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/artpar/sdlbuilder/internal/core/sdl"
	"github.com/artpar/sdlbuilder/internal/core/transform"
	"github.com/artpar/sdlbuilder/internal/shell/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testPublicKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8g dev@example"

const sharedPlacementSDL = `
version: "2.0"
services:
  web:
    image: nginx
    expose:
      - port: 80
        as: 80
        to:
          - global: true
  api:
    image: acme/api:1.2
profiles:
  compute:
    web:
      resources:
        cpu:
          units: 0.5
        memory:
          size: 512Mi
        storage:
          size: 1Gi
    api:
      resources:
        cpu:
          units: 1
        memory:
          size: 1Gi
        storage:
          size: 2Gi
  placement:
    dcloud:
      pricing:
        web:
          denom: uakt
          amount: 100
        api:
          denom: uakt
          amount: 200
deployment:
  web:
    dcloud:
      profile: web
      count: 1
  api:
    dcloud:
      profile: api
      count: 2
`

const wordpressCompose = `
services:
  wordpress:
    image: wordpress:latest
    ports:
      - "8080:80"
    environment:
      WORDPRESS_DB_HOST: db
      WORDPRESS_DB_PASSWORD: ${DB_PASSWORD}
    depends_on:
      - db
  db:
    image: mysql:8
    expose:
      - "3306"
    environment:
      MYSQL_ROOT_PASSWORD: ${DB_PASSWORD}
    volumes:
      - db_data:/var/lib/mysql
volumes:
  db_data:
`

type testServer struct {
	handler *Handler
	metrics *metrics.Metrics
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	m := metrics.New()
	h := NewHandler(Config{
		Transformer: transform.New(transform.WithReporter(m)),
		Metrics:     m,
		Version:     "test",
	})
	return &testServer{handler: h, metrics: m, router: h.Routes()}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func webService() sdl.Service {
	svc := sdl.NewService(sdl.ProfileCompute)
	svc.Title = "web"
	svc.Image = "nginx"
	svc.Placement.Pricing.Amount = 100
	return svc
}

// =============================================================================
// System Tests
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	resp := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestOpenAPI(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/openapi.json", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/api/v1/sdl/export"`)
	assert.Contains(t, rec.Body.String(), `"ExportRequest"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/sdl/export", ExportRequest{Services: []sdl.Service{webService()}})

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sdlbuilder_transform_operations_total{op="export",outcome="ok"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	router := NewHandler(Config{}).Routes()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Defaults Tests
// =============================================================================

func TestDefaults(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/sdl/defaults", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nginx:latest", decodeBody[ServiceResponse](t, rec).Service.Image)

	rec = s.do(t, http.MethodGet, "/api/v1/sdl/defaults?profile=ssh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ubuntu:24.04", decodeBody[ServiceResponse](t, rec).Service.Image)
}

// =============================================================================
// Export Tests
// =============================================================================

func TestExport(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/export", ExportRequest{Services: []sdl.Service{webService()}})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[ExportResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.SDL, "---\n"))
	assert.Contains(t, resp.SDL, "  web:\n    image: nginx\n")
}

func TestExport_FieldValidation(t *testing.T) {
	s := newTestServer(t)
	svc := webService()
	svc.Placement.Name = "Web-1"

	rec := s.do(t, http.MethodPost, "/api/v1/sdl/export", ExportRequest{Services: []sdl.Service{svc}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Code)
	assert.True(t, strings.HasPrefix(resp.Error, `Service "web" placement: `), resp.Error)
}

func TestExport_SSHRequiresKey(t *testing.T) {
	s := newTestServer(t)
	svc := sdl.NewService(sdl.ProfileSSH)

	rec := s.do(t, http.MethodPost, "/api/v1/sdl/export", ExportRequest{Services: []sdl.Service{svc}, WithSSH: true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sdl/export", ExportRequest{
		Services:     []sdl.Service{svc},
		WithSSH:      true,
		SSHPublicKey: testPublicKey,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody[ExportResponse](t, rec).SDL, "proto: tcp")
}

func TestExport_InvalidJSON(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/export", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody[ErrorResponse](t, rec).Code)
}

func TestExport_BodyTooLarge(t *testing.T) {
	h := NewHandler(Config{MaxBodyBytes: 16})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sdl/export",
		strings.NewReader(`{"services": [{"title": "a-very-long-title"}]}`)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// =============================================================================
// Import Tests
// =============================================================================

func TestImport_SharedPlacement(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/import", ImportRequest{SDL: sharedPlacementSDL})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	services := decodeBody[ServicesResponse](t, rec).Services
	require.Len(t, services, 2)
	assert.Equal(t, "web", services[0].Title)
	assert.Equal(t, "api", services[1].Title)
	assert.Equal(t, 2, services[1].Count)
	assert.Equal(t, "dcloud", services[0].Placement.Name)
	assert.Equal(t, "dcloud", services[1].Placement.Name)
	assert.Equal(t, 200.0, services[1].Placement.Pricing.Amount)
}

func TestImport_Blank(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/import", ImportRequest{SDL: "   "})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"services": []}`, rec.Body.String())
}

func TestImport_SyntaxError(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/import", ImportRequest{SDL: "services:\n  web: ["})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "syntax_error", resp.Code)
	assert.True(t, strings.HasPrefix(resp.Error, "Invalid SDL: "), resp.Error)
}

func TestImport_UnknownPlacement(t *testing.T) {
	s := newTestServer(t)
	text := strings.Replace(sharedPlacementSDL, "  web:\n    dcloud:", "  web:\n    westcoast:", 1)

	rec := s.do(t, http.MethodPost, "/api/v1/sdl/import", ImportRequest{SDL: text})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Code)
	assert.Equal(t, `Service "web": placement "westcoast" is not defined`, resp.Error)
}

func TestImport_TemplateError(t *testing.T) {
	s := newTestServer(t)
	text := strings.Replace(sharedPlacementSDL, `version: "2.0"`, `version: "1.0"`, 1)

	rec := s.do(t, http.MethodPost, "/api/v1/sdl/import", ImportRequest{SDL: text})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "template_error", decodeBody[ErrorResponse](t, rec).Code)
}

func TestExportImport_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/import", ImportRequest{SDL: sharedPlacementSDL})
	require.Equal(t, http.StatusOK, rec.Code)
	services := decodeBody[ServicesResponse](t, rec).Services

	rec = s.do(t, http.MethodPost, "/api/v1/sdl/export", ExportRequest{Services: services})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	text := decodeBody[ExportResponse](t, rec).SDL

	rec = s.do(t, http.MethodPost, "/api/v1/sdl/import", ImportRequest{SDL: text})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeBody[ServicesResponse](t, rec).Services

	for i := range services {
		services[i].ID = ""
		again[i].ID = ""
	}
	assert.Equal(t, services, again)
}

// =============================================================================
// Compose Tests
// =============================================================================

func TestCompose(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/compose", ComposeRequest{Compose: wordpressCompose})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[ComposeResponse](t, rec)
	require.Len(t, resp.Services, 2)
	assert.Equal(t, "db", resp.Services[0].Title)
	assert.Equal(t, "wordpress", resp.Services[1].Title)
	assert.Equal(t, []string{"DB_PASSWORD"}, resp.Variables)
	assert.Contains(t, resp.SDL, "mount: /var/lib/mysql")
	assert.Contains(t, resp.SDL, "- service: wordpress")
}

func TestCompose_NoVariables(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/compose", ComposeRequest{Compose: "services:\n  web:\n    image: nginx\n"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decodeBody[ComposeResponse](t, rec).Variables)
}

func TestCompose_SSHPublicKey(t *testing.T) {
	s := newTestServer(t)
	req := ComposeRequest{Compose: "services:\n  vm:\n    image: ubuntu:24.04\n", Profile: "ssh"}

	rec := s.do(t, http.MethodPost, "/api/v1/sdl/compose", req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Code)
	assert.Contains(t, resp.Error, "SSH public key is required")

	req.SSHPublicKey = testPublicKey
	rec = s.do(t, http.MethodPost, "/api/v1/sdl/compose", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[ComposeResponse](t, rec)
	require.Len(t, out.Services, 1)
	assert.Contains(t, out.Services[0].Env, sdl.EnvVar{Key: sdl.SSHPublicKeyEnv, Value: testPublicKey})
	assert.Contains(t, out.SDL, "AAAAC3NzaC1lZDI1NTE5AAAAIAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8g")
}

func TestCompose_Unsupported(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/compose", ComposeRequest{
		Compose: "services:\n  web:\n    image: nginx\n    volumes:\n      - ./data:/data\n",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "compose_error", resp.Code)
	assert.Contains(t, resp.Error, "bind mounts are not supported")
}

func TestCompose_Empty(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sdl/compose", ComposeRequest{Compose: ""})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "compose_error", decodeBody[ErrorResponse](t, rec).Code)
}
