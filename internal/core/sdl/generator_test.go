package sdl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func normalized(t *testing.T, services ...Service) []Service {
	t.Helper()
	out, err := Normalize(services, NormalizeOptions{})
	require.NoError(t, err)
	return out
}

func decodeMap(t *testing.T, text string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(text), &doc))
	return doc
}

func child(t *testing.T, m map[string]any, path ...string) map[string]any {
	t.Helper()
	cur := m
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		require.True(t, ok, "missing mapping at %q", key)
		cur = next
	}
	return cur
}

// =============================================================================
// Generate Tests
// =============================================================================

func TestGenerate_Empty(t *testing.T) {
	assert.Equal(t, "", Generate(nil))
	assert.Equal(t, "", Generate([]Service{}))
}

func TestGenerate_SingleService(t *testing.T) {
	text := Generate(normalized(t, webService()))

	assert.True(t, strings.HasPrefix(text, "---\nversion: \"2.0\"\n"), text)
	assert.Contains(t, text, "services:\n  web:\n    image: nginx\n")

	doc := decodeMap(t, text)
	price := child(t, doc, "profiles", "placement", "dcloud", "pricing", "web")
	assert.Equal(t, 100, price["amount"])
	assert.Equal(t, "uakt", price["denom"])

	binding := child(t, doc, "deployment", "web", "dcloud")
	assert.Equal(t, "web", binding["profile"])
	assert.Equal(t, 1, binding["count"])
}

func TestGenerate_ComputeProfile(t *testing.T) {
	text := Generate(normalized(t, webService()))
	res := child(t, decodeMap(t, text), "profiles", "compute", "web", "resources")

	assert.Equal(t, "100m", child(t, res, "cpu")["units"])
	assert.Equal(t, "512Mi", child(t, res, "memory")["size"])
	storage, ok := res["storage"].([]any)
	require.True(t, ok)
	require.Len(t, storage, 1)
	assert.Equal(t, map[string]any{"name": "default", "size": "1Gi"}, storage[0])
	assert.NotContains(t, res, "gpu")
}

func TestGenerate_Deterministic(t *testing.T) {
	services := normalized(t, richServices()...)
	assert.Equal(t, Generate(services), Generate(services))
}

func TestGenerate_SharedPlacement(t *testing.T) {
	a := webService()
	b := webService()
	b.Title = "api"
	b.Placement.Pricing.Amount = 250

	doc := decodeMap(t, Generate(normalized(t, a, b)))
	placements := child(t, doc, "profiles", "placement")
	assert.Len(t, placements, 1)

	pricing := child(t, placements, "dcloud", "pricing")
	assert.Len(t, pricing, 2)
	assert.Equal(t, 100, child(t, pricing, "web")["amount"])
	assert.Equal(t, 250, child(t, pricing, "api")["amount"])
}

func TestGenerate_ServiceOrder(t *testing.T) {
	text := Generate(normalized(t, richServices()...))
	web := strings.Index(text, "\n  web:\n")
	api := strings.Index(text, "\n  api:\n")
	worker := strings.Index(text, "\n  worker:\n")
	require.True(t, web > 0 && api > 0 && worker > 0, text)
	assert.Less(t, web, api)
	assert.Less(t, api, worker)
}

func TestGenerate_Expose(t *testing.T) {
	text := Generate(normalized(t, richServices()...))
	web := child(t, decodeMap(t, text), "services", "web")

	expose, ok := web["expose"].([]any)
	require.True(t, ok)
	require.Len(t, expose, 2)

	first := expose[0].(map[string]any)
	assert.Equal(t, 8080, first["port"])
	assert.Equal(t, 80, first["as"])
	assert.NotContains(t, first, "proto")
	assert.Equal(t, []any{"example.com"}, first["accept"])
	assert.Equal(t, []any{map[string]any{"global": true}}, first["to"])

	second := expose[1].(map[string]any)
	assert.Equal(t, "tcp", second["proto"])
	assert.Equal(t, []any{map[string]any{"service": "api"}}, second["to"])
}

func TestGenerate_EnvAndParams(t *testing.T) {
	text := Generate(normalized(t, richServices()...))
	web := child(t, decodeMap(t, text), "services", "web")

	assert.Equal(t, []any{"MODE=prod", "EMPTY="}, web["env"])
	assert.Equal(t, []any{"/bin/sh", "-c"}, web["command"])
	data := child(t, web, "params", "storage", "data")
	assert.Equal(t, "/var/data", data["mount"])
	assert.Equal(t, true, data["readOnly"])
}

func TestGenerate_PlacementAttributesAndSigners(t *testing.T) {
	text := Generate(normalized(t, richServices()...))
	dcloud := child(t, decodeMap(t, text), "profiles", "placement", "dcloud")

	attrs := child(t, dcloud, "attributes")
	assert.Equal(t, "us-west", attrs["region"])
	assert.Equal(t, "true", attrs["tier"])
	assert.Contains(t, text, "region: us-west\n        tier: \"true\"\n")
	assert.Equal(t, []any{"akash1signer"}, child(t, dcloud, "signedBy")["anyOf"])
	assert.NotContains(t, child(t, dcloud, "signedBy"), "allOf")

	pool := child(t, decodeMap(t, text), "profiles", "placement", "gpu-pool")
	assert.NotContains(t, pool, "attributes")
	assert.NotContains(t, pool, "signedBy")
}

func TestGenerate_GPU(t *testing.T) {
	text := Generate(normalized(t, richServices()...))
	gpu := child(t, decodeMap(t, text), "profiles", "compute", "api", "resources", "gpu")

	assert.Equal(t, 1, gpu["units"])
	vendor := child(t, gpu, "attributes", "vendor")
	assert.Equal(t, []any{map[string]any{"model": "a100", "ram": "80Gi", "interface": "pcie"}}, vendor["nvidia"])
}

func TestGenerate_GPUWithoutModels(t *testing.T) {
	svc := webService()
	svc.Resources.GPU = GPU{Units: 2}
	text := Generate(normalized(t, svc))
	assert.Contains(t, text, "nvidia: null")
}

func TestGenerate_PersistentStorage(t *testing.T) {
	text := Generate(normalized(t, richServices()...))
	res := child(t, decodeMap(t, text), "profiles", "compute", "web", "resources")
	storage := res["storage"].([]any)
	require.Len(t, storage, 2)
	assert.Equal(t, map[string]any{
		"name": "data",
		"size": "10Gi",
		"attributes": map[string]any{
			"persistent": true,
			"class":      "beta2",
		},
	}, storage[1])
}
