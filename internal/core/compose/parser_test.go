package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const singleServiceCompose = `
services:
  app:
    image: nginx:latest
`

const shopCompose = `
services:
  web:
    image: nginx:latest
    ports: ["80:80"]
    depends_on: [api]
  api:
    image: acme/shop-api:1.0
    environment:
      DB_HOST: db
    depends_on: [db]
  db:
    image: postgres:15
    volumes:
      - pgdata:/var/lib/postgresql/data
volumes:
  pgdata:
`

const blogCompose = `
services:
  wordpress:
    image: wordpress:latest
    ports: ["8080:80"]
    environment:
      WORDPRESS_DB_HOST: db
      WORDPRESS_DB_PASSWORD: ${DB_PASSWORD}
    volumes:
      - wordpress_data:/var/www/html
    depends_on: [db]
  db:
    image: mysql:8
    environment:
      MYSQL_ROOT_PASSWORD: ${DB_PASSWORD}
    volumes:
      - db_data:/var/lib/mysql
volumes:
  wordpress_data:
  db_data:
`

const limitsCompose = `
services:
  api:
    image: acme/shop-api:1.0
    deploy:
      resources:
        limits:
          cpus: "2.0"
          memory: 1G
`

const buildOnlyCompose = `
services:
  app:
    build:
      context: ./app
`

func parseOne(t *testing.T, yaml string) Service {
	t.Helper()
	spec, err := ParseComposeSpec(yaml)
	require.NoError(t, err)
	require.Len(t, spec.Services, 1)
	return spec.Services[0]
}

// =============================================================================
// Rejected Input Tests
// =============================================================================

func TestParseComposeSpec_Rejected(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"empty", "", ErrEmptyInput},
		{"whitespace", "  \n\t ", ErrEmptyInput},
		{"invalid yaml", "services: [", ErrInvalidYAML},
		{"no services", "services: {}", ErrNoServices},
		{"no image or build", "services:\n  app:\n    ports: [\"80:80\"]\n", ErrServiceNoImage},
		{"zero target port", "services:\n  app:\n    image: nginx\n    ports:\n      - target: 0\n        published: 8080\n", ErrServiceInvalidPort},
		{"published port too high", "services:\n  app:\n    image: nginx\n    ports:\n      - target: 80\n        published: 70000\n", ErrServiceInvalidPort},
		{"expose range", "services:\n  db:\n    image: postgres:15\n    expose: [\"5432-5433\"]\n", ErrServiceInvalidPort},
		{"dependency cycle", "services:\n  a:\n    image: nginx\n    depends_on: [b]\n  b:\n    image: nginx\n    depends_on: [a]\n", ErrCircularDependency},
		{"self dependency", "services:\n  a:\n    image: nginx\n    depends_on: [a]\n", ErrCircularDependency},
		{"secrets", "services:\n  app:\n    image: nginx\n    secrets: [token]\nsecrets:\n  token:\n    file: ./token.txt\n", ErrUnsupportedFeature},
		{"configs", "services:\n  app:\n    image: nginx\n    configs: [conf]\nconfigs:\n  conf:\n    file: ./app.conf\n", ErrUnsupportedFeature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseComposeSpec(tt.yaml)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// =============================================================================
// Service Tests
// =============================================================================

func TestParseComposeSpec_ServicesSortedByName(t *testing.T) {
	spec, err := ParseComposeSpec(shopCompose)
	require.NoError(t, err)

	var names []string
	for _, s := range spec.Services {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"api", "db", "web"}, names)
	assert.Equal(t, []string{"api"}, spec.Services[2].DependsOn)
}

func TestParseComposeSpec_BuildOnly(t *testing.T) {
	svc := parseOne(t, buildOnlyCompose)
	assert.Empty(t, svc.Image)
	assert.NotNil(t, svc.Build)
}

func TestParseComposeSpec_DependsOnLongForm(t *testing.T) {
	spec, err := ParseComposeSpec(`
services:
  web:
    image: nginx:latest
    depends_on:
      redis:
        condition: service_started
      db:
        condition: service_healthy
  db:
    image: postgres:15
  redis:
    image: redis:7
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "redis"}, spec.Services[2].DependsOn)
}

// =============================================================================
// Port Tests
// =============================================================================

func TestParseComposeSpec_Ports(t *testing.T) {
	svc := parseOne(t, `
services:
  app:
    image: acme/app
    ports:
      - "8080:80"
      - "53:53/udp"
      - target: 9000
        published: 9090
        protocol: tcp
`)
	require.Len(t, svc.Ports, 3)
	assert.Equal(t, uint32(80), svc.Ports[0].Target)
	assert.Equal(t, uint32(8080), svc.Ports[0].Published)
	assert.Equal(t, "udp", svc.Ports[1].Protocol)
	assert.Equal(t, Port{Target: 9000, Published: 9090, Protocol: "tcp"}, svc.Ports[2])
}

func TestParseComposeSpec_Expose(t *testing.T) {
	svc := parseOne(t, `
services:
  db:
    image: postgres:15
    expose:
      - "5432"
      - 9187/tcp
`)
	assert.Equal(t, []uint32{5432, 9187}, svc.Expose)
}

// =============================================================================
// Volume Tests
// =============================================================================

func TestParseComposeSpec_VolumeMounts(t *testing.T) {
	svc := parseOne(t, `
services:
  app:
    image: nginx:latest
    volumes:
      - ./html:/usr/share/nginx/html
      - cache:/var/cache
      - type: volume
        source: uploads
        target: /srv/uploads
        read_only: true
      - type: tmpfs
        target: /tmp
volumes:
  cache:
  uploads:
`)
	require.Len(t, svc.Volumes, 4)

	assert.Equal(t, VolumeMountTypeBind, svc.Volumes[0].Type)
	assert.Equal(t, VolumeMountTypeVolume, svc.Volumes[1].Type)
	assert.Equal(t, VolumeMount{Type: VolumeMountTypeVolume, Source: "uploads", Target: "/srv/uploads", ReadOnly: true}, svc.Volumes[2])
	assert.Equal(t, VolumeMountTypeTmpfs, svc.Volumes[3].Type)
}

// =============================================================================
// Environment Tests
// =============================================================================

func TestParseComposeSpec_EnvironmentInterpolated(t *testing.T) {
	svc := parseOne(t, `
services:
  app:
    image: acme/app
    environment:
      - MODE=prod
      - API_KEY=${API_KEY:-none}
      - DB_PASSWORD=${DB_PASSWORD}
`)
	assert.Equal(t, map[string]string{"MODE": "prod", "API_KEY": "none", "DB_PASSWORD": ""}, svc.Environment)
}

func TestExtractVariablesFromYAML(t *testing.T) {
	vars := ExtractVariablesFromYAML(`
services:
  app:
    image: acme/app:${TAG:-latest}
    environment:
      HOST: ${HOST}
      URL: http://${HOST}:${PORT}
`)
	assert.Equal(t, []string{"TAG", "HOST", "PORT"}, vars)
	assert.Equal(t, []string{"DB_PASSWORD"}, ExtractVariablesFromYAML(blogCompose))
	assert.Empty(t, ExtractVariablesFromYAML(singleServiceCompose))
}

// =============================================================================
// Resource Tests
// =============================================================================

func TestParseComposeSpec_ResourceLimits(t *testing.T) {
	res := parseOne(t, limitsCompose).Resources
	assert.Equal(t, 2.0, res.CPULimit)
	assert.Equal(t, int64(1<<30), res.MemoryLimit)
	assert.Empty(t, res.GPUs)
}

func TestParseComposeSpec_Replicas(t *testing.T) {
	svc := parseOne(t, "services:\n  app:\n    image: nginx\n    deploy:\n      replicas: 3\n")
	assert.Equal(t, 3, svc.Replicas)
}

func TestParseComposeSpec_GPUReservations(t *testing.T) {
	svc := parseOne(t, `
services:
  trainer:
    image: pytorch/pytorch:latest
    deploy:
      resources:
        reservations:
          devices:
            - driver: nvidia
              count: 2
              capabilities: [gpu]
            - driver: fpga
              count: 1
              capabilities: [compute]
            - capabilities: [gpu]
              count: all
`)
	assert.Equal(t, []GPURequest{
		{Driver: "nvidia", Count: 2},
		{Count: -1},
	}, svc.Resources.GPUs)
}
