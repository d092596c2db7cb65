package compose

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// ParseComposeSpec parses Docker Compose YAML into a ParsedSpec.
// This is a pure function - no I/O, no side effects.
// Services and volumes are sorted by name.
func ParseComposeSpec(yamlContent string) (*ParsedSpec, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadComposeSpec(yamlContent)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	spec := &ParsedSpec{
		Services: make([]Service, 0, len(project.Services)),
		Volumes:  make([]Volume, 0, len(project.Volumes)),
	}

	for _, name := range slices.Sorted(maps.Keys(project.Services)) {
		converted, err := convertService(project.Services[name])
		if err != nil {
			return nil, err
		}
		spec.Services = append(spec.Services, converted)
	}

	if err := detectCircularDependencies(spec.Services); err != nil {
		return nil, err
	}

	if err := validatePorts(spec.Services); err != nil {
		return nil, err
	}

	for _, name := range slices.Sorted(maps.Keys(project.Volumes)) {
		vol := project.Volumes[name]
		spec.Volumes = append(spec.Volumes, Volume{
			Name:     name,
			Driver:   vol.Driver,
			External: bool(vol.External),
		})
	}

	return spec, nil
}

// loadComposeSpec loads a compose spec using compose-go
func loadComposeSpec(yamlContent string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("sdlbuilder", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory spec: no paths to resolve, no files to extend from.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, NewParseError("", "circular dependency detected", ErrCircularDependency)
		}
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have image or build", ErrServiceNoImage)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// checkUnsupportedFeatures rejects constructs with no SDL equivalent.
func checkUnsupportedFeatures(project *types.Project) error {
	if len(project.Secrets) > 0 {
		return NewParseError("secrets", "secrets are not supported", ErrUnsupportedFeature)
	}
	if len(project.Configs) > 0 {
		return NewParseError("configs", "configs are not supported", ErrUnsupportedFeature)
	}

	for _, name := range slices.Sorted(maps.Keys(project.Services)) {
		svc := project.Services[name]
		if svc.Extends != nil && svc.Extends.File != "" {
			return NewParseError("services."+name+".extends", "extends is not supported", ErrUnsupportedFeature)
		}
	}

	return nil
}

// convertService converts a compose-go service to our Service type
func convertService(svc types.ServiceConfig) (Service, error) {
	service := Service{
		Name:        svc.Name,
		Image:       svc.Image,
		Command:     svc.Command,
		Entrypoint:  svc.Entrypoint,
		Environment: make(map[string]string),
	}

	if svc.Build != nil {
		service.Build = &BuildConfig{
			Context:    svc.Build.Context,
			Dockerfile: svc.Build.Dockerfile,
		}
	}

	if service.Image == "" && service.Build == nil {
		return Service{}, NewParseError("services."+svc.Name, "service must have image or build", ErrServiceNoImage)
	}

	for _, p := range svc.Ports {
		var published uint32
		if p.Published != "" {
			pub, err := strconv.ParseUint(p.Published, 10, 32)
			if err != nil {
				return Service{}, NewParseError(
					"services."+svc.Name+".ports",
					fmt.Sprintf("published port %q must be a single port", p.Published),
					ErrServiceInvalidPort,
				)
			}
			published = uint32(pub)
		}
		service.Ports = append(service.Ports, Port{
			Target:    p.Target,
			Published: published,
			Protocol:  p.Protocol,
			HostIP:    p.HostIP,
		})
	}

	for i, e := range svc.Expose {
		port, err := parseExposedPort(e)
		if err != nil {
			return Service{}, NewParseError(
				fmt.Sprintf("services.%s.expose[%d]", svc.Name, i),
				err.Error(),
				ErrServiceInvalidPort,
			)
		}
		service.Expose = append(service.Expose, port)
	}

	for k, v := range svc.Environment {
		if v != nil {
			service.Environment[k] = *v
		}
	}

	for _, v := range svc.Volumes {
		mount := VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		}
		switch v.Type {
		case "bind":
			mount.Type = VolumeMountTypeBind
		case "volume":
			mount.Type = VolumeMountTypeVolume
		case "tmpfs":
			mount.Type = VolumeMountTypeTmpfs
		default:
			if strings.HasPrefix(v.Source, "./") || strings.HasPrefix(v.Source, "/") || strings.HasPrefix(v.Source, "~") {
				mount.Type = VolumeMountTypeBind
			} else {
				mount.Type = VolumeMountTypeVolume
			}
		}
		service.Volumes = append(service.Volumes, mount)
	}

	service.DependsOn = slices.Sorted(maps.Keys(svc.DependsOn))

	if svc.Deploy != nil {
		if svc.Deploy.Replicas != nil {
			service.Replicas = *svc.Deploy.Replicas
		}
		// compose-go's NanoCPUs is misnamed: it holds the CPU count.
		if limits := svc.Deploy.Resources.Limits; limits != nil {
			service.Resources.CPULimit = float64(limits.NanoCPUs)
			service.Resources.MemoryLimit = int64(limits.MemoryBytes)
		}
		if reservations := svc.Deploy.Resources.Reservations; reservations != nil {
			for _, d := range reservations.Devices {
				if !slices.Contains(d.Capabilities, "gpu") {
					continue
				}
				service.Resources.GPUs = append(service.Resources.GPUs, GPURequest{
					Driver: d.Driver,
					Count:  int(d.Count),
				})
			}
		}
	}

	if service.Resources.CPULimit < 0 {
		return Service{}, NewParseError("services."+svc.Name+".deploy.resources.limits.cpus", "CPU limit cannot be negative", ErrInvalidCPU)
	}
	if service.Resources.MemoryLimit < 0 {
		return Service{}, NewParseError("services."+svc.Name+".deploy.resources.limits.memory", "memory limit cannot be negative", ErrInvalidMemory)
	}

	return service, nil
}

// parseExposedPort reads an expose entry such as "8080" or "8080/tcp".
func parseExposedPort(entry string) (uint32, error) {
	port, _, _ := strings.Cut(strings.TrimSpace(entry), "/")
	n, err := strconv.ParseUint(port, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("expose entry %q must be a single port", entry)
	}
	if n == 0 || n > 65535 {
		return 0, fmt.Errorf("expose port %d must be between 1 and 65535", n)
	}
	return uint32(n), nil
}

// detectCircularDependencies detects circular dependencies in service dependencies
func detectCircularDependencies(services []Service) error {
	deps := make(map[string][]string)
	for _, svc := range services {
		deps[svc.Name] = svc.DependsOn
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(node string) bool
	hasCycle = func(node string) bool {
		visited[node] = true
		recStack[node] = true

		for _, dep := range deps[node] {
			if dep == node {
				return true
			}
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}

		recStack[node] = false
		return false
	}

	for _, svc := range services {
		if !visited[svc.Name] {
			if hasCycle(svc.Name) {
				return ErrCircularDependency
			}
		}
	}

	return nil
}

// validatePorts validates all port configurations
func validatePorts(services []Service) error {
	for _, svc := range services {
		for i, port := range svc.Ports {
			field := fmt.Sprintf("services.%s.ports[%d]", svc.Name, i)
			if port.Target == 0 {
				return NewParseError(field, "target port cannot be 0", ErrServiceInvalidPort)
			}
			if port.Target > 65535 {
				return NewParseError(field, "target port must be <= 65535", ErrServiceInvalidPort)
			}
			if port.Published > 65535 {
				return NewParseError(field, "published port must be <= 65535", ErrServiceInvalidPort)
			}
		}
	}
	return nil
}

// =============================================================================
// Variable Extraction
// =============================================================================

// variablePlaceholderRegex matches ${VAR_NAME} or ${VAR_NAME:-default}
var variablePlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-[^}]*)?\}`)

// ExtractVariablesFromYAML extracts environment variable placeholders from raw YAML content.
// This extracts variable names before compose-go interpolates them.
// Returns unique variable names without the ${} wrapper, in order of appearance.
func ExtractVariablesFromYAML(yamlContent string) []string {
	seen := make(map[string]bool)
	var vars []string

	for _, match := range variablePlaceholderRegex.FindAllStringSubmatch(yamlContent, -1) {
		if len(match) >= 2 {
			varName := match[1]
			if !seen[varName] {
				seen[varName] = true
				vars = append(vars, varName)
			}
		}
	}

	return vars
}
