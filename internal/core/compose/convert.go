package compose

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/artpar/sdlbuilder/internal/core/sdl"
)

// persistentVolumeSize is requested for every named volume; compose carries
// no size.
var persistentVolumeSize = sdl.Quantity{Value: 1, Unit: "Gi"}

// =============================================================================
// Conversion
// =============================================================================

// Convert parses yamlContent and converts its services with ToServices.
func Convert(yamlContent string, profile sdl.Profile) ([]sdl.Service, error) {
	spec, err := ParseComposeSpec(yamlContent)
	if err != nil {
		return nil, err
	}
	return ToServices(spec, profile)
}

// ToServices maps a parsed compose spec onto SDL services seeded from the
// given profile. Fields compose does not set keep the profile defaults.
// The result is not normalized.
func ToServices(spec *ParsedSpec, profile sdl.Profile) ([]sdl.Service, error) {
	if spec == nil || len(spec.Services) == 0 {
		return nil, ErrNoServices
	}

	titles := make(map[string]string, len(spec.Services))
	owners := make(map[string]string, len(spec.Services))
	for i, svc := range spec.Services {
		title := SanitizeName(svc.Name, i+1)
		if other, ok := owners[title]; ok {
			return nil, NewParseError("services."+svc.Name,
				fmt.Sprintf("name maps to %q, already used by service %q", title, other), ErrUnsupportedFeature)
		}
		owners[title] = svc.Name
		titles[svc.Name] = title
	}

	dependents := make(map[string][]string)
	for _, svc := range spec.Services {
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], titles[svc.Name])
		}
	}

	services := make([]sdl.Service, 0, len(spec.Services))
	for _, svc := range spec.Services {
		out, err := toService(svc, profile, titles, dependents[svc.Name])
		if err != nil {
			return nil, err
		}
		services = append(services, out)
	}
	return services, nil
}

func toService(svc Service, profile sdl.Profile, titles map[string]string, dependents []string) (sdl.Service, error) {
	field := "services." + svc.Name
	if svc.Image == "" {
		return sdl.Service{}, NewParseError(field+".build", "build is not supported, an image is required", ErrServiceNoImage)
	}

	out := sdl.NewService(profile)
	out.Title = titles[svc.Name]
	out.Image = svc.Image
	out.Command = slices.Clone(svc.Entrypoint)
	out.Args = slices.Clone(svc.Command)
	out.Env = toEnv(svc.Environment, out.Env)
	out.Expose = toExpose(svc, titles, dependents)

	if svc.Replicas > 0 {
		out.Count = svc.Replicas
	}

	if svc.Resources.CPULimit > 0 {
		out.Resources.CPU = svc.Resources.CPULimit
	}
	if svc.Resources.MemoryLimit > 0 {
		mi := math.Ceil(float64(svc.Resources.MemoryLimit) / (1 << 20))
		out.Resources.Memory = sdl.Quantity{Value: mi, Unit: "Mi"}
	}

	storage, err := toStorage(svc, out.Resources.Storage)
	if err != nil {
		return sdl.Service{}, err
	}
	out.Resources.Storage = storage

	for _, gpu := range svc.Resources.GPUs {
		units := gpu.Count
		if units <= 0 {
			units = 1
		}
		out.Resources.GPU.Units += units
		if gpu.Driver != "" {
			out.Resources.GPU.Vendor = strings.ToLower(gpu.Driver)
		}
	}

	return out, nil
}

// toEnv sorts the compose environment by key. Profile variables absent from
// the compose environment are kept.
func toEnv(environment map[string]string, base []sdl.EnvVar) []sdl.EnvVar {
	var env []sdl.EnvVar
	for _, e := range base {
		if _, ok := environment[e.Key]; !ok {
			env = append(env, e)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(environment)) {
		env = append(env, sdl.EnvVar{Key: key, Value: environment[key]})
	}
	return env
}

// toExpose turns published ports into global exposes and exposed ports into
// exposes reachable by the dependents of the service. Without dependents,
// every other service may reach an exposed port.
func toExpose(svc Service, titles map[string]string, dependents []string) []sdl.Expose {
	var expose []sdl.Expose
	for _, p := range svc.Ports {
		proto := sdl.ProtoHTTP
		if strings.EqualFold(p.Protocol, "udp") {
			proto = sdl.ProtoUDP
		}
		as := p.Published
		if as == 0 {
			as = p.Target
		}
		expose = append(expose, sdl.Expose{Port: int(p.Target), As: int(as), Proto: proto, Global: true})
	}

	to := slices.Clone(dependents)
	if len(to) == 0 {
		for name, title := range titles {
			if name != svc.Name {
				to = append(to, title)
			}
		}
	}
	slices.Sort(to)
	to = slices.Compact(to)
	if len(to) == 0 {
		return expose
	}

	for _, port := range svc.Expose {
		if slices.ContainsFunc(expose, func(e sdl.Expose) bool { return e.Port == int(port) }) {
			continue
		}
		expose = append(expose, sdl.Expose{Port: int(port), As: int(port), Proto: sdl.ProtoHTTP, To: slices.Clone(to)})
	}
	return expose
}

// toStorage keeps the ephemeral volume of the profile and adds one
// persistent volume per named or anonymous volume mount.
func toStorage(svc Service, base []sdl.Storage) ([]sdl.Storage, error) {
	storage := slices.Clone(base)
	for i, v := range svc.Volumes {
		switch v.Type {
		case VolumeMountTypeBind:
			return nil, NewParseError(
				fmt.Sprintf("services.%s.volumes[%d]", svc.Name, i),
				"bind mounts are not supported, use a named volume",
				ErrUnsupportedFeature,
			)
		case VolumeMountTypeTmpfs:
			continue
		}
		if v.Target == "" {
			return nil, NewParseError(fmt.Sprintf("services.%s.volumes[%d]", svc.Name, i), "volume target is required", ErrServiceInvalidVolume)
		}
		name := ""
		if v.Source != "" {
			name = SanitizeName(v.Source, i+1)
		}
		storage = append(storage, sdl.Storage{
			Name:       name,
			Size:       persistentVolumeSize,
			Persistent: true,
			Class:      "beta2",
			Mount:      v.Target,
			ReadOnly:   v.ReadOnly,
		})
	}
	return storage, nil
}

// SanitizeName lower-cases name and replaces every run of characters outside
// [a-z0-9] with a single dash, so that the result is a valid service or
// storage name. Names that do not start with a letter get an "s-" prefix.
// An empty result falls back to service-n.
func SanitizeName(name string, n int) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	out := b.String()
	if out == "" {
		return fmt.Sprintf("service-%d", n)
	}
	if out[0] < 'a' || out[0] > 'z' {
		out = "s-" + out
	}
	return out
}
