package sdl

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/artpar/sdlbuilder/internal/core/validation"
	"github.com/distribution/reference"
	"github.com/mohae/deepcopy"
	"golang.org/x/crypto/ssh"
)

// NormalizeOptions selects the field requirements applied by Normalize.
type NormalizeOptions struct {
	// WithSSH applies the SSH service requirements instead of the generic
	// compute defaults.
	WithSSH bool
	// SSHPublicKey, when set, is written into the SSH_PUBKEY variable.
	SSHPublicKey string
}

// =============================================================================
// Normalize
// =============================================================================

// Normalize prunes incomplete rows, coerces numeric fields to their canonical
// representation and validates every service.
// The input is never mutated; the returned list is a deep copy.
// Failures are *Error values with Kind == KindFieldValidation.
func Normalize(services []Service, opts NormalizeOptions) ([]Service, error) {
	if len(services) == 0 {
		return []Service{}, nil
	}

	out := deepcopy.Copy(services).([]Service)

	titles := make(map[string]int, len(out))
	for i := range out {
		svc := &out[i]
		path := fmt.Sprintf("services[%d]", i)

		if err := normalizeService(svc, path, opts); err != nil {
			return nil, err
		}

		if first, ok := titles[svc.Title]; ok {
			return nil, NewFieldError(path+".title",
				fmt.Sprintf("Service name %q is already used by service #%d", svc.Title, first+1))
		}
		titles[svc.Title] = i
	}

	if err := checkExposeTargets(out); err != nil {
		return nil, err
	}
	if err := checkPlacementGroups(out); err != nil {
		return nil, err
	}

	return out, nil
}

func normalizeService(svc *Service, path string, opts NormalizeOptions) error {
	label := serviceLabel(svc.Title, path)

	svc.Title = strings.TrimSpace(svc.Title)
	svc.Image = strings.TrimSpace(svc.Image)
	svc.Command = nilIfEmpty(svc.Command)
	svc.Args = nilIfEmpty(svc.Args)
	svc.Env = PruneEnv(svc.Env)
	svc.Placement = PrunePlacement(svc.Placement)

	if msg := validation.ValidateServiceTitle(svc.Title); msg != "" {
		return NewFieldError(path+".title", label+": "+msg)
	}
	label = serviceLabel(svc.Title, path)

	if svc.Image == "" {
		return NewFieldError(path+".image", label+": Image is required")
	}
	if _, err := reference.ParseNormalizedNamed(svc.Image); err != nil {
		return NewFieldError(path+".image", fmt.Sprintf("%s: Invalid image name %q", label, svc.Image))
	}

	if err := checkEnvKeys(svc.Env, path, label); err != nil {
		return err
	}

	switch {
	case svc.Count == 0:
		svc.Count = 1
	case svc.Count < 0:
		return NewFieldError(path+".count", label+": Count must be at least 1")
	}

	if err := normalizeResources(&svc.Resources, path+".resources", label); err != nil {
		return err
	}

	if opts.WithSSH {
		applySSHRequirements(svc, opts.SSHPublicKey)
	}

	if err := normalizeExpose(svc, path, label); err != nil {
		return err
	}

	if opts.WithSSH {
		if err := checkSSHKey(svc, path, label); err != nil {
			return err
		}
	}

	if err := normalizePlacement(&svc.Placement, path+".placement", label); err != nil {
		return err
	}

	return checkTemplateValues(svc, path, label)
}

// =============================================================================
// Resources
// =============================================================================

func normalizeResources(r *Resources, path, label string) error {
	if math.IsNaN(r.CPU) || r.CPU <= 0 {
		return NewFieldError(path+".cpu", label+": CPU must be greater than 0")
	}
	r.CPU = roundCPU(r.CPU)
	if r.CPU == 0 {
		return NewFieldError(path+".cpu", label+": CPU must be at least 1m")
	}

	mem, err := canonicalQuantity(r.Memory, DefaultMemoryUnit)
	if err != nil {
		return NewFieldError(path+".memory", fmt.Sprintf("%s: Invalid memory size %q", label, r.Memory.String()))
	}
	if mem.Value <= 0 {
		return NewFieldError(path+".memory", label+": Memory must be greater than 0")
	}
	r.Memory = mem

	if err := normalizeStorage(r, path+".storage", label); err != nil {
		return err
	}

	return normalizeGPU(&r.GPU, path+".gpu", label)
}

func normalizeStorage(r *Resources, path, label string) error {
	if len(r.Storage) == 0 {
		r.Storage = []Storage{{Name: DefaultStorageName, Size: Quantity{Value: 1, Unit: DefaultStorageUnit}}}
		return nil
	}

	ephemeral := 0
	names := make(map[string]bool, len(r.Storage))
	for i := range r.Storage {
		st := &r.Storage[i]
		p := fmt.Sprintf("%s[%d]", path, i)

		size, err := canonicalQuantity(st.Size, DefaultStorageUnit)
		if err != nil {
			return NewFieldError(p+".size", fmt.Sprintf("%s: Invalid storage size %q", label, st.Size.String()))
		}
		if size.Value <= 0 {
			return NewFieldError(p+".size", label+": Storage size must be greater than 0")
		}
		st.Size = size

		st.Name = strings.TrimSpace(st.Name)
		st.Mount = strings.TrimSpace(st.Mount)
		st.Class = strings.TrimSpace(st.Class)

		if !st.Persistent {
			ephemeral++
			if ephemeral > 1 {
				return NewFieldError(p, label+": Only one ephemeral storage is allowed")
			}
			if st.Name == "" {
				st.Name = DefaultStorageName
			}
			st.Class = ""
			st.Mount = ""
			st.ReadOnly = false
		} else {
			if st.Name == "" {
				st.Name = nextStorageName(names, i)
			}
			if st.Class == "" {
				st.Class = "beta2"
			}
			if st.Mount == "" {
				return NewFieldError(p+".mount", fmt.Sprintf("%s: Persistent storage %q requires a mount path", label, st.Name))
			}
			if !strings.HasPrefix(st.Mount, "/") {
				return NewFieldError(p+".mount", fmt.Sprintf("%s: Mount path %q must be absolute", label, st.Mount))
			}
		}

		if msg := validation.ValidateServiceTitle(st.Name); msg != "" {
			return NewFieldError(p+".name", fmt.Sprintf("%s: Invalid storage name %q", label, st.Name))
		}
		if names[st.Name] {
			return NewFieldError(p+".name", fmt.Sprintf("%s: Storage name %q is used more than once", label, st.Name))
		}
		names[st.Name] = true
	}
	return nil
}

func nextStorageName(taken map[string]bool, i int) string {
	if !taken["data"] {
		return "data"
	}
	return fmt.Sprintf("data-%d", i+1)
}

func normalizeGPU(g *GPU, path, label string) error {
	if g.Units < 0 {
		return NewFieldError(path+".units", label+": GPU units cannot be negative")
	}

	g.Vendor = strings.ToLower(strings.TrimSpace(g.Vendor))
	if g.Vendor == "" {
		g.Vendor = DefaultGPUVendor
	}

	// No request is emitted for zero units, so nothing else survives a round trip.
	if g.Units == 0 {
		g.Vendor = DefaultGPUVendor
		g.Models = nil
		return nil
	}

	var models []GPUModel
	for _, m := range g.Models {
		m.Name = strings.ToLower(strings.TrimSpace(m.Name))
		m.RAM = strings.TrimSpace(m.RAM)
		m.Interface = strings.ToLower(strings.TrimSpace(m.Interface))
		if m.Name == "" {
			continue
		}
		models = append(models, m)
	}
	g.Models = models
	return nil
}

// =============================================================================
// Expose
// =============================================================================

func normalizeExpose(svc *Service, path, label string) error {
	if len(svc.Expose) == 0 {
		svc.Expose = nil
		return nil
	}

	for i := range svc.Expose {
		e := &svc.Expose[i]
		p := fmt.Sprintf("%s.expose[%d]", path, i)

		if msg := validation.ValidatePort(e.Port); msg != "" {
			return NewFieldError(p+".port", label+": "+msg)
		}
		if e.As == 0 {
			e.As = e.Port
		}
		if msg := validation.ValidatePort(e.As); msg != "" {
			return NewFieldError(p+".as", label+": "+msg)
		}

		e.Proto = strings.ToLower(strings.TrimSpace(e.Proto))
		if e.Proto == "" {
			e.Proto = ProtoHTTP
		}
		switch e.Proto {
		case ProtoHTTP, ProtoTCP, ProtoUDP:
		default:
			return NewFieldError(p+".proto", fmt.Sprintf("%s: Unsupported protocol %q", label, e.Proto))
		}

		e.Accept = pruneStrings(e.Accept)
		e.To = pruneStrings(e.To)
	}
	return nil
}

// checkExposeTargets verifies that every expose "to" entry names a service
// of the list.
func checkExposeTargets(services []Service) error {
	titles := make(map[string]bool, len(services))
	for _, svc := range services {
		titles[svc.Title] = true
	}
	for i, svc := range services {
		for j, e := range svc.Expose {
			for _, to := range e.To {
				if !titles[to] || to == svc.Title {
					return NewFieldError(fmt.Sprintf("services[%d].expose[%d].to", i, j),
						fmt.Sprintf("Service %q: port %d cannot be exposed to unknown service %q", svc.Title, e.Port, to))
				}
			}
		}
	}
	return nil
}

// =============================================================================
// SSH Requirements
// =============================================================================

func applySSHRequirements(svc *Service, publicKey string) {
	found := false
	for i := range svc.Expose {
		if svc.Expose[i].Port == SSHPort {
			svc.Expose[i].Proto = ProtoTCP
			svc.Expose[i].Global = true
			found = true
		}
	}
	if !found {
		svc.Expose = append(svc.Expose, Expose{Port: SSHPort, As: SSHPort, Proto: ProtoTCP, Global: true})
	}

	publicKey = strings.TrimSpace(publicKey)
	for i := range svc.Env {
		if svc.Env[i].Key == SSHPublicKeyEnv {
			if publicKey != "" {
				svc.Env[i].Value = publicKey
			}
			return
		}
	}
	svc.Env = append(svc.Env, EnvVar{Key: SSHPublicKeyEnv, Value: publicKey})
}

func checkSSHKey(svc *Service, path, label string) error {
	for i, env := range svc.Env {
		if env.Key != SSHPublicKeyEnv {
			continue
		}
		p := fmt.Sprintf("%s.env[%d]", path, i)
		if strings.TrimSpace(env.Value) == "" {
			return NewFieldError(p, label+": SSH public key is required")
		}
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(env.Value)); err != nil {
			return NewFieldError(p, label+": Invalid SSH public key")
		}
		return nil
	}
	return NewFieldError(path+".env", label+": SSH public key is required")
}

// =============================================================================
// Placement
// =============================================================================

func normalizePlacement(p *Placement, path, label string) error {
	p.Name = strings.TrimSpace(p.Name)
	if msg := validation.ValidatePlacementName(p.Name); msg != "" {
		return NewFieldError(path+".name", label+" placement: "+msg)
	}

	p.Pricing.Denom = strings.TrimSpace(p.Pricing.Denom)
	if p.Pricing.Denom == "" {
		p.Pricing.Denom = DefaultDenom
	}
	if msg := validation.ValidatePricingAmount(p.Pricing.Amount); msg != "" {
		return NewFieldError(path+".pricing.amount", label+" placement: "+msg)
	}

	keys := make(map[string]bool, len(p.Attributes))
	for i, attr := range p.Attributes {
		if keys[attr.Key] {
			return NewFieldError(fmt.Sprintf("%s.attributes[%d]", path, i),
				fmt.Sprintf("%s placement: Attribute %q is defined more than once", label, attr.Key))
		}
		keys[attr.Key] = true
	}
	return nil
}

// checkPlacementGroups verifies that services sharing a placement name agree
// on its attributes and signers, since they are emitted as one block.
func checkPlacementGroups(services []Service) error {
	first := make(map[string]int)
	for i, svc := range services {
		j, ok := first[svc.Placement.Name]
		if !ok {
			first[svc.Placement.Name] = i
			continue
		}
		a, b := services[j].Placement, svc.Placement
		if !slices.Equal(a.Attributes, b.Attributes) ||
			!slices.Equal(a.SignedBy.AnyOf, b.SignedBy.AnyOf) ||
			!slices.Equal(a.SignedBy.AllOf, b.SignedBy.AllOf) {
			return NewFieldError(fmt.Sprintf("services[%d].placement", i),
				fmt.Sprintf("Service %q placement: %q must have the same attributes and signers as in service %q",
					svc.Title, svc.Placement.Name, services[j].Title))
		}
	}
	return nil
}

// =============================================================================
// Template Values
// =============================================================================

// placeholderMarker opens a substitution. Parse rejects it anywhere in the
// text, so a normalized list must not carry it either.
const placeholderMarker = "${"

type textValue struct {
	field string
	value string
}

func checkTemplateValues(svc *Service, path, label string) error {
	for _, tv := range textValues(svc, path) {
		if strings.Contains(tv.value, placeholderMarker) {
			return NewFieldError(tv.field,
				fmt.Sprintf("%s: Template placeholder in %q is not supported", label, tv.value))
		}
	}
	return nil
}

// textValues lists the free-text fields written out by Generate. Titles,
// images and names are left out as their own rules already exclude "$".
func textValues(svc *Service, path string) []textValue {
	var out []textValue
	add := func(field string, values ...string) {
		for _, v := range values {
			out = append(out, textValue{field: field, value: v})
		}
	}

	for i, e := range svc.Env {
		add(fmt.Sprintf("%s.env[%d]", path, i), e.Key, e.Value)
	}
	for i, c := range svc.Command {
		add(fmt.Sprintf("%s.command[%d]", path, i), c)
	}
	for i, a := range svc.Args {
		add(fmt.Sprintf("%s.args[%d]", path, i), a)
	}
	for i, e := range svc.Expose {
		for j, a := range e.Accept {
			add(fmt.Sprintf("%s.expose[%d].accept[%d]", path, i, j), a)
		}
	}

	r := svc.Resources
	for i, st := range r.Storage {
		p := fmt.Sprintf("%s.resources.storage[%d]", path, i)
		add(p+".mount", st.Mount)
		add(p+".class", st.Class)
	}
	add(path+".resources.gpu.vendor", r.GPU.Vendor)
	for i, m := range r.GPU.Models {
		add(fmt.Sprintf("%s.resources.gpu.models[%d]", path, i), m.Name, m.RAM, m.Interface)
	}

	p := svc.Placement
	for i, a := range p.Attributes {
		add(fmt.Sprintf("%s.placement.attributes[%d]", path, i), a.Key, a.Value)
	}
	for i, s := range p.SignedBy.AnyOf {
		add(fmt.Sprintf("%s.placement.signedBy.anyOf[%d]", path, i), s)
	}
	for i, s := range p.SignedBy.AllOf {
		add(fmt.Sprintf("%s.placement.signedBy.allOf[%d]", path, i), s)
	}
	add(path+".placement.pricing.denom", p.Pricing.Denom)
	return out
}

// =============================================================================
// Pruning
// =============================================================================

// PrunePlacement removes attributes with a blank key or value and signers
// with a blank value. Kept entries are trimmed.
func PrunePlacement(p Placement) Placement {
	var attrs []Attribute
	for _, a := range p.Attributes {
		a.Key = strings.TrimSpace(a.Key)
		a.Value = strings.TrimSpace(a.Value)
		if a.Key == "" || a.Value == "" {
			continue
		}
		attrs = append(attrs, a)
	}
	p.Attributes = attrs
	p.SignedBy = SignedBy{
		AnyOf: pruneStrings(p.SignedBy.AnyOf),
		AllOf: pruneStrings(p.SignedBy.AllOf),
	}
	return p
}

// PruneEnv removes variables with a blank key.
func PruneEnv(env []EnvVar) []EnvVar {
	var out []EnvVar
	for _, e := range env {
		e.Key = strings.TrimSpace(e.Key)
		if e.Key == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

func checkEnvKeys(env []EnvVar, path, label string) error {
	seen := make(map[string]bool, len(env))
	for i, e := range env {
		if strings.Contains(e.Key, "=") {
			return NewFieldError(fmt.Sprintf("%s.env[%d]", path, i),
				fmt.Sprintf("%s: Invalid environment variable name %q", label, e.Key))
		}
		if seen[e.Key] {
			return NewFieldError(fmt.Sprintf("%s.env[%d]", path, i),
				fmt.Sprintf("%s: Environment variable %q is defined more than once", label, e.Key))
		}
		seen[e.Key] = true
	}
	return nil
}

func pruneStrings(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func nilIfEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}

func serviceLabel(title, path string) string {
	if strings.TrimSpace(title) == "" {
		return "Service at " + path
	}
	return fmt.Sprintf("Service %q", strings.TrimSpace(title))
}
