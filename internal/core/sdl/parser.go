package sdl

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/artpar/sdlbuilder/internal/core/validation"
	"gopkg.in/yaml.v3"
)

// ParseOptions selects the defaults used for fields missing from the text.
type ParseOptions struct {
	Profile Profile
}

var supportedVersions = map[string]bool{"2.0": true, "2.1": true}

// =============================================================================
// Parse
// =============================================================================

// Parse reads the simple subset of the SDL back into a services list.
// Services are returned in declaration order with fields absent from the text
// filled from the selected defaults profile. Absent lists stay empty.
// Failures are *Error values of kind KindSyntax, KindSemanticValidation or
// KindTemplate. A missing section, binding or required field is KindSyntax;
// a name that resolves to nothing is KindSemanticValidation.
func Parse(text string, opts ParseOptions) ([]Service, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewSyntaxError("", "SDL is empty", ErrEmptyInput)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, NewSyntaxError("", "Invalid SDL: "+strings.TrimPrefix(err.Error(), "yaml: "), err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, NewSyntaxError("", "SDL is empty", ErrEmptyInput)
	}
	root := resolve(doc.Content[0])
	if root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null" {
		return nil, NewSyntaxError("", "SDL is empty", ErrEmptyInput)
	}
	if root.Kind != yaml.MappingNode {
		return nil, NewSyntaxError("", "SDL must be a mapping of sections", nil)
	}

	if err := checkPlaceholders(root); err != nil {
		return nil, err
	}

	p := &parser{profile: opts.Profile}
	if err := p.readSections(root); err != nil {
		return nil, err
	}
	return p.services()
}

// =============================================================================
// Parser State
// =============================================================================

type parser struct {
	profile Profile

	serviceNodes []entry
	declared     map[string]bool
	compute      map[string]*yaml.Node
	placement    map[string]*yaml.Node
	deployment   map[string]*yaml.Node
}

func (p *parser) readSections(root *yaml.Node) error {
	sections, err := mappingEntries(root, "SDL")
	if err != nil {
		return err
	}
	for _, s := range sections {
		switch s.key {
		case "version", "services", "profiles", "deployment":
		default:
			return NewTemplateError(s.key, fmt.Sprintf("Section %q is not supported", s.key))
		}
	}

	version, ok := lookup(sections, "version")
	if !ok {
		return NewSyntaxError("version", "SDL version is missing", nil)
	}
	v, err := scalarValue(version, "version")
	if err != nil {
		return err
	}
	if !supportedVersions[v] {
		return NewTemplateError("version", fmt.Sprintf("SDL version %q is not supported", v))
	}

	services, ok := lookup(sections, "services")
	if !ok {
		return NewSyntaxError("services", "No services are defined", nil)
	}
	if p.serviceNodes, err = mappingEntries(services, "services"); err != nil {
		return err
	}
	if len(p.serviceNodes) == 0 {
		return NewSyntaxError("services", "No services are defined", nil)
	}
	p.declared = make(map[string]bool, len(p.serviceNodes))
	for _, s := range p.serviceNodes {
		p.declared[s.key] = true
	}

	profiles, ok := lookup(sections, "profiles")
	if !ok {
		return NewSyntaxError("profiles", "Profiles section is missing", nil)
	}
	profileSections, err := mappingEntries(profiles, "profiles")
	if err != nil {
		return err
	}
	for _, s := range profileSections {
		if s.key != "compute" && s.key != "placement" {
			return NewTemplateError("profiles."+s.key, fmt.Sprintf("Profile section %q is not supported", s.key))
		}
	}
	if p.compute, err = namedSection(profileSections, "compute", "profiles.compute"); err != nil {
		return err
	}
	if p.placement, err = namedSection(profileSections, "placement", "profiles.placement"); err != nil {
		return err
	}
	if p.deployment, err = namedSection(sections, "deployment", "deployment"); err != nil {
		return err
	}

	for _, name := range slices.Sorted(maps.Keys(p.deployment)) {
		if !p.declared[name] {
			return NewSemanticError("deployment."+name,
				fmt.Sprintf("Service %q is deployed but not defined in services", name))
		}
	}
	return nil
}

// namedSection returns the entries of a required mapping section keyed by name.
// An absent or empty section is a structural failure.
func namedSection(entries []entry, key, field string) (map[string]*yaml.Node, error) {
	n, ok := lookup(entries, key)
	if !ok {
		return nil, NewSyntaxError(field, fmt.Sprintf("Section %q is missing", field), nil)
	}
	items, err := mappingEntries(n, field)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, NewSyntaxError(field, fmt.Sprintf("Section %q is empty", field), nil)
	}
	out := make(map[string]*yaml.Node, len(items))
	for _, it := range items {
		out[it.key] = it.value
	}
	return out, nil
}

func (p *parser) services() ([]Service, error) {
	out := make([]Service, 0, len(p.serviceNodes))
	for _, s := range p.serviceNodes {
		svc, err := p.service(s.key, s.value)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// newService returns profile defaults with every list field cleared, since
// an absent list in the text is meaningful.
func (p *parser) newService(title string) Service {
	svc := NewService(p.profile)
	svc.Title = title
	svc.Image = ""
	svc.Command = nil
	svc.Args = nil
	svc.Env = nil
	svc.Expose = nil
	svc.Placement.Attributes = nil
	svc.Placement.SignedBy = SignedBy{}
	return svc
}

// =============================================================================
// Services
// =============================================================================

func (p *parser) service(name string, node *yaml.Node) (Service, error) {
	field := "services." + name
	svc := p.newService(name)

	fields, err := mappingEntries(node, field)
	if err != nil {
		return Service{}, err
	}

	var params []entry
	for _, f := range fields {
		ff := field + "." + f.key
		switch f.key {
		case "image":
			if svc.Image, err = scalarValue(f.value, ff); err != nil {
				return Service{}, err
			}
		case "command":
			if svc.Command, err = stringList(f.value, ff); err != nil {
				return Service{}, err
			}
		case "args":
			if svc.Args, err = stringList(f.value, ff); err != nil {
				return Service{}, err
			}
		case "env":
			if svc.Env, err = envList(f.value, ff); err != nil {
				return Service{}, err
			}
		case "expose":
			if svc.Expose, err = p.exposeList(name, f.value, ff); err != nil {
				return Service{}, err
			}
		case "params":
			if params, err = storageParams(f.value, ff); err != nil {
				return Service{}, err
			}
		case "credentials", "dependencies":
			return Service{}, NewTemplateError(ff, fmt.Sprintf("Service %q: %s are not supported", name, f.key))
		default:
			return Service{}, NewTemplateError(ff, fmt.Sprintf("Service %q: field %q is not supported", name, f.key))
		}
	}
	if svc.Image == "" {
		return Service{}, NewSyntaxError(field+".image", fmt.Sprintf("Service %q: Image is required", name), nil)
	}

	b, err := p.binding(name)
	if err != nil {
		return Service{}, err
	}
	svc.Count = b.count

	compute, ok := p.compute[b.profile]
	if !ok {
		return Service{}, NewSemanticError("profiles.compute."+b.profile,
			fmt.Sprintf("Service %q: compute profile %q is not defined", name, b.profile))
	}
	if err := p.resources(&svc.Resources, compute, "profiles.compute."+b.profile); err != nil {
		return Service{}, err
	}
	if err := applyParams(&svc, params, field+".params.storage"); err != nil {
		return Service{}, err
	}

	group, ok := p.placement[b.placement]
	if !ok {
		return Service{}, NewSemanticError("deployment."+name+"."+b.placement,
			fmt.Sprintf("Service %q: placement %q is not defined", name, b.placement))
	}
	svc.Placement.Name = b.placement
	if err := p.placementGroup(&svc.Placement, group, b.profile, name); err != nil {
		return Service{}, err
	}

	return svc, nil
}

func envList(n *yaml.Node, field string) ([]EnvVar, error) {
	values, err := stringList(n, field)
	if err != nil {
		return nil, err
	}
	var env []EnvVar
	for _, v := range values {
		key, value, _ := strings.Cut(v, "=")
		env = append(env, EnvVar{Key: strings.TrimSpace(key), Value: value})
	}
	return env, nil
}

func (p *parser) exposeList(svcName string, n *yaml.Node, field string) ([]Expose, error) {
	items, err := sequenceItems(n, field)
	if err != nil {
		return nil, err
	}
	var out []Expose
	for i, item := range items {
		itemField := fmt.Sprintf("%s[%d]", field, i)
		e, err := p.expose(svcName, item, itemField)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *parser) expose(svcName string, n *yaml.Node, field string) (Expose, error) {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return Expose{}, err
	}

	e := Expose{Proto: ProtoHTTP}
	hasPort := false
	for _, f := range fields {
		ff := field + "." + f.key
		switch f.key {
		case "port":
			if e.Port, err = intValue(f.value, ff); err != nil {
				return Expose{}, err
			}
			hasPort = true
		case "as":
			if e.As, err = intValue(f.value, ff); err != nil {
				return Expose{}, err
			}
		case "proto":
			proto, err := scalarValue(f.value, ff)
			if err != nil {
				return Expose{}, err
			}
			e.Proto = strings.ToLower(proto)
		case "accept":
			if e.Accept, err = stringList(f.value, ff); err != nil {
				return Expose{}, err
			}
		case "to":
			if err := p.exposeTargets(&e, svcName, f.value, ff); err != nil {
				return Expose{}, err
			}
		case "http_options":
			return Expose{}, NewTemplateError(ff, fmt.Sprintf("Service %q: http_options are not supported", svcName))
		default:
			return Expose{}, NewTemplateError(ff, fmt.Sprintf("Service %q: expose field %q is not supported", svcName, f.key))
		}
	}

	if !hasPort {
		return Expose{}, NewSyntaxError(field+".port", fmt.Sprintf("Service %q: exposed port is required", svcName), nil)
	}
	if msg := validation.ValidatePort(e.Port); msg != "" {
		return Expose{}, NewSemanticError(field+".port", fmt.Sprintf("Service %q: %s", svcName, msg))
	}
	if e.As == 0 {
		e.As = e.Port
	}
	if msg := validation.ValidatePort(e.As); msg != "" {
		return Expose{}, NewSemanticError(field+".as", fmt.Sprintf("Service %q: %s", svcName, msg))
	}
	if e.Proto == "" {
		e.Proto = ProtoHTTP
	}
	switch e.Proto {
	case ProtoHTTP, ProtoTCP, ProtoUDP:
	default:
		return Expose{}, NewSemanticError(field+".proto", fmt.Sprintf("Service %q: protocol %q is not supported", svcName, e.Proto))
	}
	return e, nil
}

func (p *parser) exposeTargets(e *Expose, svcName string, n *yaml.Node, field string) error {
	items, err := sequenceItems(n, field)
	if err != nil {
		return err
	}
	for i, item := range items {
		itemField := fmt.Sprintf("%s[%d]", field, i)
		fields, err := mappingEntries(item, itemField)
		if err != nil {
			return err
		}
		for _, f := range fields {
			ff := itemField + "." + f.key
			switch f.key {
			case "service":
				target, err := scalarValue(f.value, ff)
				if err != nil {
					return err
				}
				if !p.declared[target] {
					return NewSemanticError(ff, fmt.Sprintf("Service %q: exposed to undefined service %q", svcName, target))
				}
				if target == svcName {
					return NewSemanticError(ff, fmt.Sprintf("Service %q: cannot be exposed to itself", svcName))
				}
				e.To = append(e.To, target)
			case "global":
				global, err := boolValue(f.value, ff)
				if err != nil {
					return err
				}
				e.Global = e.Global || global
			case "ip":
				return NewTemplateError(ff, fmt.Sprintf("Service %q: IP endpoints are not supported", svcName))
			default:
				return NewTemplateError(ff, fmt.Sprintf("Service %q: expose target %q is not supported", svcName, f.key))
			}
		}
	}
	return nil
}

type storageParam struct {
	mount    string
	readOnly bool
}

// storageParams reads params.storage into entries whose value is resolved later
// against the compute profile storage.
func storageParams(n *yaml.Node, field string) ([]entry, error) {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return nil, err
	}
	var out []entry
	for _, f := range fields {
		if f.key != "storage" {
			return nil, NewTemplateError(field+"."+f.key, fmt.Sprintf("Parameter %q is not supported", f.key))
		}
		volumes, err := mappingEntries(f.value, field+".storage")
		if err != nil {
			return nil, err
		}
		out = append(out, volumes...)
	}
	return out, nil
}

func readStorageParam(n *yaml.Node, field string) (storageParam, error) {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return storageParam{}, err
	}
	var sp storageParam
	for _, f := range fields {
		ff := field + "." + f.key
		switch f.key {
		case "mount":
			if sp.mount, err = scalarValue(f.value, ff); err != nil {
				return storageParam{}, err
			}
		case "readOnly":
			if sp.readOnly, err = boolValue(f.value, ff); err != nil {
				return storageParam{}, err
			}
		default:
			return storageParam{}, NewTemplateError(ff, fmt.Sprintf("Storage parameter %q is not supported", f.key))
		}
	}
	return sp, nil
}

func applyParams(svc *Service, params []entry, field string) error {
	for _, param := range params {
		ff := field + "." + param.key
		sp, err := readStorageParam(param.value, ff)
		if err != nil {
			return err
		}
		found := false
		for i := range svc.Resources.Storage {
			st := &svc.Resources.Storage[i]
			if st.Name == param.key {
				st.Mount = sp.mount
				st.ReadOnly = sp.readOnly
				found = true
			}
		}
		if !found {
			return NewSemanticError(ff, fmt.Sprintf("Service %q: storage %q is not defined in its compute profile", svc.Title, param.key))
		}
	}
	return nil
}

// =============================================================================
// Deployment
// =============================================================================

type binding struct {
	placement string
	profile   string
	count     int
}

func (p *parser) binding(svcName string) (binding, error) {
	field := "deployment." + svcName
	node, ok := p.deployment[svcName]
	if !ok {
		return binding{}, NewSyntaxError(field, fmt.Sprintf("Service %q is not deployed", svcName), nil)
	}
	groups, err := mappingEntries(node, field)
	if err != nil {
		return binding{}, err
	}
	switch len(groups) {
	case 0:
		return binding{}, NewSyntaxError(field, fmt.Sprintf("Service %q is not bound to a placement", svcName), nil)
	case 1:
	default:
		return binding{}, NewTemplateError(field, fmt.Sprintf("Service %q is deployed to more than one placement", svcName))
	}

	b := binding{placement: groups[0].key}
	bf := field + "." + b.placement
	fields, err := mappingEntries(groups[0].value, bf)
	if err != nil {
		return binding{}, err
	}
	hasCount := false
	for _, f := range fields {
		ff := bf + "." + f.key
		switch f.key {
		case "profile":
			if b.profile, err = scalarValue(f.value, ff); err != nil {
				return binding{}, err
			}
		case "count":
			if b.count, err = intValue(f.value, ff); err != nil {
				return binding{}, err
			}
			hasCount = true
			if b.count < 1 {
				return binding{}, NewSemanticError(ff, fmt.Sprintf("Service %q: count must be at least 1", svcName))
			}
		default:
			return binding{}, NewTemplateError(ff, fmt.Sprintf("Deployment field %q is not supported", f.key))
		}
	}
	if b.profile == "" {
		return binding{}, NewSyntaxError(bf+".profile", fmt.Sprintf("Service %q: deployment has no compute profile", svcName), nil)
	}
	if !hasCount {
		return binding{}, NewSyntaxError(bf+".count", fmt.Sprintf("Service %q: deployment has no count", svcName), nil)
	}
	return b, nil
}

// =============================================================================
// Compute Profiles
// =============================================================================

func (p *parser) resources(r *Resources, n *yaml.Node, field string) error {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.key != "resources" {
			return NewTemplateError(field+"."+f.key, fmt.Sprintf("Compute profile field %q is not supported", f.key))
		}
		if err := p.resourceBlock(r, f.value, field+".resources"); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) resourceBlock(r *Resources, n *yaml.Node, field string) error {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return err
	}
	for _, f := range fields {
		ff := field + "." + f.key
		switch f.key {
		case "cpu":
			units, err := singleField(f.value, ff, "units")
			if err != nil {
				return err
			}
			if units == nil {
				continue
			}
			s, err := scalarValue(units, ff+".units")
			if err != nil {
				return err
			}
			if r.CPU, err = ParseCPU(s); err != nil {
				return NewSyntaxError(ff+".units", fmt.Sprintf("Invalid CPU units %q", s), err)
			}
		case "memory":
			size, err := singleField(f.value, ff, "size")
			if err != nil {
				return err
			}
			if size == nil {
				continue
			}
			if r.Memory, err = quantityValue(size, ff+".size"); err != nil {
				return err
			}
		case "storage":
			if r.Storage, err = storageList(f.value, ff); err != nil {
				return err
			}
		case "gpu":
			if err := gpuBlock(&r.GPU, f.value, ff); err != nil {
				return err
			}
		default:
			return NewTemplateError(ff, fmt.Sprintf("Resource %q is not supported", f.key))
		}
	}
	return nil
}

// singleField returns the value of the only supported key of a mapping, or
// nil when the mapping is empty.
func singleField(n *yaml.Node, field, key string) (*yaml.Node, error) {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return nil, err
	}
	var out *yaml.Node
	for _, f := range fields {
		if f.key != key {
			return nil, NewTemplateError(field+"."+f.key, fmt.Sprintf("Field %q is not supported", field+"."+f.key))
		}
		out = f.value
	}
	return out, nil
}

func quantityValue(n *yaml.Node, field string) (Quantity, error) {
	s, err := scalarValue(n, field)
	if err != nil {
		return Quantity{}, err
	}
	q, err := ParseQuantity(s)
	if err != nil {
		return Quantity{}, NewSyntaxError(field, fmt.Sprintf("Invalid size %q", s), err)
	}
	return q, nil
}

func storageList(n *yaml.Node, field string) ([]Storage, error) {
	var items []*yaml.Node
	if resolve(n).Kind == yaml.MappingNode {
		items = []*yaml.Node{n}
	} else {
		var err error
		if items, err = sequenceItems(n, field); err != nil {
			return nil, err
		}
	}

	var out []Storage
	for i, item := range items {
		itemField := fmt.Sprintf("%s[%d]", field, i)
		st, err := storageVolume(item, itemField)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func storageVolume(n *yaml.Node, field string) (Storage, error) {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return Storage{}, err
	}
	var st Storage
	hasSize := false
	for _, f := range fields {
		ff := field + "." + f.key
		switch f.key {
		case "name":
			if st.Name, err = scalarValue(f.value, ff); err != nil {
				return Storage{}, err
			}
		case "size":
			if st.Size, err = quantityValue(f.value, ff); err != nil {
				return Storage{}, err
			}
			hasSize = true
		case "attributes":
			attrs, err := mappingEntries(f.value, ff)
			if err != nil {
				return Storage{}, err
			}
			for _, a := range attrs {
				af := ff + "." + a.key
				switch a.key {
				case "persistent":
					if st.Persistent, err = boolValue(a.value, af); err != nil {
						return Storage{}, err
					}
				case "class":
					if st.Class, err = scalarValue(a.value, af); err != nil {
						return Storage{}, err
					}
				default:
					return Storage{}, NewTemplateError(af, fmt.Sprintf("Storage attribute %q is not supported", a.key))
				}
			}
		default:
			return Storage{}, NewTemplateError(ff, fmt.Sprintf("Storage field %q is not supported", f.key))
		}
	}
	if !hasSize {
		return Storage{}, NewSyntaxError(field+".size", "Storage size is required", nil)
	}
	if st.Name == "" {
		st.Name = DefaultStorageName
	}
	return st, nil
}

func gpuBlock(g *GPU, n *yaml.Node, field string) error {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return err
	}
	for _, f := range fields {
		ff := field + "." + f.key
		switch f.key {
		case "units":
			if g.Units, err = intValue(f.value, ff); err != nil {
				return err
			}
		case "attributes":
			vendorNode, err := singleField(f.value, ff, "vendor")
			if err != nil {
				return err
			}
			if vendorNode == nil {
				continue
			}
			vendors, err := mappingEntries(vendorNode, ff+".vendor")
			if err != nil {
				return err
			}
			switch len(vendors) {
			case 0:
				continue
			case 1:
			default:
				return NewTemplateError(ff+".vendor", "Only one GPU vendor is supported")
			}
			g.Vendor = strings.ToLower(vendors[0].key)
			if g.Models, err = gpuModels(vendors[0].value, ff+".vendor."+vendors[0].key); err != nil {
				return err
			}
		default:
			return NewTemplateError(ff, fmt.Sprintf("GPU field %q is not supported", f.key))
		}
	}
	return nil
}

func gpuModels(n *yaml.Node, field string) ([]GPUModel, error) {
	items, err := sequenceItems(n, field)
	if err != nil {
		return nil, err
	}
	var out []GPUModel
	for i, item := range items {
		itemField := fmt.Sprintf("%s[%d]", field, i)
		fields, err := mappingEntries(item, itemField)
		if err != nil {
			return nil, err
		}
		var m GPUModel
		for _, f := range fields {
			ff := itemField + "." + f.key
			switch f.key {
			case "model":
				m.Name, err = scalarValue(f.value, ff)
			case "ram":
				m.RAM, err = scalarValue(f.value, ff)
			case "interface":
				m.Interface, err = scalarValue(f.value, ff)
			default:
				err = NewTemplateError(ff, fmt.Sprintf("GPU model field %q is not supported", f.key))
			}
			if err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// =============================================================================
// Placement
// =============================================================================

func (p *parser) placementGroup(pl *Placement, n *yaml.Node, profileName, svcName string) error {
	field := "profiles.placement." + pl.Name
	fields, err := mappingEntries(n, field)
	if err != nil {
		return err
	}

	var pricing *yaml.Node
	for _, f := range fields {
		ff := field + "." + f.key
		switch f.key {
		case "attributes":
			attrs, err := mappingEntries(f.value, ff)
			if err != nil {
				return err
			}
			for _, a := range attrs {
				value, err := scalarValue(a.value, ff+"."+a.key)
				if err != nil {
					return err
				}
				pl.Attributes = append(pl.Attributes, Attribute{Key: a.key, Value: value})
			}
		case "signedBy":
			signers, err := mappingEntries(f.value, ff)
			if err != nil {
				return err
			}
			for _, s := range signers {
				sf := ff + "." + s.key
				switch s.key {
				case "anyOf":
					pl.SignedBy.AnyOf, err = stringList(s.value, sf)
				case "allOf":
					pl.SignedBy.AllOf, err = stringList(s.value, sf)
				default:
					err = NewTemplateError(sf, fmt.Sprintf("Signer rule %q is not supported", s.key))
				}
				if err != nil {
					return err
				}
			}
		case "pricing":
			pricing = f.value
		default:
			return NewTemplateError(ff, fmt.Sprintf("Placement field %q is not supported", f.key))
		}
	}

	prices, err := mappingEntries(pricing, field+".pricing")
	if err != nil {
		return err
	}
	price, ok := lookup(prices, profileName)
	if !ok {
		price, ok = lookup(prices, svcName)
	}
	if !ok {
		return NewSemanticError(field+".pricing",
			fmt.Sprintf("Placement %q has no pricing for service %q", pl.Name, svcName))
	}
	return priceEntry(&pl.Pricing, price, fmt.Sprintf("%s.pricing.%s", field, profileName), svcName)
}

func priceEntry(pr *Pricing, n *yaml.Node, field, svcName string) error {
	fields, err := mappingEntries(n, field)
	if err != nil {
		return err
	}
	hasAmount := false
	for _, f := range fields {
		ff := field + "." + f.key
		switch f.key {
		case "denom":
			denom, err := scalarValue(f.value, ff)
			if err != nil {
				return err
			}
			if denom != "" {
				pr.Denom = denom
			}
		case "amount":
			if pr.Amount, err = floatValue(f.value, ff); err != nil {
				return err
			}
			hasAmount = true
		default:
			return NewTemplateError(ff, fmt.Sprintf("Pricing field %q is not supported", f.key))
		}
	}
	if !hasAmount {
		return NewSyntaxError(field+".amount", fmt.Sprintf("Service %q: pricing amount is required", svcName), nil)
	}
	return nil
}

// =============================================================================
// Node Access
// =============================================================================

type entry struct {
	key   string
	value *yaml.Node
}

func lookup(entries []entry, key string) (*yaml.Node, bool) {
	for _, e := range entries {
		if e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}

// mappingEntries lists the key/value pairs of a mapping in declaration order.
// A null node is an empty mapping.
func mappingEntries(n *yaml.Node, field string) ([]entry, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, NewSyntaxError(field, fmt.Sprintf("%q must be a mapping", field), nil)
	}
	out := make([]entry, 0, len(n.Content)/2)
	seen := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := resolve(n.Content[i])
		if k.Kind != yaml.ScalarNode {
			return nil, NewSyntaxError(field, fmt.Sprintf("%q has a key that is not a string", field), nil)
		}
		if seen[k.Value] {
			return nil, NewSyntaxError(field, fmt.Sprintf("%q defines %q more than once", field, k.Value), nil)
		}
		seen[k.Value] = true
		out = append(out, entry{key: k.Value, value: n.Content[i+1]})
	}
	return out, nil
}

func sequenceItems(n *yaml.Node, field string) ([]*yaml.Node, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, NewSyntaxError(field, fmt.Sprintf("%q must be a list", field), nil)
	}
	return n.Content, nil
}

func scalarValue(n *yaml.Node, field string) (string, error) {
	n = resolve(n)
	if isNull(n) {
		return "", nil
	}
	if n.Kind != yaml.ScalarNode {
		return "", NewSyntaxError(field, fmt.Sprintf("%q must be a single value", field), nil)
	}
	return strings.TrimSpace(n.Value), nil
}

func intValue(n *yaml.Node, field string) (int, error) {
	s, err := scalarValue(n, field)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, NewSyntaxError(field, fmt.Sprintf("%q must be an integer, got %q", field, s), err)
	}
	return v, nil
}

func floatValue(n *yaml.Node, field string) (float64, error) {
	s, err := scalarValue(n, field)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, NewSyntaxError(field, fmt.Sprintf("%q must be a number, got %q", field, s), err)
	}
	return v, nil
}

func boolValue(n *yaml.Node, field string) (bool, error) {
	s, err := scalarValue(n, field)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, NewSyntaxError(field, fmt.Sprintf("%q must be true or false, got %q", field, s), nil)
	}
}

// stringList accepts a list of values or a single value. Items are kept
// verbatim.
func stringList(n *yaml.Node, field string) ([]string, error) {
	r := resolve(n)
	if isNull(r) {
		return nil, nil
	}
	if r.Kind == yaml.ScalarNode {
		return []string{r.Value}, nil
	}
	items, err := sequenceItems(r, field)
	if err != nil {
		return nil, err
	}
	var out []string
	for i, item := range items {
		item = resolve(item)
		if item.Kind != yaml.ScalarNode {
			return nil, NewSyntaxError(field, fmt.Sprintf("%q must be a single value", fmt.Sprintf("%s[%d]", field, i)), nil)
		}
		out = append(out, item.Value)
	}
	return out, nil
}

// checkPlaceholders rejects ${...} substitutions anywhere in the document.
func checkPlaceholders(n *yaml.Node) error {
	if n == nil || n.Kind == yaml.AliasNode {
		return nil
	}
	if n.Kind == yaml.ScalarNode && strings.Contains(n.Value, placeholderMarker) {
		return NewTemplateError("", fmt.Sprintf("Template placeholder in %q is not supported", n.Value))
	}
	for _, c := range n.Content {
		if err := checkPlaceholders(c); err != nil {
			return err
		}
	}
	return nil
}
