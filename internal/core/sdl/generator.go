package sdl

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Version is the SDL version emitted by Generate.
const Version = "2.0"

// =============================================================================
// Generate
// =============================================================================

// Generate serializes a normalized services list into SDL text.
// It assumes Normalize already ran and does not re-validate. Fields are
// emitted in a fixed canonical order so identical input always yields
// byte-identical output. An empty list yields "".
func Generate(services []Service) string {
	if len(services) == 0 {
		return ""
	}

	root := newMapping()
	root.set("version", quotedNode(Version))
	root.set("services", servicesNode(services))

	profiles := newMapping()
	profiles.set("compute", computeNode(services))
	profiles.set("placement", placementNode(services))
	root.set("profiles", profiles.node)

	root.set("deployment", deploymentNode(services))

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root.node); err != nil {
		// Only reachable with a malformed node tree.
		return ""
	}
	if err := enc.Close(); err != nil {
		return ""
	}
	return buf.String()
}

// =============================================================================
// Sections
// =============================================================================

func servicesNode(services []Service) *yaml.Node {
	m := newMapping()
	for _, svc := range services {
		s := newMapping()
		s.set("image", stringNode(svc.Image))
		if len(svc.Command) > 0 {
			s.set("command", stringsNode(svc.Command))
		}
		if len(svc.Args) > 0 {
			s.set("args", stringsNode(svc.Args))
		}
		if len(svc.Env) > 0 {
			env := make([]string, 0, len(svc.Env))
			for _, e := range svc.Env {
				env = append(env, e.Key+"="+e.Value)
			}
			s.set("env", stringsNode(env))
		}
		if len(svc.Expose) > 0 {
			s.set("expose", exposeNode(svc.Expose))
		}
		if params := paramsNode(svc.Resources.Storage); params != nil {
			s.set("params", params)
		}
		m.set(svc.Title, s.node)
	}
	return m.node
}

func exposeNode(expose []Expose) *yaml.Node {
	seq := sequenceNode()
	for _, e := range expose {
		m := newMapping()
		m.set("port", intNode(e.Port))
		m.set("as", intNode(e.As))
		if e.Proto != "" && e.Proto != ProtoHTTP {
			m.set("proto", stringNode(e.Proto))
		}
		if len(e.Accept) > 0 {
			m.set("accept", stringsNode(e.Accept))
		}
		if len(e.To) > 0 || e.Global {
			to := sequenceNode()
			for _, name := range e.To {
				t := newMapping()
				t.set("service", stringNode(name))
				to.Content = append(to.Content, t.node)
			}
			if e.Global {
				t := newMapping()
				t.set("global", boolNode(true))
				to.Content = append(to.Content, t.node)
			}
			m.set("to", to)
		}
		seq.Content = append(seq.Content, m.node)
	}
	return seq
}

// paramsNode returns the mount parameters of persistent storage, or nil.
func paramsNode(storage []Storage) *yaml.Node {
	mounts := newMapping()
	for _, st := range storage {
		if !st.Persistent || st.Mount == "" {
			continue
		}
		p := newMapping()
		p.set("mount", stringNode(st.Mount))
		if st.ReadOnly {
			p.set("readOnly", boolNode(true))
		}
		mounts.set(st.Name, p.node)
	}
	if len(mounts.node.Content) == 0 {
		return nil
	}
	params := newMapping()
	params.set("storage", mounts.node)
	return params.node
}

func computeNode(services []Service) *yaml.Node {
	m := newMapping()
	for _, svc := range services {
		r := svc.Resources
		res := newMapping()

		cpu := newMapping()
		cpu.set("units", stringNode(FormatCPU(r.CPU)))
		res.set("cpu", cpu.node)

		mem := newMapping()
		mem.set("size", stringNode(r.Memory.String()))
		res.set("memory", mem.node)

		storage := sequenceNode()
		for _, st := range r.Storage {
			s := newMapping()
			s.set("name", stringNode(st.Name))
			s.set("size", stringNode(st.Size.String()))
			if st.Persistent {
				attrs := newMapping()
				attrs.set("persistent", boolNode(true))
				if st.Class != "" {
					attrs.set("class", stringNode(st.Class))
				}
				s.set("attributes", attrs.node)
			}
			storage.Content = append(storage.Content, s.node)
		}
		res.set("storage", storage)

		if r.GPU.Units > 0 {
			res.set("gpu", gpuNode(r.GPU))
		}

		profile := newMapping()
		profile.set("resources", res.node)
		m.set(svc.Title, profile.node)
	}
	return m.node
}

func gpuNode(gpu GPU) *yaml.Node {
	var models *yaml.Node
	if len(gpu.Models) == 0 {
		models = nullNode()
	} else {
		models = sequenceNode()
		for _, model := range gpu.Models {
			mm := newMapping()
			mm.set("model", stringNode(model.Name))
			if model.RAM != "" {
				mm.set("ram", stringNode(model.RAM))
			}
			if model.Interface != "" {
				mm.set("interface", stringNode(model.Interface))
			}
			models.Content = append(models.Content, mm.node)
		}
	}

	vendor := newMapping()
	vendor.set(gpu.Vendor, models)
	attrs := newMapping()
	attrs.set("vendor", vendor.node)

	g := newMapping()
	g.set("units", intNode(gpu.Units))
	g.set("attributes", attrs.node)
	return g.node
}

// placementNode emits one block per distinct placement name in order of
// first appearance, with one pricing entry per service.
func placementNode(services []Service) *yaml.Node {
	m := newMapping()
	blocks := make(map[string]*mapping)
	pricing := make(map[string]*mapping)

	for _, svc := range services {
		p := svc.Placement
		block, ok := blocks[p.Name]
		if !ok {
			block = newMapping()
			if len(p.Attributes) > 0 {
				attrs := newMapping()
				for _, a := range p.Attributes {
					attrs.set(a.Key, stringNode(a.Value))
				}
				block.set("attributes", attrs.node)
			}
			if !p.SignedBy.Empty() {
				signed := newMapping()
				if len(p.SignedBy.AnyOf) > 0 {
					signed.set("anyOf", stringsNode(p.SignedBy.AnyOf))
				}
				if len(p.SignedBy.AllOf) > 0 {
					signed.set("allOf", stringsNode(p.SignedBy.AllOf))
				}
				block.set("signedBy", signed.node)
			}
			pricing[p.Name] = newMapping()
			block.set("pricing", pricing[p.Name].node)
			blocks[p.Name] = block
			m.set(p.Name, block.node)
		}

		price := newMapping()
		price.set("denom", stringNode(p.Pricing.Denom))
		price.set("amount", amountNode(p.Pricing.Amount))
		pricing[p.Name].set(svc.Title, price.node)
	}
	return m.node
}

func deploymentNode(services []Service) *yaml.Node {
	m := newMapping()
	for _, svc := range services {
		binding := newMapping()
		binding.set("profile", stringNode(svc.Title))
		binding.set("count", intNode(svc.Count))

		placement := newMapping()
		placement.set(svc.Placement.Name, binding.node)
		m.set(svc.Title, placement.node)
	}
	return m.node
}

// =============================================================================
// Node Helpers
// =============================================================================

// mapping appends key/value pairs to a YAML mapping node in insertion order.
type mapping struct {
	node *yaml.Node
}

func newMapping() *mapping {
	return &mapping{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

func (m *mapping) set(key string, value *yaml.Node) {
	m.node.Content = append(m.node.Content, stringNode(key), value)
}

func sequenceNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
}

// stringNode is quoted by the encoder whenever the plain form would resolve
// to another type ("true", "80", "2.0").
func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func quotedNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.DoubleQuotedStyle}
}

func stringsNode(values []string) *yaml.Node {
	seq := sequenceNode()
	for _, v := range values {
		seq.Content = append(seq.Content, stringNode(v))
	}
	return seq
}

func intNode(n int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(n)}
}

func boolNode(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

// amountNode emits integral amounts as integers and anything else verbatim.
func amountNode(amount float64) *yaml.Node {
	if amount == math.Trunc(amount) && math.Abs(amount) < 1e15 {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%d", int64(amount))}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatNumber(amount)}
}
