package sdl

// =============================================================================
// Service - Main Model Type
// =============================================================================

// Service represents one deployable unit of an SDL deployment.
// ID identifies the row for the editing layer and is not part of the
// descriptor; every other field round-trips through Generate and Parse.
type Service struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Image     string    `json:"image"`
	Command   []string  `json:"command,omitempty"`
	Args      []string  `json:"args,omitempty"`
	Env       []EnvVar  `json:"env,omitempty"`
	Resources Resources `json:"resources"`
	Expose    []Expose  `json:"expose,omitempty"`
	Count     int       `json:"count"`
	Placement Placement `json:"placement"`
}

// EnvVar is a single environment variable of a service.
type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// =============================================================================
// Resource Types
// =============================================================================

// Resources represents the compute profile of a service.
type Resources struct {
	CPU     float64   `json:"cpu"` // Cores, e.g. 0.5
	Memory  Quantity  `json:"memory"`
	Storage []Storage `json:"storage,omitempty"`
	GPU     GPU       `json:"gpu"`
}

// Quantity is a size expressed as a value and a unit suffix (Mi, Gi, ...).
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Storage represents a storage volume request.
type Storage struct {
	Name       string   `json:"name"`
	Size       Quantity `json:"size"`
	Persistent bool     `json:"persistent"`
	Class      string   `json:"class,omitempty"` // beta1, beta2, beta3, ram
	Mount      string   `json:"mount,omitempty"`
	ReadOnly   bool     `json:"read_only"`
}

// GPU represents a GPU request. Units of 0 means no GPU.
type GPU struct {
	Units  int        `json:"units"`
	Vendor string     `json:"vendor,omitempty"`
	Models []GPUModel `json:"models,omitempty"`
}

// GPUModel narrows a GPU request to a specific model.
type GPUModel struct {
	Name      string `json:"name"`
	RAM       string `json:"ram,omitempty"`
	Interface string `json:"interface,omitempty"` // pcie, sxm
}

// =============================================================================
// Expose Types
// =============================================================================

// Expose maps a container port to an externally reachable port.
type Expose struct {
	Port   int      `json:"port"`
	As     int      `json:"as"`
	Proto  string   `json:"proto"`
	Global bool     `json:"global"`
	Accept []string `json:"accept,omitempty"` // Accepted hostnames
	To     []string `json:"to,omitempty"`     // Services allowed to reach this port
}

// Supported expose protocols.
const (
	ProtoHTTP = "http"
	ProtoTCP  = "tcp"
	ProtoUDP  = "udp"
)

// =============================================================================
// Placement Types
// =============================================================================

// Placement is a named group of provider constraints shared by services.
type Placement struct {
	Name       string      `json:"name"`
	Pricing    Pricing     `json:"pricing"`
	Attributes []Attribute `json:"attributes,omitempty"`
	SignedBy   SignedBy    `json:"signed_by"`
}

// Pricing is the maximum price a service is willing to pay per block.
type Pricing struct {
	Denom  string  `json:"denom"`
	Amount float64 `json:"amount"`
}

// Attribute is a key/value constraint on provider attributes.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SignedBy holds auditor trust constraints.
// AnyOf requires at least one signer, AllOf requires every signer.
type SignedBy struct {
	AnyOf []string `json:"any_of,omitempty"`
	AllOf []string `json:"all_of,omitempty"`
}

// Empty reports whether no signer constraint is set.
func (s SignedBy) Empty() bool {
	return len(s.AnyOf) == 0 && len(s.AllOf) == 0
}
