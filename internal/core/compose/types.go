package compose

// =============================================================================
// ParsedSpec - Main Output Type
// =============================================================================

// ParsedSpec is the subset of a Docker Compose project that maps onto SDL
// services, decoupled from compose-go types. Services are sorted by name.
type ParsedSpec struct {
	Services []Service `json:"services"`
	Volumes  []Volume  `json:"volumes,omitempty"`
}

// =============================================================================
// Service Types
// =============================================================================

// Service represents a single compose service.
type Service struct {
	Name        string            `json:"name"`
	Image       string            `json:"image,omitempty"`
	Build       *BuildConfig      `json:"build,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Entrypoint  []string          `json:"entrypoint,omitempty"`
	Ports       []Port            `json:"ports,omitempty"`
	Expose      []uint32          `json:"expose,omitempty"` // Ports reachable by other services only
	Environment map[string]string `json:"environment,omitempty"`
	Volumes     []VolumeMount     `json:"volumes,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	Replicas    int               `json:"replicas,omitempty"` // 0 = unset
	Resources   ServiceResources  `json:"resources"`
}

// BuildConfig represents build configuration. SDL services cannot be built.
type BuildConfig struct {
	Context    string `json:"context"`
	Dockerfile string `json:"dockerfile,omitempty"`
}

// Port represents a port mapping.
type Port struct {
	Target    uint32 `json:"target"`              // Container port
	Published uint32 `json:"published,omitempty"` // Host port (0 = dynamic)
	Protocol  string `json:"protocol,omitempty"`  // tcp, udp
	HostIP    string `json:"host_ip,omitempty"`   // Bind IP
}

// VolumeMount represents a volume mount in a service.
type VolumeMount struct {
	Type     VolumeMountType `json:"type"`     // bind, volume, tmpfs
	Source   string          `json:"source"`   // Path or volume name
	Target   string          `json:"target"`   // Container path
	ReadOnly bool            `json:"readonly"`
}

// VolumeMountType represents the type of volume mount.
type VolumeMountType string

const (
	VolumeMountTypeBind   VolumeMountType = "bind"
	VolumeMountTypeVolume VolumeMountType = "volume"
	VolumeMountTypeTmpfs  VolumeMountType = "tmpfs"
)

// ServiceResources represents the limits and device reservations of a service.
type ServiceResources struct {
	CPULimit    float64      `json:"cpu_limit"`
	MemoryLimit int64        `json:"memory_limit"` // Bytes
	GPUs        []GPURequest `json:"gpus,omitempty"`
}

// GPURequest is a device reservation with the gpu capability.
type GPURequest struct {
	Driver string `json:"driver,omitempty"`
	Count  int    `json:"count"` // -1 = all
}

// =============================================================================
// Volume Types
// =============================================================================

// Volume represents a named volume definition.
type Volume struct {
	Name     string `json:"name"`
	Driver   string `json:"driver,omitempty"`
	External bool   `json:"external"`
}
