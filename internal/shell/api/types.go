package api

import "github.com/artpar/sdlbuilder/internal/core/sdl"

// =============================================================================
// Request Types
// =============================================================================

// ExportRequest is the request body for generating SDL from services.
type ExportRequest struct {
	Services     []sdl.Service `json:"services"`
	WithSSH      bool          `json:"with_ssh,omitempty"`
	SSHPublicKey string        `json:"ssh_public_key,omitempty"`
}

// ImportRequest is the request body for parsing SDL into services.
type ImportRequest struct {
	SDL     string `json:"sdl"`
	Profile string `json:"profile,omitempty"` // compute (default) or ssh
}

// ComposeRequest is the request body for converting a Docker Compose file.
type ComposeRequest struct {
	Compose      string `json:"compose"`
	Profile      string `json:"profile,omitempty"`
	SSHPublicKey string `json:"ssh_public_key,omitempty"` // used by the ssh profile
}

// =============================================================================
// Response Types
// =============================================================================

// ExportResponse carries generated SDL text.
type ExportResponse struct {
	SDL string `json:"sdl"`
}

// ServicesResponse carries a services list.
type ServicesResponse struct {
	Services []sdl.Service `json:"services"`
}

// ServiceResponse carries a single service.
type ServiceResponse struct {
	Service sdl.Service `json:"service"`
}

// ComposeResponse carries the converted services, their SDL and the
// variables left unresolved in the compose file.
type ComposeResponse struct {
	Services  []sdl.Service `json:"services"`
	SDL       string        `json:"sdl"`
	Variables []string      `json:"variables"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
