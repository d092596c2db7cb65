package sdl

import (
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// Defaults Profiles
// =============================================================================

// Profile selects the defaults used for new services and for fields missing
// from an imported descriptor.
type Profile string

const (
	// ProfileCompute is the generic compute service.
	ProfileCompute Profile = "compute"
	// ProfileSSH is the SSH-accessible VM service.
	ProfileSSH Profile = "ssh"
)

// ParseProfile maps a profile name to a Profile. Unknown names fall back to
// ProfileCompute.
func ParseProfile(name string) Profile {
	if Profile(name) == ProfileSSH {
		return ProfileSSH
	}
	return ProfileCompute
}

// ProfileFor returns the profile matching the SSH mode flag.
func ProfileFor(withSSH bool) Profile {
	if withSSH {
		return ProfileSSH
	}
	return ProfileCompute
}

const (
	// DefaultDenom is the pricing denomination used when none is given.
	DefaultDenom = "uakt"
	// DefaultPlacementName is the placement group of new services.
	DefaultPlacementName = "dcloud"
	// DefaultPricingAmount is the max price per block of new services.
	DefaultPricingAmount = 100000
	// DefaultGPUVendor is used when GPU units are requested without a vendor.
	DefaultGPUVendor = "nvidia"
	// DefaultMemoryUnit and DefaultStorageUnit apply when a size has no unit.
	DefaultMemoryUnit  = "Mi"
	DefaultStorageUnit = "Gi"
	// DefaultStorageName names the ephemeral storage volume.
	DefaultStorageName = "default"

	// SSHPort is exposed by SSH services.
	SSHPort = 22
	// SSHPublicKeyEnv holds the authorized key of SSH services.
	SSHPublicKeyEnv = "SSH_PUBKEY"
)

// NewService returns a fresh service populated from the given profile.
// Each call allocates new slices and a new ID so that services never share
// mutable state.
func NewService(profile Profile) Service {
	if profile == ProfileSSH {
		return newSSHService()
	}
	return newComputeService()
}

// NewServiceAt returns a fresh compute service titled for position n (1-based),
// matching the titles used when services are added to a builder.
func NewServiceAt(n int) Service {
	svc := newComputeService()
	svc.Title = fmt.Sprintf("service-%d", n)
	return svc
}

func newComputeService() Service {
	return Service{
		ID:    uuid.NewString(),
		Title: "service-1",
		Image: "nginx:latest",
		Resources: Resources{
			CPU:     0.1,
			Memory:  Quantity{Value: 512, Unit: "Mi"},
			Storage: []Storage{{Name: DefaultStorageName, Size: Quantity{Value: 1, Unit: "Gi"}}},
			GPU:     GPU{Units: 0, Vendor: DefaultGPUVendor},
		},
		Expose: []Expose{
			{Port: 80, As: 80, Proto: ProtoHTTP, Global: true},
		},
		Count:     1,
		Placement: defaultPlacement(),
	}
}

func newSSHService() Service {
	return Service{
		ID:    uuid.NewString(),
		Title: "service-1",
		Image: "ubuntu:24.04",
		Env: []EnvVar{
			{Key: SSHPublicKeyEnv, Value: ""},
		},
		Resources: Resources{
			CPU:     1,
			Memory:  Quantity{Value: 2, Unit: "Gi"},
			Storage: []Storage{{Name: DefaultStorageName, Size: Quantity{Value: 10, Unit: "Gi"}}},
			GPU:     GPU{Units: 0, Vendor: DefaultGPUVendor},
		},
		Expose: []Expose{
			{Port: SSHPort, As: SSHPort, Proto: ProtoTCP, Global: true},
		},
		Count:     1,
		Placement: defaultPlacement(),
	}
}

func defaultPlacement() Placement {
	return Placement{
		Name: DefaultPlacementName,
		Pricing: Pricing{
			Denom:  DefaultDenom,
			Amount: DefaultPricingAmount,
		},
	}
}
