// Package builder owns the mutable services list of one editing session and
// hands consistent snapshots to the transform pipeline.
package builder

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/artpar/sdlbuilder/internal/core/sdl"
	"github.com/artpar/sdlbuilder/internal/core/transform"
	"github.com/mohae/deepcopy"
)

var (
	ErrIndexOutOfRange = errors.New("service index out of range")
	ErrSingleService   = errors.New("SSH deployments have a single service")
)

// Mode is selected once when the session starts.
type Mode struct {
	SSH          bool
	SSHPublicKey string
}

// Profile returns the defaults profile of the mode.
func (m Mode) Profile() sdl.Profile {
	return sdl.ProfileFor(m.SSH)
}

// Session is safe for concurrent use. Every read returns a deep copy.
type Session struct {
	mu       sync.RWMutex
	mode     Mode
	t        *transform.Transformer
	services []sdl.Service
}

// New starts a session with one default service for the mode.
func New(mode Mode, t *transform.Transformer) *Session {
	if t == nil {
		t = transform.New()
	}
	return &Session{
		mode:     mode,
		t:        t,
		services: []sdl.Service{sdl.NewService(mode.Profile())},
	}
}

// Mode returns the session mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Services returns a snapshot of the services list.
func (s *Session) Services() []sdl.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.services)
}

// Len returns the number of services.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.services)
}

// AddService appends a default compute service titled service-N.
func (s *Session) AddService() (sdl.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode.SSH {
		return sdl.Service{}, ErrSingleService
	}
	svc := sdl.NewServiceAt(len(s.services) + 1)
	s.services = append(s.services, svc)
	return deepcopy.Copy(svc).(sdl.Service), nil
}

// RemoveService removes the service at index i.
func (s *Session) RemoveService(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.services = append(s.services[:i:i], s.services[i+1:]...)
	return nil
}

// UpdateService applies fn to a copy of service i and commits the result.
func (s *Session) UpdateService(i int, fn func(*sdl.Service)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(i); err != nil {
		return err
	}
	svc := deepcopy.Copy(s.services[i]).(sdl.Service)
	fn(&svc)
	s.services[i] = svc
	return nil
}

// ClosePlacement prunes incomplete attribute and signer rows of service i.
// It is called when the placement editor is closed.
func (s *Session) ClosePlacement(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.services[i].Placement = sdl.PrunePlacement(s.services[i].Placement)
	return nil
}

// SDL exports the current snapshot.
func (s *Session) SDL() (string, error) {
	services := s.Services()
	return s.t.Export(services, sdl.NormalizeOptions{
		WithSSH:      s.mode.SSH,
		SSHPublicKey: s.mode.SSHPublicKey,
	})
}

// Load imports text and replaces the services list. On failure, and for
// blank text, the current list is kept.
func (s *Session) Load(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	services, err := s.t.Import(text, s.mode.Profile())
	if err != nil {
		return err
	}
	if s.mode.SSH && len(services) > 1 {
		return &transform.Failure{
			Kind:    transform.KindValidation,
			Message: fmt.Sprintf("SSH deployments have a single service, got %d", len(services)),
			Err:     ErrSingleService,
		}
	}

	s.mu.Lock()
	s.services = services
	s.mu.Unlock()
	return nil
}

func (s *Session) checkIndex(i int) error {
	if i < 0 || i >= len(s.services) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return nil
}

func snapshot(services []sdl.Service) []sdl.Service {
	if len(services) == 0 {
		return []sdl.Service{}
	}
	return deepcopy.Copy(services).([]sdl.Service)
}
