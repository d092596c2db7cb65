// Package sdl contains the pure transform between the structured service model
// and the Stack Definition Language (SDL) deployment descriptor.
//
// This package is part of the Functional Core: every function is a pure
// function over its input (no I/O, no shared mutable state) and may be called
// concurrently as long as each call receives its own snapshot of the services
// list.
//
// # Functions
//
//   - NewService: Build a fresh service from a defaults profile
//   - Normalize: Prune, coerce and validate a services list before export
//   - Generate: Serialize a normalized services list into SDL text
//   - Parse: Read the simple SDL subset back into a services list
//
// # Usage
//
//	normalized, err := sdl.Normalize(services, sdl.NormalizeOptions{WithSSH: false})
//	if err != nil {
//	    // err is an *sdl.Error with Kind == sdl.KindFieldValidation
//	}
//	text := sdl.Generate(normalized)
//
//	services, err = sdl.Parse(text, sdl.ParseOptions{Profile: sdl.ProfileCompute})
package sdl
