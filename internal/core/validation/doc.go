// Package validation provides pure validation functions for structured SDL fields.
//
// This package contains the functional core rules that a service must satisfy
// before it can be serialized. All functions are pure (no I/O, no side effects)
// and return an empty message when the value is valid.
//
// # Functions
//
//   - ValidatePlacementName: Check a placement group name
//   - ValidateServiceTitle: Check a service name
//   - ValidatePricingAmount: Check a max price per block
//   - ValidatePort: Check a container or exposed port
//
// # Usage
//
// The SDL normalizer uses these functions and wraps any message in a field error:
//
//	if msg := validation.ValidatePlacementName(name); msg != "" {
//	    // Return a field validation error with msg
//	}
package validation
