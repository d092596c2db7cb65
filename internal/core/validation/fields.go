package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// =============================================================================
// Name Validation
// =============================================================================

var (
	nameCharsRegex = regexp.MustCompile(`^[a-z0-9-]+$`)
	nameStartRegex = regexp.MustCompile(`^[a-z]`)
)

// ValidatePlacementName validates a placement group name.
// A valid name matches ^[a-z][a-z0-9-]*$ and does not end with a dash.
// Returns the error message, or "" if the name is valid.
//
// Example:
//
//	ValidatePlacementName("dcloud")  // returns ""
//	ValidatePlacementName("Web-1")   // returns "Invalid name. ..."
//	ValidatePlacementName("web-")    // returns "Invalid ending character. ..."
func ValidatePlacementName(name string) string {
	if name == "" {
		return "Placement name is required"
	}
	return validateName(name)
}

// ValidateServiceTitle validates a service name. Service names follow the
// same rules as placement names since both become descriptor keys.
func ValidateServiceTitle(title string) string {
	if title == "" {
		return "Service name is required"
	}
	return validateName(title)
}

func validateName(name string) string {
	if !nameCharsRegex.MatchString(name) {
		return "Invalid name. It must only be lower case letters, numbers and dashes."
	}
	if !nameStartRegex.MatchString(name) {
		return "Invalid starting character. It can only start with a lowercase letter."
	}
	if strings.HasSuffix(name, "-") {
		return "Invalid ending character. It can only end with a lowercase letter or number"
	}
	return ""
}

// =============================================================================
// Pricing Validation
// =============================================================================

const (
	// MinPricingAmount is the lowest accepted max price per block.
	MinPricingAmount = 1
	// MaxPricingAmount is the highest accepted max price per block.
	MaxPricingAmount = 10_000_000
)

// ValidatePricingAmount validates a max price per block.
// Zero is treated as unset since it is the value of an empty form field.
func ValidatePricingAmount(amount float64) string {
	if amount == 0 || math.IsNaN(amount) {
		return "Pricing is required"
	}
	if math.IsInf(amount, 0) {
		return fmt.Sprintf("Pricing must be at most %d", MaxPricingAmount)
	}
	if amount < MinPricingAmount {
		return fmt.Sprintf("Pricing must be at least %d", MinPricingAmount)
	}
	if amount > MaxPricingAmount {
		return fmt.Sprintf("Pricing must be at most %d", MaxPricingAmount)
	}
	if amount != math.Trunc(amount) {
		return "Pricing must be a whole number"
	}
	return ""
}

// =============================================================================
// Port Validation
// =============================================================================

// ValidatePort validates a TCP/UDP port number.
func ValidatePort(port int) string {
	if port <= 0 {
		return "port must be greater than 0"
	}
	if port > 65535 {
		return "port must be <= 65535"
	}
	return ""
}
