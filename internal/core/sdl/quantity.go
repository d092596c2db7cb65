package sdl

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

// =============================================================================
// Size Quantities
// =============================================================================

// unitMultipliers lists the size suffixes emitted in descriptors.
var unitMultipliers = map[string]float64{
	"Ki": units.KiB,
	"Mi": units.MiB,
	"Gi": units.GiB,
	"Ti": units.TiB,
	"Pi": units.PiB,
	"k":  units.KB,
	"M":  units.MB,
	"G":  units.GB,
	"T":  units.TB,
	"P":  units.PB,
}

var quantityRegex = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([A-Za-z]*)$`)

// String formats the quantity as it appears in a descriptor, e.g. "512Mi".
func (q Quantity) String() string {
	return formatNumber(q.Value) + q.Unit
}

// Bytes returns the size in bytes. Unknown units count as bytes.
func (q Quantity) Bytes() int64 {
	m, ok := unitMultipliers[q.Unit]
	if !ok {
		m = 1
	}
	return int64(math.Round(q.Value * m))
}

// ParseQuantity parses a size such as "512Mi", "1Gi" or "10G".
// Non-canonical spellings ("512MB", "1GiB", "512m") are coerced to binary
// units through go-units.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	match := quantityRegex.FindStringSubmatch(s)
	if match == nil {
		return Quantity{}, fmt.Errorf("invalid size %q", s)
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid size %q", s)
	}

	if _, ok := unitMultipliers[match[2]]; ok {
		return Quantity{Value: value, Unit: match[2]}, nil
	}

	bytes, err := units.RAMInBytes(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid size %q", s)
	}
	return quantityFromBytes(bytes), nil
}

// quantityFromBytes expresses a byte count in the largest binary unit that
// divides it evenly, falling back to fractional Mi.
func quantityFromBytes(bytes int64) Quantity {
	switch {
	case bytes >= units.GiB && bytes%units.GiB == 0:
		return Quantity{Value: float64(bytes / units.GiB), Unit: "Gi"}
	case bytes >= units.MiB && bytes%units.MiB == 0:
		return Quantity{Value: float64(bytes / units.MiB), Unit: "Mi"}
	case bytes%units.KiB == 0:
		return Quantity{Value: float64(bytes / units.KiB), Unit: "Ki"}
	default:
		return Quantity{Value: float64(bytes) / units.MiB, Unit: "Mi"}
	}
}

// canonicalQuantity defaults a missing unit and rewrites unknown units into
// canonical ones. The value itself must be validated by the caller.
func canonicalQuantity(q Quantity, defaultUnit string) (Quantity, error) {
	if q.Unit == "" {
		q.Unit = defaultUnit
	}
	if _, ok := unitMultipliers[q.Unit]; ok {
		return q, nil
	}
	return ParseQuantity(q.String())
}

// =============================================================================
// CPU Units
// =============================================================================

// FormatCPU formats cores as millicores, e.g. 0.5 -> "500m".
func FormatCPU(cores float64) string {
	return fmt.Sprintf("%dm", int64(math.Round(cores*1000)))
}

// ParseCPU parses "500m" or a plain number of cores.
func ParseCPU(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "m") {
		millis, err := strconv.ParseFloat(strings.TrimSuffix(s, "m"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid cpu units %q", s)
		}
		return roundCPU(millis / 1000), nil
	}
	cores, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cpu units %q", s)
	}
	return roundCPU(cores), nil
}

// roundCPU rounds cores to millicore precision.
func roundCPU(cores float64) float64 {
	return math.Round(cores*1000) / 1000
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
