package systems

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
)

// Detection selects how free-surface particles are identified.
type Detection uint8

const (
	// DetectGradient flags particles with |grad Cs| above the threshold.
	DetectGradient Detection = iota
	// DetectDivergence flags particles with div x above the threshold.
	DetectDivergence
)

// ParseDetection maps a configuration name to a Detection.
func ParseDetection(name string) (Detection, error) {
	switch name {
	case "gradient", "":
		return DetectGradient, nil
	case "divergence":
		return DetectDivergence, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDetection, name)
}

func (d Detection) String() string {
	if d == DetectDivergence {
		return "divergence"
	}
	return "gradient"
}

// NeedsPositionDivergence reports whether div x must be estimated.
func (d Detection) NeedsPositionDivergence() bool {
	return d == DetectDivergence
}

// Classify reports whether a particle with the given derivatives lies on
// the free surface.
func Classify(policy Detection, threshold float64, d *components.Derivatives) bool {
	if policy == DetectDivergence {
		return d.DivPos > threshold
	}
	return r2.Norm(d.GradColor) > threshold
}
