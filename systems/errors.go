package systems

import (
	"errors"
	"fmt"
)

var (
	// ErrUnstable indicates a particle state diverged (non-finite or past a stability limit).
	ErrUnstable = errors.New("sph: simulation unstable")

	// ErrUnknownKernel indicates a kernel name with no registered implementation.
	ErrUnknownKernel = errors.New("sph: unknown kernel")

	// ErrUnknownDetection indicates a surface detection policy name that is not recognized.
	ErrUnknownDetection = errors.New("sph: unknown surface detection policy")
)

// StepError records where and why a step failed.
type StepError struct {
	Iteration int
	Particle  int // Particle ID
	Quantity  string
	Value     float64
	Wrapped   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("iteration %d: particle %d: %s = %g: %v",
		e.Iteration, e.Particle, e.Quantity, e.Value, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
