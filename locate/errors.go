package locate

import "errors"

var (
	// ErrZeroDirection is returned when a ray direction has (near-)zero length.
	ErrZeroDirection = errors.New("ray direction has zero length")

	// ErrNonFiniteRay is returned when a ray origin or direction holds NaN or Inf.
	ErrNonFiniteRay = errors.New("ray has non-finite coordinates")

	// ErrTooFewRays is returned when an intersection needs more rays than given.
	ErrTooFewRays = errors.New("at least two rays are required")

	// ErrDegenerateGeometry signals a near-singular system, e.g. parallel rays.
	// FindTargets never returns it: RANSAC skips the trial and LM rejects the step.
	ErrDegenerateGeometry = errors.New("degenerate ray geometry")

	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("invalid solver parameters")

	// ErrUnknownCamera is returned when an observation names a camera missing from the config.
	ErrUnknownCamera = errors.New("unknown camera")
)
