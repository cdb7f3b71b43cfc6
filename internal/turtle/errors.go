// ABOUTME: Sentinel errors for turtle control, correlation and registry operations.
// ABOUTME: Callers match them with errors.Is; context is added with %w wrapping.

package turtle

import "errors"

var (
	// ErrNoFuel indicates a turtle cannot move for lack of fuel.
	ErrNoFuel = errors.New("turtle has no fuel")

	// ErrUnsupportedMotion indicates a motion the turtle cannot sense ahead of,
	// such as a mining move backward.
	ErrUnsupportedMotion = errors.New("unsupported motion")

	// ErrTransport indicates the connection to the turtle failed or was closed.
	ErrTransport = errors.New("turtle transport failure")

	// ErrResponseMalformed indicates the turtle replied with something undecodable.
	ErrResponseMalformed = errors.New("malformed turtle response")

	// ErrCommandTimeout indicates the turtle did not reply in time.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrCommandInFlight indicates a second command was sent while one was
	// still awaiting its reply.
	ErrCommandInFlight = errors.New("command already in flight")

	// ErrGoalNotImplemented indicates the turtle's goal has no behavior yet.
	ErrGoalNotImplemented = errors.New("goal not implemented")

	// ErrMoveBlocked indicates a mining move exhausted its attempts without
	// the turtle changing position.
	ErrMoveBlocked = errors.New("move blocked")

	// ErrSweepUnbounded indicates a layer sweep would never reach its end.
	ErrSweepUnbounded = errors.New("layer sweep does not terminate")

	// ErrCalibrationFailed indicates the turtle could not determine north.
	ErrCalibrationFailed = errors.New("calibration failed")

	// ErrAgentAlreadyRegistered indicates a turtle with the same ID is registered.
	ErrAgentAlreadyRegistered = errors.New("turtle already registered")

	// ErrAgentNotFound indicates the specified turtle was not found.
	ErrAgentNotFound = errors.New("turtle not found")
)
