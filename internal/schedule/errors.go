package schedule

import (
	"errors"
	"fmt"
)

// Failure classes of a scheduling call. All of them are fatal: scheduling
// is deterministic, so retrying the same input cannot succeed.
var (
	ErrInvalidGraphShape      = errors.New("invalid graph shape")
	ErrUnsupportedPattern     = errors.New("unsupported pattern")
	ErrInstructionMappingMiss = errors.New("instruction mapping miss")
	ErrCapacityInfeasible     = errors.New("capacity infeasible")
)

// Error is a classified scheduling failure.
type Error struct {
	Kind  error
	Phase Phase
	Msg   string
}

func (e *Error) Error() string {
	if e.Phase == PhaseStart {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%v after %s: %s", e.Kind, e.Phase, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds a classified error.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// AtPhase stamps the last completed phase on a classified error. Errors
// that are not classified are wrapped as they are.
func AtPhase(err error, p Phase) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Phase == PhaseStart {
			cp := *se
			cp.Phase = p
			return &cp
		}
		return err
	}
	return fmt.Errorf("after %s: %w", p, err)
}

// Classify returns the sentinel an error unwraps to, or nil.
func Classify(err error) error {
	for _, kind := range []error{ErrInvalidGraphShape, ErrUnsupportedPattern, ErrInstructionMappingMiss, ErrCapacityInfeasible} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
