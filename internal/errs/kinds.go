package errs

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Capability orchestration failures. Callers match them with errors.Is.
var (
	ErrConnection           = errors.New("connection error")
	ErrDiscovery            = errors.New("discovery error")
	ErrUnknownCapability    = errors.New("unknown capability")
	ErrInvalidArguments     = errors.New("invalid arguments")
	ErrMalformedArguments   = errors.New("malformed arguments")
	ErrProviderFault        = errors.New("provider fault")
	ErrTimeout              = errors.New("timeout")
	ErrRunTimeout           = errors.New("run timeout")
	ErrNameCollision        = errors.New("name collision")
	ErrFunctionLoopExceeded = errors.New("function loop exceeded")
	ErrAlreadyConnected     = errors.New("already connected")
	ErrClosed               = errors.New("closed")
)

// NameCollisionError lists the capability names that two providers both
// tried to publish.
type NameCollisionError struct {
	Provider string
	Names    []string
}

// NewNameCollision builds a NameCollisionError with names sorted.
func NewNameCollision(provider string, names []string) *NameCollisionError {
	names = slices.Clone(names)
	slices.Sort(names)
	return &NameCollisionError{Provider: provider, Names: names}
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("%s: provider %q publishes already registered names: %s",
		ErrNameCollision, e.Provider, strings.Join(e.Names, ", "))
}

// Is makes errors.Is(err, ErrNameCollision) hold.
func (e *NameCollisionError) Is(target error) bool {
	return target == ErrNameCollision
}

// Kind returns the taxonomy sentinel err matches, or nil.
func Kind(err error) error {
	for _, kind := range []error{
		ErrRunTimeout,
		ErrTimeout,
		ErrFunctionLoopExceeded,
		ErrNameCollision,
		ErrAlreadyConnected,
		ErrUnknownCapability,
		ErrMalformedArguments,
		ErrInvalidArguments,
		ErrProviderFault,
		ErrClosed,
		ErrDiscovery,
		ErrConnection,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
