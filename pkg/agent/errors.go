package agent

import "fmt"

// ErrUnknownKind indicates a Handle was constructed with a Kind outside
// the four recognized variants. Only reachable if a caller builds a
// Handle by hand instead of going through the resolver.
type ErrUnknownKind struct {
	Kind Kind
}

func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("agent: unknown handle kind %q", string(e.Kind))
}
