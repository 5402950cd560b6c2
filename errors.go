package mdnsd

import "fmt"

// Kind is an error category (spec §7), independent of any internal
// package's own sentinel errors so callers get one stable taxonomy
// regardless of which subsystem produced the failure.
type Kind int

const (
	// KindInvalidArg is a missing/malformed string, an over-limit length,
	// or a required field left empty.
	KindInvalidArg Kind = iota
	// KindInvalidState is an API call made after Stop. A call made before
	// Start is not rejected: it waits until Start runs the executor. A
	// query handle whose query has ended reports KindNotFound instead.
	KindInvalidState
	// KindNotFound is a service/hostname/query/browse lookup miss.
	KindNotFound
	// KindConflict is a service tuple that is already registered.
	KindConflict
	// KindOutOfMemory is a fixed-capacity table at its limit (max_services,
	// max_interfaces): the action is aborted cleanly with nothing partially
	// applied.
	KindOutOfMemory
	// KindFull is an action queue at capacity; the caller should retry.
	KindFull
	// KindParseError is never returned to a caller (spec §7: the parser
	// swallows it and logs at debug) but is named for completeness and for
	// internal packages that want a uniform taxonomy to log against.
	KindParseError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArg:
		return "InvalidArg"
	case KindInvalidState:
		return "InvalidState"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindFull:
		return "Full"
	case KindParseError:
		return "ParseError"
	default:
		return "Unknown"
	}
}

// Error is the error type every public Server method returns (spec §7:
// "API calls return an error code directly").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mdnsd: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mdnsd: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}
