package packets

import "fmt"

// IncompleteError is returned when a buffer does not yet hold a full
// packet. Shortfall is the number of additional bytes known to be
// needed, or 0 if the exact shortfall isn't known (e.g. the fixed
// header itself hasn't arrived yet).
type IncompleteError struct {
	Shortfall int
}

func (e *IncompleteError) Error() string {
	if e.Shortfall > 0 {
		return fmt.Sprintf("incomplete packet: %d more bytes needed", e.Shortfall)
	}
	return "incomplete packet"
}

// MalformedError is returned for any grammar violation: a non-minimal
// variable-length integer, invalid UTF-8, a reserved flag bit set to
// something other than its fixed value, a property repeated when the
// spec forbids it, and so on. Malformed packets are fatal to the
// connection (§7).
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed packet: %s", e.Reason)
}

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

func incomplete(shortfall int) error {
	return &IncompleteError{Shortfall: shortfall}
}
