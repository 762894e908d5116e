package raw

import (
	"errors"
	"fmt"
)

// ErrDecode matches every *DecodeError through errors.Is.
var ErrDecode = errors.New("raw: decode failed")

// DecodeError reports a malformed wire value. Type names the wire structure,
// Field the offending member (empty when the whole value is at fault).
type DecodeError struct {
	Type   string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("raw: decode %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("raw: decode %s.%s: %s", e.Type, e.Field, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeErr(typ, field, reason string) *DecodeError {
	return &DecodeError{Type: typ, Field: field, Reason: reason}
}

// within prefixes the location of a nested decode failure.
func within(err error, typ, field string) error {
	var de *DecodeError
	if errors.As(err, &de) {
		loc := de.Type
		if de.Field != "" {
			loc += "." + de.Field
		}
		return &DecodeError{Type: typ, Field: joinField(field, loc), Reason: de.Reason}
	}
	return err
}

func joinField(outer, inner string) string {
	if outer == "" {
		return inner
	}
	return outer + "." + inner
}

// Reasons shared by the decoders.
const (
	reasonLength       = "wrong length"
	reasonNotInField   = "not a canonical field element"
	reasonNotOnCurve   = "not a point on the curve"
	reasonNonCanonical = "non-canonical encoding"
	reasonSubgroup     = "not in the prime order subgroup"
	reasonScalarRange  = "scalar out of range"
	reasonOverflow     = "value overflows"
)
