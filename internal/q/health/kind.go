package health

import "errors"

// Kind classifies an error so callers can branch on the category of failure without matching messages.
type Kind string

const (
	KindNone       Kind = ""
	KindTimeout    Kind = "timeout"    // a query did not answer in time, or answered with nothing
	KindValidation Kind = "validation" // a response failed validation
	KindExtraction Kind = "extraction" // a body region could not be located
	KindApply      Kind = "apply"      // a document edit could not be applied
	KindCancelled  Kind = "cancelled"
	KindProvider   Kind = "provider" // the completion provider returned an error
	KindConfig     Kind = "config"
)

// KindOf returns the Kind of the outermost classified HealthErr in err's chain, or KindNone.
func KindOf(err error) Kind {
	for err != nil {
		var h *HealthErr
		if !errors.As(err, &h) {
			return KindNone
		}
		if h.Kind != KindNone {
			return h.Kind
		}
		err = h.wrapped
	}
	return KindNone
}

// IsKind reports whether KindOf(err) == kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
