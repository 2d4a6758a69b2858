package clip

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedFields     = errors.New("unexpected fields")
	ErrInvalidMarker        = errors.New("invalid marker")
	ErrUnknownClipReference = errors.New("unknown clip reference")
	ErrIOFailure            = errors.New("clip catalog unavailable")
	ErrNotFound             = errors.New("clip not found")
)

// Rejection is returned by Validate when an upload payload is refused.
// It unwraps to one of the reason sentinels above.
type Rejection struct {
	Reason error
	Field  string
	Value  string
}

func (r *Rejection) Error() string {
	if r.Field == "" {
		return r.Reason.Error()
	}
	return fmt.Sprintf("%s: %s=%q", r.Reason, r.Field, r.Value)
}

func (r *Rejection) Unwrap() error { return r.Reason }

// Code returns the wire name of the rejection reason.
func (r *Rejection) Code() string {
	switch {
	case errors.Is(r.Reason, ErrUnexpectedFields):
		return "UnexpectedFields"
	case errors.Is(r.Reason, ErrInvalidMarker):
		return "InvalidMarker"
	case errors.Is(r.Reason, ErrUnknownClipReference):
		return "UnknownClipReference"
	}
	return "Rejected"
}

func reject(reason error, field, value string) *Rejection {
	return &Rejection{Reason: reason, Field: field, Value: value}
}
