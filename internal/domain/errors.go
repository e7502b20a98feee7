package domain

import "fmt"

// Stage identifies which upstream call a failure came from.
type Stage string

const (
	StageCompletion Stage = "completion"
	StageRelay      Stage = "relay"
)

// UpstreamError tags a failure from one of the two upstream calls so logs and
// the delivery journal can tell a completion failure from a relay failure. The
// user-visible response envelope stays the same for both.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// MalformedPayloadError reports a webhook body that is not valid JSON or lacks
// the expected event shape.
type MalformedPayloadError struct {
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed payload: %s: %v", e.Reason, e.Err)
	}
	return "malformed payload: " + e.Reason
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }
