package plc

import "errors"

// Sentinel errors for the protocol failure modes. Conversations wrap these
// with context via %w so callers classify with errors.Is or Kind.
var (
	// ErrTimeout: no complete response line arrived within the caller's
	// timeout. One attempt per call; retry policy belongs to the caller.
	ErrTimeout = errors.New("plc: response timeout")
	// ErrDeviceBusy: the transmitter answered with a busy marker.
	ErrDeviceBusy = errors.New("plc: transmitter busy")
	// ErrMalformedFrame: the line does not split into 3 colon fields.
	ErrMalformedFrame = errors.New("plc: malformed frame")
	// ErrBadMarker: the first field does not start with "##".
	ErrBadMarker = errors.New("plc: bad frame marker")
	// ErrCommandMismatch: the response names a different command.
	ErrCommandMismatch = errors.New("plc: command mismatch")
	// ErrInconsistentResponse: well-formed frame whose data contradicts the
	// conversation, usually a wrong echo in a multi-frame sequence.
	ErrInconsistentResponse = errors.New("plc: inconsistent response")
	// ErrSettingMismatch: a setting write was not echoed back verbatim.
	ErrSettingMismatch = errors.New("plc: setting not confirmed")
	// ErrWriteMismatch: a whitelist page echo did not match the page sent.
	ErrWriteMismatch = errors.New("plc: whitelist page not confirmed")
	// ErrValidation: caller input rejected before any serial I/O.
	ErrValidation = errors.New("plc: invalid argument")
)

// Stable kind strings used as metric label values and in API error bodies.
const (
	KindTimeout      = "timeout"
	KindBusy         = "device_busy"
	KindMalformed    = "malformed_frame"
	KindBadMarker    = "bad_marker"
	KindMismatch     = "command_mismatch"
	KindInconsistent = "inconsistent_response"
	KindSetting      = "setting_mismatch"
	KindWrite        = "write_mismatch"
	KindValidation   = "validation"
	KindInternal     = "internal"
)

// Kind maps err to its stable kind string. Errors outside the protocol
// taxonomy (transport faults, open failures) map to KindInternal.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrDeviceBusy):
		return KindBusy
	case errors.Is(err, ErrMalformedFrame):
		return KindMalformed
	case errors.Is(err, ErrBadMarker):
		return KindBadMarker
	case errors.Is(err, ErrCommandMismatch):
		return KindMismatch
	case errors.Is(err, ErrInconsistentResponse):
		return KindInconsistent
	case errors.Is(err, ErrSettingMismatch):
		return KindSetting
	case errors.Is(err, ErrWriteMismatch):
		return KindWrite
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}
