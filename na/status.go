package na

// Status is the flat error space visible at the NA/HG boundary. Every
// operation that can fail reports one of these; none carries a payload, and
// the library never swallows a plugin-reported status to manufacture success.
type Status int

// The complete set of statuses. Success is the zero value so a freshly
// zeroed Status reads as success, matching the completion record default.
const (
	Success Status = iota
	Canceled
	Timeout
	InvalidParam
	SizeError
	AlignmentError
	PermissionError
	NoMemory
	ProtocolError
	AddressInUse
	NoMatch
	Again
	Overflow
)

var statusNames = [...]string{
	Success:        "success",
	Canceled:       "canceled",
	Timeout:        "timeout",
	InvalidParam:   "invalid parameter",
	SizeError:      "size error",
	AlignmentError: "alignment error",
	PermissionError: "permission error",
	NoMemory:       "no memory",
	ProtocolError:  "protocol error",
	AddressInUse:   "address in use",
	NoMatch:        "no match",
	Again:          "resource temporarily unavailable",
	Overflow:       "overflow",
}

// String renders the status the way a caller would want it in a log line.
func (s Status) String() string {
	if int(s) < 0 || int(s) >= len(statusNames) || statusNames[s] == "" {
		return "unknown status"
	}
	return statusNames[s]
}

// Error implements the error interface so a Status can be returned directly
// from, or wrapped into, a conventional Go error result (InitializeMode and
// hg's server-callback lookup wrap one this way).
func (s Status) Error() string { return s.String() }

// OK reports whether the status represents successful completion.
func (s Status) OK() bool { return s == Success }
