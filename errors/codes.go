package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Dataflow errors raised by subscribers, channels and units.
const (
	// ErrCodeTransmitClosed indicates a transmit into a subscriber that no longer accepts items.
	ErrCodeTransmitClosed ErrorCode = "TRANSMIT_CLOSED"
	// ErrCodeSubscriberKilled indicates a subscriber was force-shut while a caller waited on it.
	ErrCodeSubscriberKilled ErrorCode = "SUBSCRIBER_KILLED"
	// ErrCodeUnexpectedUnit indicates a unit's wrapped process failed structurally.
	ErrCodeUnexpectedUnit ErrorCode = "UNEXPECTED_UNIT"
	// ErrCodeStructural indicates the graph itself is broken (an output vanished, a run was truncated).
	ErrCodeStructural ErrorCode = "STRUCTURAL"
	// ErrCodePipelineKilled indicates the pipeline was killed before completion.
	ErrCodePipelineKilled ErrorCode = "PIPELINE_KILLED"
)

// Item-level errors that do not stop the pipeline.
const (
	// ErrCodeMissingKeys indicates a package lacks keys a process requires.
	ErrCodeMissingKeys ErrorCode = "MISSING_KEYS"
	// ErrCodePeerClosing indicates a yield or transmit hit a gracefully closing peer.
	ErrCodePeerClosing ErrorCode = "PEER_CLOSING"
)

// Lifecycle errors
const (
	// ErrCodeInvalidState indicates an operation was attempted in the wrong lifecycle state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeAlreadyShutdown indicates a repeated shutdown; always absorbed.
	ErrCodeAlreadyShutdown ErrorCode = "ALREADY_SHUTDOWN"
)

// Process errors
const (
	// ErrCodeProcessFailed indicates an external step exited unsuccessfully.
	ErrCodeProcessFailed ErrorCode = "PROCESS_FAILED"
	// ErrCodeTimeout indicates an operation ran past its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeServiceUnavailable indicates a step is temporarily rejected (open circuit, full bulkhead).
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Input errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Severity groups error codes into the three handling tiers of the engine.
type Severity int

const (
	// SeverityUnrecoverable triggers a cascading forced shutdown.
	SeverityUnrecoverable Severity = iota
	// SeverityRecoverable is logged and processing continues.
	SeverityRecoverable
	// SeverityAbsorbed is never surfaced (double shutdown).
	SeverityAbsorbed
)

func (s Severity) String() string {
	switch s {
	case SeverityRecoverable:
		return "recoverable"
	case SeverityAbsorbed:
		return "absorbed"
	default:
		return "unrecoverable"
	}
}

var severities = map[ErrorCode]Severity{
	ErrCodeMissingKeys:        SeverityRecoverable,
	ErrCodePeerClosing:        SeverityRecoverable,
	ErrCodeServiceUnavailable: SeverityRecoverable,
	ErrCodeTimeout:            SeverityRecoverable,
	ErrCodeAlreadyShutdown:    SeverityAbsorbed,
}

// SeverityOf returns the handling tier for a code. Unknown codes are unrecoverable.
func SeverityOf(code ErrorCode) Severity {
	if s, ok := severities[code]; ok {
		return s
	}
	return SeverityUnrecoverable
}

// IsRecoverableCode returns true if the code is handled by logging and continuing.
func IsRecoverableCode(code ErrorCode) bool {
	return SeverityOf(code) == SeverityRecoverable
}
