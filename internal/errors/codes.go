package errors

// ErrorCode identifies a failure class. Log lines carry it as error_code.
type ErrorCode string

const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Broker errors
	ErrConnection   ErrorCode = "connection_failed"
	ErrNotConnected ErrorCode = "not_connected"
	ErrPublish      ErrorCode = "publish_failed"
	ErrSubscribe    ErrorCode = "subscribe_failed"

	// Runtime errors
	ErrProbe        ErrorCode = "probe_failed"
	ErrCommandParse ErrorCode = "command_parse_failed"
	ErrAction       ErrorCode = "action_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"

	// History errors
	ErrInitHistory   ErrorCode = "init_history_failed"
	ErrRecordHistory ErrorCode = "record_history_failed"
	ErrCloseHistory  ErrorCode = "close_history_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnavailable:     "Service unavailable",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrMissingConfig:   "Missing configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read configuration",
	ErrInvalidInterval: "Invalid interval value",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrConnection:      "Failed to connect to broker",
	ErrNotConnected:    "Not connected to broker",
	ErrPublish:         "Failed to publish message",
	ErrSubscribe:       "Failed to subscribe",
	ErrProbe:           "Probe failed",
	ErrCommandParse:    "Invalid command payload",
	ErrAction:          "Local action failed",
	ErrOperationFailed: "Operation failed",
	ErrTimeout:         "Operation timed out",
	ErrInitHistory:     "Failed to initialize history",
	ErrRecordHistory:   "Failed to record history",
	ErrCloseHistory:    "Failed to close history",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
