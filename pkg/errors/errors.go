// Package errors provides a structured error system for cloudkit with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cloudkit operations.
type ErrorCode string

// Error code constants grouped by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave    ErrorCode = "CONFIG_SAVE"

	// Argument errors
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Lookup errors
	ErrCodeEntryNotFound    ErrorCode = "ENTRY_NOT_FOUND"
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// Message errors
	ErrCodeMessageVisibilityExpired ErrorCode = "MESSAGE_VISIBILITY_EXPIRED"
	ErrCodeMissingAttribute         ErrorCode = "MISSING_ATTRIBUTE"
	ErrCodeAttributeParse           ErrorCode = "ATTRIBUTE_PARSE"

	// Provider errors
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// Operation errors
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeShutdownFailed    ErrorCode = "SHUTDOWN_FAILED"
	ErrCodeSessionClosed     ErrorCode = "SESSION_CLOSED"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryArgument      ErrorCategory = "argument"
	CategoryLookup        ErrorCategory = "lookup"
	CategoryMessage       ErrorCategory = "message"
	CategoryTransport     ErrorCategory = "transport"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// Sentinel values for errors.Is matching. Only the code is compared.
var (
	ErrInvalidArgument          = &CloudKitError{Code: ErrCodeInvalidArgument}
	ErrEntryNotFound            = &CloudKitError{Code: ErrCodeEntryNotFound}
	ErrResourceNotFound         = &CloudKitError{Code: ErrCodeResourceNotFound}
	ErrMessageVisibilityExpired = &CloudKitError{Code: ErrCodeMessageVisibilityExpired}
	ErrMissingAttribute         = &CloudKitError{Code: ErrCodeMissingAttribute}
	ErrAttributeParse           = &CloudKitError{Code: ErrCodeAttributeParse}
	ErrTransport                = &CloudKitError{Code: ErrCodeTransport}
	ErrOperationCanceled        = &CloudKitError{Code: ErrCodeOperationCanceled}
	ErrInvalidConfig            = &CloudKitError{Code: ErrCodeInvalidConfig}
	ErrSessionClosed            = &CloudKitError{Code: ErrCodeSessionClosed}
)

// CloudKitError represents a structured error with context and metadata.
type CloudKitError struct {
	// Core error information
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *CloudKitError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString("[")
		b.WriteString(e.Component)
		if e.Operation != "" {
			b.WriteString(":")
			b.WriteString(e.Operation)
		}
		b.WriteString("] ")
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *CloudKitError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *CloudKitError) Is(target error) bool {
	if ckErr, ok := target.(*CloudKitError); ok {
		return e.Code == ckErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *CloudKitError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}

	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%q", k, e.Context[k]))
		}
	}

	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("CloudKitError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *CloudKitError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new cloudkit error with default values.
func NewError(code ErrorCode, message string) *CloudKitError {
	return &CloudKitError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigLoad, ErrCodeConfigSave:
		return CategoryConfiguration
	case ErrCodeInvalidArgument:
		return CategoryArgument
	case ErrCodeEntryNotFound, ErrCodeResourceNotFound:
		return CategoryLookup
	case ErrCodeMessageVisibilityExpired, ErrCodeMissingAttribute, ErrCodeAttributeParse:
		return CategoryMessage
	case ErrCodeTransport:
		return CategoryTransport
	case ErrCodeOperationCanceled, ErrCodeShutdownFailed, ErrCodeSessionClosed:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
// Transport failures are retryable by the caller; nothing in cloudkit retries on its own.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeTransport, ErrCodeMessageVisibilityExpired:
		return true
	default:
		return false
	}
}

// WithContext adds contextual information to an error
func (e *CloudKitError) WithContext(key, value string) *CloudKitError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *CloudKitError) WithDetail(key string, value interface{}) *CloudKitError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *CloudKitError) WithComponent(component string) *CloudKitError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *CloudKitError) WithOperation(operation string) *CloudKitError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *CloudKitError) WithCause(cause error) *CloudKitError {
	e.Cause = cause
	return e
}

// GetRecommendation returns a short hint for fixing the error.
func (e *CloudKitError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeInvalidArgument: "Check the named field; empty values and unsupported names are rejected before any request is sent.",
		ErrCodeResourceNotFound: "Buckets are never created automatically. " +
			"Create the bucket first and verify the region and credentials.",
		ErrCodeMessageVisibilityExpired: "The message became visible again before it was deleted. " +
			"Process messages faster or raise the visibility timeout; expect a redelivery.",
		ErrCodeMissingAttribute: "Request the attribute when receiving the message.",
		ErrCodeTransport:        "The provider rejected or failed the request. Inspect the cause; the call can be retried.",
		ErrCodeInvalidConfig:    "Check your configuration file syntax and required parameters.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details."
}

// Constructors for the failure kinds surfaced by cloudkit.

// InvalidArgument reports a rejected caller-supplied value.
func InvalidArgument(field, reason string) *CloudKitError {
	return NewError(ErrCodeInvalidArgument, fmt.Sprintf("%s %s", field, reason)).
		WithContext("field", field)
}

// EntryNotFound reports a cache lookup miss.
func EntryNotFound(key string) *CloudKitError {
	return NewError(ErrCodeEntryNotFound, fmt.Sprintf("no cache entry for key %s", key)).
		WithContext("key", key)
}

// ResourceNotFound reports a remote resource that must exist but does not.
func ResourceNotFound(kind, name string) *CloudKitError {
	return NewError(ErrCodeResourceNotFound, fmt.Sprintf("%s %s does not exist", kind, name)).
		WithContext(kind, name)
}

// MessageVisibilityExpired reports a delete attempted after the message became visible again.
func MessageVisibilityExpired(messageID, body string, cause error) *CloudKitError {
	return NewError(ErrCodeMessageVisibilityExpired,
		fmt.Sprintf("could not delete message %s as it has become visible in queue again", messageID)).
		WithContext("message_id", messageID).
		WithContext("body", body).
		WithCause(cause)
}

// MissingAttribute reports an attribute absent from a received message.
func MissingAttribute(name string) *CloudKitError {
	return NewError(ErrCodeMissingAttribute, fmt.Sprintf("message has no attribute %s", name)).
		WithContext("attribute", name)
}

// AttributeParse reports an attribute whose value could not be parsed.
func AttributeParse(name, value string, cause error) *CloudKitError {
	return NewError(ErrCodeAttributeParse, fmt.Sprintf("attribute %s has unparsable value %q", name, value)).
		WithContext("attribute", name).
		WithContext("value", value).
		WithCause(cause)
}

// Transport reports a provider failure annotated with the operation and resource names.
func Transport(operation, resource string, cause error) *CloudKitError {
	return NewError(ErrCodeTransport, fmt.Sprintf("%s failed for %s", operation, resource)).
		WithOperation(operation).
		WithContext("resource", resource).
		WithCause(cause)
}

// Canceled reports an operation abandoned because its context ended.
func Canceled(operation string, cause error) *CloudKitError {
	return NewError(ErrCodeOperationCanceled, fmt.Sprintf("%s canceled", operation)).
		WithOperation(operation).
		WithCause(cause)
}

// CodeOf returns the code of the first CloudKitError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var ckErr *CloudKitError
	if stderrors.As(err, &ckErr) {
		return ckErr.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a CloudKitError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &CloudKitError{Code: code})
}
