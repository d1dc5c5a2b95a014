// Package apierror defines the typed error taxonomy used across the pipeline
// and its HTTP status mapping at the ingress edge.
package apierror

import (
	"fmt"
	"strings"
)

// Type is one of the contract error types. Names are the contract, not the
// Go type itself — callers compare against these constants, never against
// a concrete struct type.
type Type string

const (
	TypeValidation       Type = "validation_error"
	TypeProtocol         Type = "protocol_error"
	TypeAuthentication   Type = "authentication_error"
	TypeRateLimit        Type = "rate_limit_error"
	TypeTimeout          Type = "timeout_error"
	TypeConnection       Type = "connection_error"
	TypeNotFound         Type = "not_found_error"
	TypeQuotaExceeded    Type = "quota_exceeded_error"
	TypeNetwork          Type = "network_error"
	TypeAPI              Type = "api_error"
	TypeNoHealthyPipe    Type = "no_healthy_pipeline"
	TypePipelineSealed   Type = "pipeline_sealed"
	TypeModuleNotRunning Type = "module_not_running"
	TypeCancelled        Type = "cancelled"
)

// Subcode enumerates protocol_error subcodes.
type Subcode string

const (
	InvalidModelField          Subcode = "INVALID_MODEL_FIELD"
	InvalidMessagesField       Subcode = "INVALID_MESSAGES_FIELD"
	RequestSizeExceeded        Subcode = "REQUEST_SIZE_EXCEEDED"
	UnsupportedRequestFormat   Subcode = "UNSUPPORTED_REQUEST_FORMAT"
	UnsupportedResponseFormat  Subcode = "UNSUPPORTED_RESPONSE_FORMAT"
	MissingModel               Subcode = "MISSING_MODEL"
	InvalidMessages            Subcode = "INVALID_MESSAGES"
	InvalidStreamFlag          Subcode = "INVALID_STREAM_FLAG"
	InvalidMessageRole         Subcode = "INVALID_MESSAGE_ROLE"
	EmptyMessageContent        Subcode = "EMPTY_MESSAGE_CONTENT"
	MissingResponseID          Subcode = "MISSING_RESPONSE_ID"
	InvalidResponseObject      Subcode = "INVALID_RESPONSE_OBJECT"
	MissingResponseChoices     Subcode = "MISSING_RESPONSE_CHOICES"
	MissingUsageInfo           Subcode = "MISSING_USAGE_INFO"
	EmptyChunksList            Subcode = "EMPTY_CHUNKS_LIST"
	InvalidTool                Subcode = "INVALID_TOOL"
	NoValidMessages            Subcode = "NO_VALID_MESSAGES"
	UnknownModelLabel          Subcode = "UNKNOWN_MODEL_LABEL"
)

// Error is the core's typed error. Param names the offending field, if any.
type Error struct {
	ErrType Type
	Sub     Subcode
	Message string
	Param   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Sub != "" {
		return fmt.Sprintf("%s[%s]: %s", e.ErrType, e.Sub, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ErrType, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no subcode.
func New(t Type, message string) *Error {
	return &Error{ErrType: t, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(t Type, format string, args ...interface{}) *Error {
	return &Error{ErrType: t, Message: fmt.Sprintf(format, args...)}
}

// WithSub attaches a protocol_error subcode.
func (e *Error) WithSub(sub Subcode) *Error {
	e.Sub = sub
	return e
}

// WithParam records the offending field name.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Protocol builds a protocol_error with the given subcode.
func Protocol(sub Subcode, message string) *Error {
	return &Error{ErrType: TypeProtocol, Sub: sub, Message: message}
}

// Validation builds a validation_error.
func Validation(message string) *Error {
	return &Error{ErrType: TypeValidation, Message: message}
}

// HTTPStatus maps a Type to the HTTP status code used at the out-of-scope
// ingress edge.
func HTTPStatus(t Type) int {
	switch t {
	case TypeValidation, TypeProtocol:
		return 400
	case TypeAuthentication:
		return 401
	case TypeNotFound:
		return 404
	case TypeTimeout:
		return 408
	case TypeRateLimit:
		return 429
	case TypeNoHealthyPipe:
		return 503
	case TypeAPI, TypeNetwork:
		return 500
	case TypeQuotaExceeded:
		return 429
	case TypeConnection:
		return 500
	case TypePipelineSealed, TypeModuleNotRunning:
		return 409
	case TypeCancelled:
		return 499
	default:
		return 500
	}
}

// Envelope is the user-visible error body: {error:{message, type, code, param}}.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

// EnvelopeBody is the inner payload of Envelope.
type EnvelopeBody struct {
	Message string `json:"message"`
	Type    Type   `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ToEnvelope renders an Error as the user-visible failure body. Code
// defaults to the upper-cased error type (e.g. RATE_LIMIT_ERROR) when no
// protocol_error subcode was attached, per spec.md's documented code
// field for the non-protocol_error taxonomy.
func ToEnvelope(err *Error) Envelope {
	code := string(err.Sub)
	if code == "" {
		code = strings.ToUpper(string(err.ErrType))
	}
	return Envelope{Error: EnvelopeBody{
		Message: err.Message,
		Type:    err.ErrType,
		Code:    code,
		Param:   err.Param,
	}}
}

// As extracts an *Error from any error, returning ok=false if err is not
// (and does not wrap) one.
func As(err error) (*Error, bool) {
	var target *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return target, false
}
