// Package errors provides coded application errors that map onto gRPC
// status codes and HTTP statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// Domain identifies this service in ErrorInfo details.
const Domain = "skinmatch.platform"

// Code classifies an AppError.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeImageInvalid
	CodeImageEmpty
	CodeCatalogueUnavailable
	CodeCatalogueInvalid
	CodeConfigInvalid
)

var codeNames = map[Code]string{
	CodeUnknown:              "UNKNOWN",
	CodeInternal:             "INTERNAL",
	CodeInvalidArgument:      "INVALID_ARGUMENT",
	CodeNotFound:             "NOT_FOUND",
	CodeUnavailable:          "UNAVAILABLE",
	CodeTimeout:              "TIMEOUT",
	CodeCancelled:            "CANCELLED",
	CodeImageInvalid:         "IMAGE_INVALID",
	CodeImageEmpty:           "IMAGE_EMPTY",
	CodeCatalogueUnavailable: "CATALOGUE_UNAVAILABLE",
	CodeCatalogueInvalid:     "CATALOGUE_INVALID",
	CodeConfigInvalid:        "CONFIG_INVALID",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// parseCode is the inverse of Code.String.
func parseCode(s string) (Code, bool) {
	for c, name := range codeNames {
		if name == s {
			return c, true
		}
	}
	return CodeUnknown, false
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:              codes.Unknown,
	CodeInternal:             codes.Internal,
	CodeInvalidArgument:      codes.InvalidArgument,
	CodeNotFound:             codes.NotFound,
	CodeUnavailable:          codes.Unavailable,
	CodeTimeout:              codes.DeadlineExceeded,
	CodeCancelled:            codes.Canceled,
	CodeImageInvalid:         codes.InvalidArgument,
	CodeImageEmpty:           codes.InvalidArgument,
	CodeCatalogueUnavailable: codes.Unavailable,
	CodeCatalogueInvalid:     codes.FailedPrecondition,
	CodeConfigInvalid:        codes.InvalidArgument,
}

var httpStatusMap = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.NotFound:           http.StatusNotFound,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.Canceled:           499, // client closed request
	codes.FailedPrecondition: http.StatusPreconditionFailed,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// HTTPStatus returns the HTTP status used when the error reaches a client.
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatusMap[e.GRPCCode()]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ToProto converts to an ErrorInfo detail message. The message travels in
// the "message" metadata key.
func (e *AppError) ToProto() *errdetails.ErrorInfo {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md["message"] = e.Message
	return &errdetails.ErrorInfo{Reason: e.Code.String(), Domain: Domain, Metadata: md}
}

// GRPCStatus returns a gRPC status with the ErrorInfo attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	if withDetail, err := st.WithDetails(e.ToProto()); err == nil {
		return withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != Domain {
			continue
		}
		info = proto.Clone(info).(*errdetails.ErrorInfo)
		code, _ := parseCode(info.GetReason())
		md := info.GetMetadata()
		msg := md["message"]
		delete(md, "message")
		if len(md) == 0 {
			md = nil
		}
		return &AppError{Code: code, Message: msg, Metadata: md}
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message()}
}

// grpcToCode maps gRPC codes back to our codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	case codes.FailedPrecondition:
		return CodeCatalogueInvalid
	default:
		return CodeUnknown
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := As(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeCatalogueUnavailable:
		return true
	default:
		return false
	}
}
