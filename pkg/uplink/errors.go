package uplink

import (
	"fmt"

	"github.com/eniz1806/VaultUplink/internal/native"
)

// Code is the stable machine-checkable kind of an Error.
type Code uint32

const (
	CodeInternal               = Code(native.CodeInternal)
	CodeCanceled               = Code(native.CodeCanceled)
	CodeInvalidHandle          = Code(native.CodeInvalidHandle)
	CodeTooManyRequests        = Code(native.CodeTooManyRequests)
	CodeBandwidthLimitExceeded = Code(native.CodeBandwidthLimitExceeded)
	CodeStorageLimitExceeded   = Code(native.CodeStorageLimitExceeded)
	CodeSegmentsLimitExceeded  = Code(native.CodeSegmentsLimitExceeded)
	CodePermissionDenied       = Code(native.CodePermissionDenied)
	CodeBucketNameInvalid      = Code(native.CodeBucketNameInvalid)
	CodeBucketAlreadyExists    = Code(native.CodeBucketAlreadyExists)
	CodeBucketNotEmpty         = Code(native.CodeBucketNotEmpty)
	CodeBucketNotFound         = Code(native.CodeBucketNotFound)
	CodeObjectKeyInvalid       = Code(native.CodeObjectKeyInvalid)
	CodeObjectNotFound         = Code(native.CodeObjectNotFound)
	CodeUploadDone             = Code(native.CodeUploadDone)
	CodeAuthDialFailed         = Code(native.CodeAuthDialFailed)
	CodeRegisterAccessFailed   = Code(native.CodeRegisterAccessFailed)
	CodeLibraryNotFound        = Code(native.CodeLibraryNotFound)
)

func (c Code) String() string {
	return native.Code(c).String()
}

// Error is returned by every failing call. Message comes from the library,
// Details names the operation that failed.
type Error struct {
	Code    Code
	Message string
	Details string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Details == "" {
		return fmt.Sprintf("uplink: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("uplink: %s: %s (%s)", e.Details, e.Message, e.Code)
}

// Is matches any *Error with the same code, so errors.Is(err,
// uplink.ErrBucketNotFound) works whatever the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t.Code == e.Code
}

func codeError(c Code) *Error {
	return &Error{Code: c, Message: c.String()}
}

var (
	ErrInternal               = codeError(CodeInternal)
	ErrCanceled               = codeError(CodeCanceled)
	ErrInvalidHandle          = codeError(CodeInvalidHandle)
	ErrTooManyRequests        = codeError(CodeTooManyRequests)
	ErrBandwidthLimitExceeded = codeError(CodeBandwidthLimitExceeded)
	ErrStorageLimitExceeded   = codeError(CodeStorageLimitExceeded)
	ErrSegmentsLimitExceeded  = codeError(CodeSegmentsLimitExceeded)
	ErrPermissionDenied       = codeError(CodePermissionDenied)
	ErrBucketNameInvalid      = codeError(CodeBucketNameInvalid)
	ErrBucketAlreadyExists    = codeError(CodeBucketAlreadyExists)
	ErrBucketNotEmpty         = codeError(CodeBucketNotEmpty)
	ErrBucketNotFound         = codeError(CodeBucketNotFound)
	ErrObjectKeyInvalid       = codeError(CodeObjectKeyInvalid)
	ErrObjectNotFound         = codeError(CodeObjectNotFound)
	ErrUploadDone             = codeError(CodeUploadDone)
	ErrAuthDialFailed         = codeError(CodeAuthDialFailed)
	ErrRegisterAccessFailed   = codeError(CodeRegisterAccessFailed)
	ErrLibraryNotFound        = codeError(CodeLibraryNotFound)
)

// fromNative converts a library error at the call that produced it. It
// returns an untyped nil for a nil error.
func fromNative(op string, e *native.Error) error {
	if e == nil {
		return nil
	}
	return &Error{Code: Code(e.Code), Message: e.Message, Details: op}
}

// asError converts errors returned by native.Load and native.Locate.
func asError(op string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*native.Error); ok {
		return fromNative(op, e)
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Details: op}
}
