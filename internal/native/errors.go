package native

import (
	"context"
	"errors"
	"fmt"

	"github.com/eniz1806/VaultUplink/internal/satellite"
)

// Code identifies an error kind. The values are stable across releases.
type Code uint32

const (
	CodeInternal               Code = 0x02
	CodeCanceled               Code = 0x03
	CodeInvalidHandle          Code = 0x04
	CodeTooManyRequests        Code = 0x05
	CodeBandwidthLimitExceeded Code = 0x06
	CodeStorageLimitExceeded   Code = 0x07
	CodeSegmentsLimitExceeded  Code = 0x08
	CodePermissionDenied       Code = 0x09

	CodeBucketNameInvalid   Code = 0x10
	CodeBucketAlreadyExists Code = 0x11
	CodeBucketNotEmpty      Code = 0x12
	CodeBucketNotFound      Code = 0x13

	CodeObjectKeyInvalid Code = 0x20
	CodeObjectNotFound   Code = 0x21
	CodeUploadDone       Code = 0x22

	CodeAuthDialFailed       Code = 0x30
	CodeRegisterAccessFailed Code = 0x31

	CodeLibraryNotFound Code = 0x9999
)

var codeNames = map[Code]string{
	CodeInternal:               "internal",
	CodeCanceled:               "canceled",
	CodeInvalidHandle:          "invalid handle",
	CodeTooManyRequests:        "too many requests",
	CodeBandwidthLimitExceeded: "bandwidth limit exceeded",
	CodeStorageLimitExceeded:   "storage limit exceeded",
	CodeSegmentsLimitExceeded:  "segments limit exceeded",
	CodePermissionDenied:       "permission denied",
	CodeBucketNameInvalid:      "bucket name invalid",
	CodeBucketAlreadyExists:    "bucket already exists",
	CodeBucketNotEmpty:         "bucket not empty",
	CodeBucketNotFound:         "bucket not found",
	CodeObjectKeyInvalid:       "object key invalid",
	CodeObjectNotFound:         "object not found",
	CodeUploadDone:             "upload done",
	CodeAuthDialFailed:         "auth dial failed",
	CodeRegisterAccessFailed:   "register access failed",
	CodeLibraryNotFound:        "library not found",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(0x%x)", uint32(c))
}

// Error is the error half of every result. A nil *Error is the only success signal.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errInvalidHandle is raised by the arena for stale, freed or mistyped handles.
var errInvalidHandle = errors.New("invalid handle")

// classify maps satellite errors onto codes. Order matters: wrapped errors
// can match more than one sentinel and the first match wins.
var classify = []struct {
	target error
	code   Code
}{
	{context.Canceled, CodeCanceled},
	{context.DeadlineExceeded, CodeCanceled},
	{errInvalidHandle, CodeInvalidHandle},
	{satellite.ErrTooManyRequests, CodeTooManyRequests},
	{satellite.ErrBandwidthLimit, CodeBandwidthLimitExceeded},
	{satellite.ErrStorageLimit, CodeStorageLimitExceeded},
	{satellite.ErrSegmentsLimit, CodeSegmentsLimitExceeded},
	{satellite.ErrPermissionDenied, CodePermissionDenied},
	{satellite.ErrBucketNameInvalid, CodeBucketNameInvalid},
	{satellite.ErrBucketExists, CodeBucketAlreadyExists},
	{satellite.ErrBucketNotEmpty, CodeBucketNotEmpty},
	{satellite.ErrBucketNotFound, CodeBucketNotFound},
	{satellite.ErrObjectKeyInvalid, CodeObjectKeyInvalid},
	{satellite.ErrObjectNotFound, CodeObjectNotFound},
	{satellite.ErrUploadNotFound, CodeObjectNotFound},
	{satellite.ErrUploadDone, CodeUploadDone},
	{satellite.ErrDialFailed, CodeAuthDialFailed},
	{satellite.ErrInvalidAPIKey, CodeRegisterAccessFailed},
}

// newError converts err at the call that produced it. nil stays nil.
func newError(err error) *Error {
	if err == nil {
		return nil
	}
	var nerr *Error
	if errors.As(err, &nerr) {
		cp := *nerr
		return &cp
	}
	for _, c := range classify {
		if errors.Is(err, c.target) {
			return &Error{Code: c.code, Message: err.Error()}
		}
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}

func invalidHandle(k kind, h Handle) *Error {
	return newError(fmt.Errorf("%w: %s %s", errInvalidHandle, k, h))
}

// FreeError releases an error returned on its own. It is safe on nil.
func FreeError(e *Error) {
	if e != nil {
		e.Message = ""
	}
}
