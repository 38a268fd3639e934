package satellite

import (
	"errors"

	"github.com/eniz1806/VaultUplink/internal/metadata"
)

var (
	ErrBucketNotFound = metadata.ErrBucketNotFound
	ErrBucketExists   = metadata.ErrBucketExists
	ErrBucketNotEmpty = metadata.ErrBucketNotEmpty
	ErrObjectNotFound = metadata.ErrObjectNotFound
	ErrUploadNotFound = metadata.ErrUploadNotFound

	ErrBucketNameInvalid = errors.New("bucket name invalid")
	ErrObjectKeyInvalid  = errors.New("object key invalid")
	ErrUploadDone        = errors.New("upload already committed or aborted")
	// ErrInvalidPartNumber has no code of its own and surfaces as internal.
	ErrInvalidPartNumber = errors.New("invalid part number")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrTooManyRequests   = errors.New("too many requests")
	ErrBandwidthLimit    = errors.New("bandwidth limit exceeded")
	ErrStorageLimit      = errors.New("storage limit exceeded")
	ErrSegmentsLimit     = errors.New("segments limit exceeded")

	// ErrDialFailed means no satellite answers at the access grant's address.
	ErrDialFailed = errors.New("satellite dial failed")
	// ErrInvalidAPIKey means the satellite rejected the API key.
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrInvalidAccess = errors.New("invalid access grant")
	ErrClosed        = errors.New("satellite closed")
)
