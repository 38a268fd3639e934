package satellite

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxKeyLength = 1024

var bucketNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]{1,61}[a-z0-9]$`)

// ValidateBucketName checks DNS-compatible bucket naming rules.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return fmt.Errorf("%w: %q must be between 3 and 63 characters", ErrBucketNameInvalid, name)
	}
	if !bucketNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric, may contain hyphens and dots, cannot start or end with hyphen/dot", ErrBucketNameInvalid, name)
	}
	if strings.Contains(name, "..") || strings.Contains(name, ".-") || strings.Contains(name, "-.") {
		return fmt.Errorf("%w: %q has an empty or malformed label", ErrBucketNameInvalid, name)
	}
	if net.ParseIP(name) != nil {
		return fmt.Errorf("%w: %q must not be an IP address", ErrBucketNameInvalid, name)
	}
	return nil
}

// ValidateObjectKey checks object key constraints.
func ValidateObjectKey(key string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: key must not be empty", ErrObjectKeyInvalid)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: key must not exceed %d bytes", ErrObjectKeyInvalid, maxKeyLength)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: key must be valid UTF-8", ErrObjectKeyInvalid)
	}
	if strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: key must not contain null bytes", ErrObjectKeyInvalid)
	}
	return nil
}
