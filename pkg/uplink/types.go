package uplink

import (
	"time"

	"github.com/eniz1806/VaultUplink/internal/native"
)

type Bucket struct {
	Name    string
	Created time.Time
}

type SystemMetadata struct {
	Created       time.Time
	Expires       time.Time
	ContentLength int64
}

type CustomMetadataEntry struct {
	Key   string
	Value string
}

// CustomMetadata keeps entries in the order they were set.
type CustomMetadata []CustomMetadataEntry

// Get returns the value of the first entry named key.
func (m CustomMetadata) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Object is a stored object or, with IsPrefix set, a collapsed prefix in a
// non-recursive listing.
type Object struct {
	Key      string
	IsPrefix bool
	System   SystemMetadata
	Custom   CustomMetadata
}

// UploadOptions zero value: the object never expires.
type UploadOptions struct {
	Expires time.Time
}

// DownloadOptions selects a byte range. The zero value reads from offset 0
// with Length 0; use a negative Length to read to the end.
type DownloadOptions struct {
	Offset int64
	Length int64
}

type ListBucketsOptions struct {
	// Cursor lists buckets after this name.
	Cursor string
}

// ListObjectsOptions zero value lists the bucket root non-recursively
// without metadata.
type ListObjectsOptions struct {
	Prefix    string
	Cursor    string
	Recursive bool
	System    bool
	Custom    bool
}

// ListUploadsOptions selects pending multipart uploads like ListObjectsOptions.
type ListUploadsOptions struct {
	Prefix    string
	Cursor    string
	Recursive bool
	System    bool
	Custom    bool
}

type ListUploadPartsOptions struct {
	// Cursor lists parts numbered above it.
	Cursor uint32
}

type UploadInfo struct {
	UploadID string
	Key      string
	IsPrefix bool
	System   SystemMetadata
	Custom   CustomMetadata
}

type Part struct {
	PartNumber uint32
	Size       int64
	Modified   time.Time
	ETag       string
}

type CommitUploadOptions struct {
	// CustomMetadata replaces the metadata given at BeginUpload when non-empty.
	CustomMetadata CustomMetadata
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func bucketFromNative(b *native.Bucket) *Bucket {
	return &Bucket{Name: b.Name, Created: unixTime(b.Created)}
}

func systemFromNative(s native.SystemMetadata) SystemMetadata {
	return SystemMetadata{
		Created:       unixTime(s.Created),
		Expires:       unixTime(s.Expires),
		ContentLength: s.ContentLength,
	}
}

func customFromNative(c native.CustomMetadata) CustomMetadata {
	if len(c.Entries) == 0 {
		return nil
	}
	out := make(CustomMetadata, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = CustomMetadataEntry{Key: e.Key, Value: e.Value}
	}
	return out
}

func (m CustomMetadata) native() native.CustomMetadata {
	out := native.CustomMetadata{Entries: make([]native.CustomMetadataEntry, len(m))}
	for i, e := range m {
		out.Entries[i] = native.CustomMetadataEntry{Key: e.Key, Value: e.Value}
	}
	return out
}

func objectFromNative(o *native.Object) *Object {
	return &Object{
		Key:      o.Key,
		IsPrefix: o.IsPrefix,
		System:   systemFromNative(o.System),
		Custom:   customFromNative(o.Custom),
	}
}

func uploadInfoFromNative(u *native.UploadInfo) *UploadInfo {
	return &UploadInfo{
		UploadID: u.UploadID,
		Key:      u.Key,
		IsPrefix: u.IsPrefix,
		System:   systemFromNative(u.System),
		Custom:   customFromNative(u.Custom),
	}
}

func partFromNative(p *native.Part) *Part {
	return &Part{
		PartNumber: p.PartNumber,
		Size:       p.Size,
		Modified:   unixTime(p.Modified),
		ETag:       p.ETag,
	}
}

func (o *UploadOptions) native() *native.UploadOptions {
	if o == nil {
		return nil
	}
	return &native.UploadOptions{Expires: unixOrZero(o.Expires)}
}
