package uplink

import (
	"io"

	"github.com/eniz1806/VaultUplink/internal/native"
)

// BeginUpload starts a multipart upload. Parts can then be uploaded in any
// order, including concurrently, and are assembled by part number.
func (p *Project) BeginUpload(bucket, key string, opts *UploadOptions) (*UploadInfo, error) {
	r := p.up.lib.BeginUpload(p.handle, bucket, key, opts.native())
	defer p.up.lib.FreeUploadInfoResult(r)
	if r.Error != nil {
		return nil, fromNative("begin upload", r.Error)
	}
	return uploadInfoFromNative(r.Info), nil
}

// CommitUpload assembles the committed parts into the object.
func (p *Project) CommitUpload(bucket, key, uploadID string, opts *CommitUploadOptions) (*Object, error) {
	var co *native.CommitUploadOptions
	if opts != nil {
		co = &native.CommitUploadOptions{CustomMetadata: opts.CustomMetadata.native()}
	}
	r := p.up.lib.CommitUpload(p.handle, bucket, key, uploadID, co)
	defer p.up.lib.FreeCommitUploadResult(r)
	if r.Error != nil {
		return nil, fromNative("commit upload", r.Error)
	}
	return objectFromNative(r.Object), nil
}

// AbortUpload discards the upload and every part committed to it.
func (p *Project) AbortUpload(bucket, key, uploadID string) error {
	return fromNative("abort upload", p.up.lib.AbortUpload(p.handle, bucket, key, uploadID))
}

// PartUpload streams one part of a multipart upload.
type PartUpload struct {
	up     *Uplink
	handle native.Handle
	done   bool
}

// UploadPart starts part partNumber (1 to 10000). Uploading a part number
// again replaces the earlier part on commit.
func (p *Project) UploadPart(bucket, key, uploadID string, partNumber uint32) (*PartUpload, error) {
	r := p.up.lib.UploadPart(p.handle, bucket, key, uploadID, partNumber)
	if r.Error != nil {
		defer p.up.lib.FreePartUploadResult(r)
		return nil, fromNative("upload part", r.Error)
	}
	return &PartUpload{up: p.up, handle: r.PartUpload}, nil
}

func (u *PartUpload) Write(p []byte) (int, error) {
	if u.done {
		return 0, doneError("part write")
	}
	lib := u.up.lib
	return writeChunks("part write", func(b []byte) native.WriteResult {
		return lib.PartUploadWrite(u.handle, b)
	}, lib.FreeWriteResult, p)
}

// WriteFile copies r into the part in chunks of bufSize bytes.
func (u *PartUpload) WriteFile(r io.Reader, bufSize int) error {
	return copyChunks(u, r, bufSize)
}

// SetETag records an opaque tag listed with the part.
func (u *PartUpload) SetETag(etag string) error {
	if u.done {
		return doneError("set etag")
	}
	return fromNative("set etag", u.up.lib.PartUploadSetETag(u.handle, etag))
}

func (u *PartUpload) Info() (*Part, error) {
	if u.done {
		return nil, doneError("part info")
	}
	r := u.up.lib.PartUploadInfo(u.handle)
	defer u.up.lib.FreePartResult(r)
	if r.Error != nil {
		return nil, fromNative("part info", r.Error)
	}
	return partFromNative(r.Part), nil
}

func (u *PartUpload) Commit() error {
	if u.done {
		return doneError("commit part")
	}
	err := u.up.lib.PartUploadCommit(u.handle)
	u.release()
	return fromNative("commit part", err)
}

func (u *PartUpload) Abort() error {
	if u.done {
		return doneError("abort part")
	}
	err := u.up.lib.PartUploadAbort(u.handle)
	u.release()
	return fromNative("abort part", err)
}

func (u *PartUpload) release() {
	u.done = true
	u.up.lib.FreePartUploadResult(native.PartUploadResult{PartUpload: u.handle})
}

// ListUploads lists pending multipart uploads in key order.
func (p *Project) ListUploads(bucket string, opts *ListUploadsOptions) *UploadIterator {
	var lo *native.ListUploadsOptions
	if opts != nil {
		lo = &native.ListUploadsOptions{
			Prefix:    opts.Prefix,
			Cursor:    opts.Cursor,
			Recursive: opts.Recursive,
			System:    opts.System,
			Custom:    opts.Custom,
		}
	}
	lib := p.up.lib
	h := lib.ListUploads(p.handle, bucket, lo)
	return &UploadIterator{
		op:   "list uploads",
		next: func() bool { return lib.UploadIteratorNext(h) },
		item: func() UploadInfo { return *uploadInfoFromNative(lib.UploadIteratorItem(h)) },
		err:  func() *native.Error { return lib.UploadIteratorErr(h) },
		free: func() { lib.FreeUploadIterator(h) },
	}
}

// ListUploadParts lists an upload's committed parts by part number.
func (p *Project) ListUploadParts(bucket, key, uploadID string, opts *ListUploadPartsOptions) *PartIterator {
	var lo *native.ListUploadPartsOptions
	if opts != nil {
		lo = &native.ListUploadPartsOptions{Cursor: opts.Cursor}
	}
	lib := p.up.lib
	h := lib.ListUploadParts(p.handle, bucket, key, uploadID, lo)
	return &PartIterator{
		op:   "list upload parts",
		next: func() bool { return lib.PartIteratorNext(h) },
		item: func() Part { return *partFromNative(lib.PartIteratorItem(h)) },
		err:  func() *native.Error { return lib.PartIteratorErr(h) },
		free: func() { lib.FreePartIterator(h) },
	}
}
