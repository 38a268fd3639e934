package native

import (
	"context"

	"github.com/eniz1806/VaultUplink/internal/satellite"
)

func (l *Library) BeginUpload(h Handle, bucket, key string, opts *UploadOptions) UploadInfoResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return UploadInfoResult{Error: cerr}
	}
	var uo satellite.UploadOptions
	if opts != nil {
		uo.Expires = timeOrZero(opts.Expires)
	}
	info, err := p.session.BeginUpload(l.ctx, bucket, key, uo)
	if err != nil {
		return UploadInfoResult{Error: newError(err)}
	}
	return UploadInfoResult{Info: uploadInfoToC(info)}
}

func (l *Library) FreeUploadInfoResult(r UploadInfoResult) {
	FreeError(r.Error)
}

// CommitUpload assembles the committed parts into the object.
func (l *Library) CommitUpload(h Handle, bucket, key, uploadID string, opts *CommitUploadOptions) CommitUploadResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return CommitUploadResult{Error: cerr}
	}
	var co satellite.CommitUploadOptions
	if opts != nil {
		co.CustomMetadata = customFromC(opts.CustomMetadata)
	}
	obj, err := p.session.CommitUpload(l.ctx, bucket, key, uploadID, co)
	if err != nil {
		return CommitUploadResult{Error: newError(err)}
	}
	return CommitUploadResult{Object: objectToC(obj)}
}

func (l *Library) FreeCommitUploadResult(r CommitUploadResult) {
	FreeError(r.Error)
}

func (l *Library) AbortUpload(h Handle, bucket, key, uploadID string) *Error {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return cerr
	}
	return newError(p.session.AbortUpload(l.ctx, bucket, key, uploadID))
}

func (l *Library) UploadPart(h Handle, bucket, key, uploadID string, partNumber uint32) PartUploadResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return PartUploadResult{Error: cerr}
	}
	u, err := p.session.UploadPart(l.ctx, bucket, key, uploadID, int(partNumber))
	if err != nil {
		return PartUploadResult{Error: newError(err)}
	}
	return PartUploadResult{PartUpload: l.handles.put(kindPartUpload, u, p.handle)}
}

func (l *Library) PartUploadWrite(h Handle, p []byte) WriteResult {
	u, cerr := lookup[*satellite.PartUpload](l.handles, h, kindPartUpload)
	if cerr != nil {
		return WriteResult{Error: cerr}
	}
	n, err := u.Write(l.ctx, p)
	return WriteResult{BytesWritten: n, Error: newError(err)}
}

func (l *Library) PartUploadSetETag(h Handle, etag string) *Error {
	u, cerr := lookup[*satellite.PartUpload](l.handles, h, kindPartUpload)
	if cerr != nil {
		return cerr
	}
	return newError(u.SetETag(l.ctx, etag))
}

func (l *Library) PartUploadInfo(h Handle) PartResult {
	u, cerr := lookup[*satellite.PartUpload](l.handles, h, kindPartUpload)
	if cerr != nil {
		return PartResult{Error: cerr}
	}
	return PartResult{Part: partToC(u.Info())}
}

func (l *Library) PartUploadCommit(h Handle) *Error {
	u, cerr := lookup[*satellite.PartUpload](l.handles, h, kindPartUpload)
	if cerr != nil {
		return cerr
	}
	return newError(u.Commit(l.ctx))
}

func (l *Library) PartUploadAbort(h Handle) *Error {
	u, cerr := lookup[*satellite.PartUpload](l.handles, h, kindPartUpload)
	if cerr != nil {
		return cerr
	}
	return newError(u.Abort())
}

func (l *Library) FreePartUploadResult(r PartUploadResult) {
	FreeError(r.Error)
	if r.PartUpload == 0 {
		return
	}
	if v, err := l.handles.release(r.PartUpload, kindPartUpload); err == nil {
		v.(*satellite.PartUpload).Abort()
	}
}

func (l *Library) FreePartResult(r PartResult) {
	FreeError(r.Error)
}

// ListUploads starts a listing of pending multipart uploads.
func (l *Library) ListUploads(h Handle, bucket string, opts *ListUploadsOptions) Handle {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return l.handles.put(kindUploadIterator, failedIterator[satellite.UploadInfo](cerr), 0)
	}
	list := satellite.ListObjectsOptions{Limit: p.session.PageSize()}
	if opts != nil {
		list.Prefix = opts.Prefix
		list.Cursor = opts.Cursor
		list.Recursive = opts.Recursive
		list.System = opts.System
		list.Custom = opts.Custom
	}
	it := newIterator(func(ctx context.Context) ([]satellite.UploadInfo, bool, error) {
		uploads, next, more, err := p.session.ListUploads(ctx, bucket, list)
		list.Cursor = next
		return uploads, more, err
	})
	return l.handles.put(kindUploadIterator, it, p.handle)
}

func (l *Library) UploadIteratorNext(h Handle) bool {
	it, cerr := lookup[*iterator[satellite.UploadInfo]](l.handles, h, kindUploadIterator)
	if cerr != nil {
		return false
	}
	return it.next(l.ctx)
}

func (l *Library) UploadIteratorItem(h Handle) *UploadInfo {
	it, cerr := lookup[*iterator[satellite.UploadInfo]](l.handles, h, kindUploadIterator)
	if cerr != nil {
		return nil
	}
	u := it.item()
	if u == nil {
		return nil
	}
	return uploadInfoToC(u)
}

func (l *Library) UploadIteratorErr(h Handle) *Error {
	it, cerr := lookup[*iterator[satellite.UploadInfo]](l.handles, h, kindUploadIterator)
	if cerr != nil {
		return cerr
	}
	return newError(it.err)
}

func (l *Library) FreeUploadIterator(h Handle) {
	l.handles.release(h, kindUploadIterator)
}

// ListUploadParts starts a listing of an upload's committed parts.
func (l *Library) ListUploadParts(h Handle, bucket, key, uploadID string, opts *ListUploadPartsOptions) Handle {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return l.handles.put(kindPartIterator, failedIterator[satellite.Part](cerr), 0)
	}
	var cursor int
	if opts != nil {
		cursor = int(opts.Cursor)
	}
	it := newIterator(func(ctx context.Context) ([]satellite.Part, bool, error) {
		parts, next, more, err := p.session.ListUploadParts(ctx, bucket, key, uploadID, cursor, p.session.PageSize())
		cursor = next
		return parts, more, err
	})
	return l.handles.put(kindPartIterator, it, p.handle)
}

func (l *Library) PartIteratorNext(h Handle) bool {
	it, cerr := lookup[*iterator[satellite.Part]](l.handles, h, kindPartIterator)
	if cerr != nil {
		return false
	}
	return it.next(l.ctx)
}

func (l *Library) PartIteratorItem(h Handle) *Part {
	it, cerr := lookup[*iterator[satellite.Part]](l.handles, h, kindPartIterator)
	if cerr != nil {
		return nil
	}
	part := it.item()
	if part == nil {
		return nil
	}
	return partToC(part)
}

func (l *Library) PartIteratorErr(h Handle) *Error {
	it, cerr := lookup[*iterator[satellite.Part]](l.handles, h, kindPartIterator)
	if cerr != nil {
		return cerr
	}
	return newError(it.err)
}

func (l *Library) FreePartIterator(h Handle) {
	l.handles.release(h, kindPartIterator)
}
