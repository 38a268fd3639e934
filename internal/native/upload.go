package native

import (
	"github.com/eniz1806/VaultUplink/internal/satellite"
)

// UploadObject starts an upload. Nothing is visible until UploadCommit.
func (l *Library) UploadObject(h Handle, bucket, key string, opts *UploadOptions) UploadResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return UploadResult{Error: cerr}
	}
	var uo satellite.UploadOptions
	if opts != nil {
		uo.Expires = timeOrZero(opts.Expires)
	}
	u, err := p.session.UploadObject(l.ctx, bucket, key, uo)
	if err != nil {
		return UploadResult{Error: newError(err)}
	}
	return UploadResult{Upload: l.handles.put(kindUpload, u, p.handle)}
}

// UploadWrite sends p. BytesWritten is len(p) unless an error is returned.
func (l *Library) UploadWrite(h Handle, p []byte) WriteResult {
	u, cerr := lookup[*satellite.Upload](l.handles, h, kindUpload)
	if cerr != nil {
		return WriteResult{Error: cerr}
	}
	n, err := u.Write(l.ctx, p)
	return WriteResult{BytesWritten: n, Error: newError(err)}
}

func (l *Library) UploadSetCustomMetadata(h Handle, custom CustomMetadata) *Error {
	u, cerr := lookup[*satellite.Upload](l.handles, h, kindUpload)
	if cerr != nil {
		return cerr
	}
	return newError(u.SetCustomMetadata(l.ctx, customFromC(custom)))
}

func (l *Library) UploadInfo(h Handle) ObjectResult {
	u, cerr := lookup[*satellite.Upload](l.handles, h, kindUpload)
	if cerr != nil {
		return ObjectResult{Error: cerr}
	}
	return ObjectResult{Object: objectToC(u.Info())}
}

func (l *Library) UploadCommit(h Handle) *Error {
	u, cerr := lookup[*satellite.Upload](l.handles, h, kindUpload)
	if cerr != nil {
		return cerr
	}
	return newError(u.Commit(l.ctx))
}

func (l *Library) UploadAbort(h Handle) *Error {
	u, cerr := lookup[*satellite.Upload](l.handles, h, kindUpload)
	if cerr != nil {
		return cerr
	}
	return newError(u.Abort())
}

// FreeUploadResult frees the upload handle. An upload neither committed
// nor aborted is aborted.
func (l *Library) FreeUploadResult(r UploadResult) {
	FreeError(r.Error)
	if r.Upload == 0 {
		return
	}
	if v, err := l.handles.release(r.Upload, kindUpload); err == nil {
		v.(*satellite.Upload).Abort()
	}
}

func (l *Library) FreeWriteResult(r WriteResult) {
	FreeError(r.Error)
}
