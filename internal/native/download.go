package native

import (
	"errors"
	"io"

	"github.com/eniz1806/VaultUplink/internal/satellite"
)

func (l *Library) DownloadObject(h Handle, bucket, key string, opts *DownloadOptions) DownloadResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return DownloadResult{Error: cerr}
	}
	do := satellite.DownloadOptions{Length: -1}
	if opts != nil {
		do.Offset, do.Length = opts.Offset, opts.Length
	}
	d, err := p.session.DownloadObject(l.ctx, bucket, key, do)
	if err != nil {
		return DownloadResult{Error: newError(err)}
	}
	return DownloadResult{Download: l.handles.put(kindDownload, d, p.handle)}
}

// DownloadRead fills p. BytesRead is 0 without an error at the end of the range.
func (l *Library) DownloadRead(h Handle, p []byte) ReadResult {
	d, cerr := lookup[*satellite.Download](l.handles, h, kindDownload)
	if cerr != nil {
		return ReadResult{Error: cerr}
	}
	n, err := d.Read(l.ctx, p)
	if errors.Is(err, io.EOF) {
		return ReadResult{BytesRead: n}
	}
	return ReadResult{BytesRead: n, Error: newError(err)}
}

func (l *Library) DownloadInfo(h Handle) ObjectResult {
	d, cerr := lookup[*satellite.Download](l.handles, h, kindDownload)
	if cerr != nil {
		return ObjectResult{Error: cerr}
	}
	return ObjectResult{Object: objectToC(d.Info())}
}

func (l *Library) CloseDownload(h Handle) *Error {
	d, cerr := lookup[*satellite.Download](l.handles, h, kindDownload)
	if cerr != nil {
		return cerr
	}
	return newError(d.Close())
}

// FreeDownloadResult frees the download handle, closing it if needed.
func (l *Library) FreeDownloadResult(r DownloadResult) {
	FreeError(r.Error)
	if r.Download == 0 {
		return
	}
	if v, err := l.handles.release(r.Download, kindDownload); err == nil {
		v.(*satellite.Download).Close()
	}
}

func (l *Library) FreeReadResult(r ReadResult) {
	FreeError(r.Error)
}
