package uplink

import (
	"io"

	"github.com/eniz1806/VaultUplink/internal/native"
)

// maxWriteRetries bounds how often ReadFile retries a local write that
// accepted nothing. The counter resets after every successful write.
const maxWriteRetries = 5

// ErrDownloadFailed is returned by ReadFile once local writes keep failing.
var ErrDownloadFailed = &Error{Code: CodeInternal, Message: "File download failed. Please try again."}

// Download reads one object, or a range of it, sequentially. It must not
// be used from more than one goroutine at a time.
type Download struct {
	up     *Uplink
	handle native.Handle
	offset int64
	length int64
}

// DownloadObject opens a download. nil opts reads the whole object.
func (p *Project) DownloadObject(bucket, key string, opts *DownloadOptions) (*Download, error) {
	d := &Download{up: p.up, length: -1}
	var do *native.DownloadOptions
	if opts != nil {
		d.offset, d.length = opts.Offset, opts.Length
		do = &native.DownloadOptions{Offset: opts.Offset, Length: opts.Length}
	}
	r := p.up.lib.DownloadObject(p.handle, bucket, key, do)
	if r.Error != nil {
		defer p.up.lib.FreeDownloadResult(r)
		return nil, fromNative("download object", r.Error)
	}
	d.handle = r.Download
	return d, nil
}

// Read implements io.Reader. It returns io.EOF at the end of the range.
func (d *Download) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r := d.up.lib.DownloadRead(d.handle, p)
	defer d.up.lib.FreeReadResult(r)
	if r.Error != nil {
		return r.BytesRead, fromNative("download read", r.Error)
	}
	if r.BytesRead == 0 {
		return 0, io.EOF
	}
	return r.BytesRead, nil
}

// Info describes the object being downloaded.
func (d *Download) Info() (*Object, error) {
	r := d.up.lib.DownloadInfo(d.handle)
	defer d.up.lib.FreeObjectResult(r)
	if r.Error != nil {
		return nil, fromNative("download info", r.Error)
	}
	return objectFromNative(r.Object), nil
}

// FileSize is the number of bytes this download yields: the object's
// content length trimmed to the requested range.
func (d *Download) FileSize() (int64, error) {
	info, err := d.Info()
	if err != nil {
		return 0, err
	}
	size := max(info.System.ContentLength-d.offset, 0)
	if d.length >= 0 {
		size = min(size, d.length)
	}
	return size, nil
}

// ReadFile copies the download into w in chunks of bufSize bytes (0 uses
// 64KiB, or 1MiB on Windows; never more than the file size). A write to w
// that accepts nothing is retried up to 5 times before ErrDownloadFailed.
func (d *Download) ReadFile(w io.Writer, bufSize int) error {
	remaining, err := d.FileSize()
	if err != nil {
		return err
	}
	if remaining == 0 {
		return nil
	}
	if bufSize <= 0 {
		bufSize = copyBufferSize
	}
	buf := make([]byte, min(int64(bufSize), remaining))
	for remaining > 0 {
		n, err := d.Read(buf[:min(int64(len(buf)), remaining)])
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		if err := writeWithRetry(w, buf[:n]); err != nil {
			return err
		}
		remaining -= int64(n)
	}
	return nil
}

func writeWithRetry(w io.Writer, p []byte) error {
	retries := 0
	for len(p) > 0 {
		n, err := w.Write(p)
		if n > 0 {
			p = p[n:]
			retries = 0
			continue
		}
		if retries == maxWriteRetries {
			failed := *ErrDownloadFailed
			if err != nil {
				failed.Details = err.Error()
			}
			return &failed
		}
		retries++
	}
	return nil
}

// Close releases the download. Call it exactly once.
func (d *Download) Close() error {
	err := d.up.lib.CloseDownload(d.handle)
	d.up.lib.FreeDownloadResult(native.DownloadResult{Download: d.handle})
	return fromNative("close download", err)
}
