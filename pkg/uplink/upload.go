package uplink

import (
	"errors"
	"io"
	"runtime"

	"github.com/eniz1806/VaultUplink/internal/native"
)

// copyBufferSize is the chunk size WriteFile and ReadFile use by default.
var copyBufferSize = func() int {
	if runtime.GOOS == "windows" {
		return 1024 * 1024
	}
	return 64 * 1024
}()

// writeChunks sends p through write until all of it is accepted. A write
// that accepts nothing ends the loop early.
func writeChunks(op string, write func([]byte) native.WriteResult, free func(native.WriteResult), p []byte) (int, error) {
	total := 0
	for total < len(p) {
		r := write(p[total:])
		// Convert before freeing: freeing clears the error's message.
		n, err := r.BytesWritten, fromNative(op, r.Error)
		free(r)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// copyChunks reads src in chunks of bufSize and writes each one to dst.
func copyChunks(dst io.Writer, src io.Reader, bufSize int) error {
	if bufSize <= 0 {
		bufSize = copyBufferSize
	}
	buf := make([]byte, bufSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func doneError(op string) error {
	return &Error{Code: CodeUploadDone, Message: "upload already committed or aborted", Details: op}
}

// Upload streams one object. Nothing is visible until Commit. An Upload
// must not be used from more than one goroutine at a time.
type Upload struct {
	up     *Uplink
	handle native.Handle
	done   bool
}

func (p *Project) UploadObject(bucket, key string, opts *UploadOptions) (*Upload, error) {
	r := p.up.lib.UploadObject(p.handle, bucket, key, opts.native())
	if r.Error != nil {
		defer p.up.lib.FreeUploadResult(r)
		return nil, fromNative("upload object", r.Error)
	}
	return &Upload{up: p.up, handle: r.Upload}, nil
}

// Write implements io.Writer.
func (u *Upload) Write(p []byte) (int, error) {
	if u.done {
		return 0, doneError("upload write")
	}
	lib := u.up.lib
	return writeChunks("upload write", func(b []byte) native.WriteResult {
		return lib.UploadWrite(u.handle, b)
	}, lib.FreeWriteResult, p)
}

// WriteFile copies r into the upload in chunks of bufSize bytes (0 uses
// 64KiB, or 1MiB on Windows). It does not commit.
func (u *Upload) WriteFile(r io.Reader, bufSize int) error {
	return copyChunks(u, r, bufSize)
}

// SetCustomMetadata replaces the custom metadata stored on commit.
func (u *Upload) SetCustomMetadata(custom CustomMetadata) error {
	if u.done {
		return doneError("set custom metadata")
	}
	return fromNative("set custom metadata", u.up.lib.UploadSetCustomMetadata(u.handle, custom.native()))
}

// Info describes the object as it would be committed now.
func (u *Upload) Info() (*Object, error) {
	if u.done {
		return nil, doneError("upload info")
	}
	r := u.up.lib.UploadInfo(u.handle)
	defer u.up.lib.FreeObjectResult(r)
	if r.Error != nil {
		return nil, fromNative("upload info", r.Error)
	}
	return objectFromNative(r.Object), nil
}

// Commit makes the object visible. It fails with ErrUploadDone after a
// Commit or Abort.
func (u *Upload) Commit() error {
	if u.done {
		return doneError("commit upload")
	}
	err := u.up.lib.UploadCommit(u.handle)
	u.release()
	return fromNative("commit upload", err)
}

// Abort discards everything written. It fails with ErrUploadDone after a
// Commit or Abort.
func (u *Upload) Abort() error {
	if u.done {
		return doneError("abort upload")
	}
	err := u.up.lib.UploadAbort(u.handle)
	u.release()
	return fromNative("abort upload", err)
}

func (u *Upload) release() {
	u.done = true
	u.up.lib.FreeUploadResult(native.UploadResult{Upload: u.handle})
}
