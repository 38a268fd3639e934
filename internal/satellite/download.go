package satellite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/storage"
)

// DownloadOptions selects a byte range. A negative Length reads to the end.
type DownloadOptions struct {
	Offset int64
	Length int64
}

// Download reads one object sequentially. It is not safe for concurrent use.
type Download struct {
	sess    *Session
	meta    *metadata.ObjectMeta
	sealer  *storage.EncryptedEngine
	offsets []int64

	pos, end int64
	current  *bytes.Reader
	closed   bool
}

func (p *Session) DownloadObject(ctx context.Context, bucket, key string, opts DownloadOptions) (*Download, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return nil, err
	}
	if err := p.authorize(bucket, key, OpRead); err != nil {
		return nil, err
	}
	meta, err := p.getObject(bucket, key)
	if err != nil {
		return nil, err
	}
	if opts.Offset < 0 || opts.Offset > meta.ContentLength {
		return nil, fmt.Errorf("%w: offset %d outside object of %d bytes", ErrObjectKeyInvalid, opts.Offset, meta.ContentLength)
	}
	sealer, err := p.sealerFor(bucket, key)
	if err != nil {
		return nil, err
	}

	end := meta.ContentLength
	if opts.Length >= 0 {
		end = min(opts.Offset+opts.Length, meta.ContentLength)
	}
	offsets := make([]int64, len(meta.Segments))
	var off int64
	for i, seg := range meta.Segments {
		offsets[i] = off
		off += seg.PlainSize
	}
	return &Download{
		sess:    p,
		meta:    meta,
		sealer:  sealer,
		offsets: offsets,
		pos:     opts.Offset,
		end:     end,
	}, nil
}

// Read fills p from the current position. It returns io.EOF once the range is exhausted.
func (d *Download) Read(ctx context.Context, p []byte) (int, error) {
	if d.closed || d.sess.closed.Load() {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if d.pos >= d.end {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if d.current == nil || d.current.Len() == 0 {
		if err := d.load(); err != nil {
			return 0, err
		}
	}

	want := min(int64(len(p)), d.end-d.pos)
	r := d.sess.sat.bandwidth.ThrottledReader(ctx, d.sess.projectID, d.current)
	n, err := r.Read(p[:want])
	d.pos += int64(n)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// load decrypts the segment holding the current position, trimmed to the range.
func (d *Download) load() error {
	i := sort.Search(len(d.offsets), func(i int) bool {
		return d.offsets[i]+d.meta.Segments[i].PlainSize > d.pos
	})
	if i == len(d.offsets) {
		return fmt.Errorf("object %s/%s: no segment at offset %d", d.meta.Bucket, d.meta.Key, d.pos)
	}
	seg := d.meta.Segments[i]
	start := d.pos - d.offsets[i]
	stop := min(seg.PlainSize, d.end-d.offsets[i])

	if err := d.sess.sat.reserveEgress(d.sess.projectID, stop-start); err != nil {
		return err
	}
	data, err := d.sess.sat.loadSegment(d.sealer, d.sess.projectID, seg)
	if err != nil {
		return err
	}
	if int64(len(data)) != seg.PlainSize {
		return fmt.Errorf("segment %s: decoded %d bytes, want %d", seg.PieceKey, len(data), seg.PlainSize)
	}
	d.current = bytes.NewReader(data[start:stop])
	return nil
}

// Info describes the object being downloaded.
func (d *Download) Info() *Object {
	return objectFromMeta(d.meta)
}

func (d *Download) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.current = nil
	return nil
}
