package native

import (
	"context"

	"github.com/eniz1806/VaultUplink/internal/satellite"
)

type project struct {
	handle  Handle
	session *satellite.Session
}

func (l *Library) OpenProject(access Handle) ProjectResult {
	return l.ConfigOpenProject(Config{}, access)
}

// ConfigOpenProject dials the access grant's satellite and opens its project.
func (l *Library) ConfigOpenProject(cfg Config, access Handle) ProjectResult {
	a, cerr := lookup[*satellite.Access](l.handles, access, kindAccess)
	if cerr != nil {
		return ProjectResult{Error: cerr}
	}
	cfg = l.merge(cfg)
	ctx, cancel := l.dialContext(cfg)
	defer cancel()
	session, err := l.registry.OpenProject(ctx, a, satellite.SessionOptions{
		UserAgent:     cfg.UserAgent,
		TempDirectory: cfg.TempDirectory,
	})
	if err != nil {
		return ProjectResult{Error: newError(err)}
	}
	p := &project{session: session}
	p.handle = l.handles.put(kindProject, p, 0)
	return ProjectResult{Project: p.handle}
}

// CloseProject ends the session and frees every upload, download and
// iterator opened from it. Pending uploads are aborted.
func (l *Library) CloseProject(h Handle) *Error {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return cerr
	}
	return newError(l.closeProject(p))
}

func (l *Library) closeProject(p *project) error {
	for _, v := range l.handles.releaseOwned(p.handle) {
		switch r := v.(type) {
		case *satellite.Upload:
			r.Abort()
		case *satellite.PartUpload:
			r.Abort()
		case *satellite.Download:
			r.Close()
		}
	}
	return p.session.Close()
}

// FreeProjectResult frees the project handle, closing it first if needed.
func (l *Library) FreeProjectResult(r ProjectResult) {
	FreeError(r.Error)
	if r.Project == 0 {
		return
	}
	v, err := l.handles.release(r.Project, kindProject)
	if err != nil {
		return
	}
	l.closeProject(v.(*project))
}

// RevokeAccess revokes access and every access shared from it.
func (l *Library) RevokeAccess(h Handle, access Handle) *Error {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return cerr
	}
	a, cerr := lookup[*satellite.Access](l.handles, access, kindAccess)
	if cerr != nil {
		return cerr
	}
	return newError(p.session.RevokeAccess(l.ctx, a))
}

func bucketResult(b *satellite.Bucket, err error) BucketResult {
	if err != nil {
		return BucketResult{Error: newError(err)}
	}
	return BucketResult{Bucket: bucketToC(b)}
}

func (l *Library) StatBucket(h Handle, name string) BucketResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return BucketResult{Error: cerr}
	}
	return bucketResult(p.session.StatBucket(l.ctx, name))
}

func (l *Library) CreateBucket(h Handle, name string) BucketResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return BucketResult{Error: cerr}
	}
	return bucketResult(p.session.CreateBucket(l.ctx, name))
}

// EnsureBucket creates the bucket or returns the existing one unchanged.
func (l *Library) EnsureBucket(h Handle, name string) BucketResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return BucketResult{Error: cerr}
	}
	return bucketResult(p.session.EnsureBucket(l.ctx, name))
}

func (l *Library) DeleteBucket(h Handle, name string) BucketResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return BucketResult{Error: cerr}
	}
	return bucketResult(p.session.DeleteBucket(l.ctx, name))
}

// DeleteBucketWithObjects aborts the bucket's pending uploads and deletes
// its objects, then the bucket.
func (l *Library) DeleteBucketWithObjects(h Handle, name string) BucketResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return BucketResult{Error: cerr}
	}
	return bucketResult(p.session.DeleteBucketWithObjects(l.ctx, name))
}

func (l *Library) FreeBucketResult(r BucketResult) {
	FreeError(r.Error)
}

// ListBuckets starts a bucket listing. Failures surface through
// BucketIteratorErr once BucketIteratorNext returns false.
func (l *Library) ListBuckets(h Handle, opts *ListBucketsOptions) Handle {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return l.handles.put(kindBucketIterator, failedIterator[satellite.Bucket](cerr), 0)
	}
	var cursor string
	if opts != nil {
		cursor = opts.Cursor
	}
	it := newIterator(func(ctx context.Context) ([]satellite.Bucket, bool, error) {
		buckets, next, more, err := p.session.ListBuckets(ctx, cursor, p.session.PageSize())
		cursor = next
		return buckets, more, err
	})
	return l.handles.put(kindBucketIterator, it, p.handle)
}

func (l *Library) BucketIteratorNext(h Handle) bool {
	it, cerr := lookup[*iterator[satellite.Bucket]](l.handles, h, kindBucketIterator)
	if cerr != nil {
		return false
	}
	return it.next(l.ctx)
}

// BucketIteratorItem returns a copy of the current bucket, or nil.
func (l *Library) BucketIteratorItem(h Handle) *Bucket {
	it, cerr := lookup[*iterator[satellite.Bucket]](l.handles, h, kindBucketIterator)
	if cerr != nil {
		return nil
	}
	b := it.item()
	if b == nil {
		return nil
	}
	return bucketToC(b)
}

// BucketIteratorErr reports why BucketIteratorNext returned false. nil
// means the listing is complete.
func (l *Library) BucketIteratorErr(h Handle) *Error {
	it, cerr := lookup[*iterator[satellite.Bucket]](l.handles, h, kindBucketIterator)
	if cerr != nil {
		return cerr
	}
	return newError(it.err)
}

func (l *Library) FreeBucketIterator(h Handle) {
	l.handles.release(h, kindBucketIterator)
}
