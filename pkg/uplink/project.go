package uplink

import (
	"github.com/eniz1806/VaultUplink/internal/native"
)

// Project is an open session on one project. Close it when done; closing
// invalidates every upload, download and iterator opened from it.
type Project struct {
	up     *Uplink
	handle native.Handle
}

// Close ends the session and aborts uploads that were not committed. Any
// later call on the project fails with ErrInvalidHandle.
func (p *Project) Close() error {
	err := p.up.lib.CloseProject(p.handle)
	p.up.lib.FreeProjectResult(native.ProjectResult{Project: p.handle})
	if err != nil {
		return fromNative("close project", err)
	}
	return nil
}

func (p *Project) bucket(op string, r native.BucketResult) (*Bucket, error) {
	defer p.up.lib.FreeBucketResult(r)
	if r.Error != nil {
		return nil, fromNative(op, r.Error)
	}
	return bucketFromNative(r.Bucket), nil
}

func (p *Project) StatBucket(name string) (*Bucket, error) {
	return p.bucket("stat bucket", p.up.lib.StatBucket(p.handle, name))
}

// CreateBucket fails with ErrBucketAlreadyExists when name is taken.
func (p *Project) CreateBucket(name string) (*Bucket, error) {
	return p.bucket("create bucket", p.up.lib.CreateBucket(p.handle, name))
}

// EnsureBucket creates the bucket, or returns the existing one unchanged.
func (p *Project) EnsureBucket(name string) (*Bucket, error) {
	return p.bucket("ensure bucket", p.up.lib.EnsureBucket(p.handle, name))
}

// DeleteBucket fails with ErrBucketNotEmpty while the bucket holds objects.
func (p *Project) DeleteBucket(name string) (*Bucket, error) {
	return p.bucket("delete bucket", p.up.lib.DeleteBucket(p.handle, name))
}

// DeleteBucketWithObjects deletes the bucket and everything in it.
func (p *Project) DeleteBucketWithObjects(name string) (*Bucket, error) {
	return p.bucket("delete bucket with objects", p.up.lib.DeleteBucketWithObjects(p.handle, name))
}

func (p *Project) ListBuckets(opts *ListBucketsOptions) *BucketIterator {
	var lo *native.ListBucketsOptions
	if opts != nil {
		lo = &native.ListBucketsOptions{Cursor: opts.Cursor}
	}
	lib := p.up.lib
	h := lib.ListBuckets(p.handle, lo)
	return &BucketIterator{
		op:   "list buckets",
		next: func() bool { return lib.BucketIteratorNext(h) },
		item: func() Bucket { return *bucketFromNative(lib.BucketIteratorItem(h)) },
		err:  func() *native.Error { return lib.BucketIteratorErr(h) },
		free: func() { lib.FreeBucketIterator(h) },
	}
}

func (p *Project) object(op string, r native.ObjectResult) (*Object, error) {
	defer p.up.lib.FreeObjectResult(r)
	if r.Error != nil {
		return nil, fromNative(op, r.Error)
	}
	return objectFromNative(r.Object), nil
}

func (p *Project) StatObject(bucket, key string) (*Object, error) {
	return p.object("stat object", p.up.lib.StatObject(p.handle, bucket, key))
}

// DeleteObject returns the deleted object. Without list or download
// rights only its key is filled in.
func (p *Project) DeleteObject(bucket, key string) (*Object, error) {
	return p.object("delete object", p.up.lib.DeleteObject(p.handle, bucket, key))
}

func (p *Project) ListObjects(bucket string, opts *ListObjectsOptions) *ObjectIterator {
	var lo *native.ListObjectsOptions
	if opts != nil {
		lo = &native.ListObjectsOptions{
			Prefix:    opts.Prefix,
			Cursor:    opts.Cursor,
			Recursive: opts.Recursive,
			System:    opts.System,
			Custom:    opts.Custom,
		}
	}
	lib := p.up.lib
	h := lib.ListObjects(p.handle, bucket, lo)
	return &ObjectIterator{
		op:   "list objects",
		next: func() bool { return lib.ObjectIteratorNext(h) },
		item: func() Object { return *objectFromNative(lib.ObjectIteratorItem(h)) },
		err:  func() *native.Error { return lib.ObjectIteratorErr(h) },
		free: func() { lib.FreeObjectIterator(h) },
	}
}

// RevokeAccess revokes access and every access shared from it. It must
// belong to this project.
func (p *Project) RevokeAccess(access *Access) error {
	return fromNative("revoke access", p.up.lib.RevokeAccess(p.handle, access.handle))
}
