package satellite

import (
	"context"
	"errors"
	"time"

	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/notify"
)

type Bucket struct {
	Name    string
	Created time.Time
}

func bucketFromInfo(info *metadata.BucketInfo) *Bucket {
	return &Bucket{Name: info.Name, Created: info.CreatedAt}
}

func (p *Session) CreateBucket(ctx context.Context, name string) (*Bucket, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := ValidateBucketName(name); err != nil {
		return nil, err
	}
	if err := p.authorize(name, "", OpWrite); err != nil {
		return nil, err
	}
	info, err := p.sat.store.CreateBucket(p.projectID, name)
	if err != nil {
		return nil, err
	}
	p.sat.publish(notify.NewEvent(notify.BucketCreated, p.projectID, name, ""))
	return bucketFromInfo(info), nil
}

// EnsureBucket creates the bucket or returns the existing one unchanged.
func (p *Session) EnsureBucket(ctx context.Context, name string) (*Bucket, error) {
	b, err := p.CreateBucket(ctx, name)
	if errors.Is(err, ErrBucketExists) {
		info, err := p.sat.store.GetBucket(p.projectID, name)
		if err != nil {
			return nil, err
		}
		return bucketFromInfo(info), nil
	}
	return b, err
}

func (p *Session) StatBucket(ctx context.Context, name string) (*Bucket, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := ValidateBucketName(name); err != nil {
		return nil, err
	}
	if err := p.authorize(name, "", OpRead, OpList, OpWrite, OpDelete); err != nil {
		return nil, err
	}
	info, err := p.sat.store.GetBucket(p.projectID, name)
	if err != nil {
		return nil, err
	}
	return bucketFromInfo(info), nil
}

// DeleteBucket removes an empty bucket and returns it.
func (p *Session) DeleteBucket(ctx context.Context, name string) (*Bucket, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := ValidateBucketName(name); err != nil {
		return nil, err
	}
	if err := p.authorize(name, "", OpDelete); err != nil {
		return nil, err
	}
	return p.removeBucket(name)
}

// removeBucket deletes the bucket record, reclaiming objects that expired
// but were not swept yet.
func (p *Session) removeBucket(name string) (*Bucket, error) {
	info, reclaimed, err := p.sat.store.DeleteBucket(p.projectID, name, time.Now())
	if err != nil {
		return nil, err
	}
	for i := range reclaimed {
		p.sat.removed(p.projectID, &reclaimed[i])
	}
	p.sat.publish(notify.NewEvent(notify.BucketRemoved, p.projectID, name, ""))
	return bucketFromInfo(info), nil
}

// DeleteBucketWithObjects aborts every pending upload and deletes every
// object in the bucket, expired ones included, then the bucket. Each key
// needs delete rights.
func (p *Session) DeleteBucketWithObjects(ctx context.Context, name string) (*Bucket, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := ValidateBucketName(name); err != nil {
		return nil, err
	}
	if err := p.authorize(name, "", OpDelete); err != nil {
		return nil, err
	}

	uploads, err := p.sat.store.ListMultipartUploads(p.projectID, name, "")
	if err != nil {
		return nil, err
	}
	for _, u := range uploads {
		if err := p.authorize(name, u.Key, OpDelete); err != nil {
			return nil, err
		}
		if err := p.sat.ReclaimUpload(u); err != nil && !errors.Is(err, ErrUploadNotFound) {
			return nil, err
		}
	}

	params := metadata.ListParams{Recursive: true, Limit: p.PageSize()}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, more, err := p.sat.store.ListObjects(p.projectID, name, params)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			params.Cursor = e.Key
			if err := p.authorize(name, e.Key, OpDelete); err != nil {
				return nil, err
			}
			meta, err := p.sat.store.DeleteObjectMeta(p.projectID, name, e.Key)
			if errors.Is(err, ErrObjectNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			p.sat.removed(p.projectID, meta)
		}
		if !more {
			break
		}
	}
	return p.removeBucket(name)
}

// ListBuckets returns one page of buckets after cursor. next is the cursor
// for the following page; more is false on the last page.
func (p *Session) ListBuckets(ctx context.Context, cursor string, limit int) (buckets []Bucket, next string, more bool, err error) {
	if err := p.begin(ctx); err != nil {
		return nil, "", false, err
	}
	if err := p.authorize("", "", OpList); err != nil {
		return nil, "", false, err
	}
	if limit <= 0 {
		limit = p.PageSize()
	}
	infos, more, err := p.sat.store.ListBuckets(p.projectID, cursor, limit)
	if err != nil {
		return nil, "", false, err
	}
	for i := range infos {
		next = infos[i].Name
		if !p.key.visibleBucket(infos[i].Name) {
			continue
		}
		buckets = append(buckets, *bucketFromInfo(&infos[i]))
	}
	return buckets, next, more, nil
}
