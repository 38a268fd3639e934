package satellite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/notify"
)

type SystemMetadata struct {
	Created       time.Time
	Expires       time.Time
	ContentLength int64
}

// Object is a committed object or, with IsPrefix set, a collapsed listing prefix.
type Object struct {
	Key      string
	IsPrefix bool
	System   SystemMetadata
	Custom   []metadata.MetaEntry
}

// ListObjectsOptions selects a listing. Zero values list the whole bucket
// non-recursively without metadata.
type ListObjectsOptions struct {
	Prefix    string
	Cursor    string
	Recursive bool
	System    bool
	Custom    bool
	Limit     int
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func objectFromMeta(meta *metadata.ObjectMeta) *Object {
	return &Object{
		Key: meta.Key,
		System: SystemMetadata{
			Created:       unixTime(meta.Created),
			Expires:       unixTime(meta.Expires),
			ContentLength: meta.ContentLength,
		},
		Custom: append([]metadata.MetaEntry(nil), meta.Custom...),
	}
}

func expired(meta *metadata.ObjectMeta, now time.Time) bool {
	return meta.ExpiredAt(now)
}

// authorizeReplace checks the extra right needed to overwrite a live
// object. Expired objects are replaced as if absent.
func (p *Session) authorizeReplace(bucket, key string) error {
	meta, err := p.sat.store.GetObjectMeta(p.projectID, bucket, key)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return nil
	case err != nil:
		return err
	case expired(meta, time.Now()):
		return nil
	}
	return p.authorize(bucket, key, OpDelete)
}

// getObject loads a live object's metadata; expired objects are not found.
func (p *Session) getObject(bucket, key string) (*metadata.ObjectMeta, error) {
	if _, err := p.sat.store.GetBucket(p.projectID, bucket); err != nil {
		return nil, err
	}
	meta, err := p.sat.store.GetObjectMeta(p.projectID, bucket, key)
	if err != nil {
		return nil, err
	}
	if expired(meta, time.Now()) {
		return nil, fmt.Errorf("%w: %s/%s expired", ErrObjectNotFound, bucket, key)
	}
	return meta, nil
}

func (p *Session) checkPath(bucket, key string) error {
	if err := ValidateBucketName(bucket); err != nil {
		return err
	}
	return ValidateObjectKey(key)
}

func (p *Session) StatObject(ctx context.Context, bucket, key string) (*Object, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return nil, err
	}
	if err := p.authorize(bucket, key, OpRead, OpList); err != nil {
		return nil, err
	}
	meta, err := p.getObject(bucket, key)
	if err != nil {
		return nil, err
	}
	return objectFromMeta(meta), nil
}

// DeleteObject removes an object and returns what was deleted. Without read
// or list rights only the key is returned.
func (p *Session) DeleteObject(ctx context.Context, bucket, key string) (*Object, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return nil, err
	}
	if err := p.authorize(bucket, key, OpDelete); err != nil {
		return nil, err
	}
	if _, err := p.sat.store.GetBucket(p.projectID, bucket); err != nil {
		return nil, err
	}
	meta, err := p.sat.store.DeleteObjectMeta(p.projectID, bucket, key)
	if err != nil {
		return nil, err
	}
	p.sat.removed(p.projectID, meta)
	if expired(meta, time.Now()) {
		return nil, fmt.Errorf("%w: %s/%s expired", ErrObjectNotFound, bucket, key)
	}

	if p.authorize(bucket, key, OpRead, OpList) != nil {
		return &Object{Key: key}, nil
	}
	return objectFromMeta(meta), nil
}

// ListObjects returns one page of a listing. next is the cursor for the
// following page; more is false on the last page.
func (p *Session) ListObjects(ctx context.Context, bucket string, opts ListObjectsOptions) (objects []Object, next string, more bool, err error) {
	if err := p.begin(ctx); err != nil {
		return nil, "", false, err
	}
	if err := ValidateBucketName(bucket); err != nil {
		return nil, "", false, err
	}
	if err := p.key.Check(Action{Op: OpList, Bucket: bucket, Time: time.Now()}); err != nil {
		return nil, "", false, err
	}
	if !p.key.canListPrefix(bucket, opts.Prefix) {
		return nil, "", false, fmt.Errorf("%w: list %s/%s", ErrPermissionDenied, bucket, opts.Prefix)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = p.PageSize()
	}
	entries, more, err := p.sat.store.ListObjects(p.projectID, bucket, metadata.ListParams{
		Prefix:    opts.Prefix,
		Cursor:    opts.Cursor,
		Recursive: opts.Recursive,
		Limit:     limit,
	})
	if err != nil {
		return nil, "", false, err
	}

	now := time.Now()
	for _, e := range entries {
		next = e.Key
		if !p.key.visibleKey(bucket, e.Key, e.IsPrefix) {
			continue
		}
		if e.IsPrefix {
			objects = append(objects, Object{Key: e.Key, IsPrefix: true})
			continue
		}
		if expired(e.Meta, now) {
			continue
		}
		obj := Object{Key: e.Key}
		if opts.System {
			obj.System = objectFromMeta(e.Meta).System
		}
		if opts.Custom {
			obj.Custom = append([]metadata.MetaEntry(nil), e.Meta.Custom...)
		}
		objects = append(objects, obj)
	}
	return objects, next, more, nil
}

// ReclaimObject deletes an object found expired by the lifecycle worker,
// unless it was overwritten since.
func (s *Satellite) ReclaimObject(projectID string, meta metadata.ObjectMeta) error {
	deleted, err := s.store.DeleteObjectStream(projectID, meta.Bucket, meta.Key, meta.StreamID)
	if err != nil {
		return err
	}
	s.removed(projectID, deleted)
	return nil
}

// removed frees the segments of a deleted object and announces it.
func (s *Satellite) removed(projectID string, meta *metadata.ObjectMeta) {
	s.deleteSegments(projectID, meta.Segments)
	ev := notify.NewEvent(notify.ObjectRemoved, projectID, meta.Bucket, meta.Key)
	ev.Size = meta.ContentLength
	ev.StreamID = meta.StreamID
	s.publish(ev)
}
