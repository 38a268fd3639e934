package satellite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/notify"
)

// MaxPartNumber is the highest part number an upload accepts.
const MaxPartNumber = 10000

// UploadInfo describes a pending multipart upload or, with IsPrefix set, a
// collapsed listing prefix.
type UploadInfo struct {
	UploadID string
	Key      string
	IsPrefix bool
	System   SystemMetadata
	Custom   []metadata.MetaEntry
}

type Part struct {
	PartNumber int
	Size       int64
	Modified   time.Time
	ETag       string
}

type CommitUploadOptions struct {
	// CustomMetadata replaces the metadata given at BeginUpload when set.
	CustomMetadata []metadata.MetaEntry
}

func uploadFromMeta(u *metadata.MultipartUpload) *UploadInfo {
	return &UploadInfo{
		UploadID: u.UploadID,
		Key:      u.Key,
		System: SystemMetadata{
			Created: unixTime(u.CreatedAt),
			Expires: unixTime(u.Expires),
		},
		Custom: append([]metadata.MetaEntry(nil), u.Custom...),
	}
}

func partFromInfo(info *metadata.PartInfo) Part {
	return Part{
		PartNumber: info.PartNumber,
		Size:       info.Size,
		Modified:   unixTime(info.Modified),
		ETag:       info.ETag,
	}
}

// BeginUpload starts a multipart upload of bucket/key.
func (p *Session) BeginUpload(ctx context.Context, bucket, key string, opts UploadOptions) (*UploadInfo, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return nil, err
	}
	if err := p.authorize(bucket, key, OpWrite); err != nil {
		return nil, err
	}
	upload := metadata.MultipartUpload{
		UploadID:  shortuuid.New(),
		ProjectID: p.projectID,
		Bucket:    bucket,
		Key:       key,
		StreamID:  shortuuid.New(),
		CreatedAt: time.Now().UTC().Unix(),
	}
	if !opts.Expires.IsZero() {
		upload.Expires = opts.Expires.Unix()
	}
	if err := p.sat.store.CreateMultipartUpload(upload); err != nil {
		return nil, err
	}

	ev := notify.NewEvent(notify.UploadBegun, p.projectID, bucket, key)
	ev.UploadID = upload.UploadID
	p.sat.publish(ev)
	return uploadFromMeta(&upload), nil
}

// getUpload loads an upload and checks it belongs to bucket/key in this project.
func (p *Session) getUpload(bucket, key, uploadID string) (*metadata.MultipartUpload, error) {
	if uploadID == "" {
		return nil, fmt.Errorf("%w: empty upload id", ErrUploadNotFound)
	}
	upload, err := p.sat.store.GetMultipartUpload(uploadID)
	if err != nil {
		return nil, err
	}
	if upload.ProjectID != p.projectID || upload.Bucket != bucket || upload.Key != key {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	return upload, nil
}

// PartUpload streams one part of a multipart upload.
// It is not safe for concurrent use.
type PartUpload struct {
	sess     *Session
	uploadID string
	number   int
	etag     string
	modified time.Time
	writer   *segmentWriter
	done     bool
}

// UploadPart starts streaming part number partNumber. Committing a part
// replaces any earlier part with the same number.
func (p *Session) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int) (*PartUpload, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return nil, err
	}
	if partNumber < 1 || partNumber > MaxPartNumber {
		return nil, fmt.Errorf("%w: %d outside 1..%d", ErrInvalidPartNumber, partNumber, MaxPartNumber)
	}
	if err := p.authorize(bucket, key, OpWrite); err != nil {
		return nil, err
	}
	upload, err := p.getUpload(bucket, key, uploadID)
	if err != nil {
		return nil, err
	}
	sealer, err := p.sealerFor(bucket, key)
	if err != nil {
		return nil, err
	}
	return &PartUpload{
		sess:     p,
		uploadID: uploadID,
		number:   partNumber,
		modified: time.Now().UTC(),
		writer:   p.newSegmentWriter(sealer, upload.StreamID+"/"+shortuuid.New()),
	}, nil
}

func (u *PartUpload) check(ctx context.Context) error {
	if u.done {
		return ErrUploadDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.sess.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (u *PartUpload) Write(ctx context.Context, p []byte) (int, error) {
	if err := u.check(ctx); err != nil {
		return 0, err
	}
	return u.writer.Write(p)
}

// SetETag records an opaque tag returned with the part in listings.
func (u *PartUpload) SetETag(ctx context.Context, etag string) error {
	if err := u.check(ctx); err != nil {
		return err
	}
	u.etag = etag
	return nil
}

func (u *PartUpload) Info() *Part {
	return &Part{
		PartNumber: u.number,
		Size:       u.writer.pending(),
		Modified:   u.modified.Truncate(time.Second),
		ETag:       u.etag,
	}
}

// Commit stores the part. A part committed after its upload ended is discarded.
func (u *PartUpload) Commit(ctx context.Context) error {
	if err := u.check(ctx); err != nil {
		return err
	}
	u.done = true
	p := u.sess

	if err := u.writer.flush(); err != nil {
		u.writer.discard()
		return err
	}
	u.writer.close()

	prev, err := p.sat.store.PutPart(u.uploadID, metadata.PartInfo{
		PartNumber: u.number,
		ETag:       u.etag,
		Size:       u.writer.size,
		Modified:   u.modified.Unix(),
		Segments:   u.writer.segments,
	})
	if err != nil {
		u.writer.discard()
		return err
	}
	if prev != nil {
		p.sat.deleteSegments(p.projectID, prev.Segments)
	}
	return nil
}

func (u *PartUpload) Abort() error {
	if u.done {
		return ErrUploadDone
	}
	u.done = true
	u.writer.discard()
	return nil
}

// CommitUpload assembles the parts in ascending part number into the object.
func (p *Session) CommitUpload(ctx context.Context, bucket, key, uploadID string, opts CommitUploadOptions) (*Object, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return nil, err
	}
	if err := p.authorize(bucket, key, OpWrite); err != nil {
		return nil, err
	}
	upload, err := p.getUpload(bucket, key, uploadID)
	if err != nil {
		return nil, err
	}
	if err := p.authorizeReplace(bucket, key); err != nil {
		return nil, err
	}

	// Removing the upload claims its parts; a concurrent commit or abort of
	// the same upload now fails with not found.
	parts, err := p.sat.store.DeleteMultipartUpload(uploadID)
	if err != nil {
		return nil, err
	}

	meta := metadata.ObjectMeta{
		Bucket:   bucket,
		Key:      key,
		StreamID: upload.StreamID,
		Created:  time.Now().UTC().Unix(),
		Expires:  upload.Expires,
		Custom:   upload.Custom,
	}
	if opts.CustomMetadata != nil {
		meta.Custom = append([]metadata.MetaEntry(nil), opts.CustomMetadata...)
	}
	for _, part := range parts {
		for _, seg := range part.Segments {
			seg.Index = len(meta.Segments)
			meta.Segments = append(meta.Segments, seg)
		}
		meta.ContentLength += part.Size
	}

	prev, err := p.sat.store.PutObjectMeta(p.projectID, meta)
	if err != nil {
		p.sat.deleteSegments(p.projectID, meta.Segments)
		return nil, err
	}
	if prev != nil {
		p.sat.deleteSegments(p.projectID, prev.Segments)
	}

	ev := notify.NewEvent(notify.ObjectAssembled, p.projectID, bucket, key)
	ev.Size = meta.ContentLength
	ev.StreamID = meta.StreamID
	ev.UploadID = uploadID
	p.sat.publish(ev)
	return objectFromMeta(&meta), nil
}

// AbortUpload discards a pending upload and all of its parts.
func (p *Session) AbortUpload(ctx context.Context, bucket, key, uploadID string) error {
	if err := p.begin(ctx); err != nil {
		return err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return err
	}
	if err := p.authorize(bucket, key, OpDelete); err != nil {
		return err
	}
	upload, err := p.getUpload(bucket, key, uploadID)
	if err != nil {
		return err
	}
	return p.sat.ReclaimUpload(*upload)
}

// ReclaimUpload aborts an upload and frees its parts.
func (s *Satellite) ReclaimUpload(upload metadata.MultipartUpload) error {
	parts, err := s.store.DeleteMultipartUpload(upload.UploadID)
	if err != nil {
		return err
	}
	for _, part := range parts {
		s.deleteSegments(upload.ProjectID, part.Segments)
	}
	ev := notify.NewEvent(notify.UploadAborted, upload.ProjectID, upload.Bucket, upload.Key)
	ev.UploadID = upload.UploadID
	s.publish(ev)
	return nil
}

// ListUploadParts returns parts numbered above cursor, at most limit of them.
func (p *Session) ListUploadParts(ctx context.Context, bucket, key, uploadID string, cursor, limit int) (parts []Part, next int, more bool, err error) {
	if err := p.begin(ctx); err != nil {
		return nil, 0, false, err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return nil, 0, false, err
	}
	if err := p.authorize(bucket, key, OpWrite, OpList); err != nil {
		return nil, 0, false, err
	}
	if _, err := p.getUpload(bucket, key, uploadID); err != nil {
		return nil, 0, false, err
	}
	infos, err := p.sat.store.ListParts(uploadID)
	if err != nil {
		return nil, 0, false, err
	}
	if limit <= 0 {
		limit = p.PageSize()
	}
	next = cursor
	for i := range infos {
		if infos[i].PartNumber <= cursor {
			continue
		}
		if len(parts) == limit {
			more = true
			break
		}
		parts = append(parts, partFromInfo(&infos[i]))
		next = infos[i].PartNumber
	}
	return parts, next, more, nil
}

// ListUploads returns one page of pending uploads in key order. Uploads of
// the same key, or under the same collapsed prefix, never straddle pages.
func (p *Session) ListUploads(ctx context.Context, bucket string, opts ListObjectsOptions) (uploads []UploadInfo, next string, more bool, err error) {
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
		return nil, "", false, fmt.Errorf("%w: list uploads %s/%s", ErrPermissionDenied, bucket, opts.Prefix)
	}
	all, err := p.sat.store.ListMultipartUploads(p.projectID, bucket, opts.Prefix)
	if err != nil {
		return nil, "", false, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = p.PageSize()
	}

	var group []UploadInfo
	groupKey := ""
	flush := func() bool {
		if len(group) == 0 {
			return true
		}
		if len(uploads) > 0 && len(uploads)+len(group) > limit {
			more = true
			return false
		}
		uploads = append(uploads, group...)
		next = groupKey
		group = nil
		return true
	}

	for i := range all {
		u := &all[i]
		entryKey, isPrefix := u.Key, false
		if !opts.Recursive {
			if j := strings.Index(u.Key[len(opts.Prefix):], "/"); j >= 0 {
				entryKey, isPrefix = u.Key[:len(opts.Prefix)+j+1], true
			}
		}
		if opts.Cursor != "" && entryKey <= opts.Cursor {
			continue
		}
		if !p.key.visibleKey(bucket, entryKey, isPrefix) {
			continue
		}
		if entryKey != groupKey {
			if !flush() {
				return uploads, next, more, nil
			}
			groupKey = entryKey
		}
		if isPrefix {
			if len(group) == 0 {
				group = append(group, UploadInfo{Key: entryKey, IsPrefix: true})
			}
			continue
		}
		info := UploadInfo{UploadID: u.UploadID, Key: u.Key}
		if opts.System {
			info.System = uploadFromMeta(u).System
		}
		if opts.Custom {
			info.Custom = append([]metadata.MetaEntry(nil), u.Custom...)
		}
		group = append(group, info)
	}
	flush()
	return uploads, next, more, nil
}
