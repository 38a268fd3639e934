package satellite

import (
	"context"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/notify"
)

type UploadOptions struct {
	// Expires removes the object after this time. Zero keeps it forever.
	Expires time.Time
}

// Upload streams one object. Nothing is visible until Commit.
// An Upload is not safe for concurrent use.
type Upload struct {
	sess     *Session
	bucket   string
	key      string
	streamID string
	created  time.Time
	expires  time.Time
	custom   []metadata.MetaEntry
	writer   *segmentWriter
	done     bool
}

func (p *Session) UploadObject(ctx context.Context, bucket, key string, opts UploadOptions) (*Upload, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	if err := p.checkPath(bucket, key); err != nil {
		return nil, err
	}
	if err := p.authorize(bucket, key, OpWrite); err != nil {
		return nil, err
	}
	if _, err := p.sat.store.GetBucket(p.projectID, bucket); err != nil {
		return nil, err
	}
	sealer, err := p.sealerFor(bucket, key)
	if err != nil {
		return nil, err
	}
	streamID := shortuuid.New()
	return &Upload{
		sess:     p,
		bucket:   bucket,
		key:      key,
		streamID: streamID,
		created:  time.Now().UTC(),
		expires:  opts.Expires,
		writer:   p.newSegmentWriter(sealer, streamID),
	}, nil
}

func (u *Upload) check(ctx context.Context) error {
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

// Write appends p to the object. It returns len(p) unless it fails.
func (u *Upload) Write(ctx context.Context, p []byte) (int, error) {
	if err := u.check(ctx); err != nil {
		return 0, err
	}
	return u.writer.Write(p)
}

// SetCustomMetadata replaces the custom metadata stored at commit.
func (u *Upload) SetCustomMetadata(ctx context.Context, custom []metadata.MetaEntry) error {
	if err := u.check(ctx); err != nil {
		return err
	}
	for _, e := range custom {
		if e.Key == "" {
			return fmt.Errorf("%w: empty custom metadata key", ErrObjectKeyInvalid)
		}
	}
	u.custom = append([]metadata.MetaEntry(nil), custom...)
	return nil
}

// Info describes the object as it would be committed now.
func (u *Upload) Info() *Object {
	var expires time.Time
	if !u.expires.IsZero() {
		expires = u.expires.UTC().Truncate(time.Second)
	}
	return &Object{
		Key: u.key,
		System: SystemMetadata{
			Created:       u.created.Truncate(time.Second),
			Expires:       expires,
			ContentLength: u.writer.pending(),
		},
		Custom: append([]metadata.MetaEntry(nil), u.custom...),
	}
}

// Commit stores the last segment and makes the object visible, replacing any
// object at the same key. Replacing needs delete rights.
func (u *Upload) Commit(ctx context.Context) error {
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

	if err := p.authorizeReplace(u.bucket, u.key); err != nil {
		u.writer.discard()
		return err
	}

	meta := metadata.ObjectMeta{
		Bucket:        u.bucket,
		Key:           u.key,
		StreamID:      u.streamID,
		Created:       u.created.Unix(),
		ContentLength: u.writer.size,
		Custom:        u.custom,
		Segments:      u.writer.segments,
	}
	if !u.expires.IsZero() {
		meta.Expires = u.expires.Unix()
	}
	prev, err := p.sat.store.PutObjectMeta(p.projectID, meta)
	if err != nil {
		u.writer.discard()
		return err
	}
	if prev != nil {
		p.sat.deleteSegments(p.projectID, prev.Segments)
	}

	ev := notify.NewEvent(notify.ObjectCommitted, p.projectID, u.bucket, u.key)
	ev.Size = meta.ContentLength
	ev.StreamID = u.streamID
	p.sat.publish(ev)
	p.sat.logger.Debug("object committed", "bucket", u.bucket, "key", u.key, "size", meta.ContentLength, "segments", len(meta.Segments))
	return nil
}

// Abort discards everything written so far.
func (u *Upload) Abort() error {
	if u.done {
		return ErrUploadDone
	}
	u.done = true
	u.writer.discard()
	return nil
}
