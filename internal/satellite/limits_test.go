package satellite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/notify"
)

func TestStorageLimit(t *testing.T) {
	sat, reg := newTestSatellite(t, func(cfg *config.Config) {
		cfg.Limits.StorageBytes = 2000
	})
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")

	u, _ := p.UploadObject(ctx, "alpha", "big", UploadOptions{})
	_, err := u.Write(ctx, randomBytes(t, 3000))
	if !errors.Is(err, ErrStorageLimit) {
		t.Fatalf("expected ErrStorageLimit, got %v", err)
	}
	u.Abort()

	usage, limits, _ := sat.Usage(p.ProjectID())
	if usage.StorageBytes != 0 || limits.StorageBytes != 2000 {
		t.Errorf("expected aborted upload to release usage: usage=%+v limits=%+v", usage, limits)
	}

	// A project override wins over the config.
	if err := sat.SetProjectLimits(p.ProjectID(), metadata.ProjectLimits{StorageBytes: 10000}, 0); err != nil {
		t.Fatalf("SetProjectLimits: %v", err)
	}
	writeObject(t, p, "alpha", "big", randomBytes(t, 3000))
}

func TestSegmentsLimit(t *testing.T) {
	sat, reg := newTestSatellite(t, func(cfg *config.Config) {
		cfg.Limits.Segments = 2
	})
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")

	writeObject(t, p, "alpha", "one", []byte("1"))
	writeObject(t, p, "alpha", "two", []byte("2"))
	u, _ := p.UploadObject(ctx, "alpha", "three", UploadOptions{})
	u.Write(ctx, []byte("3"))
	if err := u.Commit(ctx); !errors.Is(err, ErrSegmentsLimit) {
		t.Errorf("expected ErrSegmentsLimit, got %v", err)
	}
	if _, err := p.StatObject(ctx, "alpha", "three"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("failed commit must leave no object, got %v", err)
	}
}

func TestBandwidthLimit(t *testing.T) {
	sat, reg := newTestSatellite(t, func(cfg *config.Config) {
		cfg.Limits.BandwidthBytes = 1500
	})
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")
	writeObject(t, p, "alpha", "k", randomBytes(t, 2048))

	d, err := p.DownloadObject(ctx, "alpha", "k", DownloadOptions{Length: -1})
	if err != nil {
		t.Fatalf("DownloadObject: %v", err)
	}
	defer d.Close()
	buf := make([]byte, 1024)
	if _, err := d.Read(ctx, buf); err != nil {
		t.Fatalf("first segment should fit the limit: %v", err)
	}
	if _, err := d.Read(ctx, buf); !errors.Is(err, ErrBandwidthLimit) {
		t.Errorf("expected ErrBandwidthLimit, got %v", err)
	}
}

func TestRequestRateLimit(t *testing.T) {
	sat, reg := newTestSatellite(t, func(cfg *config.Config) {
		cfg.Limits.RequestsPerSec = 0.001
		cfg.Limits.RequestBurst = 2
	})
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()

	mustCreateBucket(t, p, "alpha")
	p.StatBucket(ctx, "alpha")
	if _, err := p.StatBucket(ctx, "alpha"); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("expected ErrTooManyRequests, got %v", err)
	}
	if st := sat.Stats(); st.Requests.Rejected < 1 || st.Requests.ActiveProjects < 1 {
		t.Errorf("request stats: %+v", st.Requests)
	}
}

func TestMultipartUpload(t *testing.T) {
	sat, reg := newTestSatellite(t, nil)
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")

	info, err := p.BeginUpload(ctx, "alpha", "big.bin", UploadOptions{})
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}

	part1 := randomBytes(t, 1500)
	part2 := randomBytes(t, 700)
	putPart := func(n int, data []byte, etag string) {
		t.Helper()
		pu, err := p.UploadPart(ctx, "alpha", "big.bin", info.UploadID, n)
		if err != nil {
			t.Fatalf("UploadPart %d: %v", n, err)
		}
		if _, err := pu.Write(ctx, data); err != nil {
			t.Fatalf("part Write: %v", err)
		}
		pu.SetETag(ctx, etag)
		if err := pu.Commit(ctx); err != nil {
			t.Fatalf("part Commit: %v", err)
		}
		if err := pu.Commit(ctx); !errors.Is(err, ErrUploadDone) {
			t.Errorf("second part Commit: expected ErrUploadDone, got %v", err)
		}
	}
	putPart(2, part2, "two")
	putPart(1, randomBytes(t, 10), "stale")
	putPart(1, part1, "one")

	parts, next, more, err := p.ListUploadParts(ctx, "alpha", "big.bin", info.UploadID, 0, 1)
	if err != nil || len(parts) != 1 || !more || next != 1 || parts[0].ETag != "one" {
		t.Fatalf("ListUploadParts page 1: %+v next=%d more=%v err=%v", parts, next, more, err)
	}
	parts, _, more, _ = p.ListUploadParts(ctx, "alpha", "big.bin", info.UploadID, next, 1)
	if len(parts) != 1 || more || parts[0].PartNumber != 2 || parts[0].Size != 700 {
		t.Fatalf("ListUploadParts page 2: %+v more=%v", parts, more)
	}

	uploads, _, _, err := p.ListUploads(ctx, "alpha", ListObjectsOptions{Recursive: true})
	if err != nil || len(uploads) != 1 || uploads[0].UploadID != info.UploadID {
		t.Fatalf("ListUploads: %+v %v", uploads, err)
	}

	obj, err := p.CommitUpload(ctx, "alpha", "big.bin", info.UploadID, CommitUploadOptions{
		CustomMetadata: []metadata.MetaEntry{{Key: "k", Value: "v"}},
	})
	if err != nil {
		t.Fatalf("CommitUpload: %v", err)
	}
	if obj.System.ContentLength != 2200 || len(obj.Custom) != 1 {
		t.Errorf("committed object: %+v", obj)
	}

	want := append(append([]byte{}, part1...), part2...)
	if got := readObject(t, p, "alpha", "big.bin", DownloadOptions{Length: -1}); !bytes.Equal(got, want) {
		t.Error("assembled object does not match the parts in order")
	}

	if _, err := p.CommitUpload(ctx, "alpha", "big.bin", info.UploadID, CommitUploadOptions{}); !errors.Is(err, ErrUploadNotFound) {
		t.Errorf("second CommitUpload: expected ErrUploadNotFound, got %v", err)
	}

	// The stale part 1 was released when it was replaced.
	usage, _, _ := sat.Usage(p.ProjectID())
	if usage.Segments != 3 {
		t.Errorf("expected 3 segments in use, got %d", usage.Segments)
	}
}

func TestMultipartAbortAndListing(t *testing.T) {
	sat, reg := newTestSatellite(t, nil)
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")

	var ids []string
	for _, key := range []string{"a/1", "a/2", "b", "b"} {
		info, err := p.BeginUpload(ctx, "alpha", key, UploadOptions{})
		if err != nil {
			t.Fatalf("BeginUpload: %v", err)
		}
		ids = append(ids, info.UploadID)
	}

	uploads, _, _, err := p.ListUploads(ctx, "alpha", ListObjectsOptions{})
	if err != nil {
		t.Fatalf("ListUploads: %v", err)
	}
	if len(uploads) != 3 || !uploads[0].IsPrefix || uploads[0].Key != "a/" || uploads[1].Key != "b" {
		t.Errorf("non-recursive uploads: %+v", uploads)
	}

	// Both uploads of "b" stay on one page.
	page, next, more, _ := p.ListUploads(ctx, "alpha", ListObjectsOptions{Recursive: true, Limit: 3})
	if len(page) != 2 || !more || next != "a/2" {
		t.Fatalf("first page: %+v next=%q more=%v", page, next, more)
	}
	page, _, more, _ = p.ListUploads(ctx, "alpha", ListObjectsOptions{Recursive: true, Limit: 3, Cursor: next})
	if len(page) != 2 || more {
		t.Errorf("second page: %+v more=%v", page, more)
	}

	pu, _ := p.UploadPart(ctx, "alpha", "a/1", ids[0], 1)
	pu.Write(ctx, randomBytes(t, 2000))
	pu.Commit(ctx)

	if err := p.AbortUpload(ctx, "alpha", "a/1", ids[0]); err != nil {
		t.Fatalf("AbortUpload: %v", err)
	}
	if err := p.AbortUpload(ctx, "alpha", "a/1", ids[0]); !errors.Is(err, ErrUploadNotFound) {
		t.Errorf("second AbortUpload: expected ErrUploadNotFound, got %v", err)
	}
	if _, err := p.UploadPart(ctx, "alpha", "b", ids[0], 1); !errors.Is(err, ErrUploadNotFound) {
		t.Errorf("UploadPart on wrong key: expected ErrUploadNotFound, got %v", err)
	}
	usage, _, _ := sat.Usage(p.ProjectID())
	if usage.Segments != 0 {
		t.Errorf("expected aborted parts released, got %d segments", usage.Segments)
	}
}

func TestExpiredObjects(t *testing.T) {
	sat, reg := newTestSatellite(t, nil)
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")

	u, _ := p.UploadObject(ctx, "alpha", "gone", UploadOptions{Expires: time.Now().Add(-time.Minute)})
	u.Write(ctx, randomBytes(t, 1200))
	if err := u.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	writeObject(t, p, "alpha", "kept", []byte("x"))

	if _, err := p.StatObject(ctx, "alpha", "gone"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected expired object not found, got %v", err)
	}
	objects, _, _, _ := p.ListObjects(ctx, "alpha", ListObjectsOptions{})
	if !equalKeys(keysOf(objects), "kept") {
		t.Errorf("expected expired object hidden from listing, got %v", keysOf(objects))
	}

	// The startup sweep may already have run; either way the object is gone after this one.
	sat.lifecycle.Sweep()
	if _, err := sat.store.GetObjectMeta(p.ProjectID(), "alpha", "gone"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected expired object reclaimed, got %v", err)
	}
	usage, _, _ := sat.Usage(p.ProjectID())
	if usage.Segments != 1 {
		t.Errorf("expected only the kept object's segment, got %d", usage.Segments)
	}
}

func TestOverwriteNeedsDelete(t *testing.T) {
	sat, reg := newTestSatellite(t, nil)
	p, access := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")
	writeObject(t, p, "alpha", "k", []byte("original"))

	shared, _ := access.Share(Permission{AllowUpload: true, AllowDownload: true})
	sp := openSession(t, reg, shared)
	u, err := sp.UploadObject(ctx, "alpha", "k", UploadOptions{})
	if err != nil {
		t.Fatalf("UploadObject: %v", err)
	}
	u.Write(ctx, []byte("replacement"))
	if err := u.Commit(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
	if got := readObject(t, p, "alpha", "k", DownloadOptions{Length: -1}); string(got) != "original" {
		t.Errorf("object changed to %q", got)
	}
}

func putExpired(t *testing.T, p *Session, bucket, key string, size int) {
	t.Helper()
	ctx := context.Background()
	u, err := p.UploadObject(ctx, bucket, key, UploadOptions{Expires: time.Now().Add(-time.Minute)})
	if err != nil {
		t.Fatalf("UploadObject %s: %v", key, err)
	}
	u.Write(ctx, randomBytes(t, size))
	if err := u.Commit(ctx); err != nil {
		t.Fatalf("Commit %s: %v", key, err)
	}
}

func TestExpiredObjectActsAbsent(t *testing.T) {
	sat, reg := newTestSatellite(t, nil)
	p, access := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")

	putExpired(t, p, "alpha", "old", 1200)
	if _, err := p.DeleteObject(ctx, "alpha", "old"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("DeleteObject of expired object: expected ErrObjectNotFound, got %v", err)
	}
	if _, err := sat.store.GetObjectMeta(p.ProjectID(), "alpha", "old"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expired object should be reclaimed, got %v", err)
	}

	// Replacing an expired object needs no delete rights.
	putExpired(t, p, "alpha", "k", 10)
	shared, _ := access.Share(Permission{AllowUpload: true, AllowDownload: true})
	sp := openSession(t, reg, shared)
	u, err := sp.UploadObject(ctx, "alpha", "k", UploadOptions{})
	if err != nil {
		t.Fatalf("UploadObject: %v", err)
	}
	u.Write(ctx, []byte("fresh"))
	if err := u.Commit(ctx); err != nil {
		t.Fatalf("Commit over expired object: %v", err)
	}
	if got := readObject(t, p, "alpha", "k", DownloadOptions{Length: -1}); string(got) != "fresh" {
		t.Errorf("got %q", got)
	}
}

func TestDeleteBucketWithExpiredObjects(t *testing.T) {
	sat, reg := newTestSatellite(t, nil)
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()

	mustCreateBucket(t, p, "alpha")
	putExpired(t, p, "alpha", "a", 1200)
	if _, err := p.DeleteBucket(ctx, "alpha"); err != nil {
		t.Fatalf("DeleteBucket with only expired objects: %v", err)
	}

	mustCreateBucket(t, p, "beta")
	putExpired(t, p, "beta", "dir/b", 1200)
	writeObject(t, p, "beta", "live", []byte("x"))
	if _, err := p.DeleteBucketWithObjects(ctx, "beta"); err != nil {
		t.Fatalf("DeleteBucketWithObjects: %v", err)
	}

	usage, _, _ := sat.Usage(p.ProjectID())
	if usage.Segments != 0 || usage.StorageBytes != 0 {
		t.Errorf("expected all storage released, got %+v", usage)
	}
}

func TestDeleteBucketWithPendingUploads(t *testing.T) {
	sat, reg := newTestSatellite(t, nil)
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")

	info, err := p.BeginUpload(ctx, "alpha", "big.bin", UploadOptions{})
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	pu, err := p.UploadPart(ctx, "alpha", "big.bin", info.UploadID, 1)
	if err != nil {
		t.Fatalf("UploadPart: %v", err)
	}
	pu.Write(ctx, randomBytes(t, 2000))
	if err := pu.Commit(ctx); err != nil {
		t.Fatalf("part Commit: %v", err)
	}

	if _, err := p.DeleteBucket(ctx, "alpha"); !errors.Is(err, ErrBucketNotEmpty) {
		t.Errorf("DeleteBucket with a pending upload: expected ErrBucketNotEmpty, got %v", err)
	}
	if _, err := p.DeleteBucketWithObjects(ctx, "alpha"); err != nil {
		t.Fatalf("DeleteBucketWithObjects: %v", err)
	}
	usage, _, _ := sat.Usage(p.ProjectID())
	if usage.Segments != 0 || usage.StorageBytes != 0 {
		t.Errorf("expected part storage released, got %+v", usage)
	}

	mustCreateBucket(t, p, "alpha")
	uploads, _, _, err := p.ListUploads(ctx, "alpha", ListObjectsOptions{Recursive: true})
	if err != nil || len(uploads) != 0 {
		t.Errorf("uploads survived bucket deletion: %+v %v", uploads, err)
	}
	if _, err := p.CommitUpload(ctx, "alpha", "big.bin", info.UploadID, CommitUploadOptions{}); !errors.Is(err, ErrUploadNotFound) {
		t.Errorf("CommitUpload after bucket deletion: expected ErrUploadNotFound, got %v", err)
	}
}

func TestUploadPartNumberBounds(t *testing.T) {
	sat, reg := newTestSatellite(t, nil)
	p, _ := newTestSession(t, sat, reg)
	ctx := context.Background()
	mustCreateBucket(t, p, "alpha")
	info, _ := p.BeginUpload(ctx, "alpha", "k", UploadOptions{})

	for _, n := range []int{0, MaxPartNumber + 1} {
		_, err := p.UploadPart(ctx, "alpha", "k", info.UploadID, n)
		if !errors.Is(err, ErrInvalidPartNumber) || errors.Is(err, ErrObjectKeyInvalid) {
			t.Errorf("part %d: got %v", n, err)
		}
	}
	for _, n := range []int{1, MaxPartNumber} {
		pu, err := p.UploadPart(ctx, "alpha", "k", info.UploadID, n)
		if err != nil {
			t.Errorf("part %d: %v", n, err)
			continue
		}
		pu.Abort()
	}
}

type recordingBackend struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingBackend) Name() string { return "recording" }
func (r *recordingBackend) Publish(_ context.Context, payload []byte) error {
	var ev notify.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}
func (r *recordingBackend) Close() error { return nil }

func (r *recordingBackend) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, ev := range r.events {
		names[i] = ev.Name
	}
	return names
}

func TestEvents(t *testing.T) {
	sat, reg := newTestSatellite(t, func(cfg *config.Config) {
		cfg.Events.Workers = 1
	})
	rec := &recordingBackend{}
	sat.Events().AddBackend(rec)

	p, _ := newTestSession(t, sat, reg)
	mustCreateBucket(t, p, "alpha")
	writeObject(t, p, "alpha", "k", []byte("v"))
	p.DeleteObject(context.Background(), "alpha", "k")

	want := []string{notify.BucketCreated, notify.ObjectCommitted, notify.ObjectRemoved}
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.names()) < len(want) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := rec.names(); !equalKeys(got, want...) {
		t.Errorf("events: got %v, want %v", got, want)
	}
	for sat.Stats().Events.Delivered < int64(len(want)) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if st := sat.Stats().Events; st.Delivered != int64(len(want)) || st.Dropped != 0 || st.Failed != 0 {
		t.Errorf("event stats: %+v", st)
	}
}
