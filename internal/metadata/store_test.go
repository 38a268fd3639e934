package metadata

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "meta", "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.CreateProject(ProjectInfo{ID: "p1", Name: "test"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return s
}

func putObject(t *testing.T, s *Store, bucket, key string) {
	t.Helper()
	if _, err := s.PutObjectMeta("p1", ObjectMeta{Bucket: bucket, Key: key, ContentLength: 1}); err != nil {
		t.Fatalf("PutObjectMeta %s: %v", key, err)
	}
}

func TestStore_BucketCRUD(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateBucket("p1", "test-bucket"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	buckets, more, err := s.ListBuckets("p1", "", 0)
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	if more || len(buckets) != 1 || buckets[0].Name != "test-bucket" {
		t.Errorf("expected [test-bucket], got %v (more=%v)", buckets, more)
	}

	if _, err := s.CreateBucket("p1", "test-bucket"); !errors.Is(err, ErrBucketExists) {
		t.Errorf("expected ErrBucketExists on duplicate, got %v", err)
	}

	// Same name in another project is independent
	if _, err := s.CreateBucket("p2", "test-bucket"); err != nil {
		t.Errorf("CreateBucket in p2: %v", err)
	}

	if _, _, err := s.DeleteBucket("p1", "test-bucket", time.Now()); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if _, err := s.GetBucket("p1", "test-bucket"); !errors.Is(err, ErrBucketNotFound) {
		t.Errorf("expected ErrBucketNotFound after delete, got %v", err)
	}
	if _, _, err := s.DeleteBucket("p1", "test-bucket", time.Now()); !errors.Is(err, ErrBucketNotFound) {
		t.Errorf("expected ErrBucketNotFound on second delete, got %v", err)
	}
}

func TestStore_DeleteBucketNotEmpty(t *testing.T) {
	s := newTestStore(t)
	s.CreateBucket("p1", "full")
	s.CreateBucket("p1", "full-other")
	putObject(t, s, "full", "a.txt")
	putObject(t, s, "full-other", "b.txt")

	if _, _, err := s.DeleteBucket("p1", "full", time.Now()); !errors.Is(err, ErrBucketNotEmpty) {
		t.Fatalf("expected ErrBucketNotEmpty, got %v", err)
	}
	if _, err := s.DeleteObjectMeta("p1", "full", "a.txt"); err != nil {
		t.Fatalf("DeleteObjectMeta: %v", err)
	}
	if _, _, err := s.DeleteBucket("p1", "full", time.Now()); err != nil {
		t.Fatalf("DeleteBucket after emptying: %v", err)
	}
}

func TestStore_DeleteBucketReclaimsExpired(t *testing.T) {
	s := newTestStore(t)
	s.CreateBucket("p1", "temp")
	now := time.Now()
	old := ObjectMeta{Bucket: "temp", Key: "gone.txt", Expires: now.Add(-time.Minute).Unix(),
		Segments: []SegmentRef{{PieceKey: "s/0", StoredSize: 10}}}
	if _, err := s.PutObjectMeta("p1", old); err != nil {
		t.Fatal(err)
	}
	live := ObjectMeta{Bucket: "temp", Key: "later.txt", Expires: now.Add(time.Hour).Unix()}
	if _, err := s.PutObjectMeta("p1", live); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.DeleteBucket("p1", "temp", now); !errors.Is(err, ErrBucketNotEmpty) {
		t.Fatalf("expected ErrBucketNotEmpty while an object is live, got %v", err)
	}
	if _, err := s.GetObjectMeta("p1", "temp", "gone.txt"); err != nil {
		t.Fatalf("failed delete must not remove expired objects: %v", err)
	}

	_, reclaimed, err := s.DeleteBucket("p1", "temp", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBucket after expiry: %v", err)
	}
	if len(reclaimed) != 2 {
		t.Fatalf("expected both expired objects returned, got %d", len(reclaimed))
	}
	if _, err := s.GetObjectMeta("p1", "temp", "gone.txt"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expired object should be gone, got %v", err)
	}
}

func TestStore_DeleteBucketPendingUpload(t *testing.T) {
	s := newTestStore(t)
	s.CreateBucket("p1", "parts")
	if err := s.CreateMultipartUpload(MultipartUpload{UploadID: "u1", ProjectID: "p1", Bucket: "parts", Key: "k"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.DeleteBucket("p1", "parts", time.Now()); !errors.Is(err, ErrBucketNotEmpty) {
		t.Fatalf("expected ErrBucketNotEmpty with a pending upload, got %v", err)
	}
	if _, err := s.DeleteMultipartUpload("u1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.DeleteBucket("p1", "parts", time.Now()); err != nil {
		t.Fatalf("DeleteBucket after abort: %v", err)
	}
}

func TestStore_ListBucketsPaging(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"delta", "alpha", "charlie", "bravo"} {
		s.CreateBucket("p1", name)
	}

	page, more, err := s.ListBuckets("p1", "", 2)
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	if !more || len(page) != 2 || page[0].Name != "alpha" || page[1].Name != "bravo" {
		t.Fatalf("first page: got %v more=%v", page, more)
	}
	page, more, err = s.ListBuckets("p1", page[1].Name, 2)
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	if more || len(page) != 2 || page[0].Name != "charlie" || page[1].Name != "delta" {
		t.Fatalf("second page: got %v more=%v", page, more)
	}
}

func TestStore_ObjectMeta(t *testing.T) {
	s := newTestStore(t)
	s.CreateBucket("p1", "bucket")

	meta := ObjectMeta{
		Bucket:        "bucket",
		Key:           "file.txt",
		ContentLength: 42,
		Custom:        []MetaEntry{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}},
	}
	prev, err := s.PutObjectMeta("p1", meta)
	if err != nil {
		t.Fatalf("PutObjectMeta: %v", err)
	}
	if prev != nil {
		t.Errorf("expected no previous object, got %+v", prev)
	}

	got, err := s.GetObjectMeta("p1", "bucket", "file.txt")
	if err != nil {
		t.Fatalf("GetObjectMeta: %v", err)
	}
	if got.ContentLength != 42 || len(got.Custom) != 2 || got.Custom[0].Key != "b" {
		t.Errorf("got %+v", got)
	}

	meta.ContentLength = 7
	prev, err = s.PutObjectMeta("p1", meta)
	if err != nil {
		t.Fatalf("PutObjectMeta overwrite: %v", err)
	}
	if prev == nil || prev.ContentLength != 42 {
		t.Errorf("expected previous object with length 42, got %+v", prev)
	}

	if _, err := s.DeleteObjectMeta("p1", "bucket", "file.txt"); err != nil {
		t.Fatalf("DeleteObjectMeta: %v", err)
	}
	if _, err := s.GetObjectMeta("p1", "bucket", "file.txt"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound after delete, got %v", err)
	}
	if _, err := s.PutObjectMeta("p1", ObjectMeta{Bucket: "missing", Key: "x"}); !errors.Is(err, ErrBucketNotFound) {
		t.Errorf("expected ErrBucketNotFound for missing bucket, got %v", err)
	}
}

func TestStore_ListObjects(t *testing.T) {
	s := newTestStore(t)
	s.CreateBucket("p1", "b")
	for _, key := range []string{"a.txt", "dir/c.txt", "dir/d.txt", "dir/sub/e.txt", "z.txt"} {
		putObject(t, s, "b", key)
	}

	keys := func(entries []ListEntry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.Key)
		}
		return out
	}

	tests := []struct {
		name   string
		params ListParams
		want   []string
	}{
		{"flat", ListParams{}, []string{"a.txt", "dir/", "z.txt"}},
		{"recursive", ListParams{Recursive: true}, []string{"a.txt", "dir/c.txt", "dir/d.txt", "dir/sub/e.txt", "z.txt"}},
		{"prefix", ListParams{Prefix: "dir/"}, []string{"dir/c.txt", "dir/d.txt", "dir/sub/"}},
		{"prefix recursive", ListParams{Prefix: "dir/", Recursive: true}, []string{"dir/c.txt", "dir/d.txt", "dir/sub/e.txt"}},
		{"cursor past prefix entry", ListParams{Cursor: "dir/"}, []string{"z.txt"}},
		{"cursor recursive", ListParams{Cursor: "dir/d.txt", Recursive: true}, []string{"dir/sub/e.txt", "z.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, _, err := s.ListObjects("p1", "b", tt.params)
			if err != nil {
				t.Fatalf("ListObjects: %v", err)
			}
			got := keys(entries)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}

	entries, more, err := s.ListObjects("p1", "b", ListParams{Limit: 2})
	if err != nil {
		t.Fatalf("ListObjects limit: %v", err)
	}
	if !more || len(entries) != 2 || !entries[1].IsPrefix {
		t.Errorf("expected 2 entries with more, got %v more=%v", keys(entries), more)
	}

	if _, _, err := s.ListObjects("p1", "nope", ListParams{}); !errors.Is(err, ErrBucketNotFound) {
		t.Errorf("expected ErrBucketNotFound, got %v", err)
	}
}

func TestStore_Multipart(t *testing.T) {
	s := newTestStore(t)
	s.CreateBucket("p1", "b")

	upload := MultipartUpload{UploadID: "up1", ProjectID: "p1", Bucket: "b", Key: "big.bin"}
	if err := s.CreateMultipartUpload(upload); err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}
	for _, n := range []int{3, 1, 2} {
		if _, err := s.PutPart("up1", PartInfo{PartNumber: n, Size: int64(n)}); err != nil {
			t.Fatalf("PutPart %d: %v", n, err)
		}
	}
	prev, err := s.PutPart("up1", PartInfo{PartNumber: 2, Size: 20})
	if err != nil || prev == nil || prev.Size != 2 {
		t.Fatalf("PutPart replace: prev=%+v err=%v", prev, err)
	}

	parts, err := s.ListParts("up1")
	if err != nil {
		t.Fatalf("ListParts: %v", err)
	}
	if len(parts) != 3 || parts[0].PartNumber != 1 || parts[1].Size != 20 || parts[2].PartNumber != 3 {
		t.Errorf("unexpected parts: %+v", parts)
	}

	uploads, err := s.ListMultipartUploads("p1", "b", "")
	if err != nil || len(uploads) != 1 {
		t.Fatalf("ListMultipartUploads: %v %v", uploads, err)
	}

	removed, err := s.DeleteMultipartUpload("up1")
	if err != nil {
		t.Fatalf("DeleteMultipartUpload: %v", err)
	}
	if len(removed) != 3 {
		t.Errorf("expected 3 removed parts, got %d", len(removed))
	}
	if _, err := s.ListParts("up1"); !errors.Is(err, ErrUploadNotFound) {
		t.Errorf("expected ErrUploadNotFound, got %v", err)
	}
}

func TestStore_UpdateUsage(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateUsage("p1", func(_ ProjectLimits, u *ProjectUsage) error {
		u.StorageBytes += 100
		u.Segments++
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateUsage: %v", err)
	}

	rejected := errors.New("over limit")
	err = s.UpdateUsage("p1", func(_ ProjectLimits, u *ProjectUsage) error {
		u.StorageBytes += 1000
		return rejected
	})
	if !errors.Is(err, rejected) {
		t.Fatalf("expected rejection, got %v", err)
	}

	info, err := s.GetProject("p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if info.Usage.StorageBytes != 100 || info.Usage.Segments != 1 {
		t.Errorf("usage: got %+v", info.Usage)
	}
}

func TestStore_APIKeys(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutAPIKey("head1", "p1"); err != nil {
		t.Fatalf("PutAPIKey: %v", err)
	}
	got, err := s.GetAPIKeyProject("head1")
	if err != nil || got != "p1" {
		t.Fatalf("GetAPIKeyProject: %q %v", got, err)
	}
	if _, err := s.GetAPIKeyProject("head2"); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("expected ErrAPIKeyNotFound, got %v", err)
	}

	if revoked, err := s.AnyRevoked([][]byte{[]byte("t1"), []byte("t2")}); err != nil || revoked {
		t.Fatalf("AnyRevoked before revoke: %v %v", revoked, err)
	}
	if err := s.RevokeTail([]byte("t2")); err != nil {
		t.Fatalf("RevokeTail: %v", err)
	}
	if revoked, _ := s.AnyRevoked([][]byte{[]byte("t1"), []byte("t2")}); !revoked {
		t.Error("expected chain containing t2 to be revoked")
	}
	if revoked, _ := s.AnyRevoked([][]byte{[]byte("t1")}); revoked {
		t.Error("t1 was never revoked")
	}
}

func TestStore_Scans(t *testing.T) {
	s := newTestStore(t)
	s.CreateBucket("p1", "b")
	putObject(t, s, "b", "one")
	putObject(t, s, "b", "two")
	s.CreateMultipartUpload(MultipartUpload{UploadID: "u1", ProjectID: "p1", Bucket: "b", Key: "k"})

	var seen []string
	if err := s.ScanObjects(func(projectID string, meta ObjectMeta) bool {
		seen = append(seen, projectID+":"+meta.Key)
		return true
	}); err != nil {
		t.Fatalf("ScanObjects: %v", err)
	}
	if len(seen) != 2 || seen[0] != "p1:one" || seen[1] != "p1:two" {
		t.Errorf("ScanObjects: got %v", seen)
	}

	count := 0
	s.ScanObjects(func(string, ObjectMeta) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("expected scan to stop after first object, got %d", count)
	}

	var uploads []string
	s.ScanMultipartUploads(func(u MultipartUpload) bool {
		uploads = append(uploads, u.UploadID)
		return true
	})
	if len(uploads) != 1 || uploads[0] != "u1" {
		t.Errorf("ScanMultipartUploads: got %v", uploads)
	}
}

func TestStore_SnapshotRestore(t *testing.T) {
	src := newTestStore(t)
	src.CreateBucket("p1", "b")
	putObject(t, src, "b", "kept")

	var buf bytes.Buffer
	if err := src.WriteSnapshot(&buf); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	dst := newTestStore(t)
	dst.CreateBucket("p1", "other")
	if err := dst.RestoreSnapshot(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if _, err := dst.GetBucket("p1", "other"); !errors.Is(err, ErrBucketNotFound) {
		t.Errorf("expected restored store to drop bucket other, got %v", err)
	}
	if _, err := dst.GetObjectMeta("p1", "b", "kept"); err != nil {
		t.Errorf("expected restored object, got %v", err)
	}

	if err := dst.RestoreSnapshot(bytes.NewReader([]byte("garbage!"))); !errors.Is(err, ErrBadSnapshot) {
		t.Errorf("expected ErrBadSnapshot, got %v", err)
	}
	if _, err := dst.GetObjectMeta("p1", "b", "kept"); err != nil {
		t.Errorf("bad snapshot must not change the store, got %v", err)
	}
}
