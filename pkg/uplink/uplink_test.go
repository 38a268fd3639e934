package uplink

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/native"
	"github.com/eniz1806/VaultUplink/internal/satellite"
)

const testAddress = "127.0.0.1:7777"

type testEnv struct {
	up     *Uplink
	apiKey string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Satellite.Address = testAddress
	cfg.Satellite.SegmentSize = 1024
	cfg.Satellite.InlineThreshold = 256
	cfg.Satellite.ListPageSize = 3
	sat, err := satellite.Open(cfg, nil)
	if err != nil {
		t.Fatalf("satellite.Open: %v", err)
	}
	t.Cleanup(func() { sat.Close() })

	reg := satellite.NewRegistry()
	reg.Register(sat)
	up := New(native.New(reg))
	t.Cleanup(func() { up.Close() })

	_, key, err := sat.CreateProject("test")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return &testEnv{up: up, apiKey: key.Serialize()}
}

func (e *testEnv) access(t *testing.T) *Access {
	t.Helper()
	access, err := e.up.RequestAccessWithPassphrase(testAddress, e.apiKey, "passphrase")
	if err != nil {
		t.Fatalf("RequestAccessWithPassphrase: %v", err)
	}
	return access
}

func openProject(t *testing.T, access *Access) *Project {
	t.Helper()
	project, err := access.OpenProject()
	if err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	t.Cleanup(func() { project.Close() })
	return project
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return data
}

func put(t *testing.T, project *Project, bucket, key string, data []byte) {
	t.Helper()
	u, err := project.UploadObject(bucket, key, nil)
	if err != nil {
		t.Fatalf("UploadObject %s: %v", key, err)
	}
	if _, err := u.Write(data); err != nil {
		t.Fatalf("Write %s: %v", key, err)
	}
	if err := u.Commit(); err != nil {
		t.Fatalf("Commit %s: %v", key, err)
	}
}

func TestEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))

	if _, err := project.CreateBucket("alpha"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	data := randomBytes(t, 5120)
	u, err := project.UploadObject("alpha", "data.txt", nil)
	if err != nil {
		t.Fatalf("UploadObject: %v", err)
	}
	for off := 0; off < len(data); off += 256 {
		if n, err := u.Write(data[off : off+256]); err != nil || n != 256 {
			t.Fatalf("Write at %d: n=%d err=%v", off, n, err)
		}
	}
	if err := u.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	obj, err := project.StatObject("alpha", "data.txt")
	if err != nil {
		t.Fatalf("StatObject: %v", err)
	}
	if obj.System.ContentLength != 5120 {
		t.Errorf("content length = %d, want 5120", obj.System.ContentLength)
	}

	d, err := project.DownloadObject("alpha", "data.txt", nil)
	if err != nil {
		t.Fatalf("DownloadObject: %v", err)
	}
	var got bytes.Buffer
	chunk := make([]byte, 256)
	for {
		n, err := d.Read(chunk)
		got.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close download: %v", err)
	}
	if !bytes.Equal(got.Bytes(), data) {
		t.Fatal("downloaded bytes differ from uploaded bytes")
	}

	if _, err := project.DeleteObject("alpha", "data.txt"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if _, err := project.DeleteBucket("alpha"); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
}

func TestBuckets(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))

	created, err := project.CreateBucket("alpha")
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if _, err := project.CreateBucket("alpha"); !errors.Is(err, ErrBucketAlreadyExists) {
		t.Errorf("duplicate CreateBucket: expected ErrBucketAlreadyExists, got %v", err)
	}
	for i := 0; i < 2; i++ {
		ensured, err := project.EnsureBucket("alpha")
		if err != nil || !ensured.Created.Equal(created.Created) {
			t.Errorf("EnsureBucket #%d: %+v %v", i, ensured, err)
		}
	}

	put(t, project, "alpha", "k", []byte("v"))
	if _, err := project.DeleteBucket("alpha"); !errors.Is(err, ErrBucketNotEmpty) {
		t.Errorf("DeleteBucket non-empty: expected ErrBucketNotEmpty, got %v", err)
	}
	project.DeleteObject("alpha", "k")
	if _, err := project.DeleteBucket("alpha"); err != nil {
		t.Errorf("DeleteBucket after emptying: %v", err)
	}

	for _, name := range []string{"one", "two", "three", "four"} {
		project.CreateBucket(name)
	}
	buckets, err := project.ListBuckets(nil).Collect()
	if err != nil || len(buckets) != 4 {
		t.Fatalf("ListBuckets: %v %v", buckets, err)
	}
	after, _ := project.ListBuckets(&ListBucketsOptions{Cursor: "one"}).Collect()
	if len(after) != 2 || after[0].Name != "three" {
		t.Errorf("ListBuckets after cursor: %v", after)
	}
}

func TestNotFoundCodes(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))
	project.CreateBucket("alpha")

	check := func(name string, err error, want *Error) {
		t.Helper()
		var uerr *Error
		if !errors.As(err, &uerr) {
			t.Fatalf("%s: expected *Error, got %T %v", name, err, err)
		}
		if !errors.Is(err, want) || uerr.Code == CodeInternal {
			t.Errorf("%s: got code %s, want %s", name, uerr.Code, want.Code)
		}
	}
	_, err := project.StatBucket("missing")
	check("stat bucket", err, ErrBucketNotFound)
	_, err = project.DeleteBucket("missing")
	check("delete bucket", err, ErrBucketNotFound)
	_, err = project.StatObject("alpha", "missing")
	check("stat object", err, ErrObjectNotFound)
	_, err = project.DeleteObject("alpha", "missing")
	check("delete object", err, ErrObjectNotFound)
	_, err = project.DownloadObject("alpha", "missing", nil)
	check("download object", err, ErrObjectNotFound)
	_, err = project.UploadObject("missing", "k", nil)
	check("upload to missing bucket", err, ErrBucketNotFound)
	_, err = project.UploadObject("alpha", "", nil)
	check("empty key", err, ErrObjectKeyInvalid)
}

func TestPrefixListing(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))
	project.CreateBucket("alpha")
	for _, k := range []string{"docs/a", "docs/b", "docs/sub/c", "docs/sub/d", "img/x", "readme"} {
		put(t, project, "alpha", k, []byte(k))
	}

	keys := func(opts *ListObjectsOptions) []string {
		t.Helper()
		var out []string
		for obj, err := range project.ListObjects("alpha", opts).All() {
			if err != nil {
				t.Fatalf("ListObjects: %v", err)
			}
			if obj.IsPrefix {
				out = append(out, obj.Key+"*")
			} else {
				out = append(out, obj.Key)
			}
		}
		return out
	}
	equal := func(got []string, want ...string) bool {
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}

	if got := keys(nil); !equal(got, "docs/*", "img/*", "readme") {
		t.Errorf("root listing: %v", got)
	}
	if got := keys(&ListObjectsOptions{Prefix: "docs/"}); !equal(got, "docs/a", "docs/b", "docs/sub/*") {
		t.Errorf("prefix listing: %v", got)
	}
	if got := keys(&ListObjectsOptions{Prefix: "docs/", Recursive: true}); !equal(got, "docs/a", "docs/b", "docs/sub/c", "docs/sub/d") {
		t.Errorf("recursive prefix listing: %v", got)
	}

	it := project.ListObjects("alpha", &ListObjectsOptions{Recursive: true, System: true})
	if !it.Next() || it.Item().System.ContentLength != int64(len("docs/a")) {
		t.Errorf("system metadata not listed: %+v", it.Item())
	}
	it.Close()
	if it.Next() {
		t.Error("closed iterator returned an item")
	}
}

func TestIteratorSurfacesError(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))

	it := project.ListObjects("missing", nil)
	if it.Next() {
		t.Fatal("expected no items")
	}
	if !errors.Is(it.Err(), ErrBucketNotFound) {
		t.Errorf("Err: expected ErrBucketNotFound, got %v", it.Err())
	}

	var seen []error
	for _, err := range project.ListObjects("missing", nil).All() {
		seen = append(seen, err)
	}
	if len(seen) != 1 || !errors.Is(seen[0], ErrBucketNotFound) {
		t.Errorf("All must end with the listing error, got %v", seen)
	}
}

func TestShare(t *testing.T) {
	e := newTestEnv(t)
	access := e.access(t)
	project := openProject(t, access)
	project.CreateBucket("alpha")
	put(t, project, "alpha", "k", []byte("v"))

	listOnly, err := access.Share(Permission{AllowList: true})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	serialized, err := listOnly.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	parsed, err := e.up.ParseAccess(serialized)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	addr, _ := parsed.SatelliteAddress()
	if addr != testAddress {
		t.Errorf("SatelliteAddress = %q", addr)
	}

	shared := openProject(t, parsed)
	objects, err := shared.ListObjects("alpha", nil).Collect()
	if err != nil || len(objects) != 1 {
		t.Fatalf("shared list: %v %v", objects, err)
	}
	if _, err := shared.DeleteObject("alpha", "k"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("shared delete: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := shared.UploadObject("alpha", "new", nil); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("shared upload: expected ErrPermissionDenied, got %v", err)
	}

	// Sharing again can only narrow.
	wider, _ := parsed.Share(FullPermission())
	widerProject := openProject(t, wider)
	if _, err := widerProject.DeleteObject("alpha", "k"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("re-shared delete: expected ErrPermissionDenied, got %v", err)
	}

	if err := project.RevokeAccess(listOnly); err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}
	if _, err := parsed.OpenProject(); !errors.Is(err, ErrRegisterAccessFailed) {
		t.Errorf("revoked access: expected ErrRegisterAccessFailed, got %v", err)
	}
}

func TestAccessErrors(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.up.RequestAccessWithPassphrase("10.0.0.1:1", e.apiKey, "p"); !errors.Is(err, ErrAuthDialFailed) {
		t.Errorf("unknown satellite: expected ErrAuthDialFailed, got %v", err)
	}
	if _, err := e.up.RequestAccessWithPassphrase(testAddress, "bogus", "p"); !errors.Is(err, ErrRegisterAccessFailed) {
		t.Errorf("bad api key: expected ErrRegisterAccessFailed, got %v", err)
	}
	if _, err := e.up.ParseAccess("bogus"); !errors.Is(err, ErrInternal) {
		t.Errorf("bad access: expected ErrInternal, got %v", err)
	}
}

func TestUploadDone(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))
	project.CreateBucket("alpha")

	u, _ := project.UploadObject("alpha", "k", nil)
	u.Write([]byte("data"))
	u.SetCustomMetadata(CustomMetadata{{Key: "color", Value: "blue"}})
	info, err := u.Info()
	if err != nil || info.System.ContentLength != 4 {
		t.Errorf("Info before commit: %+v %v", info, err)
	}
	if err := u.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := u.Commit(); !errors.Is(err, ErrUploadDone) {
		t.Errorf("second Commit: expected ErrUploadDone, got %v", err)
	}
	if err := u.Abort(); !errors.Is(err, ErrUploadDone) {
		t.Errorf("Abort after Commit: expected ErrUploadDone, got %v", err)
	}
	if _, err := u.Write([]byte("x")); !errors.Is(err, ErrUploadDone) {
		t.Errorf("Write after Commit: expected ErrUploadDone, got %v", err)
	}

	obj, _ := project.StatObject("alpha", "k")
	if v, ok := obj.Custom.Get("color"); !ok || v != "blue" {
		t.Errorf("custom metadata: %+v", obj.Custom)
	}

	aborted, _ := project.UploadObject("alpha", "gone", nil)
	aborted.Write([]byte("data"))
	if err := aborted.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := project.StatObject("alpha", "gone"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("aborted upload must leave no object, got %v", err)
	}
}

func TestInvalidHandleAfterClose(t *testing.T) {
	e := newTestEnv(t)
	project, err := e.access(t).OpenProject()
	if err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	project.CreateBucket("alpha")
	u, _ := project.UploadObject("alpha", "k", nil)

	if err := project.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := project.StatBucket("alpha"); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("StatBucket after Close: expected ErrInvalidHandle, got %v", err)
	}
	_, err = u.Write([]byte("x"))
	if !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Write after Close: expected ErrInvalidHandle, got %v", err)
	}
	var werr *Error
	if !errors.As(err, &werr) || !strings.Contains(werr.Message, "upload") {
		t.Errorf("Write after Close: message lost, got %#v", err)
	}
	if err := project.Close(); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("second Close: expected ErrInvalidHandle, got %v", err)
	}
}

func TestWriteFileReadFile(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))
	project.CreateBucket("alpha")

	data := randomBytes(t, 3000)
	u, _ := project.UploadObject("alpha", "file.bin", nil)
	if err := u.WriteFile(bytes.NewReader(data), 100); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := u.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	d, _ := project.DownloadObject("alpha", "file.bin", nil)
	defer d.Close()
	if size, err := d.FileSize(); err != nil || size != 3000 {
		t.Fatalf("FileSize: %d %v", size, err)
	}
	var out bytes.Buffer
	if err := d.ReadFile(&out, 0); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Error("ReadFile content differs")
	}

	ranged, _ := project.DownloadObject("alpha", "file.bin", &DownloadOptions{Offset: 1000, Length: 1500})
	defer ranged.Close()
	if size, _ := ranged.FileSize(); size != 1500 {
		t.Errorf("ranged FileSize = %d", size)
	}
	out.Reset()
	if err := ranged.ReadFile(&out, 512); err != nil {
		t.Fatalf("ranged ReadFile: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data[1000:2500]) {
		t.Error("ranged ReadFile content differs")
	}
}

// stallingWriter accepts nothing for the first stalls calls of each write.
type stallingWriter struct {
	stalls  int
	pending int
	buf     bytes.Buffer
}

func (w *stallingWriter) Write(p []byte) (int, error) {
	if w.pending > 0 {
		w.pending--
		return 0, nil
	}
	w.pending = w.stalls
	return w.buf.Write(p)
}

func TestReadFileRetriesStalledWrites(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))
	project.CreateBucket("alpha")
	data := randomBytes(t, 2000)
	put(t, project, "alpha", "k", data)

	// Five stalls before every successful write stay within the budget,
	// because each success resets the counter.
	d, _ := project.DownloadObject("alpha", "k", nil)
	w := &stallingWriter{stalls: 5, pending: 5}
	if err := d.ReadFile(w, 256); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	d.Close()
	if !bytes.Equal(w.buf.Bytes(), data) {
		t.Error("content differs after retried writes")
	}

	d, _ = project.DownloadObject("alpha", "k", nil)
	defer d.Close()
	err := d.ReadFile(&stallingWriter{stalls: 6, pending: 6}, 256)
	var uerr *Error
	if !errors.As(err, &uerr) || uerr.Message != "File download failed. Please try again." {
		t.Errorf("expected ErrDownloadFailed, got %v", err)
	}
}

func TestMultipartUpload(t *testing.T) {
	e := newTestEnv(t)
	project := openProject(t, e.access(t))
	project.CreateBucket("alpha")

	info, err := project.BeginUpload("alpha", "big", nil)
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	parts := [][]byte{randomBytes(t, 1200), randomBytes(t, 800)}
	for i := len(parts) - 1; i >= 0; i-- {
		pu, err := project.UploadPart("alpha", "big", info.UploadID, uint32(i+1))
		if err != nil {
			t.Fatalf("UploadPart: %v", err)
		}
		if err := pu.WriteFile(bytes.NewReader(parts[i]), 0); err != nil {
			t.Fatalf("part WriteFile: %v", err)
		}
		pu.SetETag("e")
		if err := pu.Commit(); err != nil {
			t.Fatalf("part Commit: %v", err)
		}
		if err := pu.Commit(); !errors.Is(err, ErrUploadDone) {
			t.Errorf("second part Commit: expected ErrUploadDone, got %v", err)
		}
	}

	listed, err := project.ListUploadParts("alpha", "big", info.UploadID, nil).Collect()
	if err != nil || len(listed) != 2 || listed[0].PartNumber != 1 || listed[1].Size != 800 {
		t.Fatalf("ListUploadParts: %+v %v", listed, err)
	}
	uploads, err := project.ListUploads("alpha", nil).Collect()
	if err != nil || len(uploads) != 1 || uploads[0].Key != "big" {
		t.Fatalf("ListUploads: %+v %v", uploads, err)
	}

	obj, err := project.CommitUpload("alpha", "big", info.UploadID, &CommitUploadOptions{
		CustomMetadata: CustomMetadata{{Key: "parts", Value: "2"}},
	})
	if err != nil || obj.System.ContentLength != 2000 {
		t.Fatalf("CommitUpload: %+v %v", obj, err)
	}

	d, _ := project.DownloadObject("alpha", "big", nil)
	defer d.Close()
	got, err := io.ReadAll(d)
	if err != nil || !bytes.Equal(got, append(append([]byte{}, parts[0]...), parts[1]...)) {
		t.Errorf("assembled object differs: %v", err)
	}

	if err := project.AbortUpload("alpha", "big", info.UploadID); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("abort after commit: expected ErrObjectNotFound, got %v", err)
	}
}

func TestLoadLibraryNotFound(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrLibraryNotFound) {
		t.Fatalf("expected ErrLibraryNotFound, got %v", err)
	}

	home := t.TempDir()
	cfg := config.Default(home)
	if err := config.Save(filepath.Join(home, config.FileName), cfg); err != nil {
		t.Fatalf("config.Save: %v", err)
	}
	up, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer up.Close()
	again, _ := Load(home)
	if again.lib != up.lib {
		t.Error("Load must reuse the loaded library")
	}
}

func TestErrorIs(t *testing.T) {
	err := fromNative("stat bucket", &native.Error{Code: native.CodeBucketNotFound, Message: "bucket not found: alpha"})
	if !errors.Is(err, ErrBucketNotFound) || errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Is by code failed for %v", err)
	}
	if err.Error() != "uplink: stat bucket: bucket not found: alpha (bucket not found)" {
		t.Errorf("Error() = %q", err.Error())
	}

	unknown := fromNative("x", &native.Error{Code: 0x77, Message: "raw"})
	var uerr *Error
	if !errors.As(unknown, &uerr) || uerr.Code != 0x77 || uerr.Message != "raw" {
		t.Errorf("unknown code: %+v", uerr)
	}
	if fromNative("x", nil) != nil {
		t.Error("nil native error must give a nil error")
	}
}
