package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	projectsBucket  = []byte("projects")
	apiKeysBucket   = []byte("api_keys")
	bucketsBucket   = []byte("buckets")
	objectsBucket   = []byte("objects")
	multipartBucket = []byte("multipart_uploads")
	partsBucket     = []byte("multipart_parts")
	revokedBucket   = []byte("revoked_tails")
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrAPIKeyNotFound  = errors.New("api key not found")
	ErrBucketExists    = errors.New("bucket already exists")
	ErrBucketNotFound  = errors.New("bucket not found")
	ErrBucketNotEmpty  = errors.New("bucket is not empty")
	ErrObjectNotFound  = errors.New("object not found")
	ErrUploadNotFound  = errors.New("multipart upload not found")
)

type Store struct {
	db *bolt.DB
}

// ProjectLimits overrides the satellite defaults for one project. 0 = satellite default.
type ProjectLimits struct {
	StorageBytes   int64 `json:"storage_bytes,omitempty"`
	Segments       int64 `json:"segments,omitempty"`
	BandwidthBytes int64 `json:"bandwidth_bytes,omitempty"`
}

type ProjectUsage struct {
	StorageBytes int64 `json:"storage_bytes"`
	Segments     int64 `json:"segments"`
	EgressBytes  int64 `json:"egress_bytes"`
}

type ProjectInfo struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Secret    []byte        `json:"secret"` // API key HMAC root
	Salt      []byte        `json:"salt"`   // passphrase derivation salt
	CreatedAt time.Time     `json:"created_at"`
	Limits    ProjectLimits `json:"limits"`
	Usage     ProjectUsage  `json:"usage"`
}

type BucketInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MetaEntry is one custom metadata pair. Order is preserved.
type MetaEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SegmentRef locates one stored segment of an object or part.
type SegmentRef struct {
	Index      int    `json:"index"`
	PlainSize  int64  `json:"plain_size"`
	StoredSize int64  `json:"stored_size"`
	Inline     []byte `json:"inline,omitempty"`
	PieceKey   string `json:"piece_key,omitempty"`
}

type ObjectMeta struct {
	Bucket        string       `json:"bucket"`
	Key           string       `json:"key"`
	StreamID      string       `json:"stream_id"`
	Created       int64        `json:"created"` // unix timestamp
	Expires       int64        `json:"expires,omitempty"`
	ContentLength int64        `json:"content_length"`
	Custom        []MetaEntry  `json:"custom,omitempty"`
	Segments      []SegmentRef `json:"segments,omitempty"`
}

// ExpiredAt reports whether the object's expiration has passed at now.
func (m *ObjectMeta) ExpiredAt(now time.Time) bool {
	return m.Expires > 0 && m.Expires <= now.Unix()
}

// ListEntry is either a committed object or a collapsed prefix.
type ListEntry struct {
	Key      string
	IsPrefix bool
	Meta     *ObjectMeta
}

// ListParams selects a page of objects. Cursor is exclusive.
type ListParams struct {
	Prefix    string
	Cursor    string
	Recursive bool
	Limit     int
}

type MultipartUpload struct {
	UploadID  string      `json:"upload_id"`
	ProjectID string      `json:"project_id"`
	Bucket    string      `json:"bucket"`
	Key       string      `json:"key"`
	StreamID  string      `json:"stream_id"`
	CreatedAt int64       `json:"created_at"`
	Expires   int64       `json:"expires,omitempty"`
	Custom    []MetaEntry `json:"custom,omitempty"`
}

type PartInfo struct {
	PartNumber int          `json:"part_number"`
	ETag       string       `json:"etag"`
	Size       int64        `json:"size"`
	Modified   int64        `json:"modified"`
	Segments   []SegmentRef `json:"segments,omitempty"`
}

func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{projectsBucket, apiKeysBucket, bucketsBucket, objectsBucket, multipartBucket, partsBucket, revokedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init metadata buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Project operations

func (s *Store) CreateProject(info ProjectInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(projectsBucket)
		if b.Get([]byte(info.ID)) != nil {
			return fmt.Errorf("project already exists: %s", info.ID)
		}
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return b.Put([]byte(info.ID), data)
	})
}

func (s *Store) GetProject(id string) (*ProjectInfo, error) {
	var info *ProjectInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(projectsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		info = &ProjectInfo{}
		return json.Unmarshal(data, info)
	})
	return info, err
}

func (s *Store) ListProjects() ([]ProjectInfo, error) {
	var projects []ProjectInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(projectsBucket).ForEach(func(k, v []byte) error {
			var info ProjectInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			projects = append(projects, info)
			return nil
		})
	})
	return projects, err
}

// UpdateUsage applies fn to the project's usage counters in a single transaction.
// If fn returns an error the counters are left untouched.
func (s *Store) UpdateUsage(id string, fn func(limits ProjectLimits, usage *ProjectUsage) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(projectsBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		var info ProjectInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return err
		}
		if err := fn(info.Limits, &info.Usage); err != nil {
			return err
		}
		updated, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

func (s *Store) SetProjectLimits(id string, limits ProjectLimits) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(projectsBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		var info ProjectInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return err
		}
		info.Limits = limits
		updated, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

// API key operations

func (s *Store) PutAPIKey(head, projectID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(apiKeysBucket).Put([]byte(head), []byte(projectID))
	})
}

func (s *Store) GetAPIKeyProject(head string) (string, error) {
	var projectID string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(apiKeysBucket).Get([]byte(head))
		if data == nil {
			return ErrAPIKeyNotFound
		}
		projectID = string(data)
		return nil
	})
	return projectID, err
}

// RevokeTail records an API key tail as revoked.
func (s *Store) RevokeTail(tail []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(revokedBucket).Put(tail, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// AnyRevoked reports whether any of tails was revoked.
func (s *Store) AnyRevoked(tails [][]byte) (bool, error) {
	var revoked bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(revokedBucket)
		for _, t := range tails {
			if b.Get(t) != nil {
				revoked = true
				return nil
			}
		}
		return nil
	})
	return revoked, err
}

// Bucket operations

func bucketKey(projectID, name string) []byte {
	return []byte(projectID + "/" + name)
}

func (s *Store) CreateBucket(projectID, name string) (*BucketInfo, error) {
	info := &BucketInfo{Name: name, CreatedAt: time.Now().UTC()}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketsBucket)
		if b.Get(bucketKey(projectID, name)) != nil {
			return fmt.Errorf("%w: %s", ErrBucketExists, name)
		}
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return b.Put(bucketKey(projectID, name), data)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Store) GetBucket(projectID, name string) (*BucketInfo, error) {
	var info *BucketInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketsBucket).Get(bucketKey(projectID, name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, name)
		}
		info = &BucketInfo{}
		return json.Unmarshal(data, info)
	})
	return info, err
}

// DeleteBucket removes a bucket that holds no live objects and no pending
// uploads. Objects expired at now are removed with it and returned so the
// caller can free their segments.
func (s *Store) DeleteBucket(projectID, name string, now time.Time) (*BucketInfo, []ObjectMeta, error) {
	var info *BucketInfo
	var reclaimed []ObjectMeta
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketsBucket)
		data := b.Get(bucketKey(projectID, name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, name)
		}

		objects := tx.Bucket(objectsBucket)
		prefix := []byte(projectID + "/" + name + "/")
		var expiredKeys [][]byte
		c := objects.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var meta ObjectMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			if !meta.ExpiredAt(now) {
				return fmt.Errorf("%w: %s", ErrBucketNotEmpty, name)
			}
			expiredKeys = append(expiredKeys, append([]byte(nil), k...))
			reclaimed = append(reclaimed, meta)
		}

		pending := false
		err := tx.Bucket(multipartBucket).ForEach(func(_, v []byte) error {
			var u MultipartUpload
			if json.Unmarshal(v, &u) == nil && u.ProjectID == projectID && u.Bucket == name {
				pending = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if pending {
			return fmt.Errorf("%w: %s has pending uploads", ErrBucketNotEmpty, name)
		}

		for _, k := range expiredKeys {
			if err := objects.Delete(k); err != nil {
				return err
			}
		}
		info = &BucketInfo{}
		if err := json.Unmarshal(data, info); err != nil {
			return err
		}
		return b.Delete(bucketKey(projectID, name))
	})
	if err != nil {
		return nil, nil, err
	}
	return info, reclaimed, nil
}

// ListBuckets returns up to limit buckets after cursor, in name order.
func (s *Store) ListBuckets(projectID, cursor string, limit int) ([]BucketInfo, bool, error) {
	var buckets []BucketInfo
	more := false
	prefix := []byte(projectID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketsBucket).Cursor()
		k, v := c.Seek(append(append([]byte{}, prefix...), cursor...))
		if cursor != "" && k != nil && string(k) == string(prefix)+cursor {
			k, v = c.Next()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if limit > 0 && len(buckets) == limit {
				more = true
				break
			}
			var info BucketInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			buckets = append(buckets, info)
		}
		return nil
	})
	return buckets, more, err
}

// Object metadata operations

func objectMetaKey(projectID, bucket, key string) []byte {
	return []byte(projectID + "/" + bucket + "/" + key)
}

// PutObjectMeta stores meta and returns the object it replaced, if any.
func (s *Store) PutObjectMeta(projectID string, meta ObjectMeta) (*ObjectMeta, error) {
	var prev *ObjectMeta
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketsBucket).Get(bucketKey(projectID, meta.Bucket)) == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, meta.Bucket)
		}
		b := tx.Bucket(objectsBucket)
		k := objectMetaKey(projectID, meta.Bucket, meta.Key)
		if old := b.Get(k); old != nil {
			prev = &ObjectMeta{}
			if err := json.Unmarshal(old, prev); err != nil {
				return err
			}
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func (s *Store) GetObjectMeta(projectID, bucket, key string) (*ObjectMeta, error) {
	var meta *ObjectMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(objectsBucket).Get(objectMetaKey(projectID, bucket, key))
		if data == nil {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		meta = &ObjectMeta{}
		return json.Unmarshal(data, meta)
	})
	return meta, err
}

// DeleteObjectMeta removes the object and returns what was deleted.
func (s *Store) DeleteObjectMeta(projectID, bucket, key string) (*ObjectMeta, error) {
	var meta *ObjectMeta
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		k := objectMetaKey(projectID, bucket, key)
		data := b.Get(k)
		if data == nil {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		meta = &ObjectMeta{}
		if err := json.Unmarshal(data, meta); err != nil {
			return err
		}
		return b.Delete(k)
	})
	return meta, err
}

// DeleteObjectStream removes the object only while it still holds streamID,
// so a sweep never removes an object that was overwritten after it was scanned.
func (s *Store) DeleteObjectStream(projectID, bucket, key, streamID string) (*ObjectMeta, error) {
	var meta *ObjectMeta
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		k := objectMetaKey(projectID, bucket, key)
		data := b.Get(k)
		if data == nil {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		meta = &ObjectMeta{}
		if err := json.Unmarshal(data, meta); err != nil {
			return err
		}
		if meta.StreamID != streamID {
			meta = nil
			return fmt.Errorf("%w: %s/%s stream %s", ErrObjectNotFound, bucket, key, streamID)
		}
		return b.Delete(k)
	})
	return meta, err
}

// ListObjects returns a page of objects in key order. With Recursive unset, keys
// containing "/" after the prefix collapse into a single prefix entry.
func (s *Store) ListObjects(projectID, bucket string, p ListParams) ([]ListEntry, bool, error) {
	base := projectID + "/" + bucket + "/"
	start := []byte(base + p.Prefix)
	var entries []ListEntry
	more := false

	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketsBucket).Get(bucketKey(projectID, bucket)) == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		c := tx.Bucket(objectsBucket).Cursor()

		var k, v []byte
		if p.Cursor != "" && p.Cursor >= p.Prefix {
			seek := base + p.Cursor
			if !p.Recursive && strings.HasSuffix(p.Cursor, "/") {
				seek += "\xff"
			}
			k, v = c.Seek([]byte(seek))
			if k != nil && string(k) == base+p.Cursor {
				k, v = c.Next()
			}
		} else {
			k, v = c.Seek(start)
		}

		for k != nil && bytes.HasPrefix(k, start) {
			if p.Limit > 0 && len(entries) == p.Limit {
				more = true
				break
			}
			rel := string(k[len(base):])
			if !p.Recursive {
				if i := strings.Index(rel[len(p.Prefix):], "/"); i >= 0 {
					collapsed := rel[:len(p.Prefix)+i+1]
					entries = append(entries, ListEntry{Key: collapsed, IsPrefix: true})
					k, v = c.Seek([]byte(base + collapsed + "\xff"))
					continue
				}
			}
			meta := &ObjectMeta{}
			if err := json.Unmarshal(v, meta); err != nil {
				return err
			}
			entries = append(entries, ListEntry{Key: rel, Meta: meta})
			k, v = c.Next()
		}
		return nil
	})
	return entries, more, err
}

// Multipart upload operations

func (s *Store) CreateMultipartUpload(upload MultipartUpload) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketsBucket).Get(bucketKey(upload.ProjectID, upload.Bucket)) == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, upload.Bucket)
		}
		data, err := json.Marshal(upload)
		if err != nil {
			return err
		}
		return tx.Bucket(multipartBucket).Put([]byte(upload.UploadID), data)
	})
}

func (s *Store) GetMultipartUpload(uploadID string) (*MultipartUpload, error) {
	var upload *MultipartUpload
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(multipartBucket).Get([]byte(uploadID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
		}
		upload = &MultipartUpload{}
		return json.Unmarshal(data, upload)
	})
	return upload, err
}

// DeleteMultipartUpload removes the upload and all its parts, returning the parts.
func (s *Store) DeleteMultipartUpload(uploadID string) ([]PartInfo, error) {
	var parts []PartInfo
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(multipartBucket)
		if b.Get([]byte(uploadID)) == nil {
			return fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
		}
		if err := b.Delete([]byte(uploadID)); err != nil {
			return err
		}
		pb := tx.Bucket(partsBucket)
		prefix := []byte(uploadID + "/")
		c := pb.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Seek(prefix) {
			var part PartInfo
			if err := json.Unmarshal(v, &part); err != nil {
				return err
			}
			parts = append(parts, part)
			if err := pb.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return parts, err
}

// PutPart stores a part and returns the part it replaced, if any.
func (s *Store) PutPart(uploadID string, part PartInfo) (*PartInfo, error) {
	var prev *PartInfo
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(multipartBucket).Get([]byte(uploadID)) == nil {
			return fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
		}
		b := tx.Bucket(partsBucket)
		key := []byte(fmt.Sprintf("%s/%05d", uploadID, part.PartNumber))
		if old := b.Get(key); old != nil {
			prev = &PartInfo{}
			if err := json.Unmarshal(old, prev); err != nil {
				return err
			}
		}
		data, err := json.Marshal(part)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	return prev, err
}

// ListParts returns the parts of an upload in ascending part number.
func (s *Store) ListParts(uploadID string) ([]PartInfo, error) {
	var parts []PartInfo
	prefix := []byte(uploadID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(multipartBucket).Get([]byte(uploadID)) == nil {
			return fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
		}
		c := tx.Bucket(partsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var part PartInfo
			if err := json.Unmarshal(v, &part); err != nil {
				return err
			}
			parts = append(parts, part)
		}
		return nil
	})
	return parts, err
}

func (s *Store) ListMultipartUploads(projectID, bucket, prefix string) ([]MultipartUpload, error) {
	var uploads []MultipartUpload
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketsBucket).Get(bucketKey(projectID, bucket)) == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		return tx.Bucket(multipartBucket).ForEach(func(k, v []byte) error {
			var u MultipartUpload
			if err := json.Unmarshal(v, &u); err != nil {
				return nil // skip corrupt entries
			}
			if u.ProjectID == projectID && u.Bucket == bucket && strings.HasPrefix(u.Key, prefix) {
				uploads = append(uploads, u)
			}
			return nil
		})
	})
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key != uploads[j].Key {
			return uploads[i].Key < uploads[j].Key
		}
		return uploads[i].UploadID < uploads[j].UploadID
	})
	return uploads, err
}

// ScanObjects calls fn for every object in every project until fn returns false.
func (s *Store) ScanObjects(fn func(projectID string, meta ObjectMeta) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(objectsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			projectID, _, ok := strings.Cut(string(k), "/")
			if !ok {
				continue
			}
			var meta ObjectMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				continue
			}
			if !fn(projectID, meta) {
				return nil
			}
		}
		return nil
	})
}

// ScanMultipartUploads calls fn for every pending upload until fn returns false.
func (s *Store) ScanMultipartUploads(fn func(upload MultipartUpload) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(multipartBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var u MultipartUpload
			if err := json.Unmarshal(v, &u); err != nil {
				continue
			}
			if !fn(u) {
				return nil
			}
		}
		return nil
	})
}
