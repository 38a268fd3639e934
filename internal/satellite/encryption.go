package satellite

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const keySize = 32

// argon2id parameters for passphrase derivation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// PrefixKey is the derived key for every object under Prefix in Bucket.
// Prefix is empty or ends with "/".
type PrefixKey struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
	Key    []byte `json:"key"`
}

// EncryptionAccess holds the key material an access grant can decrypt with.
// A root key unlocks the whole project; a shared grant carries only prefix keys.
type EncryptionAccess struct {
	Root     []byte      `json:"root,omitempty"`
	Prefixes []PrefixKey `json:"prefixes,omitempty"`
}

// DeriveRootKey stretches a passphrase with argon2id.
func DeriveRootKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keySize)
}

func projectSalt(projectID string) []byte {
	sum := sha256.Sum256([]byte("vaultuplink/project-salt/" + projectID))
	return sum[:]
}

func deriveKey(parent []byte, info string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, parent, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// splitKey returns the directory part of an object key (through the last
// slash) and the final component.
func splitKey(key string) (dir, leaf string) {
	i := strings.LastIndex(key, "/")
	return key[:i+1], key[i+1:]
}

func (e *EncryptionAccess) dirKey(bucket, dir string) ([]byte, error) {
	var (
		key  []byte
		rest string
	)

	best := -1
	for i, pk := range e.Prefixes {
		if pk.Bucket == bucket && strings.HasPrefix(dir, pk.Prefix) {
			if best < 0 || len(pk.Prefix) > len(e.Prefixes[best].Prefix) {
				best = i
			}
		}
	}
	switch {
	case best >= 0:
		key = e.Prefixes[best].Key
		rest = dir[len(e.Prefixes[best].Prefix):]
	case e.Root != nil:
		var err error
		if key, err = deriveKey(e.Root, "bucket:"+bucket); err != nil {
			return nil, err
		}
		rest = dir
	default:
		return nil, fmt.Errorf("%w: no encryption key for %s/%s", ErrPermissionDenied, bucket, dir)
	}

	if rest == "" {
		return key, nil
	}
	for _, component := range strings.Split(strings.TrimSuffix(rest, "/"), "/") {
		var err error
		if key, err = deriveKey(key, "dir:"+component); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// ContentKey returns the key that seals the content of bucket/key.
func (e *EncryptionAccess) ContentKey(bucket, key string) ([]byte, error) {
	dir, leaf := splitKey(key)
	dk, err := e.dirKey(bucket, dir)
	if err != nil {
		return nil, err
	}
	return deriveKey(dk, "object:"+leaf)
}

// Restrict returns an encryption access holding only the keys needed for
// the given prefixes. Prefixes this access cannot derive are left out.
func (e *EncryptionAccess) Restrict(prefixes []SharePrefix) *EncryptionAccess {
	restricted := &EncryptionAccess{}
	seen := make(map[string]bool)
	for _, p := range prefixes {
		dir, _ := splitKey(p.Prefix)
		id := p.Bucket + "\x00" + dir
		if seen[id] {
			continue
		}
		seen[id] = true
		key, err := e.dirKey(p.Bucket, dir)
		if err != nil {
			continue
		}
		restricted.Prefixes = append(restricted.Prefixes, PrefixKey{Bucket: p.Bucket, Prefix: dir, Key: key})
	}
	sort.Slice(restricted.Prefixes, func(i, j int) bool {
		a, b := restricted.Prefixes[i], restricted.Prefixes[j]
		if a.Bucket != b.Bucket {
			return a.Bucket < b.Bucket
		}
		return a.Prefix < b.Prefix
	})
	return restricted
}
