package satellite

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Op is the kind of request an API key is checked against.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpList
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpList:
		return "list"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Action is one request checked against every caveat of an API key.
// An empty Bucket means a project-wide action.
type Action struct {
	Op     Op
	Bucket string
	Key    string
	Time   time.Time
}

// CaveatPath allows a bucket, optionally limited to keys with a prefix.
type CaveatPath struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
}

// Caveat narrows what an API key may do. Caveats only ever remove rights.
type Caveat struct {
	DisallowReads   bool         `json:"disallow_reads,omitempty"`
	DisallowWrites  bool         `json:"disallow_writes,omitempty"`
	DisallowLists   bool         `json:"disallow_lists,omitempty"`
	DisallowDeletes bool         `json:"disallow_deletes,omitempty"`
	NotBefore       int64        `json:"not_before,omitempty"`
	NotAfter        int64        `json:"not_after,omitempty"`
	AllowedPaths    []CaveatPath `json:"allowed_paths,omitempty"`
	Nonce           []byte       `json:"nonce,omitempty"`
}

func (c *Caveat) allowsOp(a Action) bool {
	switch a.Op {
	case OpRead:
		return !c.DisallowReads
	case OpWrite:
		return !c.DisallowWrites
	case OpList:
		return !c.DisallowLists
	case OpDelete:
		return !c.DisallowDeletes
	}
	return false
}

func (c *Caveat) allowsTime(t time.Time) bool {
	if c.NotBefore != 0 && t.Unix() < c.NotBefore {
		return false
	}
	if c.NotAfter != 0 && t.Unix() > c.NotAfter {
		return false
	}
	return true
}

func (c *Caveat) allowsBucket(bucket string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}
	for _, p := range c.AllowedPaths {
		if p.Bucket == bucket {
			return true
		}
	}
	return false
}

func (c *Caveat) allowsKey(bucket, key string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}
	for _, p := range c.AllowedPaths {
		if p.Bucket == bucket && strings.HasPrefix(key, p.Prefix) {
			return true
		}
	}
	return false
}

// overlapsPrefix reports whether any key under listPrefix may be visible.
func (c *Caveat) overlapsPrefix(bucket, listPrefix string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}
	for _, p := range c.AllowedPaths {
		if p.Bucket != bucket {
			continue
		}
		if strings.HasPrefix(listPrefix, p.Prefix) || strings.HasPrefix(p.Prefix, listPrefix) {
			return true
		}
	}
	return false
}

// APIKey is a macaroon-style key: a head identifying the project grant, a
// caveat chain, and a tail that is the HMAC chain over the caveats.
type APIKey struct {
	Head    []byte   `json:"head"`
	Caveats []Caveat `json:"caveats,omitempty"`
	Tail    []byte   `json:"tail"`
}

func newAPIKey(secret []byte) (*APIKey, error) {
	head := make([]byte, 16)
	if _, err := rand.Read(head); err != nil {
		return nil, fmt.Errorf("generate api key head: %w", err)
	}
	return &APIKey{Head: head, Tail: sign(secret, head)}, nil
}

func sign(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// ID returns the hex form of the key head, used to look up its project.
func (k *APIKey) ID() string {
	return hex.EncodeToString(k.Head)
}

// Restrict returns a copy of k with caveat appended. It needs no secret.
func (k *APIKey) Restrict(caveat Caveat) (*APIKey, error) {
	if caveat.Nonce == nil {
		caveat.Nonce = make([]byte, 4)
		if _, err := rand.Read(caveat.Nonce); err != nil {
			return nil, fmt.Errorf("generate caveat nonce: %w", err)
		}
	}
	encoded, err := json.Marshal(caveat)
	if err != nil {
		return nil, fmt.Errorf("encode caveat: %w", err)
	}
	restricted := &APIKey{
		Head:    append([]byte(nil), k.Head...),
		Caveats: append(append([]Caveat(nil), k.Caveats...), caveat),
		Tail:    sign(k.Tail, encoded),
	}
	return restricted, nil
}

// chain recomputes the HMAC chain from the project secret and returns the
// tail after the head and after each caveat.
func (k *APIKey) chain(secret []byte) ([][]byte, error) {
	tails := [][]byte{sign(secret, k.Head)}
	for _, c := range k.Caveats {
		encoded, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
		}
		tails = append(tails, sign(tails[len(tails)-1], encoded))
	}
	if !hmac.Equal(tails[len(tails)-1], k.Tail) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidAPIKey)
	}
	return tails, nil
}

func (k *APIKey) verify(secret []byte) error {
	_, err := k.chain(secret)
	return err
}

// Check returns ErrPermissionDenied unless every caveat allows a.
func (k *APIKey) Check(a Action) error {
	for i := range k.Caveats {
		c := &k.Caveats[i]
		if !c.allowsOp(a) || !c.allowsTime(a.Time) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, a.Op)
		}
		if a.Bucket == "" {
			continue
		}
		if a.Key == "" {
			if !c.allowsBucket(a.Bucket) {
				return fmt.Errorf("%w: %s on bucket %q", ErrPermissionDenied, a.Op, a.Bucket)
			}
		} else if !c.allowsKey(a.Bucket, a.Key) {
			return fmt.Errorf("%w: %s on %s/%s", ErrPermissionDenied, a.Op, a.Bucket, a.Key)
		}
	}
	return nil
}

// CheckAny succeeds when any one of ops is allowed on the path.
func (k *APIKey) CheckAny(bucket, key string, now time.Time, ops ...Op) error {
	var err error
	for _, op := range ops {
		if err = k.Check(Action{Op: op, Bucket: bucket, Key: key, Time: now}); err == nil {
			return nil
		}
	}
	return err
}

// visibleKey reports whether a listed key (or collapsed prefix) can be shown.
func (k *APIKey) visibleKey(bucket, key string, isPrefix bool) bool {
	for i := range k.Caveats {
		c := &k.Caveats[i]
		if isPrefix {
			if !c.overlapsPrefix(bucket, key) {
				return false
			}
		} else if !c.allowsKey(bucket, key) {
			return false
		}
	}
	return true
}

// visibleBucket reports whether a bucket is inside every caveat's paths.
func (k *APIKey) visibleBucket(bucket string) bool {
	for i := range k.Caveats {
		if !k.Caveats[i].allowsBucket(bucket) {
			return false
		}
	}
	return true
}

// canListPrefix reports whether a listing under prefix may return anything.
func (k *APIKey) canListPrefix(bucket, prefix string) bool {
	for i := range k.Caveats {
		if !k.Caveats[i].overlapsPrefix(bucket, prefix) {
			return false
		}
	}
	return true
}

// Serialize encodes the key as base64url JSON.
func (k *APIKey) Serialize() string {
	data, _ := json.Marshal(k)
	return base64.RawURLEncoding.EncodeToString(data)
}

// ParseAPIKey decodes a serialized API key.
func ParseAPIKey(s string) (*APIKey, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
	}
	var k APIKey
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
	}
	if len(k.Head) == 0 || len(k.Tail) == 0 {
		return nil, fmt.Errorf("%w: missing head or tail", ErrInvalidAPIKey)
	}
	return &k, nil
}
