package satellite

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const accessVersion = 1

// Permission lists what a shared access may do. The zero value allows nothing.
// Zero times leave the validity window open on that side.
type Permission struct {
	AllowDownload bool
	AllowUpload   bool
	AllowList     bool
	AllowDelete   bool
	NotBefore     time.Time
	NotAfter      time.Time
}

// SharePrefix limits a shared access to keys under Prefix in Bucket.
type SharePrefix struct {
	Bucket string
	Prefix string
}

// Access is a serializable credential: where the satellite is, the API key
// and the encryption keys.
type Access struct {
	SatelliteAddress string
	APIKey           *APIKey
	Encryption       *EncryptionAccess
}

type accessEnvelope struct {
	Version    int               `json:"v"`
	Satellite  string            `json:"satellite"`
	APIKey     string            `json:"api_key"`
	Encryption *EncryptionAccess `json:"encryption"`
}

// Serialize encodes the access as a base64url string.
func (a *Access) Serialize() (string, error) {
	env := accessEnvelope{
		Version:    accessVersion,
		Satellite:  a.SatelliteAddress,
		APIKey:     a.APIKey.Serialize(),
		Encryption: a.Encryption,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode access: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// ParseAccess decodes a serialized access grant.
func ParseAccess(serialized string) (*Access, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(serialized))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccess, err)
	}
	var env accessEnvelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccess, err)
	}
	if env.Version != accessVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidAccess, env.Version)
	}
	if env.Satellite == "" {
		return nil, fmt.Errorf("%w: missing satellite address", ErrInvalidAccess)
	}
	if env.Encryption == nil {
		return nil, fmt.Errorf("%w: missing encryption access", ErrInvalidAccess)
	}
	key, err := ParseAPIKey(env.APIKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccess, err)
	}
	return &Access{
		SatelliteAddress: env.Satellite,
		APIKey:           key,
		Encryption:       env.Encryption,
	}, nil
}

// Share derives a narrower access. Rights are the intersection of perm with
// everything already on the key; prefixes intersect with earlier prefixes.
func (a *Access) Share(perm Permission, prefixes ...SharePrefix) (*Access, error) {
	if !perm.NotBefore.IsZero() && !perm.NotAfter.IsZero() && perm.NotAfter.Before(perm.NotBefore) {
		return nil, fmt.Errorf("%w: not_after is before not_before", ErrInvalidAccess)
	}

	caveat := Caveat{
		DisallowReads:   !perm.AllowDownload,
		DisallowWrites:  !perm.AllowUpload,
		DisallowLists:   !perm.AllowList,
		DisallowDeletes: !perm.AllowDelete,
	}
	if !perm.NotBefore.IsZero() {
		caveat.NotBefore = perm.NotBefore.Unix()
	}
	if !perm.NotAfter.IsZero() {
		caveat.NotAfter = perm.NotAfter.Unix()
	}
	for _, p := range prefixes {
		if p.Bucket == "" {
			return nil, fmt.Errorf("%w: share prefix without bucket", ErrBucketNameInvalid)
		}
		caveat.AllowedPaths = append(caveat.AllowedPaths, CaveatPath{Bucket: p.Bucket, Prefix: p.Prefix})
	}

	key, err := a.APIKey.Restrict(caveat)
	if err != nil {
		return nil, err
	}

	enc := a.Encryption
	if len(prefixes) > 0 {
		enc = a.Encryption.Restrict(prefixes)
	}
	return &Access{
		SatelliteAddress: a.SatelliteAddress,
		APIKey:           key,
		Encryption:       enc,
	}, nil
}
