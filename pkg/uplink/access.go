package uplink

import (
	"time"

	"github.com/eniz1806/VaultUplink/internal/native"
)

// Permission lists what a shared access may do. The zero value allows
// nothing; zero times leave that side of the validity window open.
type Permission struct {
	AllowDownload bool
	AllowUpload   bool
	AllowList     bool
	AllowDelete   bool
	NotBefore     time.Time
	NotAfter      time.Time
}

// FullPermission allows everything for all time.
func FullPermission() Permission {
	return Permission{AllowDownload: true, AllowUpload: true, AllowList: true, AllowDelete: true}
}

// ReadOnlyPermission allows downloads and listings.
func ReadOnlyPermission() Permission {
	return Permission{AllowDownload: true, AllowList: true}
}

// SharePrefix limits a shared access to keys under Prefix in Bucket. An
// empty Prefix shares the whole bucket.
type SharePrefix struct {
	Bucket string
	Prefix string
}

// Access is a credential: the satellite address, an API key and the
// encryption keys it unlocks.
type Access struct {
	up     *Uplink
	handle native.Handle
}

// SatelliteAddress returns the address the access dials.
func (a *Access) SatelliteAddress() (string, error) {
	r := a.up.lib.AccessSatelliteAddress(a.handle)
	defer a.up.lib.FreeStringResult(r)
	if r.Error != nil {
		return "", fromNative("satellite address", r.Error)
	}
	return r.String, nil
}

// Serialize encodes the access so it can cross process boundaries.
func (a *Access) Serialize() (string, error) {
	r := a.up.lib.AccessSerialize(a.handle)
	defer a.up.lib.FreeStringResult(r)
	if r.Error != nil {
		return "", fromNative("serialize access", r.Error)
	}
	return r.String, nil
}

// Share derives an access with at most perm and, when prefixes are given,
// scoped to them. The result never has more rights than a.
func (a *Access) Share(perm Permission, prefixes ...SharePrefix) (*Access, error) {
	shared := make([]native.SharePrefix, len(prefixes))
	for i, p := range prefixes {
		shared[i] = native.SharePrefix{Bucket: p.Bucket, Prefix: p.Prefix}
	}
	r := a.up.lib.AccessShare(a.handle, native.Permission{
		AllowDownload: perm.AllowDownload,
		AllowUpload:   perm.AllowUpload,
		AllowList:     perm.AllowList,
		AllowDelete:   perm.AllowDelete,
		NotBefore:     unixOrZero(perm.NotBefore),
		NotAfter:      unixOrZero(perm.NotAfter),
	}, shared)
	if r.Error != nil {
		defer a.up.lib.FreeAccessResult(r)
		return nil, fromNative("share access", r.Error)
	}
	return &Access{up: a.up, handle: r.Access}, nil
}

// OpenProject dials the satellite and opens the access's project.
func (a *Access) OpenProject() (*Project, error) {
	return a.ConfigOpenProject(Config{})
}

func (a *Access) ConfigOpenProject(cfg Config) (*Project, error) {
	r := a.up.lib.ConfigOpenProject(cfg.native(), a.handle)
	if r.Error != nil {
		defer a.up.lib.FreeProjectResult(r)
		return nil, fromNative("open project", r.Error)
	}
	return &Project{up: a.up, handle: r.Project}, nil
}

// Free releases the access. Projects opened from it stay open.
func (a *Access) Free() {
	a.up.lib.FreeAccessResult(native.AccessResult{Access: a.handle})
}
