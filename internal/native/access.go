package native

import (
	"github.com/eniz1806/VaultUplink/internal/satellite"
)

// ParseAccess decodes a serialized access grant. It does not dial.
func (l *Library) ParseAccess(serialized string) AccessResult {
	access, err := satellite.ParseAccess(serialized)
	if err != nil {
		return AccessResult{Error: newError(err)}
	}
	return AccessResult{Access: l.handles.put(kindAccess, access, 0)}
}

// RequestAccessWithPassphrase derives a full-project access grant. The key
// derivation is deliberately slow; serialize the result and parse it later.
func (l *Library) RequestAccessWithPassphrase(satelliteAddress, apiKey, passphrase string) AccessResult {
	return l.ConfigRequestAccessWithPassphrase(Config{}, satelliteAddress, apiKey, passphrase)
}

func (l *Library) ConfigRequestAccessWithPassphrase(cfg Config, satelliteAddress, apiKey, passphrase string) AccessResult {
	ctx, cancel := l.dialContext(l.merge(cfg))
	defer cancel()
	access, err := l.registry.RequestAccessWithPassphrase(ctx, satelliteAddress, apiKey, passphrase)
	if err != nil {
		return AccessResult{Error: newError(err)}
	}
	return AccessResult{Access: l.handles.put(kindAccess, access, 0)}
}

func (l *Library) AccessSatelliteAddress(access Handle) StringResult {
	a, cerr := lookup[*satellite.Access](l.handles, access, kindAccess)
	if cerr != nil {
		return StringResult{Error: cerr}
	}
	return StringResult{String: a.SatelliteAddress}
}

func (l *Library) AccessSerialize(access Handle) StringResult {
	a, cerr := lookup[*satellite.Access](l.handles, access, kindAccess)
	if cerr != nil {
		return StringResult{Error: cerr}
	}
	s, err := a.Serialize()
	if err != nil {
		return StringResult{Error: newError(err)}
	}
	return StringResult{String: s}
}

// AccessShare derives an access limited to perm and, when given, prefixes.
// The zero Permission allows nothing.
func (l *Library) AccessShare(access Handle, perm Permission, prefixes []SharePrefix) AccessResult {
	a, cerr := lookup[*satellite.Access](l.handles, access, kindAccess)
	if cerr != nil {
		return AccessResult{Error: cerr}
	}
	shared := make([]satellite.SharePrefix, len(prefixes))
	for i, p := range prefixes {
		shared[i] = satellite.SharePrefix{Bucket: p.Bucket, Prefix: p.Prefix}
	}
	derived, err := a.Share(permissionFromC(perm), shared...)
	if err != nil {
		return AccessResult{Error: newError(err)}
	}
	return AccessResult{Access: l.handles.put(kindAccess, derived, 0)}
}

// FreeAccessResult releases the access handle and the error, if any.
func (l *Library) FreeAccessResult(r AccessResult) {
	FreeError(r.Error)
	if r.Access != 0 {
		l.handles.release(r.Access, kindAccess)
	}
}

func (l *Library) FreeStringResult(r StringResult) {
	FreeError(r.Error)
}
