package uplink

import (
	"time"

	"github.com/eniz1806/VaultUplink/internal/native"
)

// Config overrides the library defaults for one project or access
// request. Every zero field keeps the default.
type Config struct {
	// UserAgent is reported to the satellite. "" uses the library default.
	UserAgent string
	// DialTimeout bounds dialing the satellite. 0 uses 10s.
	DialTimeout time.Duration
	// TempDirectory holds spooled upload segments. "" keeps them in memory.
	TempDirectory string
}

func (c Config) native() native.Config {
	return native.Config{
		UserAgent:         c.UserAgent,
		DialTimeoutMillis: int32(c.DialTimeout / time.Millisecond),
		TempDirectory:     c.TempDirectory,
	}
}

// Uplink is a loaded library. Values derived from it are only valid while
// it is open.
type Uplink struct {
	lib *native.Library
}

// New wraps an already constructed library.
func New(lib *native.Library) *Uplink {
	return &Uplink{lib: lib}
}

// Load loads the library installed at home. An empty home searches
// $VAULTUPLINK_HOME, the executable's directory and ~/.vaultuplink.
// Loading the same home twice returns the same library.
func Load(home string) (*Uplink, error) {
	lib, err := native.Load(home)
	if err != nil {
		return nil, asError("load library", err)
	}
	return &Uplink{lib: lib}, nil
}

// Close releases the library and everything derived from it.
func (u *Uplink) Close() error {
	if err := u.lib.Close(); err != nil {
		return asError("close library", err)
	}
	return nil
}

// ParseAccess decodes a serialized access grant. It is cheap; prefer it
// over RequestAccessWithPassphrase for repeated use.
func (u *Uplink) ParseAccess(serialized string) (*Access, error) {
	r := u.lib.ParseAccess(serialized)
	if r.Error != nil {
		defer u.lib.FreeAccessResult(r)
		return nil, fromNative("parse access", r.Error)
	}
	return &Access{up: u, handle: r.Access}, nil
}

// RequestAccessWithPassphrase derives a full-project access grant from an
// API key. The passphrase stretching is CPU heavy: call it once and keep
// the serialized result.
func (u *Uplink) RequestAccessWithPassphrase(satelliteAddress, apiKey, passphrase string) (*Access, error) {
	return u.ConfigRequestAccessWithPassphrase(Config{}, satelliteAddress, apiKey, passphrase)
}

func (u *Uplink) ConfigRequestAccessWithPassphrase(cfg Config, satelliteAddress, apiKey, passphrase string) (*Access, error) {
	r := u.lib.ConfigRequestAccessWithPassphrase(cfg.native(), satelliteAddress, apiKey, passphrase)
	if r.Error != nil {
		defer u.lib.FreeAccessResult(r)
		return nil, fromNative("request access", r.Error)
	}
	return &Access{up: u, handle: r.Access}, nil
}
