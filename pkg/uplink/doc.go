// Package uplink is the Go binding for the VaultUplink storage library.
// It wraps the library's handle-based call surface in owned Go values:
// every library error becomes an *Error with a stable Code, listings are
// iterators that carry their terminal error, and uploads and downloads
// stream in fixed-size chunks.
//
// A typical session requests an access grant once, serializes it, and
// later parses it to open projects:
//
//	up, err := uplink.Load("")
//	access, err := up.RequestAccessWithPassphrase(addr, apiKey, passphrase)
//	project, err := access.OpenProject()
//	defer project.Close()
package uplink
