package storage

import "io"

// Engine stores opaque pieces under a namespace (one namespace per project).
type Engine interface {
	PutObject(namespace, key string, reader io.Reader, size int64) (int64, error)
	GetObject(namespace, key string) (io.ReadCloser, int64, error)
	DeleteObject(namespace, key string) error
	ObjectExists(namespace, key string) bool
	ObjectSize(namespace, key string) (int64, error)
}
