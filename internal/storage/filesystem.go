package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystem implements Engine using one local directory per storage node.
type FileSystem struct {
	dataDir string
}

func NewFileSystem(dataDir string) (*FileSystem, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileSystem{dataDir: dataDir}, nil
}

func (fs *FileSystem) DataDir() string {
	return fs.dataDir
}

func (fs *FileSystem) namespacePath(namespace string) string {
	return filepath.Join(fs.dataDir, namespace)
}

func (fs *FileSystem) objectPath(namespace, key string) string {
	return filepath.Join(fs.dataDir, namespace, filepath.FromSlash(key))
}

func (fs *FileSystem) PutObject(namespace, key string, reader io.Reader, size int64) (int64, error) {
	objPath := fs.objectPath(namespace, key)

	// Create parent directories for nested keys (e.g., "stream/seg-0/shard-01")
	if err := os.MkdirAll(filepath.Dir(objPath), 0755); err != nil {
		return 0, fmt.Errorf("create piece dir: %w", err)
	}

	// Write to a temp file first so readers never see a torn piece
	tmp := objPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create piece file: %w", err)
	}

	written, err := io.Copy(f, reader)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("write piece: %w", err)
	}
	if size >= 0 && written != size {
		os.Remove(tmp)
		return 0, fmt.Errorf("write piece: short write %d of %d bytes", written, size)
	}
	if err := os.Rename(tmp, objPath); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("commit piece: %w", err)
	}

	return written, nil
}

func (fs *FileSystem) GetObject(namespace, key string) (io.ReadCloser, int64, error) {
	objPath := fs.objectPath(namespace, key)

	info, err := os.Stat(objPath)
	if err != nil {
		return nil, 0, fmt.Errorf("stat piece: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("piece is a directory")
	}

	f, err := os.Open(objPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open piece: %w", err)
	}

	return f, info.Size(), nil
}

func (fs *FileSystem) DeleteObject(namespace, key string) error {
	objPath := fs.objectPath(namespace, key)
	err := os.Remove(objPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete piece: %w", err)
	}

	// Clean up empty parent directories
	dir := filepath.Dir(objPath)
	nsDir := fs.namespacePath(namespace)
	for dir != nsDir && dir != fs.dataDir {
		entries, _ := os.ReadDir(dir)
		if len(entries) > 0 {
			break
		}
		os.Remove(dir)
		dir = filepath.Dir(dir)
	}

	return nil
}

func (fs *FileSystem) ObjectExists(namespace, key string) bool {
	info, err := os.Stat(fs.objectPath(namespace, key))
	return err == nil && !info.IsDir()
}

func (fs *FileSystem) ObjectSize(namespace, key string) (int64, error) {
	info, err := os.Stat(fs.objectPath(namespace, key))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// NamespaceSize returns the total bytes and piece count stored for a namespace.
func (fs *FileSystem) NamespaceSize(namespace string) (int64, int64, error) {
	var totalSize int64
	var count int64

	err := filepath.Walk(fs.namespacePath(namespace), func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
			count++
		}
		return nil
	})

	return totalSize, count, err
}
