package metadata

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	bolt "go.etcd.io/bbolt"
)

var snapshotMagic = [8]byte{'V', 'U', 'S', 'N', 'A', 'P', 0, 1}

var ErrBadSnapshot = errors.New("not a satellite snapshot")

// snapshotBuckets lists every bucket a snapshot carries, in write order.
var snapshotBuckets = [][]byte{
	projectsBucket, apiKeysBucket, bucketsBucket,
	objectsBucket, multipartBucket, partsBucket,
	revokedBucket,
}

// WriteSnapshot streams the satellite database to w.
// Layout: magic, then per bucket (name, count uint64, count x (key, value)).
// Names, keys and values are uint32 length prefixed.
func (s *Store) WriteSnapshot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(snapshotMagic[:]); err != nil {
		return err
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range snapshotBuckets {
			b := tx.Bucket(name)
			if err := writeBytes(bw, name); err != nil {
				return fmt.Errorf("write bucket name %s: %w", name, err)
			}
			if err := binary.Write(bw, binary.BigEndian, uint64(b.Stats().KeyN)); err != nil {
				return fmt.Errorf("write key count: %w", err)
			}
			if err := b.ForEach(func(k, v []byte) error {
				if err := writeBytes(bw, k); err != nil {
					return err
				}
				return writeBytes(bw, v)
			}); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// RestoreSnapshot replaces the database contents with a snapshot written by WriteSnapshot.
// Nothing changes if the snapshot is malformed.
func (s *Store) RestoreSnapshot(r io.Reader) error {
	br := bufio.NewReader(r)
	var magic [8]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil || magic != snapshotMagic {
		return ErrBadSnapshot
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range snapshotBuckets {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("clear bucket %s: %w", name, err)
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		for {
			name, err := readBytes(br)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read bucket name: %w", err)
			}
			b := tx.Bucket(name)
			if b == nil {
				return fmt.Errorf("%w: unknown bucket %q", ErrBadSnapshot, name)
			}

			var count uint64
			if err := binary.Read(br, binary.BigEndian, &count); err != nil {
				return fmt.Errorf("read key count: %w", err)
			}
			for i := uint64(0); i < count; i++ {
				key, err := readBytes(br)
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				val, err := readBytes(br)
				if err != nil {
					return fmt.Errorf("read value: %w", err)
				}
				if err := b.Put(key, val); err != nil {
					return fmt.Errorf("put key: %w", err)
				}
			}
		}
	})
}

func writeBytes(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
