package satellite

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/storage"
)

func pieceKey(prefix string, index int) string {
	return fmt.Sprintf("%s/s%05d", prefix, index)
}

// sealerFor returns the engine that encrypts bucket/key's segments under its content key.
func (p *Session) sealerFor(bucket, key string) (*storage.EncryptedEngine, error) {
	contentKey, err := p.enc.ContentKey(bucket, key)
	if err != nil {
		return nil, err
	}
	return storage.NewEncryptedEngine(p.sat.pieces, contentKey)
}

// segmentWriter cuts a byte stream into segments and stores each one as it fills.
type segmentWriter struct {
	sat         *Satellite
	projectID   string
	prefix      string
	sealer      *storage.EncryptedEngine
	segmentSize int64

	spoolDir string
	buf      []byte
	spool    *os.File
	buffered int64

	segments []metadata.SegmentRef
	size     int64
}

func (p *Session) newSegmentWriter(sealer *storage.EncryptedEngine, prefix string) *segmentWriter {
	return &segmentWriter{
		sat:         p.sat,
		projectID:   p.projectID,
		prefix:      prefix,
		sealer:      sealer,
		segmentSize: p.sat.cfg.Satellite.SegmentSize,
		spoolDir:    p.opts.TempDirectory,
	}
}

// Write buffers p, storing every segment that fills up on the way.
func (w *segmentWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(int64(len(p)), w.segmentSize-w.buffered)
		if err := w.buffer(p[:n]); err != nil {
			return written, err
		}
		written += int(n)
		p = p[n:]
		if w.buffered == w.segmentSize {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *segmentWriter) buffer(p []byte) error {
	if w.spoolDir == "" {
		w.buf = append(w.buf, p...)
		w.buffered += int64(len(p))
		return nil
	}
	if w.spool == nil {
		f, err := os.CreateTemp(w.spoolDir, "vaultuplink-segment-*")
		if err != nil {
			return fmt.Errorf("create segment spool: %w", err)
		}
		w.spool = f
	}
	if _, err := w.spool.Write(p); err != nil {
		return fmt.Errorf("spool segment: %w", err)
	}
	w.buffered += int64(len(p))
	return nil
}

// drain returns the buffered segment and resets the buffer.
func (w *segmentWriter) drain() ([]byte, error) {
	if w.spool == nil {
		data := w.buf
		w.buf = nil
		return data, nil
	}
	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind segment spool: %w", err)
	}
	data := make([]byte, w.buffered)
	if _, err := io.ReadFull(w.spool, data); err != nil {
		return nil, fmt.Errorf("read segment spool: %w", err)
	}
	if err := w.spool.Truncate(0); err != nil {
		return nil, fmt.Errorf("reset segment spool: %w", err)
	}
	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind segment spool: %w", err)
	}
	return data, nil
}

// flush stores whatever is buffered as the next segment.
func (w *segmentWriter) flush() error {
	if w.buffered == 0 {
		return nil
	}
	data, err := w.drain()
	if err != nil {
		return err
	}
	w.buffered = 0

	ref, err := w.sat.storeSegment(w.sealer, w.projectID, pieceKey(w.prefix, len(w.segments)), data)
	if err != nil {
		return err
	}
	ref.Index = len(w.segments)
	w.segments = append(w.segments, ref)
	w.size += ref.PlainSize
	w.sat.logger.Debug("segment flushed", "piece", ref.PieceKey, "size", ref.PlainSize, "inline", ref.Inline != nil)
	return nil
}

// pending is the number of bytes accepted so far, stored or not.
func (w *segmentWriter) pending() int64 {
	return w.size + w.buffered
}

func (w *segmentWriter) close() {
	if w.spool != nil {
		name := w.spool.Name()
		w.spool.Close()
		os.Remove(name)
		w.spool = nil
	}
	w.buf = nil
}

// discard deletes every stored segment.
func (w *segmentWriter) discard() {
	w.close()
	w.sat.deleteSegments(w.projectID, w.segments)
	w.segments = nil
}

// storeSegment seals one segment. Small segments live inline in the metadata
// database, the rest are erasure coded onto the storage nodes.
func (s *Satellite) storeSegment(sealer *storage.EncryptedEngine, projectID, key string, plain []byte) (metadata.SegmentRef, error) {
	ref := metadata.SegmentRef{
		PlainSize:  int64(len(plain)),
		StoredSize: int64(len(plain) + sealer.Overhead()),
		PieceKey:   key,
	}
	if err := s.reserveStorage(projectID, ref.StoredSize, 1); err != nil {
		return ref, err
	}

	if ref.PlainSize < s.cfg.Satellite.InlineThreshold {
		sealed, err := sealer.Seal(plain, []byte(key))
		if err != nil {
			s.releaseStorage(projectID, ref.StoredSize, 1)
			return ref, err
		}
		ref.Inline = sealed
		return ref, nil
	}

	if _, err := sealer.PutObject(projectID, key, bytes.NewReader(plain), ref.PlainSize); err != nil {
		s.releaseStorage(projectID, ref.StoredSize, 1)
		return ref, fmt.Errorf("store segment %s: %w", key, err)
	}
	return ref, nil
}

func (s *Satellite) loadSegment(sealer *storage.EncryptedEngine, projectID string, ref metadata.SegmentRef) ([]byte, error) {
	if ref.Inline != nil {
		return sealer.Open(ref.Inline, []byte(ref.PieceKey))
	}
	rc, _, err := sealer.GetObject(projectID, ref.PieceKey)
	if err != nil {
		return nil, fmt.Errorf("load segment %s: %w", ref.PieceKey, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// deleteSegments removes stored pieces and returns their usage to the project.
func (s *Satellite) deleteSegments(projectID string, refs []metadata.SegmentRef) {
	if len(refs) == 0 {
		return
	}
	var stored int64
	for _, ref := range refs {
		stored += ref.StoredSize
		if ref.Inline != nil {
			continue
		}
		if err := s.pieces.DeleteObject(projectID, ref.PieceKey); err != nil {
			s.logger.Warn("delete segment failed", "piece", ref.PieceKey, "error", err)
		}
	}
	s.releaseStorage(projectID, stored, int64(len(refs)))
}
