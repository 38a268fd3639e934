package erasure

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// ErrEmptyPiece is returned when asked to split zero bytes.
var ErrEmptyPiece = errors.New("erasure: empty piece")

// Codec splits a piece into data and parity shards of equal size and
// joins them back once enough shards survive.
type Codec struct {
	rs     reedsolomon.Encoder
	data   int
	parity int
}

func NewCodec(data, parity int) (*Codec, error) {
	rs, err := reedsolomon.New(data, parity)
	if err != nil {
		return nil, fmt.Errorf("erasure: %d+%d codec: %w", data, parity, err)
	}
	return &Codec{rs: rs, data: data, parity: parity}, nil
}

// Shards is the number of shards Split returns.
func (c *Codec) Shards() int {
	return c.data + c.parity
}

// Split pads piece to a multiple of the data shard count and computes parity.
func (c *Codec) Split(piece []byte) ([][]byte, error) {
	if len(piece) == 0 {
		return nil, ErrEmptyPiece
	}
	shards, err := c.rs.Split(piece)
	if err != nil {
		return nil, fmt.Errorf("split piece: %w", err)
	}
	if err := c.rs.Encode(shards); err != nil {
		return nil, fmt.Errorf("compute parity: %w", err)
	}
	return shards, nil
}

// Repair rebuilds the nil entries of shards in place, parity included.
func (c *Codec) Repair(shards [][]byte) error {
	if err := c.rs.Reconstruct(shards); err != nil {
		return fmt.Errorf("reconstruct: %w", err)
	}
	return nil
}

// Join returns the first size bytes the shards encode. Nil shards are
// rebuilt first.
func (c *Codec) Join(shards [][]byte, size int64) ([]byte, error) {
	if len(shards) != c.Shards() {
		return nil, fmt.Errorf("erasure: got %d shards, codec uses %d", len(shards), c.Shards())
	}
	for _, s := range shards {
		if s == nil {
			if err := c.Repair(shards); err != nil {
				return nil, err
			}
			break
		}
	}
	if ok, err := c.rs.Verify(shards); err != nil || !ok {
		return nil, fmt.Errorf("erasure: parity check failed: %v", err)
	}
	var buf bytes.Buffer
	buf.Grow(int(size))
	if err := c.rs.Join(&buf, shards, int(size)); err != nil {
		return nil, fmt.Errorf("join shards: %w", err)
	}
	return buf.Bytes(), nil
}
