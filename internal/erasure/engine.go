// Package erasure stores pieces as Reed-Solomon shards spread over the
// satellite's storage nodes.
package erasure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/placement"
	"github.com/eniz1806/VaultUplink/internal/storage"
)

// Engine implements storage.Engine over a set of node engines. The
// namespace is the project ID and the key the piece key.
type Engine struct {
	nodes  map[string]storage.Engine
	ring   *placement.Ring
	data   int
	parity int

	mu     sync.Mutex
	codecs map[[2]int]*Codec
}

// NewEngine codes new pieces with cfg's shard counts (4+2 when unset).
// Pieces written with other counts stay readable.
func NewEngine(nodes map[string]storage.Engine, cfg config.ErasureConfig) (*Engine, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("erasure: no storage nodes")
	}
	e := &Engine{
		nodes:  nodes,
		ring:   placement.New(slices.Collect(maps.Keys(nodes)), 0),
		data:   cfg.DataShards,
		parity: cfg.ParityShards,
		codecs: make(map[[2]int]*Codec),
	}
	if e.data <= 0 {
		e.data, e.parity = 4, 2
	}
	if _, err := e.codec(e.data, e.parity); err != nil {
		return nil, err
	}
	return e, nil
}

// NewFileSystemNodes creates count node engines in dir/node-NN.
func NewFileSystemNodes(dir string, count int) (map[string]storage.Engine, error) {
	nodes := make(map[string]storage.Engine, count)
	for i := range count {
		id := fmt.Sprintf("node-%02d", i)
		fs, err := storage.NewFileSystem(filepath.Join(dir, id))
		if err != nil {
			return nil, fmt.Errorf("init node %s: %w", id, err)
		}
		nodes[id] = fs
	}
	return nodes, nil
}

func (e *Engine) codec(data, parity int) (*Codec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := [2]int{data, parity}
	if c, ok := e.codecs[k]; ok {
		return c, nil
	}
	c, err := NewCodec(data, parity)
	if err != nil {
		return nil, err
	}
	e.codecs[k] = c
	return c, nil
}

func (e *Engine) PutObject(namespace, key string, reader io.Reader, size int64) (int64, error) {
	piece, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read piece: %w", err)
	}
	if size >= 0 && int64(len(piece)) != size {
		return 0, fmt.Errorf("piece %s: got %d bytes, want %d", key, len(piece), size)
	}

	codec, err := e.codec(e.data, e.parity)
	if err != nil {
		return 0, err
	}
	shards, err := codec.Split(piece)
	if err != nil {
		return 0, err
	}
	layout := &Layout{
		Size:      int64(len(piece)),
		Data:      e.data,
		Parity:    e.parity,
		ShardSize: int64(len(shards[0])),
		Nodes:     e.ring.Place(namespace, key, len(shards)),
		Created:   time.Now().UTC(),
	}
	for i, shard := range shards {
		id := layout.Nodes[i]
		if _, err := e.nodes[id].PutObject(namespace, shardKey(key, i), bytes.NewReader(shard), layout.ShardSize); err != nil {
			return 0, fmt.Errorf("store shard %d on %s: %w", i, id, err)
		}
	}

	encoded, err := json.Marshal(layout)
	if err != nil {
		return 0, err
	}
	for _, id := range holders(layout) {
		if _, err := e.nodes[id].PutObject(namespace, layoutKey(key), bytes.NewReader(encoded), int64(len(encoded))); err != nil {
			return 0, fmt.Errorf("store layout on %s: %w", id, err)
		}
	}
	return layout.Size, nil
}

// GetObject decodes a piece, rebuilding and rewriting shards that went
// missing as long as no more than the parity count are gone.
func (e *Engine) GetObject(namespace, key string) (io.ReadCloser, int64, error) {
	layout, err := e.readLayout(namespace, key)
	if err != nil {
		return nil, 0, err
	}
	shards, missing := e.readShards(namespace, key, layout)
	if len(missing) > layout.Parity {
		return nil, 0, fmt.Errorf("piece %s: %d shards missing, %d parity", key, len(missing), layout.Parity)
	}
	codec, err := e.codec(layout.Data, layout.Parity)
	if err != nil {
		return nil, 0, err
	}
	if len(missing) > 0 {
		slog.Warn("erasure: degraded read", "namespace", namespace, "key", key, "missing", len(missing))
		if err := codec.Repair(shards); err != nil {
			return nil, 0, err
		}
		e.writeShards(namespace, key, layout, shards, missing)
	}
	piece, err := codec.Join(shards, layout.Size)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(piece)), layout.Size, nil
}

// DeleteObject removes every shard and layout copy it can reach.
func (e *Engine) DeleteObject(namespace, key string) error {
	layout, err := e.readLayout(namespace, key)
	if err != nil {
		// No layout survives: sweep every node.
		for _, node := range e.nodes {
			for i := range e.data + e.parity {
				node.DeleteObject(namespace, shardKey(key, i))
			}
			node.DeleteObject(namespace, layoutKey(key))
		}
		return nil
	}
	for i, id := range layout.Nodes {
		if err := e.nodes[id].DeleteObject(namespace, shardKey(key, i)); err != nil {
			slog.Warn("erasure: delete shard failed", "node", id, "key", key, "shard", i, "error", err)
		}
	}
	for _, id := range holders(layout) {
		e.nodes[id].DeleteObject(namespace, layoutKey(key))
	}
	return nil
}

func (e *Engine) ObjectExists(namespace, key string) bool {
	_, err := e.readLayout(namespace, key)
	return err == nil
}

func (e *Engine) ObjectSize(namespace, key string) (int64, error) {
	layout, err := e.readLayout(namespace, key)
	if err != nil {
		return 0, err
	}
	return layout.Size, nil
}

// Nodes returns the sorted storage node IDs.
func (e *Engine) Nodes() []string {
	return e.ring.Nodes()
}

// readLayout returns the first readable layout copy among the nodes the
// ring would place the piece on.
func (e *Engine) readLayout(namespace, key string) (*Layout, error) {
	lastErr := fmt.Errorf("no nodes")
	for _, id := range e.ring.Candidates(namespace, key, e.data+e.parity) {
		r, _, err := e.nodes[id].GetObject(namespace, layoutKey(key))
		if err != nil {
			lastErr = err
			continue
		}
		b, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			lastErr = err
			continue
		}
		layout, err := decodeLayout(b)
		if err != nil {
			lastErr = err
			continue
		}
		return layout, nil
	}
	return nil, fmt.Errorf("read layout %s/%s: %w", namespace, key, lastErr)
}

// readShards loads every shard it can. Unreadable or truncated shards are
// left nil and their indexes returned as missing.
func (e *Engine) readShards(namespace, key string, layout *Layout) ([][]byte, []int) {
	shards := make([][]byte, len(layout.Nodes))
	var missing []int
	for i, id := range layout.Nodes {
		shards[i] = e.readShard(namespace, key, id, i, layout.ShardSize)
		if shards[i] == nil {
			missing = append(missing, i)
		}
	}
	return shards, missing
}

func (e *Engine) readShard(namespace, key, id string, i int, size int64) []byte {
	node, ok := e.nodes[id]
	if !ok {
		return nil
	}
	r, _, err := node.GetObject(namespace, shardKey(key, i))
	if err != nil {
		return nil
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil || int64(len(b)) != size {
		return nil
	}
	return b
}

// holders returns the distinct nodes of a layout.
func holders(l *Layout) []string {
	ids := slices.Clone(l.Nodes)
	slices.Sort(ids)
	return slices.Compact(ids)
}
