package erasure

import (
	"bytes"
	"fmt"
	"log/slog"
)

// HealStatus reports the shard health of a single piece.
type HealStatus struct {
	Shards  int `json:"shards"`
	Missing int `json:"missing"`
	Parity  int `json:"parity"`
}

func (s HealStatus) Degraded() bool { return s.Missing > 0 }

// Recoverable reports whether enough shards survive to decode the piece.
func (s HealStatus) Recoverable() bool { return s.Missing <= s.Parity }

// Status inspects the shards of one piece without repairing them.
func (e *Engine) Status(namespace, key string) (HealStatus, error) {
	layout, err := e.readLayout(namespace, key)
	if err != nil {
		return HealStatus{}, err
	}
	_, missing := e.readShards(namespace, key, layout)
	return HealStatus{Shards: len(layout.Nodes), Missing: len(missing), Parity: layout.Parity}, nil
}

// Heal rebuilds and rewrites the missing shards of one piece and returns
// how many it rewrote.
func (e *Engine) Heal(namespace, key string) (int, error) {
	layout, err := e.readLayout(namespace, key)
	if err != nil {
		return 0, err
	}
	shards, missing := e.readShards(namespace, key, layout)
	if len(missing) == 0 {
		return 0, nil
	}
	if len(missing) > layout.Parity {
		slog.Error("erasure: piece lost", "namespace", namespace, "key", key, "missing", len(missing), "parity", layout.Parity)
		return 0, fmt.Errorf("piece %s unrecoverable: %d shards missing, %d parity", key, len(missing), layout.Parity)
	}
	codec, err := e.codec(layout.Data, layout.Parity)
	if err != nil {
		return 0, err
	}
	if err := codec.Repair(shards); err != nil {
		return 0, err
	}
	return e.writeShards(namespace, key, layout, shards, missing), nil
}

// writeShards stores the rebuilt shards at indexes on their assigned nodes.
func (e *Engine) writeShards(namespace, key string, layout *Layout, shards [][]byte, indexes []int) int {
	written := 0
	for _, i := range indexes {
		id := layout.Nodes[i]
		node, ok := e.nodes[id]
		if !ok {
			continue
		}
		if _, err := node.PutObject(namespace, shardKey(key, i), bytes.NewReader(shards[i]), int64(len(shards[i]))); err != nil {
			slog.Error("erasure: rewrite shard failed", "node", id, "key", key, "shard", i, "error", err)
			continue
		}
		written++
	}
	if written > 0 {
		slog.Info("erasure: shards rewritten", "namespace", namespace, "key", key, "shards", written)
	}
	return written
}
