package erasure

import (
	"encoding/json"
	"fmt"
	"time"
)

// Layout records how one piece was coded and which node holds each shard.
// Every node holding a shard keeps a copy, so any survivor can describe
// the piece.
type Layout struct {
	Size      int64     `json:"size"`
	Data      int       `json:"data"`
	Parity    int       `json:"parity"`
	ShardSize int64     `json:"shard_size"`
	Nodes     []string  `json:"nodes"`
	Created   time.Time `json:"created"`
}

func decodeLayout(b []byte) (*Layout, error) {
	var l Layout
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	if len(l.Nodes) != l.Data+l.Parity {
		return nil, fmt.Errorf("layout lists %d nodes for %d+%d shards", len(l.Nodes), l.Data, l.Parity)
	}
	return &l, nil
}

// Shard i of a piece is stored as rs/<key>/shard-<i> on its node, next to
// rs/<key>/layout.json.
func shardKey(key string, i int) string {
	return fmt.Sprintf("rs/%s/shard-%02d", key, i)
}

func layoutKey(key string) string {
	return "rs/" + key + "/layout.json"
}
