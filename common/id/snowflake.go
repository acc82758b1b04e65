package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// The server binary uses node 1 and the stdio binary node 2 so that ids from
// both processes never collide in shared log storage.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new delivery id. Falls back to node 0 when Init was never called,
// which only happens in tests that exercise handlers directly.
func New() int64 {
	_ = Init(0)
	return node.Generate().Int64()
}
