// Package idgen generates row identifiers and opaque bearer token values.
package idgen

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// DefaultNodeID is used when Initialize has not been called
const DefaultNodeID = 1

var (
	node    *snowflake.Node
	nodeErr error
	once    sync.Once
)

// Initialize sets up the Snowflake ID generator with a node ID. Only the
// first call has any effect; processes sharing a database should use distinct
// node IDs.
func Initialize(nodeID int64) error {
	once.Do(func() {
		node, nodeErr = snowflake.NewNode(nodeID)
	})
	return nodeErr
}

// GenerateID generates a new Snowflake ID as a string
func GenerateID() string {
	if err := Initialize(DefaultNodeID); err != nil {
		// Only reachable if Initialize was called with an out of range node ID
		panic("idgen: " + err.Error())
	}
	return node.Generate().String()
}
