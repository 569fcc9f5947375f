package utilities

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewJTI builds a token identifier from the subject id and a KSUID. The KSUID
// carries a second-resolution timestamp plus 128 random bits, so two logins by
// the same subject within one clock tick still get distinct identifiers.
func NewJTI(subjectID int64) string {
	return strconv.FormatInt(subjectID, 10) + "_" + NewKSUID()
}

var (
	nodesMu sync.Mutex
	nodes   = map[int64]*snowflake.Node{}
)

// NewSnowflakeIDWithNode generates a snowflake ID string using the provided node ID.
// Nodes are cached so sequence numbers advance across calls. If the node cannot
// be initialized, it falls back to a KSUID string.
func NewSnowflakeIDWithNode(nodeID int64) string {
	nodesMu.Lock()
	node, ok := nodes[nodeID]
	if !ok {
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			nodesMu.Unlock()
			return NewKSUID()
		}
		nodes[nodeID] = n
		node = n
	}
	nodesMu.Unlock()
	return node.Generate().String()
}
