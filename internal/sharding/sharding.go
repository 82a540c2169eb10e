package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions for sync subjects. One user's
// operations always land on one shard, so per-user ordering survives fan-out.
const ShardCount = 256

// GetShardID calculates the deterministic shard ID for a user.
func GetShardID(userID string) int {
	checksum := crc32.ChecksumIEEE([]byte(userID))
	return int(checksum % ShardCount)
}

// SyncSubject returns the NATS subject for a user's sync operations.
// Format: taskleaf.sync.{shard_id}.user.{user_id}
func SyncSubject(userID string) string {
	return fmt.Sprintf("taskleaf.sync.%d.user.%s", GetShardID(userID), userID)
}
